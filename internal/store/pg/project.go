package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/errs"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/project"
)

func (s *Store) GetProject(ctx context.Context, uuid string) (project.Project, error) {
	return s.scanProject(s.db.QueryRowContext(ctx, `
		select seq, uuid, name, status, sensitive_info, created_at, updated_at
		from projects
		where uuid = $1
	`, uuid))
}

func (s *Store) GetProjectBySeq(ctx context.Context, seq int64) (project.Project, error) {
	return s.scanProject(s.db.QueryRowContext(ctx, `
		select seq, uuid, name, status, sensitive_info, created_at, updated_at
		from projects
		where seq = $1
	`, seq))
}

func (s *Store) scanProject(row *sql.Row) (project.Project, error) {
	var p project.Project
	err := row.Scan(&p.Seq, &p.UUID, &p.Name, &p.Status, &p.SensitiveInfo, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return project.Project{}, fmt.Errorf("%w: project", errs.ErrNotFound)
	}
	if err != nil {
		return project.Project{}, err
	}
	return p, nil
}

// SetSensitiveInfo raises the one-way sensitive-information flag.
func (s *Store) SetSensitiveInfo(ctx context.Context, seq int64) error {
	res, err := s.db.ExecContext(ctx, `
		update projects set sensitive_info = true, updated_at = now()
		where seq = $1
	`, seq)
	if err != nil {
		return err
	}
	return requireRow(res, "project")
}

func (s *Store) ListRoles(ctx context.Context, projectSeq int64) ([]project.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select seq, uuid, name, type, project_seq, status, created_at, updated_at
		from roles
		where project_seq = $1
		order by seq
	`, projectSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []project.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) GetRole(ctx context.Context, roleSeq int64) (project.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select seq, uuid, name, type, project_seq, status, created_at, updated_at
		from roles
		where seq = $1
	`, roleSeq)
	if err != nil {
		return project.Role{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return project.Role{}, err
		}
		return project.Role{}, fmt.Errorf("%w: role %d", errs.ErrNotFound, roleSeq)
	}
	return scanRole(rows)
}

func scanRole(rows *sql.Rows) (project.Role, error) {
	var (
		r          project.Role
		projectSeq sql.NullInt64
	)
	if err := rows.Scan(&r.Seq, &r.UUID, &r.Name, &r.Type, &projectSeq, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return project.Role{}, err
	}
	if projectSeq.Valid {
		v := projectSeq.Int64
		r.ProjectSeq = &v
	}
	return r, nil
}

func (s *Store) ListMemberships(ctx context.Context, projectSeq int64) ([]project.Membership, error) {
	return s.queryMemberships(ctx, `
		select project_seq, user_id, role_seq, created_at
		from memberships
		where project_seq = $1
		order by user_id
	`, projectSeq)
}

func (s *Store) ListMembershipsByUser(ctx context.Context, userID string) ([]project.Membership, error) {
	return s.queryMemberships(ctx, `
		select project_seq, user_id, role_seq, created_at
		from memberships
		where user_id = $1
		order by project_seq
	`, userID)
}

func (s *Store) queryMemberships(ctx context.Context, query string, arg any) ([]project.Membership, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []project.Membership
	for rows.Next() {
		var m project.Membership
		if err := rows.Scan(&m.ProjectSeq, &m.UserID, &m.RoleSeq, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) InsertMembership(ctx context.Context, m project.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into memberships (project_seq, user_id, role_seq)
		values ($1, $2, $3)
	`, m.ProjectSeq, m.UserID, m.RoleSeq)
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: membership", errs.ErrConflict)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: project or role", errs.ErrNotFound)
		}
	}
	return err
}

func (s *Store) UpdateMembershipRole(ctx context.Context, projectSeq int64, userID string, roleSeq int64) error {
	res, err := s.db.ExecContext(ctx, `
		update memberships set role_seq = $3
		where project_seq = $1 and user_id = $2
	`, projectSeq, userID, roleSeq)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: role %d", errs.ErrNotFound, roleSeq)
		}
		return err
	}
	return requireRow(res, "membership")
}

func (s *Store) DeleteMembership(ctx context.Context, projectSeq int64, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from memberships
		where project_seq = $1 and user_id = $2
	`, projectSeq, userID)
	if err != nil {
		return err
	}
	return requireRow(res, "membership")
}

func (s *Store) ListRoleAuthorities(ctx context.Context, roleSeq int64) ([]project.RoleAuthorityMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role_seq, authority_id, status
		from role_authorities
		where role_seq = $1
		order by authority_id
	`, roleSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []project.RoleAuthorityMapping
	for rows.Next() {
		var m project.RoleAuthorityMapping
		if err := rows.Scan(&m.RoleSeq, &m.AuthorityID, &m.Status); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ReplaceRoleAuthorities installs the full authority set in one transaction:
// mappings absent from the new set are hard-deleted, INACTIVE ones in the set
// are reactivated, missing ones inserted.
func (s *Store) ReplaceRoleAuthorities(ctx context.Context, roleSeq int64, authorityIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		select authority_id, status from role_authorities where role_seq = $1
	`, roleSeq)
	if err != nil {
		return err
	}
	existing := make(map[string]project.ActiveStatus)
	for rows.Next() {
		var (
			id     string
			status project.ActiveStatus
		)
		if err := rows.Scan(&id, &status); err != nil {
			rows.Close()
			return err
		}
		existing[id] = status
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	wanted := make(map[string]struct{}, len(authorityIDs))
	for _, id := range authorityIDs {
		wanted[id] = struct{}{}
	}

	for id, status := range existing {
		if _, keep := wanted[id]; !keep {
			if _, err := tx.ExecContext(ctx, `
				delete from role_authorities where role_seq = $1 and authority_id = $2
			`, roleSeq, id); err != nil {
				return err
			}
			continue
		}
		if status == project.StatusInactive {
			if _, err := tx.ExecContext(ctx, `
				update role_authorities set status = 'ACTIVE'
				where role_seq = $1 and authority_id = $2
			`, roleSeq, id); err != nil {
				return err
			}
		}
	}
	for _, id := range authorityIDs {
		if _, ok := existing[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_authorities (role_seq, authority_id, status)
			values ($1, $2, 'ACTIVE')
		`, roleSeq, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// TerminateProject runs the authoritative termination transaction.
func (s *Store) TerminateProject(ctx context.Context, projectSeq int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		update role_authorities set status = 'INACTIVE'
		where role_seq in (select seq from roles where project_seq = $1)
	`, projectSeq); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		delete from memberships where project_seq = $1
	`, projectSeq); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		delete from roles where project_seq = $1
	`, projectSeq); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		update projects set status = 'COMPLETED', updated_at = now()
		where seq = $1
	`, projectSeq)
	if err != nil {
		return err
	}
	if err := requireRow(res, "project"); err != nil {
		return err
	}

	return tx.Commit()
}

func requireRow(res sql.Result, entity string) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: %s", errs.ErrNotFound, entity)
	}
	return nil
}
