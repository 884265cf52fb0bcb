package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/asset"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/errs"
)

// Replace deletes any existing ownership row for the URL and inserts the new
// one inside one transaction (last writer wins per URL).
func (s *Store) Replace(ctx context.Context, o asset.Ownership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		delete from asset_ownership where resource_url = $1
	`, o.ResourceURL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into asset_ownership (resource_url, originating_project_seq, current_owning_project_seq)
		values ($1, $2, $3)
	`, o.ResourceURL, o.OriginatingProjectSeq, o.CurrentOwningProjectSeq); err != nil {
		return err
	}

	return tx.Commit()
}

// Promote moves the current owner to the public project. Originating owner is
// untouched.
func (s *Store) Promote(ctx context.Context, resourceURL string, publicSeq int64) error {
	res, err := s.db.ExecContext(ctx, `
		update asset_ownership set current_owning_project_seq = $2
		where resource_url = $1
	`, resourceURL, publicSeq)
	if err != nil {
		return err
	}
	return requireRow(res, "asset ownership")
}

func (s *Store) Get(ctx context.Context, resourceURL string) (asset.Ownership, error) {
	var o asset.Ownership
	err := s.db.QueryRowContext(ctx, `
		select resource_url, originating_project_seq, current_owning_project_seq
		from asset_ownership
		where resource_url = $1
	`, resourceURL).Scan(&o.ResourceURL, &o.OriginatingProjectSeq, &o.CurrentOwningProjectSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return asset.Ownership{}, fmt.Errorf("%w: asset ownership", errs.ErrNotFound)
	}
	if err != nil {
		return asset.Ownership{}, err
	}
	return o, nil
}

func (s *Store) ListByOriginatingProject(ctx context.Context, projectSeq int64) ([]asset.Ownership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select resource_url, originating_project_seq, current_owning_project_seq
		from asset_ownership
		where originating_project_seq = $1
		order by resource_url
	`, projectSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []asset.Ownership
	for rows.Next() {
		var o asset.Ownership
		if err := rows.Scan(&o.ResourceURL, &o.OriginatingProjectSeq, &o.CurrentOwningProjectSeq); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}
