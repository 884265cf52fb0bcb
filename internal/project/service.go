package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/audit"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/authz"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/errs"
)

// Service mutates memberships and role-authority mappings. Local writes are
// strict and transactional; the matching backend group changes run afterwards
// as best-effort synchronization.
type Service struct {
	store Store
	sync  *authz.Sync
	ids   authz.ReservedIDs
	log   *zap.Logger
}

// NewService constructs the membership service.
func NewService(store Store, sync *authz.Sync, ids authz.ReservedIDs, log *zap.Logger) *Service {
	return &Service{store: store, sync: sync, ids: ids, log: log}
}

// ReassignRole changes a member's role within a project. The membership row
// is value-updated in one transaction after the admin-coverage invariant is
// validated against the post-change set; backend group reassignment follows
// best-effort.
func (s *Service) ReassignRole(ctx context.Context, projectUUID, userID string, newRoleSeq int64) error {
	projectUUID = strings.TrimSpace(projectUUID)
	userID = strings.TrimSpace(userID)
	if projectUUID == "" || userID == "" {
		return fmt.Errorf("%w: project uuid and user id are required", errs.ErrValidation)
	}

	p, err := s.store.GetProject(ctx, projectUUID)
	if err != nil {
		return err
	}
	if err := s.roleUsable(ctx, p.Seq, newRoleSeq); err != nil {
		return err
	}

	current, err := s.store.ListMemberships(ctx, p.Seq)
	if err != nil {
		return err
	}
	var existing *Membership
	for i := range current {
		if current[i].UserID == userID {
			existing = &current[i]
			break
		}
	}
	if existing == nil {
		return fmt.Errorf("%w: user %s is not a member of project %d", errs.ErrNotFound, userID, p.Seq)
	}
	if existing.RoleSeq == newRoleSeq {
		return nil
	}

	change := Change{UserID: userID, NewRoleSeq: &newRoleSeq}
	if err := ValidateMembershipChange(p, current, []Change{change}, s.ids); err != nil {
		return err
	}

	oldRoleSeq := existing.RoleSeq
	if err := s.store.UpdateMembershipRole(ctx, p.Seq, userID, newRoleSeq); err != nil {
		return err
	}

	s.syncGroupReassignment(ctx, p.Seq, userID, &oldRoleSeq, &newRoleSeq)
	audit.LogEvent(ctx, "membership.role_reassigned",
		zap.Int64("project_seq", p.Seq),
		zap.String("user_id", userID),
		zap.Int64("old_role_seq", oldRoleSeq),
		zap.Int64("new_role_seq", newRoleSeq),
	)
	return nil
}

// AssignMember adds a user to a project with the given role. Assigning an
// existing member is a role reassignment.
func (s *Service) AssignMember(ctx context.Context, projectUUID, userID string, roleSeq int64) error {
	projectUUID = strings.TrimSpace(projectUUID)
	userID = strings.TrimSpace(userID)
	if projectUUID == "" || userID == "" {
		return fmt.Errorf("%w: project uuid and user id are required", errs.ErrValidation)
	}

	p, err := s.store.GetProject(ctx, projectUUID)
	if err != nil {
		return err
	}
	if err := s.roleUsable(ctx, p.Seq, roleSeq); err != nil {
		return err
	}

	err = s.store.InsertMembership(ctx, Membership{ProjectSeq: p.Seq, UserID: userID, RoleSeq: roleSeq})
	if errors.Is(err, errs.ErrConflict) {
		return s.ReassignRole(ctx, projectUUID, userID, roleSeq)
	}
	if err != nil {
		return err
	}

	s.syncGroupReassignment(ctx, p.Seq, userID, nil, &roleSeq)
	audit.LogEvent(ctx, "membership.assigned",
		zap.Int64("project_seq", p.Seq),
		zap.String("user_id", userID),
		zap.Int64("role_seq", roleSeq),
	)
	return nil
}

// RemoveMember deletes a user's membership. Rejected with InvariantViolation
// when the removal would strip the project's last admin or manager; in that
// case no row changes.
func (s *Service) RemoveMember(ctx context.Context, projectUUID, userID string) error {
	projectUUID = strings.TrimSpace(projectUUID)
	userID = strings.TrimSpace(userID)
	if projectUUID == "" || userID == "" {
		return fmt.Errorf("%w: project uuid and user id are required", errs.ErrValidation)
	}

	p, err := s.store.GetProject(ctx, projectUUID)
	if err != nil {
		return err
	}
	current, err := s.store.ListMemberships(ctx, p.Seq)
	if err != nil {
		return err
	}
	var existing *Membership
	for i := range current {
		if current[i].UserID == userID {
			existing = &current[i]
			break
		}
	}
	if existing == nil {
		return fmt.Errorf("%w: user %s is not a member of project %d", errs.ErrNotFound, userID, p.Seq)
	}

	if err := ValidateMembershipChange(p, current, []Change{{UserID: userID, Remove: true}}, s.ids); err != nil {
		return err
	}

	oldRoleSeq := existing.RoleSeq
	if err := s.store.DeleteMembership(ctx, p.Seq, userID); err != nil {
		return err
	}

	s.syncGroupReassignment(ctx, p.Seq, userID, &oldRoleSeq, nil)
	audit.LogEvent(ctx, "membership.removed",
		zap.Int64("project_seq", p.Seq),
		zap.String("user_id", userID),
		zap.Int64("role_seq", oldRoleSeq),
	)
	return nil
}

// RoleAuthorities returns a role's active authority mappings. Deactivated
// mappings are retained in storage as tombstones and are not reported here.
func (s *Service) RoleAuthorities(ctx context.Context, roleSeq int64) ([]RoleAuthorityMapping, error) {
	if _, err := s.store.GetRole(ctx, roleSeq); err != nil {
		return nil, err
	}
	mappings, err := s.store.ListRoleAuthorities(ctx, roleSeq)
	if err != nil {
		return nil, err
	}
	active := make([]RoleAuthorityMapping, 0, len(mappings))
	for _, m := range mappings {
		if m.Status == StatusActive {
			active = append(active, m)
		}
	}
	return active, nil
}

// ReplaceRoleAuthorities installs a role's full authority set.
func (s *Service) ReplaceRoleAuthorities(ctx context.Context, roleSeq int64, authorityIDs []string) error {
	if _, err := s.store.GetRole(ctx, roleSeq); err != nil {
		return err
	}
	deduped := dedupeStrings(authorityIDs)
	return s.store.ReplaceRoleAuthorities(ctx, roleSeq, deduped)
}

// MarkSensitive sets the project's sensitive-information flag. The flag is
// one-way: it can never be cleared once set.
func (s *Service) MarkSensitive(ctx context.Context, projectUUID string) error {
	p, err := s.store.GetProject(ctx, strings.TrimSpace(projectUUID))
	if err != nil {
		return err
	}
	if p.SensitiveInfo {
		return nil
	}
	return s.store.SetSensitiveInfo(ctx, p.Seq)
}

// roleUsable checks the role exists, is active, and belongs to the project or
// the portal scope.
func (s *Service) roleUsable(ctx context.Context, projectSeq, roleSeq int64) error {
	role, err := s.store.GetRole(ctx, roleSeq)
	if err != nil {
		return err
	}
	if role.Status != StatusActive {
		return fmt.Errorf("%w: role %d is inactive", errs.ErrValidation, roleSeq)
	}
	if role.ProjectSeq != nil && *role.ProjectSeq != projectSeq {
		return fmt.Errorf("%w: role %d does not belong to project %d", errs.ErrValidation, roleSeq, projectSeq)
	}
	return nil
}

// syncGroupReassignment reflects a committed membership change into the
// backend's groups. Every call is best-effort: the local transaction has
// already committed and must not be disturbed.
func (s *Service) syncGroupReassignment(ctx context.Context, projectSeq int64, userID string, oldRoleSeq, newRoleSeq *int64) {
	if oldRoleSeq != nil {
		oldGroup := authz.GroupName(projectSeq, *oldRoleSeq)
		id, err := s.sync.FindGroup(ctx, oldGroup)
		if err != nil {
			s.log.Warn("group lookup failed during reassignment", zap.String("group", oldGroup), zap.Error(err))
		} else if id != "" {
			_ = s.sync.UnassignMember(ctx, userID, id, authz.BestEffort)
		}
	}
	if newRoleSeq != nil {
		newGroup := authz.GroupName(projectSeq, *newRoleSeq)
		if id, err := s.sync.EnsureGroup(ctx, newGroup, authz.BestEffort); err == nil && id != "" {
			_ = s.sync.AssignMember(ctx, userID, id, authz.BestEffort)
		}
	}
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
