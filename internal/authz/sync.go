package authz

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/errs"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/obs"
)

// Group is a backend-native membership bucket.
type Group struct {
	ID   string
	Name string
}

// Backend is the consumed surface of the external authorization backend.
type Backend interface {
	Loginer

	CreatePolicy(ctx context.Context, resourceURL string, policies []PolicyRequest) ([]PolicyRequest, error)
	UpdatePolicy(ctx context.Context, resourceURL string, policies []PolicyRequest) ([]PolicyRequest, error)

	CreateGroup(ctx context.Context, name string) (string, error)
	DeleteGroup(ctx context.Context, id string) error
	SearchGroups(ctx context.Context, keyword string, page, size int) ([]Group, error)

	AssignUser(ctx context.Context, memberRef, groupID string) error
	UnassignUser(ctx context.Context, memberRef, groupID string) error
}

// FailureMode selects, per call site, what a backend failure means.
type FailureMode int

const (
	// Authoritative calls abort their operation: the error propagates.
	Authoritative FailureMode = iota
	// BestEffort calls never fail their caller: errors are logged and dropped.
	// Used after a local transaction has already committed.
	BestEffort
)

// Sync pushes policies, groups and memberships into the authorization
// backend. The backend is treated as an eventually consistent cache of the
// local model: Push is an idempotent upsert, group and member operations are
// plain side effects whose failure handling is chosen by FailureMode.
type Sync struct {
	backend Backend
	log     *zap.Logger
}

// NewSync constructs a Sync over the given backend.
func NewSync(backend Backend, log *zap.Logger) *Sync {
	return &Sync{backend: backend, log: log}
}

// Push upserts the policy set for a resource. Update is attempted first; a
// rejection or an empty result falls back to create. Only a failure of the
// fallback create propagates.
func (s *Sync) Push(ctx context.Context, resourceURL string, policies []PolicyRequest) error {
	updated, err := s.backend.UpdatePolicy(ctx, resourceURL, policies)
	if err == nil && len(updated) > 0 {
		obs.PolicyPushes.WithLabelValues("updated").Inc()
		return nil
	}
	if err != nil {
		s.log.Warn("policy update rejected, falling back to create",
			zap.String("resource", resourceURL),
			zap.Error(err),
		)
	}

	if _, err := s.backend.CreatePolicy(ctx, resourceURL, policies); err != nil {
		obs.PolicyPushes.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: create policy for %s: %v", errs.ErrExternalSync, resourceURL, err)
	}
	obs.PolicyPushes.WithLabelValues("created").Inc()
	return nil
}

// EnsureGroup creates the backend group if it does not already exist and
// returns its id.
func (s *Sync) EnsureGroup(ctx context.Context, name string, mode FailureMode) (string, error) {
	var id string
	err := s.run(ctx, "ensure_group", mode, func(ctx context.Context) error {
		groups, err := s.backend.SearchGroups(ctx, name, 0, 1)
		if err == nil {
			for _, g := range groups {
				if g.Name == name {
					id = g.ID
					return nil
				}
			}
		}
		created, err := s.backend.CreateGroup(ctx, name)
		if err != nil {
			return err
		}
		id = created
		return nil
	})
	return id, err
}

// FindGroup resolves a group name to its backend id. Returns empty when the
// group does not exist.
func (s *Sync) FindGroup(ctx context.Context, name string) (string, error) {
	groups, err := s.backend.SearchGroups(ctx, name, 0, 10)
	if err != nil {
		return "", fmt.Errorf("%w: search group %q: %v", errs.ErrExternalSync, name, err)
	}
	for _, g := range groups {
		if g.Name == name {
			return g.ID, nil
		}
	}
	return "", nil
}

// RemoveGroup deletes a backend group by id.
func (s *Sync) RemoveGroup(ctx context.Context, id string, mode FailureMode) error {
	return s.run(ctx, "remove_group", mode, func(ctx context.Context) error {
		return s.backend.DeleteGroup(ctx, id)
	})
}

// GroupsByPrefix lists backend groups whose derived name matches a project's
// prefix.
func (s *Sync) GroupsByPrefix(ctx context.Context, prefix string) ([]Group, error) {
	const pageSize = 100
	var out []Group
	for page := 0; ; page++ {
		groups, err := s.backend.SearchGroups(ctx, prefix, page, pageSize)
		if err != nil {
			return nil, fmt.Errorf("%w: search groups %q: %v", errs.ErrExternalSync, prefix, err)
		}
		for _, g := range groups {
			if len(g.Name) >= len(prefix) && g.Name[:len(prefix)] == prefix {
				out = append(out, g)
			}
		}
		if len(groups) < pageSize {
			return out, nil
		}
	}
}

// AssignMember puts a member into a backend group.
func (s *Sync) AssignMember(ctx context.Context, memberRef, groupID string, mode FailureMode) error {
	return s.run(ctx, "assign_member", mode, func(ctx context.Context) error {
		return s.backend.AssignUser(ctx, memberRef, groupID)
	})
}

// UnassignMember removes a member from a backend group.
func (s *Sync) UnassignMember(ctx context.Context, memberRef, groupID string, mode FailureMode) error {
	return s.run(ctx, "unassign_member", mode, func(ctx context.Context) error {
		return s.backend.UnassignUser(ctx, memberRef, groupID)
	})
}

// run executes one backend side effect under the failure-mode table. There is
// no retry loop here: staleness retries live in the transport, anything else
// gets exactly one immediate attempt.
func (s *Sync) run(ctx context.Context, op string, mode FailureMode, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	obs.BackendRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		obs.BackendRequests.WithLabelValues(op, "ok").Inc()
		return nil
	}
	obs.BackendRequests.WithLabelValues(op, "error").Inc()
	switch mode {
	case BestEffort:
		s.log.Warn("best-effort backend sync failed",
			zap.String("op", op),
			zap.Error(err),
		)
		return nil
	default:
		return fmt.Errorf("%w: %s: %v", errs.ErrExternalSync, op, err)
	}
}
