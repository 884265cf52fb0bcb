package project

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/asset"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/audit"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/authz"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/errs"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/tasks"
)

// Lifecycle orchestrates project termination: one authoritative local
// transaction, then detached best-effort cleanup of backend groups and
// externally stored assets. Cleanup is enqueued strictly after the local
// commit and never blocks or fails the caller.
type Lifecycle struct {
	store    Store
	sync     *authz.Sync
	assets   *asset.Registry
	handlers *asset.HandlerRegistry
	queue    *tasks.Queue
	ids      authz.ReservedIDs
	names    *NameCache
	log      *zap.Logger
}

// NewLifecycle constructs the termination coordinator.
func NewLifecycle(store Store, sync *authz.Sync, assets *asset.Registry, handlers *asset.HandlerRegistry, queue *tasks.Queue, ids authz.ReservedIDs, log *zap.Logger) *Lifecycle {
	lc := &Lifecycle{
		store:    store,
		sync:     sync,
		assets:   assets,
		handlers: handlers,
		queue:    queue,
		ids:      ids,
		log:      log,
	}
	lc.names = NewNameCache(func(ctx context.Context, seq int64) (string, error) {
		p, err := store.GetProjectBySeq(ctx, seq)
		if err != nil {
			return "", err
		}
		return p.Name, nil
	})
	return lc
}

// Terminate ends a project. The public project can never be terminated, and
// the actor must hold the portal-admin role or the project's manager role;
// both guards fire before any mutation.
func (lc *Lifecycle) Terminate(ctx context.Context, projectUUID, actorID string) error {
	projectUUID = strings.TrimSpace(projectUUID)
	actorID = strings.TrimSpace(actorID)
	if projectUUID == "" || actorID == "" {
		return fmt.Errorf("%w: project uuid and actor are required", errs.ErrValidation)
	}

	p, err := lc.store.GetProject(ctx, projectUUID)
	if err != nil {
		return err
	}
	if p.Seq == lc.ids.PublicProject {
		return fmt.Errorf("%w: the public project cannot be terminated", errs.ErrValidation)
	}
	if err := lc.actorMayTerminate(ctx, p.Seq, actorID); err != nil {
		return err
	}

	// Captured before the transaction deletes them; cleanup needs to know
	// which members and roles existed.
	members, err := lc.store.ListMemberships(ctx, p.Seq)
	if err != nil {
		return err
	}
	roles, err := lc.store.ListRoles(ctx, p.Seq)
	if err != nil {
		return err
	}

	// Authoritative local transaction. Must commit regardless of backend
	// availability.
	if err := lc.store.TerminateProject(ctx, p.Seq); err != nil {
		return err
	}

	name, nameErr := lc.names.Get(ctx, p.Seq)
	if nameErr != nil {
		name = p.Name
	}
	audit.LogEvent(ctx, "project.terminated",
		zap.Int64("project_seq", p.Seq),
		zap.String("project_name", name),
		zap.Int("members", len(members)),
	)

	// Cleanup is enqueued only now, after the commit: it must never race
	// ahead of the state it is cleaning up.
	lc.enqueueGroupCleanup(p.Seq, roles, members)
	lc.enqueueAssetCleanup(p.Seq)
	return nil
}

// actorMayTerminate requires the actor to be a portal admin or this project's
// manager.
func (lc *Lifecycle) actorMayTerminate(ctx context.Context, projectSeq int64, actorID string) error {
	memberships, err := lc.store.ListMembershipsByUser(ctx, actorID)
	if err != nil {
		return err
	}
	for _, m := range memberships {
		if m.RoleSeq == lc.ids.PortalAdmin {
			return nil
		}
		if m.ProjectSeq == projectSeq && m.RoleSeq == lc.ids.ProjectManager {
			return nil
		}
	}
	return fmt.Errorf("%w: actor %s holds neither portal admin nor project manager for project %d",
		errs.ErrUnauthorized, actorID, projectSeq)
}

// enqueueGroupCleanup removes every member from every backend group of the
// project, then deletes the groups. Each operation is independently
// best-effort.
func (lc *Lifecycle) enqueueGroupCleanup(projectSeq int64, roles []Role, members []Membership) {
	lc.queue.Enqueue("group_cleanup", func(ctx context.Context) error {
		groups := lc.projectGroups(ctx, projectSeq, roles)
		for _, g := range groups {
			for _, m := range members {
				_ = lc.sync.UnassignMember(ctx, m.UserID, g.ID, authz.BestEffort)
			}
		}
		for _, g := range groups {
			_ = lc.sync.RemoveGroup(ctx, g.ID, authz.BestEffort)
		}
		return nil
	})
}

// projectGroups resolves the backend groups to clean up. The role set was
// snapshotted before the termination transaction deleted it, so each role's
// derived group name can be looked up directly; a prefix sweep then catches
// any group the role table no longer knew about. Results are deduplicated by
// backend id.
func (lc *Lifecycle) projectGroups(ctx context.Context, projectSeq int64, roles []Role) []authz.Group {
	seen := make(map[string]struct{})
	var groups []authz.Group
	for _, r := range roles {
		name := authz.GroupName(projectSeq, r.Seq)
		id, err := lc.sync.FindGroup(ctx, name)
		if err != nil || id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		groups = append(groups, authz.Group{ID: id, Name: name})
	}
	swept, err := lc.sync.GroupsByPrefix(ctx, authz.GroupPrefix(projectSeq))
	if err != nil {
		lc.log.Warn("group prefix sweep failed",
			zap.Int64("project_seq", projectSeq),
			zap.Error(err),
		)
		return groups
	}
	for _, g := range swept {
		if _, ok := seen[g.ID]; ok {
			continue
		}
		seen[g.ID] = struct{}{}
		groups = append(groups, g)
	}
	return groups
}

// enqueueAssetCleanup deletes the project's never-promoted assets through the
// kind-specific handlers. Assets promoted to public are skipped.
func (lc *Lifecycle) enqueueAssetCleanup(projectSeq int64) {
	lc.queue.Enqueue("asset_cleanup", func(ctx context.Context) error {
		owned, err := lc.assets.OwnedForCleanup(ctx, projectSeq)
		if err != nil {
			return fmt.Errorf("list assets of project %d: %w", projectSeq, err)
		}
		for _, o := range owned {
			if err := lc.handlers.Delete(ctx, o.ResourceURL); err != nil {
				lc.log.Warn("asset deletion failed",
					zap.String("resource_url", o.ResourceURL),
					zap.Int64("project_seq", projectSeq),
					zap.Error(err),
				)
			}
		}
		return nil
	})
}
