// Package access is the composed entry point of the policy-synthesis and
// group-synchronization core: callers apply policies to resources, manage
// memberships, promote assets and terminate projects through one service.
package access

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/asset"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/audit"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/authz"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/errs"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/project"
)

// Service composes the policy synthesizer, backend sync, session cache,
// ownership registry, membership service and lifecycle coordinator.
type Service struct {
	synth      *authz.Synthesizer
	sync       *authz.Sync
	sessions   *authz.SessionCache
	adminCreds authz.Credentials
	assets     *asset.Registry
	members    *project.Service
	lifecycle  *project.Lifecycle
	publicSeq  int64
	log        *zap.Logger
}

// Config carries the collaborators Service composes.
type Config struct {
	Synthesizer *authz.Synthesizer
	Sync        *authz.Sync
	Sessions    *authz.SessionCache
	AdminCreds  authz.Credentials
	Assets      *asset.Registry
	Members     *project.Service
	Lifecycle   *project.Lifecycle
	ReservedIDs authz.ReservedIDs
	Logger      *zap.Logger
}

// New constructs the access service.
func New(cfg Config) *Service {
	return &Service{
		synth:      cfg.Synthesizer,
		sync:       cfg.Sync,
		sessions:   cfg.Sessions,
		adminCreds: cfg.AdminCreds,
		assets:     cfg.Assets,
		members:    cfg.Members,
		lifecycle:  cfg.Lifecycle,
		publicSeq:  cfg.ReservedIDs.PublicProject,
		log:        cfg.Logger,
	}
}

// Synthesize produces the policy set for a resource without any side effect.
func (s *Service) Synthesize(resourceURL string, projectSeq int64, extraVerbs []string) []authz.PolicyRequest {
	return s.synth.Synthesize(resourceURL, projectSeq, extraVerbs)
}

// ApplyPolicy synthesizes and pushes the policy set for a resource, then
// records the project's ownership of it. The push is authoritative here:
// this is the first-apply path and its failure propagates to the caller
// before any ownership row is written.
func (s *Service) ApplyPolicy(ctx context.Context, resourceURL string, projectSeq int64) error {
	resourceURL = strings.TrimSpace(resourceURL)
	if resourceURL == "" {
		return fmt.Errorf("%w: resource url is required", errs.ErrValidation)
	}

	policies := s.synth.Synthesize(resourceURL, projectSeq, nil)
	if err := s.sync.Push(ctx, resourceURL, policies); err != nil {
		return err
	}
	if err := s.assets.RecordOwnership(ctx, resourceURL, projectSeq); err != nil {
		return err
	}
	audit.LogEvent(ctx, "policy.applied",
		zap.String("resource_url", resourceURL),
		zap.Int64("project_seq", projectSeq),
	)
	return nil
}

// PromoteAssetToPublic moves an asset's current ownership to the public
// project and re-pushes the public policy set. The ownership flip is
// authoritative; the policy re-push is best-effort, the backend reconciles
// eventually.
func (s *Service) PromoteAssetToPublic(ctx context.Context, resourceURL string) error {
	if err := s.assets.PromoteToPublic(ctx, resourceURL); err != nil {
		return err
	}
	policies := s.synth.Synthesize(resourceURL, s.publicSeq, nil)
	if err := s.sync.Push(ctx, resourceURL, policies); err != nil {
		s.log.Warn("public policy re-push failed after promotion",
			zap.String("resource_url", resourceURL),
			zap.Error(err),
		)
	}
	return nil
}

// ReassignRole changes a member's role within a project.
func (s *Service) ReassignRole(ctx context.Context, projectUUID, userID string, newRoleSeq int64) error {
	return s.members.ReassignRole(ctx, projectUUID, userID, newRoleSeq)
}

// TerminateProject ends a project on behalf of the actor.
func (s *Service) TerminateProject(ctx context.Context, projectUUID, actorID string) error {
	return s.lifecycle.Terminate(ctx, projectUUID, actorID)
}

// EnsureAdminSession returns a valid service-account session token, logging
// in only when the cached one is absent or expired.
func (s *Service) EnsureAdminSession(ctx context.Context) (authz.Token, error) {
	return s.sessions.Ensure(ctx, s.adminCreds)
}
