// Package asset tracks which project owns a resource URL and dispatches
// per-kind deletion of resources during project cleanup.
package asset

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/audit"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/errs"
)

// Ownership is one ownership row. OriginatingProjectSeq never changes after
// the row is created; CurrentOwningProjectSeq moves on reassignment and on
// public promotion, preserving an audit trail of where the asset came from.
type Ownership struct {
	ResourceURL             string
	OriginatingProjectSeq   int64
	CurrentOwningProjectSeq int64
}

// Store describes the ownership persistence operations.
type Store interface {
	// Replace deletes any existing row for the URL and inserts a fresh one.
	Replace(ctx context.Context, o Ownership) error
	// Promote sets the current owner to publicSeq, leaving the originating
	// owner untouched. Returns errs.ErrNotFound when no row exists.
	Promote(ctx context.Context, resourceURL string, publicSeq int64) error
	Get(ctx context.Context, resourceURL string) (Ownership, error)
	ListByOriginatingProject(ctx context.Context, projectSeq int64) ([]Ownership, error)
}

// Registry is the asset-ownership service.
type Registry struct {
	store     Store
	publicSeq int64
	log       *zap.Logger
}

// NewRegistry constructs a Registry. publicSeq is the reserved public-project
// sequence number.
func NewRegistry(store Store, publicSeq int64, log *zap.Logger) *Registry {
	return &Registry{store: store, publicSeq: publicSeq, log: log}
}

// RecordOwnership registers projectSeq as both originating and current owner
// of the URL, replacing any previous row (last writer wins per URL).
func (r *Registry) RecordOwnership(ctx context.Context, resourceURL string, projectSeq int64) error {
	resourceURL = strings.TrimSpace(resourceURL)
	if resourceURL == "" {
		return fmt.Errorf("%w: resource url is required", errs.ErrValidation)
	}
	return r.store.Replace(ctx, Ownership{
		ResourceURL:             resourceURL,
		OriginatingProjectSeq:   projectSeq,
		CurrentOwningProjectSeq: projectSeq,
	})
}

// PromoteToPublic moves the URL's current owner to the public project. Fails
// with NotFound, performing no writes, when the URL is unknown. Promotion is
// one-way: no demotion path exists.
func (r *Registry) PromoteToPublic(ctx context.Context, resourceURL string) error {
	resourceURL = strings.TrimSpace(resourceURL)
	if resourceURL == "" {
		return fmt.Errorf("%w: resource url is required", errs.ErrValidation)
	}
	if err := r.store.Promote(ctx, resourceURL, r.publicSeq); err != nil {
		return err
	}
	audit.LogEvent(ctx, "asset.promoted_to_public",
		zap.String("resource_url", resourceURL),
	)
	return nil
}

// Get returns the ownership row for a URL.
func (r *Registry) Get(ctx context.Context, resourceURL string) (Ownership, error) {
	return r.store.Get(ctx, strings.TrimSpace(resourceURL))
}

// OwnedForCleanup lists the project's assets that still need external
// deletion: rows originating from the project whose current owner was never
// promoted to public.
func (r *Registry) OwnedForCleanup(ctx context.Context, projectSeq int64) ([]Ownership, error) {
	rows, err := r.store.ListByOriginatingProject(ctx, projectSeq)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, o := range rows {
		if o.CurrentOwningProjectSeq == r.publicSeq {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}
