// Package audit emits append-style audit events for authorization-affecting
// actions: policy pushes, membership changes, asset promotion, termination.
package audit

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/ids"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/obs"
)

type ctxKey string

const actorKey ctxKey = "audit_actor"

// WithActor attaches the acting identity to the context for audit logging.
func WithActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the acting identity if present.
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(actorKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes one audit entry enriched with the actor from context.
func LogEvent(ctx context.Context, event string, fields ...zap.Field) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	entry := make([]zap.Field, 0, len(fields)+3)
	entry = append(entry,
		zap.String("audit_id", ids.New()),
		zap.String("event", event),
	)
	if actor := ActorFromContext(ctx); actor != "" {
		entry = append(entry, zap.String("actor", actor))
	}
	entry = append(entry, fields...)
	obs.Logger().Info("audit", entry...)
}
