package asset

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Handler deletes the external resource behind a URL. Implementations must be
// idempotent: deleting an already-deleted resource succeeds.
type Handler interface {
	Delete(ctx context.Context, resourceURL string) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, resourceURL string) error

func (f HandlerFunc) Delete(ctx context.Context, resourceURL string) error {
	return f(ctx, resourceURL)
}

type kindHandler struct {
	kind       string
	pathPrefix string
	handler    Handler
}

// HandlerRegistry selects a deletion handler by the resource URL's shape. A
// kind-specific handler is tried first; the generic fallback runs when no
// kind matches or the kind handler fails.
type HandlerRegistry struct {
	handlers []kindHandler
	fallback Handler
	log      *zap.Logger
}

// NewHandlerRegistry constructs a registry with the generic fallback handler.
func NewHandlerRegistry(fallback Handler, log *zap.Logger) *HandlerRegistry {
	return &HandlerRegistry{fallback: fallback, log: log}
}

// Register adds a kind handler matched by URL path prefix. Registration order
// decides precedence.
func (hr *HandlerRegistry) Register(kind, pathPrefix string, h Handler) {
	hr.handlers = append(hr.handlers, kindHandler{kind: kind, pathPrefix: pathPrefix, handler: h})
}

// Delete removes the resource behind the URL through the matching handler.
func (hr *HandlerRegistry) Delete(ctx context.Context, resourceURL string) error {
	for _, kh := range hr.handlers {
		if !strings.HasPrefix(resourceURL, kh.pathPrefix) {
			continue
		}
		err := kh.handler.Delete(ctx, resourceURL)
		if err == nil {
			return nil
		}
		hr.log.Warn("kind deletion handler failed, trying generic fallback",
			zap.String("kind", kh.kind),
			zap.String("resource_url", resourceURL),
			zap.Error(err),
		)
		break
	}
	if hr.fallback == nil {
		return nil
	}
	return hr.fallback.Delete(ctx, resourceURL)
}
