package asset

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type countingHandler struct {
	calls []string
	err   error
}

func (h *countingHandler) Delete(ctx context.Context, resourceURL string) error {
	h.calls = append(h.calls, resourceURL)
	return h.err
}

func TestHandlerRegistryPrefersKindHandler(t *testing.T) {
	generic := &countingHandler{}
	s3 := &countingHandler{}
	hr := NewHandlerRegistry(generic, zap.NewNop())
	hr.Register("s3", "s3://", s3)

	if err := hr.Delete(context.Background(), "s3://b/doc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(s3.calls) != 1 || len(generic.calls) != 0 {
		t.Fatalf("s3=%v generic=%v", s3.calls, generic.calls)
	}
}

func TestHandlerRegistryFallsBackOnKindFailure(t *testing.T) {
	generic := &countingHandler{}
	s3 := &countingHandler{err: errors.New("bucket gone")}
	hr := NewHandlerRegistry(generic, zap.NewNop())
	hr.Register("s3", "s3://", s3)

	if err := hr.Delete(context.Background(), "s3://b/doc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(generic.calls) != 1 {
		t.Fatalf("generic fallback calls = %v", generic.calls)
	}
}

func TestHandlerRegistryNoMatchUsesFallback(t *testing.T) {
	generic := &countingHandler{}
	hr := NewHandlerRegistry(generic, zap.NewNop())
	hr.Register("s3", "s3://", &countingHandler{})

	if err := hr.Delete(context.Background(), "https://site/doc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(generic.calls) != 1 {
		t.Fatalf("generic calls = %v", generic.calls)
	}
}

func TestHandlerRegistryRegistrationOrderWins(t *testing.T) {
	first := &countingHandler{}
	second := &countingHandler{}
	hr := NewHandlerRegistry(&countingHandler{}, zap.NewNop())
	hr.Register("narrow", "s3://b/", first)
	hr.Register("wide", "s3://", second)

	if err := hr.Delete(context.Background(), "s3://b/doc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(first.calls) != 1 || len(second.calls) != 0 {
		t.Fatalf("first=%v second=%v", first.calls, second.calls)
	}
}
