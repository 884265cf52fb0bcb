package project

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/asset"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/authz"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/errs"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/tasks"
)

type stubAssetStore struct {
	rows map[string]asset.Ownership
}

func newStubAssetStore() *stubAssetStore {
	return &stubAssetStore{rows: make(map[string]asset.Ownership)}
}

func (s *stubAssetStore) Replace(ctx context.Context, o asset.Ownership) error {
	s.rows[o.ResourceURL] = o
	return nil
}

func (s *stubAssetStore) Promote(ctx context.Context, resourceURL string, publicSeq int64) error {
	o, ok := s.rows[resourceURL]
	if !ok {
		return fmt.Errorf("%w: ownership %s", errs.ErrNotFound, resourceURL)
	}
	o.CurrentOwningProjectSeq = publicSeq
	s.rows[resourceURL] = o
	return nil
}

func (s *stubAssetStore) Get(ctx context.Context, resourceURL string) (asset.Ownership, error) {
	o, ok := s.rows[resourceURL]
	if !ok {
		return asset.Ownership{}, fmt.Errorf("%w: ownership %s", errs.ErrNotFound, resourceURL)
	}
	return o, nil
}

func (s *stubAssetStore) ListByOriginatingProject(ctx context.Context, projectSeq int64) ([]asset.Ownership, error) {
	var out []asset.Ownership
	for _, o := range s.rows {
		if o.OriginatingProjectSeq == projectSeq {
			out = append(out, o)
		}
	}
	return out, nil
}

type recordingHandler struct {
	mu      sync.Mutex
	deleted []string
}

func (h *recordingHandler) Delete(ctx context.Context, resourceURL string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, resourceURL)
	return nil
}

func (h *recordingHandler) urls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.deleted...)
}

type lifecycleFixture struct {
	store      *stubStore
	backend    *fakeBackend
	assetStore *stubAssetStore
	handler    *recordingHandler
	queue      *tasks.Queue
	lc         *Lifecycle
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	store := newStubStore()
	seedProject(store)
	backend := newFakeBackend()
	assetStore := newStubAssetStore()
	handler := &recordingHandler{}

	ids := authz.DefaultReservedIDs()
	log := zap.NewNop()
	groupSync := authz.NewSync(backend, log)
	registry := asset.NewRegistry(assetStore, ids.PublicProject, log)
	handlers := asset.NewHandlerRegistry(handler, log)
	queue := tasks.New(16, 1, 0, log)

	return &lifecycleFixture{
		store:      store,
		backend:    backend,
		assetStore: assetStore,
		handler:    handler,
		queue:      queue,
		lc:         NewLifecycle(store, groupSync, registry, handlers, queue, ids, log),
	}
}

func TestTerminateRunsTransactionThenCleanup(t *testing.T) {
	f := newLifecycleFixture(t)
	f.backend.groups["P42_R-299"] = "g-mgr"
	f.backend.groups["P42_R7"] = "g-dev"
	f.backend.groups["P77_R1"] = "g-other"
	f.assetStore.rows["s3://bucket/42/a"] = asset.Ownership{
		ResourceURL: "s3://bucket/42/a", OriginatingProjectSeq: 42, CurrentOwningProjectSeq: 42,
	}

	if err := f.lc.Terminate(context.Background(), "proj-42", "mgr"); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if len(f.store.terminated) != 1 || f.store.terminated[0] != 42 {
		t.Fatalf("terminated = %v", f.store.terminated)
	}

	// Close drains the queue, so cleanup has run afterwards.
	f.queue.Close()

	if len(f.backend.deleted) != 2 {
		t.Fatalf("deleted groups = %v, want the two project groups", f.backend.deleted)
	}
	for _, id := range f.backend.deleted {
		if id == "g-other" {
			t.Fatal("group of an unrelated project was deleted")
		}
	}
	if got := f.handler.urls(); len(got) != 1 || got[0] != "s3://bucket/42/a" {
		t.Fatalf("deleted assets = %v", got)
	}
}

func TestTerminateSkipsPromotedAssets(t *testing.T) {
	f := newLifecycleFixture(t)
	ids := authz.DefaultReservedIDs()
	f.assetStore.rows["s3://bucket/42/private"] = asset.Ownership{
		ResourceURL: "s3://bucket/42/private", OriginatingProjectSeq: 42, CurrentOwningProjectSeq: 42,
	}
	f.assetStore.rows["s3://bucket/42/shared"] = asset.Ownership{
		ResourceURL: "s3://bucket/42/shared", OriginatingProjectSeq: 42, CurrentOwningProjectSeq: ids.PublicProject,
	}

	if err := f.lc.Terminate(context.Background(), "proj-42", "mgr"); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	f.queue.Close()

	if got := f.handler.urls(); len(got) != 1 || got[0] != "s3://bucket/42/private" {
		t.Fatalf("deleted assets = %v, promoted asset must survive", got)
	}
}

func TestTerminatePublicProjectRejected(t *testing.T) {
	f := newLifecycleFixture(t)
	ids := authz.DefaultReservedIDs()
	f.store.projects["portal"] = Project{Seq: ids.PublicProject, UUID: "portal", Name: "portal"}
	f.store.memberships = append(f.store.memberships,
		Membership{ProjectSeq: ids.PublicProject, UserID: "admin", RoleSeq: ids.PortalAdmin})

	err := f.lc.Terminate(context.Background(), "portal", "admin")
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(f.store.terminated) != 0 {
		t.Fatalf("terminated = %v", f.store.terminated)
	}
}

func TestTerminateRequiresAdminOrManager(t *testing.T) {
	f := newLifecycleFixture(t)

	err := f.lc.Terminate(context.Background(), "proj-42", "dev")
	if !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(f.store.terminated) != 0 {
		t.Fatalf("unauthorized actor still terminated: %v", f.store.terminated)
	}
}

func TestTerminateAllowsPortalAdminFromAnywhere(t *testing.T) {
	f := newLifecycleFixture(t)
	ids := authz.DefaultReservedIDs()
	f.store.memberships = append(f.store.memberships,
		Membership{ProjectSeq: ids.PublicProject, UserID: "root", RoleSeq: ids.PortalAdmin})

	if err := f.lc.Terminate(context.Background(), "proj-42", "root"); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	f.queue.Close()
}

func TestTerminateUnknownProject(t *testing.T) {
	f := newLifecycleFixture(t)

	err := f.lc.Terminate(context.Background(), "ghost", "mgr")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTerminateCleansRoleGroupsWhenPrefixSearchFails(t *testing.T) {
	f := newLifecycleFixture(t)
	f.backend.groups["P42_R7"] = "g-dev"
	f.backend.groups["P42_R8"] = "g-rev"
	// The role snapshot taken before the transaction still resolves each
	// group by its derived name when the prefix sweep is rejected.
	f.backend.searchErrKeyword = "P42_"

	if err := f.lc.Terminate(context.Background(), "proj-42", "mgr"); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	f.queue.Close()

	if len(f.backend.deleted) != 2 {
		t.Fatalf("deleted groups = %v, want both role-derived groups", f.backend.deleted)
	}
}

func TestTerminateSucceedsWhenBackendDown(t *testing.T) {
	f := newLifecycleFixture(t)
	f.backend.searchErr = errors.New("backend unreachable")

	if err := f.lc.Terminate(context.Background(), "proj-42", "mgr"); err != nil {
		t.Fatalf("terminate must not depend on the backend: %v", err)
	}
	f.queue.Close()
	if len(f.store.terminated) != 1 {
		t.Fatalf("terminated = %v", f.store.terminated)
	}
}
