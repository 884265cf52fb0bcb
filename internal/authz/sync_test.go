package authz

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/errs"
)

type stubBackend struct {
	updateResult []PolicyRequest
	updateErr    error
	createErr    error
	createCalls  int
	updateCalls  int

	groups       []Group
	searchErr    error
	createdGroup string
	deleteErr    error
	deletedIDs   []string

	assignErr   error
	assigned    []string
	unassignErr error
	unassigned  []string
}

func (b *stubBackend) Login(ctx context.Context, username, password string) (Token, error) {
	return Token{}, nil
}

func (b *stubBackend) CreatePolicy(ctx context.Context, resourceURL string, policies []PolicyRequest) ([]PolicyRequest, error) {
	b.createCalls++
	if b.createErr != nil {
		return nil, b.createErr
	}
	return policies, nil
}

func (b *stubBackend) UpdatePolicy(ctx context.Context, resourceURL string, policies []PolicyRequest) ([]PolicyRequest, error) {
	b.updateCalls++
	return b.updateResult, b.updateErr
}

func (b *stubBackend) CreateGroup(ctx context.Context, name string) (string, error) {
	if b.createdGroup == "" {
		return "", errors.New("create group rejected")
	}
	return b.createdGroup, nil
}

func (b *stubBackend) DeleteGroup(ctx context.Context, id string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.deletedIDs = append(b.deletedIDs, id)
	return nil
}

func (b *stubBackend) SearchGroups(ctx context.Context, keyword string, page, size int) ([]Group, error) {
	if b.searchErr != nil {
		return nil, b.searchErr
	}
	if page > 0 {
		return nil, nil
	}
	return b.groups, nil
}

func (b *stubBackend) AssignUser(ctx context.Context, memberRef, groupID string) error {
	if b.assignErr != nil {
		return b.assignErr
	}
	b.assigned = append(b.assigned, memberRef+":"+groupID)
	return nil
}

func (b *stubBackend) UnassignUser(ctx context.Context, memberRef, groupID string) error {
	if b.unassignErr != nil {
		return b.unassignErr
	}
	b.unassigned = append(b.unassigned, memberRef+":"+groupID)
	return nil
}

func TestPushUpdateSucceeds(t *testing.T) {
	policies := []PolicyRequest{NewPolicy([]string{"GET"}, DecisionAffirmative)}
	b := &stubBackend{updateResult: policies}
	s := NewSync(b, zap.NewNop())

	if err := s.Push(context.Background(), "/r", policies); err != nil {
		t.Fatalf("push: %v", err)
	}
	if b.updateCalls != 1 || b.createCalls != 0 {
		t.Fatalf("update=%d create=%d, want 1/0", b.updateCalls, b.createCalls)
	}
}

func TestPushFallsBackToCreateOnUpdateError(t *testing.T) {
	b := &stubBackend{updateErr: errors.New("no such resource")}
	s := NewSync(b, zap.NewNop())

	if err := s.Push(context.Background(), "/r", nil); err != nil {
		t.Fatalf("push: %v", err)
	}
	if b.createCalls != 1 {
		t.Fatalf("create calls = %d, want 1", b.createCalls)
	}
}

func TestPushFallsBackToCreateOnEmptyUpdate(t *testing.T) {
	b := &stubBackend{updateResult: nil}
	s := NewSync(b, zap.NewNop())

	if err := s.Push(context.Background(), "/r", nil); err != nil {
		t.Fatalf("push: %v", err)
	}
	if b.createCalls != 1 {
		t.Fatalf("create calls = %d, want 1", b.createCalls)
	}
}

func TestPushCreateFailurePropagates(t *testing.T) {
	b := &stubBackend{updateErr: errors.New("down"), createErr: errors.New("still down")}
	s := NewSync(b, zap.NewNop())

	err := s.Push(context.Background(), "/r", nil)
	if !errors.Is(err, errs.ErrExternalSync) {
		t.Fatalf("expected ErrExternalSync, got %v", err)
	}
}

func TestEnsureGroupFindsExisting(t *testing.T) {
	b := &stubBackend{groups: []Group{{ID: "g1", Name: "P42_R7"}}}
	s := NewSync(b, zap.NewNop())

	id, err := s.EnsureGroup(context.Background(), "P42_R7", Authoritative)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if id != "g1" {
		t.Fatalf("id = %q, want g1", id)
	}
}

func TestEnsureGroupCreatesWhenAbsent(t *testing.T) {
	b := &stubBackend{createdGroup: "g2"}
	s := NewSync(b, zap.NewNop())

	id, err := s.EnsureGroup(context.Background(), "P42_R8", Authoritative)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if id != "g2" {
		t.Fatalf("id = %q, want g2", id)
	}
}

func TestFindGroupAbsentReturnsEmpty(t *testing.T) {
	s := NewSync(&stubBackend{}, zap.NewNop())

	id, err := s.FindGroup(context.Background(), "P42_R9")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if id != "" {
		t.Fatalf("id = %q, want empty", id)
	}
}

func TestBestEffortSwallowsFailure(t *testing.T) {
	b := &stubBackend{deleteErr: errors.New("backend down")}
	s := NewSync(b, zap.NewNop())

	if err := s.RemoveGroup(context.Background(), "g1", BestEffort); err != nil {
		t.Fatalf("best-effort remove should not fail caller: %v", err)
	}
	if err := s.RemoveGroup(context.Background(), "g1", Authoritative); !errors.Is(err, errs.ErrExternalSync) {
		t.Fatalf("authoritative remove should fail: %v", err)
	}
}

func TestGroupsByPrefixFilters(t *testing.T) {
	b := &stubBackend{groups: []Group{
		{ID: "a", Name: "P42_R7"},
		{ID: "b", Name: "P420_R1"},
		{ID: "c", Name: "P42_R-297"},
	}}
	s := NewSync(b, zap.NewNop())

	groups, err := s.GroupsByPrefix(context.Background(), "P42_")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(groups) != 2 || groups[0].ID != "a" || groups[1].ID != "c" {
		t.Fatalf("groups = %+v", groups)
	}
}

func TestAssignMemberRecordsCall(t *testing.T) {
	b := &stubBackend{}
	s := NewSync(b, zap.NewNop())

	if err := s.AssignMember(context.Background(), "user-1", "g1", Authoritative); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(b.assigned) != 1 || b.assigned[0] != "user-1:g1" {
		t.Fatalf("assigned = %v", b.assigned)
	}
}
