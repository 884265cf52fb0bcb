package project

import (
	"errors"
	"testing"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/authz"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/errs"
)

func seqPtr(v int64) *int64 { return &v }

func TestValidateRejectsRemovingLastManager(t *testing.T) {
	ids := authz.DefaultReservedIDs()
	p := Project{Seq: 42}
	current := []Membership{
		{ProjectSeq: 42, UserID: "mgr", RoleSeq: ids.ProjectManager},
		{ProjectSeq: 42, UserID: "dev", RoleSeq: 7},
	}

	err := ValidateMembershipChange(p, current, []Change{{UserID: "mgr", Remove: true}}, ids)
	if !errors.Is(err, errs.ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestValidateAllowsRemovalWithSecondManager(t *testing.T) {
	ids := authz.DefaultReservedIDs()
	p := Project{Seq: 42}
	current := []Membership{
		{ProjectSeq: 42, UserID: "mgr1", RoleSeq: ids.ProjectManager},
		{ProjectSeq: 42, UserID: "mgr2", RoleSeq: ids.ProjectManager},
	}

	if err := ValidateMembershipChange(p, current, []Change{{UserID: "mgr1", Remove: true}}, ids); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsReassigningLastManagerDownward(t *testing.T) {
	ids := authz.DefaultReservedIDs()
	p := Project{Seq: 42}
	current := []Membership{
		{ProjectSeq: 42, UserID: "mgr", RoleSeq: ids.ProjectManager},
	}

	err := ValidateMembershipChange(p, current, []Change{{UserID: "mgr", NewRoleSeq: seqPtr(7)}}, ids)
	if !errors.Is(err, errs.ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestValidateAllowsPromotionToManager(t *testing.T) {
	ids := authz.DefaultReservedIDs()
	p := Project{Seq: 42}
	current := []Membership{
		{ProjectSeq: 42, UserID: "mgr", RoleSeq: ids.ProjectManager},
		{ProjectSeq: 42, UserID: "dev", RoleSeq: 7},
	}

	// mgr steps down while dev steps up in the same change set.
	changes := []Change{
		{UserID: "mgr", NewRoleSeq: seqPtr(7)},
		{UserID: "dev", NewRoleSeq: seqPtr(ids.ProjectManager)},
	}
	if err := ValidateMembershipChange(p, current, changes, ids); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePublicProjectRequiresPortalAdmin(t *testing.T) {
	ids := authz.DefaultReservedIDs()
	p := Project{Seq: ids.PublicProject}
	current := []Membership{
		{ProjectSeq: ids.PublicProject, UserID: "admin", RoleSeq: ids.PortalAdmin},
		{ProjectSeq: ids.PublicProject, UserID: "mgr", RoleSeq: ids.ProjectManager},
	}

	// A project manager does not satisfy the public project's coverage.
	err := ValidateMembershipChange(p, current, []Change{{UserID: "admin", Remove: true}}, ids)
	if !errors.Is(err, errs.ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}

	if err := ValidateMembershipChange(p, current, []Change{{UserID: "mgr", Remove: true}}, ids); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
