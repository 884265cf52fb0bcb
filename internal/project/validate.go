package project

import (
	"fmt"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/authz"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/errs"
)

// Change is one pending membership mutation: a role reassignment when
// NewRoleSeq is set, a removal when Remove is true.
type Change struct {
	UserID     string
	NewRoleSeq *int64
	Remove     bool
}

// ValidateMembershipChange computes the membership set as it would exist
// after the pending changes are applied, then checks admin coverage: the
// public project must keep at least one portal-admin membership, every other
// project at least one project-manager membership. A violation means none of
// the changes may be applied.
//
// This check spans multiple rows and depends on reserved role constants, so
// it cannot live in a storage constraint.
func ValidateMembershipChange(p Project, current []Membership, changes []Change, ids authz.ReservedIDs) error {
	pending := make(map[string]Change, len(changes))
	for _, ch := range changes {
		pending[ch.UserID] = ch
	}

	requiredRole := ids.ProjectManager
	requiredName := "project manager"
	if p.Seq == ids.PublicProject {
		requiredRole = ids.PortalAdmin
		requiredName = "portal admin"
	}

	for _, m := range current {
		role := m.RoleSeq
		if ch, ok := pending[m.UserID]; ok {
			if ch.Remove {
				continue
			}
			if ch.NewRoleSeq != nil {
				role = *ch.NewRoleSeq
			}
		}
		if role == requiredRole {
			return nil
		}
	}
	return fmt.Errorf("%w: project %d would be left without a %s", errs.ErrInvariant, p.Seq, requiredName)
}
