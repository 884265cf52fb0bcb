// Package authz synthesizes access-control policies for project resources and
// keeps the external authorization backend's policies, groups and memberships
// aligned with the local model.
package authz

import "fmt"

// Logic tells the backend how a predicate (or a policy) contributes to a decision.
type Logic string

const (
	LogicPositive Logic = "POSITIVE"
	LogicNegative Logic = "NEGATIVE"
)

// DecisionStrategy combines predicate results within one policy.
type DecisionStrategy string

const (
	// DecisionAffirmative grants access when any one predicate passes.
	DecisionAffirmative DecisionStrategy = "AFFIRMATIVE"
	// DecisionUnanimous requires every predicate to pass; combined with a
	// NEGATIVE predicate it expresses "all of X, except Y".
	DecisionUnanimous DecisionStrategy = "UNANIMOUS"
)

// PredicateKind selects how the backend evaluates a predicate.
type PredicateKind string

const (
	// PredicateRegex matches the caller's current_group claim against a pattern.
	PredicateRegex PredicateKind = "regex"
	// PredicateGroup matches the caller's groups against an explicit name list.
	PredicateGroup PredicateKind = "group"
)

// HTTP verbs used as policy scopes.
const (
	VerbGet    = "GET"
	VerbPost   = "POST"
	VerbPut    = "PUT"
	VerbDelete = "DELETE"
)

// Predicate is one boolean-combinable condition inside a policy.
type Predicate struct {
	Kind    PredicateKind `json:"kind"`
	Pattern string        `json:"pattern,omitempty"`
	Groups  []string      `json:"names,omitempty"`
	Logic   Logic         `json:"logic"`
}

// PolicyRequest is an externally enforced access rule over a resource URL.
type PolicyRequest struct {
	Scopes           []string         `json:"scopes"`
	Predicates       []Predicate      `json:"predicates"`
	Logic            Logic            `json:"logic"`
	DecisionStrategy DecisionStrategy `json:"decisionStrategy"`
	Cascade          bool             `json:"cascade"`
}

// NewRegexPredicate builds a regex predicate over the current_group claim.
func NewRegexPredicate(pattern string, logic Logic) Predicate {
	return Predicate{Kind: PredicateRegex, Pattern: pattern, Logic: logic}
}

// NewGroupPredicate builds an explicit group-name whitelist predicate.
func NewGroupPredicate(names []string, logic Logic) Predicate {
	groups := make([]string, len(names))
	copy(groups, names)
	return Predicate{Kind: PredicateGroup, Groups: groups, Logic: logic}
}

// NewPolicy builds an immutable PolicyRequest value. Policies built through
// this constructor are structurally comparable, which keeps synthesis
// deterministic and testable by plain equality.
func NewPolicy(scopes []string, strategy DecisionStrategy, predicates ...Predicate) PolicyRequest {
	sc := make([]string, len(scopes))
	copy(sc, scopes)
	preds := make([]Predicate, len(predicates))
	copy(preds, predicates)
	return PolicyRequest{
		Scopes:           sc,
		Predicates:       preds,
		Logic:            LogicPositive,
		DecisionStrategy: strategy,
		Cascade:          true,
	}
}

// ReservedIDs names the reserved project and role sequence numbers the
// synthesis algorithm and invariant checks depend on. They are configuration,
// not data: callers pass one table instead of re-literalizing magic numbers.
type ReservedIDs struct {
	// PublicProject is the singleton project whose resources are globally readable.
	PublicProject int64
	// PortalAdmin is the portal-scope administrator role.
	PortalAdmin int64
	// ProjectManager is the per-project manager role.
	ProjectManager int64
	// Restricted is the read-only ("tester") role.
	Restricted int64
	// PortalTiers is the number of reserved portal-tier groups granted read
	// access to public resources, counted downward from PortalAdmin.
	PortalTiers int
}

// DefaultReservedIDs returns the reserved identifiers used in production.
func DefaultReservedIDs() ReservedIDs {
	return ReservedIDs{
		PublicProject:  -999,
		PortalAdmin:    -199,
		ProjectManager: -299,
		Restricted:     -297,
		PortalTiers:    5,
	}
}

// GroupName derives the backend group identifier joining the local model to
// the authorization backend. Holds for all integers, including the negative
// reserved values.
func GroupName(projectSeq, roleSeq int64) string {
	return fmt.Sprintf("P%d_R%d", projectSeq, roleSeq)
}

// GroupPrefix returns the derived-name prefix shared by every group of a project.
func GroupPrefix(projectSeq int64) string {
	return fmt.Sprintf("P%d_", projectSeq)
}
