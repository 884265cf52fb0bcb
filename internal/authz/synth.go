package authz

import (
	"strconv"
	"strings"
)

// Synthesizer turns (resource, project) pairs into the ordered policy set the
// authorization backend enforces. Synthesize is pure: no I/O, identical
// inputs yield structurally identical output.
type Synthesizer struct {
	ids ReservedIDs
}

// NewSynthesizer constructs a Synthesizer over the given reserved identifiers.
func NewSynthesizer(ids ReservedIDs) *Synthesizer {
	return &Synthesizer{ids: ids}
}

var allVerbs = []string{VerbGet, VerbPost, VerbPut, VerbDelete}

// Synthesize produces exactly two policies for a resource.
//
// Public project: full access for the portal-admin group (exact-match regex)
// and read access for the fixed portal-tier group whitelist. Private project:
// full access for every project role except the restricted one (UNANIMOUS
// positive+negative regex pair) and read-only access for the restricted role.
//
// extraVerbs extends the public read policy only. The private read policy is
// fixed at GET: it exists to fence the restricted role in, never to widen it.
func (s *Synthesizer) Synthesize(resourceURL string, projectSeq int64, extraVerbs []string) []PolicyRequest {
	if projectSeq == s.ids.PublicProject {
		return s.publicPolicies(extraVerbs)
	}
	return s.privatePolicies(projectSeq)
}

func (s *Synthesizer) publicPolicies(extraVerbs []string) []PolicyRequest {
	adminGroup := GroupName(s.ids.PublicProject, s.ids.PortalAdmin)

	full := NewPolicy(allVerbs, DecisionAffirmative,
		NewRegexPredicate(exactGroupPattern(adminGroup), LogicPositive),
	)

	tiers := make([]string, 0, s.ids.PortalTiers)
	for i := 0; i < s.ids.PortalTiers; i++ {
		tiers = append(tiers, GroupName(s.ids.PublicProject, s.ids.PortalAdmin+int64(i)))
	}
	read := NewPolicy(readVerbs(extraVerbs), DecisionAffirmative,
		NewGroupPredicate(tiers, LogicPositive),
	)

	return []PolicyRequest{full, read}
}

func (s *Synthesizer) privatePolicies(projectSeq int64) []PolicyRequest {
	restrictedGroup := GroupName(projectSeq, s.ids.Restricted)

	// Every role of the project except the restricted one: the positive
	// pattern and the negative exact match must both pass.
	full := NewPolicy(allVerbs, DecisionUnanimous,
		NewRegexPredicate(anyGroupPattern(projectSeq), LogicPositive),
		NewRegexPredicate(exactGroupPattern(restrictedGroup), LogicNegative),
	)

	read := NewPolicy([]string{VerbGet}, DecisionAffirmative,
		NewRegexPredicate(exactGroupPattern(restrictedGroup), LogicPositive),
	)

	return []PolicyRequest{full, read}
}

// readVerbs returns GET plus deduplicated extras, order preserved.
func readVerbs(extraVerbs []string) []string {
	verbs := []string{VerbGet}
	seen := map[string]struct{}{VerbGet: {}}
	for _, v := range extraVerbs {
		v = strings.TrimSpace(strings.ToUpper(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		verbs = append(verbs, v)
	}
	return verbs
}

// exactGroupPattern anchors a derived group name as an exact-match regex over
// the current_group claim (claim values carry a leading slash).
func exactGroupPattern(group string) string {
	return "^/" + escapeGroup(group) + "$"
}

// anyGroupPattern matches any role group of the project.
func anyGroupPattern(projectSeq int64) string {
	return "^/P" + escapeSeq(projectSeq) + "_R.+$"
}

// escapeSeq renders a sequence number for regex interpolation. Reserved seq
// values are negative, so a literal '-' must become '\-'.
func escapeSeq(seq int64) string {
	return strings.ReplaceAll(strconv.FormatInt(seq, 10), "-", `\-`)
}

// escapeGroup escapes the minus signs of the embedded seq values in a derived
// group name.
func escapeGroup(group string) string {
	return strings.ReplaceAll(group, "-", `\-`)
}
