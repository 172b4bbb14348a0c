package pbac

// Decide evaluates compiled statements against one (action, resource)
// pair. A statement matches when at least one of its action patterns
// matches the action and at least one of its resource patterns matches
// the resource. Any matching Deny wins outright; otherwise any matching
// Allow grants; no match is a deny.
func Decide(statements []Statement, action, resource string) bool {
	allowed := false
	for _, st := range statements {
		if !statementMatches(st, action, resource) {
			continue
		}
		if st.Effect == EffectDeny {
			return false
		}
		allowed = true
	}
	return allowed
}

func statementMatches(st Statement, action, resource string) bool {
	return matchAny(st.Actions, action) && matchAny(st.Resources, resource)
}

func matchAny(patterns []string, candidate string) bool {
	for _, p := range patterns {
		if Match(p, candidate) {
			return true
		}
	}
	return false
}

// ListActions returns the distinct actions the statement set allows on
// resource. Candidates are collected from Allow statements whose
// resource patterns match, then each is re-checked with Decide so an
// applicable Deny still removes it. Cost is O(candidates × statements);
// callers resolve the statement set once and reuse it.
func ListActions(statements []Statement, resource string) []string {
	seen := make(map[string]struct{})
	var candidates []string
	for _, st := range statements {
		if st.Effect != EffectAllow {
			continue
		}
		if !matchAny(st.Resources, resource) {
			continue
		}
		for _, a := range st.Actions {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			candidates = append(candidates, a)
		}
	}

	actions := make([]string, 0, len(candidates))
	for _, a := range candidates {
		if Decide(statements, a, resource) {
			actions = append(actions, a)
		}
	}
	return actions
}

// ResourceActions pairs a resource with the actions allowed on it.
type ResourceActions struct {
	Resource string   `json:"resource"`
	Actions  []string `json:"actions"`
}

// ListActionsOnResources runs ListActions independently for each
// resource, preserving input order.
func ListActionsOnResources(statements []Statement, resources []string) []ResourceActions {
	out := make([]ResourceActions, 0, len(resources))
	for _, r := range resources {
		out = append(out, ResourceActions{Resource: r, Actions: ListActions(statements, r)})
	}
	return out
}
