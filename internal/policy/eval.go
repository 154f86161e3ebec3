package policy

import "strings"

// Decision is the outcome of evaluating a Context against a Bundle.
type Decision struct {
	Effect      Action
	Obligations []string
	Reason      string
	Trace       []TraceStep
}

// Evaluator evaluates Contexts against a fixed Bundle, indexing rules by
// method up front so lookups skip rules that could never match.
type Evaluator struct {
	bundle      Bundle
	byMethod    map[string][]Rule
	wildcard    []Rule // rules with When.Method == "" or "*"
}

// New builds an Evaluator over bundle. The bundle is not copied
// defensively; callers should treat it as immutable once handed over.
func New(bundle Bundle) *Evaluator {
	e := &Evaluator{bundle: bundle, byMethod: make(map[string][]Rule)}
	for _, r := range bundle.Rules {
		m := strings.ToUpper(r.When.Method)
		if m == "" || m == "*" {
			e.wildcard = append(e.wildcard, r)
			continue
		}
		e.byMethod[m] = append(e.byMethod[m], r)
	}
	return e
}

// candidates returns rules that could match method, in original bundle
// order (method-specific rules interleaved with wildcard rules in the
// order they appeared in Bundle.Rules).
func (e *Evaluator) candidates(method string) []Rule {
	method = strings.ToUpper(method)
	if len(e.wildcard) == 0 {
		return e.byMethod[method]
	}
	if len(e.byMethod[method]) == 0 {
		return e.wildcard
	}
	out := make([]Rule, 0, len(e.byMethod[method])+len(e.wildcard))
	for _, r := range e.bundle.Rules {
		m := strings.ToUpper(r.When.Method)
		if m == "" || m == "*" || m == method {
			out = append(out, r)
		}
	}
	return out
}

// Evaluate runs the first-match rule scan over ctx, enforcing the
// bundle-wide max body cap before any rule is consulted.
func (e *Evaluator) Evaluate(ctx Context) Decision {
	var trace []TraceStep

	if max := e.bundle.Defaults.MaxBodyBytes; max != nil && ctx.BodyBytes > *max {
		trace = append(trace, note("defaults.max_body_bytes", "exceeded"))
		return Decision{Effect: Deny, Reason: "body too large (defaults)", Trace: trace}
	}

	for _, r := range e.candidates(ctx.Method) {
		if ruleMatches(r, ctx) {
			trace = append(trace, ruleHit(r.ID, r.Reason))
			return Decision{Effect: r.Action, Obligations: r.Obligations, Reason: r.Reason, Trace: trace}
		}
		trace = append(trace, ruleMiss(r.ID))
	}

	effect := e.bundle.Defaults.DefaultAction
	if effect == "" {
		effect = Deny
	}
	return Decision{Effect: effect, Reason: "default", Trace: trace}
}

func ruleMatches(r Rule, ctx Context) bool {
	w := r.When
	if w.Tenant != "" && w.Tenant != "*" && w.Tenant != ctx.Tenant {
		return false
	}
	if w.Method != "" && w.Method != "*" && !strings.EqualFold(w.Method, ctx.Method) {
		return false
	}
	if w.Region != "" && w.Region != "*" && w.Region != ctx.Region {
		return false
	}
	if w.MaxBodyBytes != nil && ctx.BodyBytes > *w.MaxBodyBytes {
		return false
	}
	for _, tag := range w.RequireTagsAll {
		if !containsFold(ctx.Tags, tag) {
			return false
		}
	}
	return true
}

func containsFold(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}
