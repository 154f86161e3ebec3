package policy

// StepKind classifies one entry of a DecisionTrace.
type StepKind string

const (
	StepRuleHit  StepKind = "rule_hit"
	StepRuleMiss StepKind = "rule_miss"
	StepNote     StepKind = "note"
)

// TraceStep is one explainable step of a policy evaluation.
type TraceStep struct {
	Kind   StepKind
	RuleID string
	Detail string
}

func ruleHit(ruleID, reason string) TraceStep {
	return TraceStep{Kind: StepRuleHit, RuleID: ruleID, Detail: reason}
}

func ruleMiss(ruleID string) TraceStep {
	return TraceStep{Kind: StepRuleMiss, RuleID: ruleID}
}

func note(topic, detail string) TraceStep {
	return TraceStep{Kind: StepNote, RuleID: topic, Detail: detail}
}
