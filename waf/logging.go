package waf

// ResultsLogger is where the decision pipeline writes the high level customer
// facing results. Implementations must not block the decision path.
type ResultsLogger interface {
	RuleTriggered(request HTTPRequest, ruleId string, decision *Decision)
	BodyParseError(request HTTPRequest, err error)
}
