package waf

import "fmt"

// Decision is the sole output of one evaluation pass over a request. It is
// constructed once and never mutated afterwards.
type Decision struct {
	Action        string
	StatusCode    int
	RedirectURL   string
	Reason        string
	MatchedRuleId string
	ShouldLog     bool
	LogMessage    string
}

// DefaultAllow is the decision returned when no rule matched.
func DefaultAllow() *Decision {
	return &Decision{Action: ActionAllow, StatusCode: 200}
}

// DefaultStatusCode returns the status code implied by an action when the
// matched rule does not carry one.
func DefaultStatusCode(action string) (int, error) {
	switch action {
	case ActionBlock:
		return 403, nil
	case ActionDrop:
		return 400, nil
	case ActionAllow:
		return 200, nil
	case ActionRedirect, ActionCaptcha:
		return 302, nil
	default:
		return 0, fmt.Errorf("unknown rule action: %s", action)
	}
}
