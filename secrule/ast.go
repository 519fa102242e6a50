// Package secrule implements the subset of the ModSecurity SecRule language
// that WAF-type rules use: request-header matching to select a body processor,
// and parsed-body assertions that deny unparsable bodies.
package secrule

import "regexp"

// Operator kinds supported by the subset.
const (
	OpRx = "@rx"
	OpEq = "@eq"
)

// Target is one variable a directive inspects, e.g. REQUEST_HEADERS:Content-Type
// or &REQUEST_BODY (count form).
type Target struct {
	Name     string
	Selector string
	IsCount  bool
}

// Actions is the action list of a directive. Only the disruptive and ctl
// actions the subset needs are modeled; everything else is ignored by the
// parser.
type Actions struct {
	ID            int
	Phase         int
	Deny          bool
	Pass          bool
	NoLog         bool
	Status        int
	Msg           string
	BodyProcessor string // from ctl:requestBodyProcessor=XML|JSON
}

// Directive is one parsed SecRule statement. Directives are immutable after
// parsing; the compiled regex is shared by concurrent evaluations.
type Directive struct {
	Targets         []Target
	Operator        string
	OpArg           string
	OpArgNum        int
	OpRegex         *regexp.Regexp
	Transformations []string
	Actions         Actions
	Raw             string
}
