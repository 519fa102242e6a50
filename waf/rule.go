package waf

import "fmt"

// Rule types as produced by the config store.
const (
	RuleTypeWAF       = "WAF"
	RuleTypeIP        = "IP"
	RuleTypeUserAgent = "User-Agent"
	RuleTypeIPRate    = "IP Rate Limiting"
	RuleTypeCompound  = "Compound"
)

// Disruptive actions a rule can apply on match.
const (
	ActionAllow    = "Allow"
	ActionBlock    = "Block"
	ActionRedirect = "Redirect"
	ActionDrop     = "Drop"
	ActionCaptcha  = "CAPTCHA"
)

// Log actions.
const (
	LogActionLog   = "log"
	LogActionNoLog = "nolog"
)

// Expression is one row of a rule's match-expression table. The meaning of
// Operator and Value depends on the owning rule's Type. Order within a rule
// is significant and must be preserved by every store.
type Expression struct {
	Name     string `json:"name" yaml:"name"`
	Operator string `json:"operator" yaml:"operator"`
	Value    string `json:"value" yaml:"value"`
}

// Rule is a single security rule as stored by the config store. Identity is
// (Owner, Name). A Rule fetched into an evaluation is a snapshot; evaluators
// never observe concurrent mutation.
type Rule struct {
	Owner string `json:"owner" yaml:"owner"`
	Name  string `json:"name" yaml:"name"`

	Type        string        `json:"type" yaml:"type"`
	Expressions []*Expression `json:"expressions" yaml:"expressions"`
	Action      string        `json:"action" yaml:"action"`
	StatusCode  int           `json:"statusCode" yaml:"statusCode"`
	RedirectURL string        `json:"redirectUrl" yaml:"redirectUrl"`
	Reason      string        `json:"reason" yaml:"reason"`
	IsVerbose   bool          `json:"isVerbose" yaml:"isVerbose"`
	LogAction   string        `json:"logAction" yaml:"logAction"`
	LogMessage  string        `json:"logMessage" yaml:"logMessage"`
}

// GetId returns the globally unique "owner/name" id of the rule.
func (r *Rule) GetId() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

// Clone returns a deep copy, so a resolved snapshot is isolated from store
// writes happening after the fetch.
func (r *Rule) Clone() *Rule {
	c := *r
	c.Expressions = make([]*Expression, len(r.Expressions))
	for i, e := range r.Expressions {
		ec := *e
		c.Expressions[i] = &ec
	}
	return &c
}

// ParseRuleId splits an "owner/name" id into its parts.
func ParseRuleId(id string) (owner string, name string, err error) {
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			return id[:i], id[i+1:], nil
		}
	}
	err = fmt.Errorf("invalid rule id, expected owner/name: %s", id)
	return
}
