// Package ruleeval compiles stored rules into immutable matchers and
// evaluates them against requests. Compilation happens once per rule at
// resolution time; evaluation dispatch is a type switch over the matcher.
package ruleeval

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/casbin/caswaf/secrule"
	"github.com/casbin/caswaf/waf"
)

// Operators of IP rule expressions.
const (
	OpIsIn     = "is in"
	OpIsNotIn  = "is not in"
	OpIsAbroad = "is abroad"
)

// Operators of User-Agent rule expressions.
const (
	OpContains    = "contains"
	OpNotContains = "does not contain"
	OpEquals      = "equals"
	OpNotEquals   = "does not equal"
	OpMatch       = "match"
)

// Connectors of compound rule expressions.
const (
	ConnectorBegin = "begin"
	ConnectorAnd   = "and"
	ConnectorOr    = "or"
)

// Matcher is the compiled form of one rule's expression table. Matchers are
// built once, never mutated, and shared across concurrent evaluations.
type Matcher interface {
	matcher()
}

// ipExpression is one compiled row of an IP rule.
type ipExpression struct {
	operator string
	nets     []*net.IPNet
	bareIps  []string
	value    string
}

func (x *ipExpression) containsAddr(ip net.IP, raw string) bool {
	for _, n := range x.nets {
		if n.Contains(ip) {
			return true
		}
	}
	for _, b := range x.bareIps {
		if b == raw {
			return true
		}
	}
	return false
}

// IPMatcher matches the client address against address lists or the
// geolocation database.
type IPMatcher struct {
	exprs []*ipExpression
}

func (m *IPMatcher) matcher() {}

// uaExpression is one compiled row of a User-Agent rule.
type uaExpression struct {
	operator string
	value    string
	regex    *regexp.Regexp
}

// UserAgentMatcher matches the request's User-Agent header.
type UserAgentMatcher struct {
	exprs []*uaExpression
}

func (m *UserAgentMatcher) matcher() {}

// WAFMatcher holds a parsed directive sequence evaluated per request.
type WAFMatcher struct {
	Directives []*secrule.Directive
}

func (m *WAFMatcher) matcher() {}

// RateLimitMatcher holds the rate parameters checked against the shared
// counter store.
type RateLimitMatcher struct {
	PerSecond    int
	BlockSeconds int
}

func (m *RateLimitMatcher) matcher() {}

// CompoundTerm is one operand of a compound rule: a connector and a reference
// to another rule by id.
type CompoundTerm struct {
	Connector string
	Owner     string
	Name      string
}

// CompoundMatcher combines other rules' outcomes with a left-to-right fold of
// and/or connectors.
type CompoundMatcher struct {
	Terms []CompoundTerm
}

func (m *CompoundMatcher) matcher() {}

// Compile builds the matcher for a stored rule. Errors are ConfigErrors; a
// rule that fails to compile is marked invalid by the resolver and never
// matches.
func Compile(logger zerolog.Logger, rule *waf.Rule) (Matcher, error) {
	switch rule.Type {
	case waf.RuleTypeIP:
		return compileIP(logger, rule)
	case waf.RuleTypeUserAgent:
		return compileUserAgent(rule)
	case waf.RuleTypeWAF:
		return compileWAF(rule)
	case waf.RuleTypeIPRate:
		return compileRate(rule)
	case waf.RuleTypeCompound:
		return compileCompound(rule)
	default:
		return nil, waf.NewConfigError(rule.GetId(), "unknown rule type: %s", rule.Type)
	}
}

func compileIP(logger zerolog.Logger, rule *waf.Rule) (Matcher, error) {
	if len(rule.Expressions) == 0 {
		return nil, waf.NewConfigError(rule.GetId(), "IP rule has no expressions")
	}

	m := &IPMatcher{}
	for _, expr := range rule.Expressions {
		x := &ipExpression{operator: expr.Operator, value: expr.Value}

		switch expr.Operator {
		case OpIsIn, OpIsNotIn:
			for _, entry := range strings.Split(expr.Value, ",") {
				entry = strings.TrimSpace(entry)
				if entry == "" {
					continue
				}
				if strings.Contains(entry, "/") {
					_, ipNet, err := net.ParseCIDR(entry)
					if err != nil {
						logger.Warn().Str("rule", rule.GetId()).Str("entry", entry).Msg("Skipping malformed CIDR in IP rule")
						continue
					}
					x.nets = append(x.nets, ipNet)
				} else {
					if net.ParseIP(entry) == nil {
						logger.Warn().Str("rule", rule.GetId()).Str("entry", entry).Msg("Skipping malformed address in IP rule")
						continue
					}
					x.bareIps = append(x.bareIps, entry)
				}
			}
		case OpIsAbroad:
			// No operand list.
		default:
			return nil, waf.NewConfigError(rule.GetId(), "unknown IP operator: %s", expr.Operator)
		}

		m.exprs = append(m.exprs, x)
	}

	return m, nil
}

func compileUserAgent(rule *waf.Rule) (Matcher, error) {
	if len(rule.Expressions) == 0 {
		return nil, waf.NewConfigError(rule.GetId(), "User-Agent rule has no expressions")
	}

	m := &UserAgentMatcher{}
	for _, expr := range rule.Expressions {
		x := &uaExpression{operator: expr.Operator, value: expr.Value}

		switch expr.Operator {
		case OpContains, OpNotContains, OpEquals, OpNotEquals:
		case OpMatch:
			re, err := regexp.Compile(expr.Value)
			if err != nil {
				return nil, waf.NewConfigError(rule.GetId(), "invalid User-Agent pattern %q: %v", expr.Value, err)
			}
			x.regex = re
		default:
			return nil, waf.NewConfigError(rule.GetId(), "unknown User-Agent operator: %s", expr.Operator)
		}

		m.exprs = append(m.exprs, x)
	}

	return m, nil
}

func compileWAF(rule *waf.Rule) (Matcher, error) {
	lines := make([]string, 0, len(rule.Expressions))
	for _, expr := range rule.Expressions {
		lines = append(lines, expr.Value)
	}
	if len(lines) == 0 {
		// A WAF rule with an empty expression table runs the stock
		// body-validation directive set.
		lines = secrule.DefaultDirectives
	}

	dd, err := secrule.ParseDirectives(strings.Join(lines, "\n"))
	if err != nil {
		return nil, waf.NewConfigError(rule.GetId(), "invalid directive: %v", err)
	}

	return &WAFMatcher{Directives: dd}, nil
}

func compileRate(rule *waf.Rule) (Matcher, error) {
	if len(rule.Expressions) == 0 {
		return nil, waf.NewConfigError(rule.GetId(), "rate rule has no expressions")
	}

	// Rate rules carry their numbers in the first expression: the operator
	// field holds requests per second, the value field the block duration.
	expr := rule.Expressions[0]

	perSecond, err := strconv.Atoi(strings.TrimSpace(expr.Operator))
	if err != nil || perSecond <= 0 {
		return nil, waf.NewConfigError(rule.GetId(), "invalid rate %q, expected a positive requests-per-second count", expr.Operator)
	}

	blockSeconds, err := strconv.Atoi(strings.TrimSpace(expr.Value))
	if err != nil || blockSeconds <= 0 {
		return nil, waf.NewConfigError(rule.GetId(), "invalid block duration %q, expected positive seconds", expr.Value)
	}

	return &RateLimitMatcher{PerSecond: perSecond, BlockSeconds: blockSeconds}, nil
}

func compileCompound(rule *waf.Rule) (Matcher, error) {
	if len(rule.Expressions) == 0 {
		return nil, waf.NewConfigError(rule.GetId(), "compound rule has no expressions")
	}

	m := &CompoundMatcher{}
	for i, expr := range rule.Expressions {
		switch expr.Operator {
		case ConnectorBegin:
			if i != 0 {
				return nil, waf.NewConfigError(rule.GetId(), "connector %q only allowed on the first expression", expr.Operator)
			}
		case ConnectorAnd, ConnectorOr:
			if i == 0 {
				return nil, waf.NewConfigError(rule.GetId(), "first expression must use connector %q, got %q", ConnectorBegin, expr.Operator)
			}
		default:
			return nil, waf.NewConfigError(rule.GetId(), "unknown connector: %s", expr.Operator)
		}

		owner, name, err := waf.ParseRuleId(strings.TrimSpace(expr.Value))
		if err != nil {
			return nil, waf.NewConfigError(rule.GetId(), "invalid rule reference %q", expr.Value)
		}

		m.Terms = append(m.Terms, CompoundTerm{Connector: expr.Operator, Owner: owner, Name: name})
	}

	return m, nil
}
