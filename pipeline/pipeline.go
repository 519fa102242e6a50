// Package pipeline produces the final decision for a request: an ordered,
// first-match-wins scan of the site's resolved rules, defaulting to allow.
// The decision path never fails a request because of internal errors; a rule
// that cannot be evaluated is skipped.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/casbin/caswaf/ruleeval"
	"github.com/casbin/caswaf/ruleset"
	"github.com/casbin/caswaf/waf"
)

// SiteResolver produces the resolved rule set for a site.
type SiteResolver interface {
	ResolveSite(site *waf.Site) (*ruleset.RuleSet, error)
}

// Evaluator runs one resolved rule against a request.
type Evaluator interface {
	Evaluate(ctx context.Context, r *ruleeval.ResolvedRule, req waf.HTTPRequest, resolver ruleeval.Resolver) (ruleeval.MatchResult, error)
}

// Pipeline is the decision entry point. Safe for concurrent use.
type Pipeline struct {
	logger   zerolog.Logger
	resolver SiteResolver
	engine   Evaluator
	results  waf.ResultsLogger
}

// NewPipeline creates a decision pipeline. results may be nil.
func NewPipeline(logger zerolog.Logger, resolver SiteResolver, engine Evaluator, results waf.ResultsLogger) *Pipeline {
	return &Pipeline{
		logger:   logger,
		resolver: resolver,
		engine:   engine,
		results:  results,
	}
}

// Decide evaluates the site's rules in stored order against the request and
// returns the decision of the first matching rule, or the site default when
// none match. It never returns nil.
func (p *Pipeline) Decide(ctx context.Context, site *waf.Site, req waf.HTTPRequest) *waf.Decision {
	logger := p.logger.With().Str("txid", req.TransactionID()).Logger()

	rs, err := p.resolver.ResolveSite(site)
	if err != nil {
		logger.Error().Err(err).Str("site", site.GetId()).Msg("Rule set resolution failed, allowing request")
		return p.defaultDecision(site)
	}

	for _, rr := range rs.Rules {
		res, err := p.engine.Evaluate(ctx, rr, req, rs)
		if err != nil {
			// Already logged by the engine with per-rule throttling.
			logger.Debug().Err(err).Str("rule", rr.Rule.GetId()).Msg("Rule failed open")
			continue
		}
		if !res.Matched {
			continue
		}

		decision := buildDecision(site, rr.Rule, res)
		logger.Info().
			Str("rule", rr.Rule.GetId()).
			Str("action", decision.Action).
			Int("statusCode", decision.StatusCode).
			Msg("Rule matched")

		if decision.ShouldLog && p.results != nil {
			p.results.RuleTriggered(req, rr.Rule.GetId(), decision)
		}
		return decision
	}

	return p.defaultDecision(site)
}

func (p *Pipeline) defaultDecision(site *waf.Site) *waf.Decision {
	action := site.DefaultAction
	if action == "" {
		return waf.DefaultAllow()
	}

	statusCode, err := waf.DefaultStatusCode(action)
	if err != nil {
		p.logger.Warn().Str("site", site.GetId()).Str("action", action).Msg("Unknown site default action, allowing")
		return waf.DefaultAllow()
	}
	return &waf.Decision{Action: action, StatusCode: statusCode}
}

func buildDecision(site *waf.Site, rule *waf.Rule, res ruleeval.MatchResult) *waf.Decision {
	action := rule.Action
	if action == "" {
		action = waf.ActionBlock
	}

	// Status code precedence: the rule's own code, then one dictated by the
	// matcher (WAF directive status), then the action's default.
	statusCode := rule.StatusCode
	if statusCode == 0 {
		statusCode = res.StatusCode
	}
	if statusCode == 0 {
		var err error
		statusCode, err = waf.DefaultStatusCode(action)
		if err != nil {
			statusCode = 403
		}
	}

	return &waf.Decision{
		Action:        action,
		StatusCode:    statusCode,
		RedirectURL:   rule.RedirectURL,
		Reason:        decisionReason(site, rule, res.Detail),
		MatchedRuleId: rule.GetId(),
		ShouldLog:     rule.LogAction != waf.LogActionNoLog && !res.SuppressLog,
		LogMessage:    logMessage(rule, res),
	}
}

// decisionReason builds the customer-facing reason string. Verbose rules
// expose the matched expression; otherwise the configured reason wins.
func decisionReason(site *waf.Site, rule *waf.Rule, detail string) string {
	if rule.IsVerbose && !site.DisableVerbose {
		reason := fmt.Sprintf("Rule [%s] triggered - %s", rule.GetId(), detail)
		if rule.Reason != "" {
			reason += " - Custom reason: " + rule.Reason
		}
		return reason
	}
	if rule.Reason != "" {
		return rule.Reason
	}
	return fmt.Sprintf("hit rule %s: %s", rule.GetId(), detail)
}

func logMessage(rule *waf.Rule, res ruleeval.MatchResult) string {
	if rule.LogMessage != "" {
		return rule.LogMessage
	}
	if res.Msg != "" {
		return res.Msg
	}
	return res.Detail
}
