package ruleeval

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/casbin/caswaf/secrule"
	"github.com/casbin/caswaf/waf"
)

// maxReferenceDepth bounds transitive compound references. Chains deeper than
// this are treated as cyclic.
const maxReferenceDepth = 32

// defaultGeoTimeout caps how long one geolocation lookup may hold up a
// request before the operator fails open.
const defaultGeoTimeout = 100 * time.Millisecond

// degradedLogInterval throttles repeated failure logs per rule id.
const degradedLogInterval = time.Minute

// ResolvedRule pairs a stored rule snapshot with its compiled matcher.
// Invalid marks rules whose compilation failed; they never match.
type ResolvedRule struct {
	Rule          *waf.Rule
	Matcher       Matcher
	Invalid       bool
	InvalidReason string
}

// Resolver looks up a resolved rule by id on behalf of compound references.
// A rule set snapshot implements this over its own members.
type Resolver interface {
	ResolveRule(owner string, name string) (*ResolvedRule, error)
}

// RateLimiter is the counter-store surface rate rules consume.
type RateLimiter interface {
	Check(ruleId string, clientIp string, perSecond int, blockSeconds int) (blocked bool)
}

// MatchResult is the outcome of evaluating one rule against one request.
// StatusCode and Msg are only set when the matcher itself dictates them, as
// WAF directives do; zero values defer to the owning rule's configuration.
type MatchResult struct {
	Matched     bool
	Detail      string
	StatusCode  int
	Msg         string
	SuppressLog bool
}

// Engine evaluates resolved rules. It is safe for concurrent use.
type Engine struct {
	logger      zerolog.Logger
	geoDB       waf.GeoDB
	limiter     RateLimiter
	bodyParser  waf.RequestBodyParser
	homeCountry string
	geoTimeout  time.Duration

	mu          sync.Mutex
	lastDegrade map[string]time.Time
	now         func() time.Time
}

// NewEngine creates an evaluation engine. geoDB and limiter may be nil; the
// operators that need them then fail open with a logged DependencyError.
func NewEngine(logger zerolog.Logger, geoDB waf.GeoDB, limiter RateLimiter, bodyParser waf.RequestBodyParser, homeCountry string) *Engine {
	return &Engine{
		logger:      logger,
		geoDB:       geoDB,
		limiter:     limiter,
		bodyParser:  bodyParser,
		homeCountry: homeCountry,
		geoTimeout:  defaultGeoTimeout,
		lastDegrade: make(map[string]time.Time),
		now:         time.Now,
	}
}

// Evaluate runs one resolved rule against a request. A non-nil error means
// the rule could not be fully evaluated and has failed open; res.Matched is
// then false. Degraded evaluations are logged here, throttled per rule id,
// so callers only need to act on the result.
func (e *Engine) Evaluate(ctx context.Context, r *ResolvedRule, req waf.HTTPRequest, resolver Resolver) (res MatchResult, err error) {
	visited := make(map[string]bool)
	res, err = e.evaluate(ctx, r, req, resolver, visited, 0)
	if err != nil {
		e.logDegraded(r.Rule.GetId(), err)
	}
	return
}

func (e *Engine) evaluate(ctx context.Context, r *ResolvedRule, req waf.HTTPRequest, resolver Resolver, visited map[string]bool, depth int) (res MatchResult, err error) {
	id := r.Rule.GetId()

	if r.Invalid {
		err = waf.NewConfigError(id, "%s", r.InvalidReason)
		return
	}
	if visited[id] {
		err = waf.NewConfigError(id, "cyclic compound reference")
		return
	}
	if depth > maxReferenceDepth {
		err = waf.NewConfigError(id, "compound reference chain deeper than %d", maxReferenceDepth)
		return
	}
	visited[id] = true
	defer delete(visited, id)

	switch m := r.Matcher.(type) {
	case *IPMatcher:
		return e.evalIP(ctx, m, req)
	case *UserAgentMatcher:
		return e.evalUserAgent(m, req), nil
	case *WAFMatcher:
		return e.evalWAF(id, m, req)
	case *RateLimitMatcher:
		return e.evalRate(id, m, req)
	case *CompoundMatcher:
		return e.evalCompound(ctx, id, m, req, resolver, visited, depth)
	default:
		err = waf.NewConfigError(id, "no matcher of type %T", r.Matcher)
		return
	}
}

func expressionDetail(subject string, operator string, value string) string {
	return fmt.Sprintf("expression matched: %q", subject+" "+operator+" "+value)
}

func (e *Engine) evalIP(ctx context.Context, m *IPMatcher, req waf.HTTPRequest) (res MatchResult, err error) {
	clientIp := req.RemoteAddr()
	ip := net.ParseIP(clientIp)

	for _, x := range m.exprs {
		switch x.operator {
		case OpIsIn:
			if ip != nil && x.containsAddr(ip, clientIp) {
				res = MatchResult{Matched: true, Detail: expressionDetail(clientIp, x.operator, x.value)}
				return res, nil
			}
		case OpIsNotIn:
			if ip == nil || !x.containsAddr(ip, clientIp) {
				res = MatchResult{Matched: true, Detail: expressionDetail(clientIp, x.operator, x.value)}
				return res, nil
			}
		case OpIsAbroad:
			abroad, country, derr := e.isAbroad(ctx, clientIp)
			if derr != nil {
				// Fail open for this expression; later expressions may still match.
				err = derr
				continue
			}
			if abroad {
				res = MatchResult{Matched: true, Detail: expressionDetail(clientIp, x.operator, country)}
				return res, nil
			}
		}
	}

	return
}

// isAbroad resolves the client's country and compares it to the home country.
// Unknown addresses are not abroad. Lookup failures and timeouts surface as
// DependencyErrors so the operator fails open.
func (e *Engine) isAbroad(ctx context.Context, clientIp string) (abroad bool, country string, err error) {
	if e.geoDB == nil {
		err = &waf.DependencyError{Dependency: "geodb", Err: errors.New("no geolocation database configured")}
		return
	}

	type lookupResult struct {
		country string
		err     error
	}
	ch := make(chan lookupResult, 1)
	go func() {
		c, gerr := e.geoDB.GeoLookup(clientIp)
		ch <- lookupResult{country: c, err: gerr}
	}()

	timer := time.NewTimer(e.geoTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			err = &waf.DependencyError{Dependency: "geodb", Err: r.err}
			return
		}
		if r.country == "" {
			return
		}
		return r.country != e.homeCountry, r.country, nil
	case <-timer.C:
		err = &waf.DependencyError{Dependency: "geodb", Err: fmt.Errorf("lookup timed out after %v", e.geoTimeout)}
		return
	case <-ctx.Done():
		err = &waf.DependencyError{Dependency: "geodb", Err: ctx.Err()}
		return
	}
}

func (e *Engine) evalUserAgent(m *UserAgentMatcher, req waf.HTTPRequest) (res MatchResult) {
	ua := req.UserAgent()

	for _, x := range m.exprs {
		var matched bool
		switch x.operator {
		case OpContains:
			matched = strings.Contains(ua, x.value)
		case OpNotContains:
			matched = !strings.Contains(ua, x.value)
		case OpEquals:
			matched = ua == x.value
		case OpNotEquals:
			matched = ua != x.value
		case OpMatch:
			matched = x.regex.MatchString(ua)
		}
		if matched {
			res = MatchResult{Matched: true, Detail: expressionDetail(ua, x.operator, x.value)}
			return
		}
	}

	return
}

func (e *Engine) evalWAF(ruleId string, m *WAFMatcher, req waf.HTTPRequest) (res MatchResult, err error) {
	sres, serr := secrule.Evaluate(e.logger, m.Directives, req, e.bodyParser)
	if serr != nil {
		err = &waf.EvaluationError{RuleId: ruleId, Err: serr}
		return
	}

	if sres.Matched {
		res = MatchResult{
			Matched:     true,
			Detail:      sres.Msg,
			StatusCode:  sres.StatusCode,
			Msg:         sres.Msg,
			SuppressLog: !sres.ShouldLog,
		}
	}
	return
}

func (e *Engine) evalRate(ruleId string, m *RateLimitMatcher, req waf.HTTPRequest) (res MatchResult, err error) {
	if e.limiter == nil {
		err = &waf.DependencyError{Dependency: "ratelimit", Err: errors.New("no rate counter store configured")}
		return
	}

	clientIp := req.RemoteAddr()
	if e.limiter.Check(ruleId, clientIp, m.PerSecond, m.BlockSeconds) {
		res = MatchResult{
			Matched: true,
			Detail:  fmt.Sprintf("client %s exceeded %d requests per second", clientIp, m.PerSecond),
		}
	}
	return
}

func (e *Engine) evalCompound(ctx context.Context, ruleId string, m *CompoundMatcher, req waf.HTTPRequest, resolver Resolver, visited map[string]bool, depth int) (res MatchResult, err error) {
	if resolver == nil {
		err = waf.NewConfigError(ruleId, "compound rule evaluated without a resolver")
		return
	}

	var acc bool
	var detail string

	for i, term := range m.Terms {
		// Short-circuit terms whose outcome cannot change the fold.
		if i > 0 {
			if term.Connector == ConnectorAnd && !acc {
				continue
			}
			if term.Connector == ConnectorOr && acc {
				continue
			}
		}

		ref, rerr := resolver.ResolveRule(term.Owner, term.Name)
		if rerr != nil {
			err = waf.NewConfigError(ruleId, "unresolvable reference %s/%s: %v", term.Owner, term.Name, rerr)
			return MatchResult{}, err
		}

		tres, terr := e.evaluate(ctx, ref, req, resolver, visited, depth+1)
		if terr != nil {
			var de *waf.DependencyError
			if errors.As(terr, &de) {
				// The term fails open as non-matching; the fold continues.
				e.logDegraded(ref.Rule.GetId(), terr)
			} else {
				return MatchResult{}, terr
			}
		}

		if i == 0 {
			acc = tres.Matched
		} else if term.Connector == ConnectorAnd {
			acc = acc && tres.Matched
		} else {
			acc = acc || tres.Matched
		}

		if tres.Matched && detail == "" {
			detail = tres.Detail
		}
	}

	if acc {
		res = MatchResult{Matched: true, Detail: detail}
	}
	return
}

// logDegraded records a failed or partial evaluation, at most once per rule
// id per throttle interval so a hot rule cannot flood the log.
func (e *Engine) logDegraded(ruleId string, err error) {
	now := e.now()

	e.mu.Lock()
	last, seen := e.lastDegrade[ruleId]
	if seen && now.Sub(last) < degradedLogInterval {
		e.mu.Unlock()
		return
	}
	e.lastDegrade[ruleId] = now
	e.mu.Unlock()

	e.logger.Warn().Str("rule", ruleId).Err(err).Msg("Rule evaluation degraded, failing open")
}
