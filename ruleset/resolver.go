// Package ruleset turns stored site and rule configuration into resolved,
// evaluator-ready rule sets. Resolution results are cached per site and keyed
// on the store's generation counter, so a snapshot stays valid until config
// changes and is rebuilt exactly once afterwards.
package ruleset

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/casbin/caswaf/ruleeval"
	"github.com/casbin/caswaf/waf"
)

// maxReferenceDepth bounds transitive compound reference chains during
// resolution-time validation. Matches the evaluation-time bound.
const maxReferenceDepth = 32

// RuleSet is a resolved snapshot of one site's rule sequence at one config
// generation. Rules holds the site's sequence in stored order. The snapshot
// also resolves out-of-sequence rules referenced by compound expressions,
// lazily, against the same store.
type RuleSet struct {
	SiteId     string
	Generation uint64
	Rules      []*ruleeval.ResolvedRule

	logger zerolog.Logger
	store  waf.RuleStore
	mu     sync.Mutex
	index  map[string]*ruleeval.ResolvedRule
}

// ResolveRule returns the resolved form of a rule by id, compiling and
// caching it on first use. Implements ruleeval.Resolver.
func (s *RuleSet) ResolveRule(owner string, name string) (*ruleeval.ResolvedRule, error) {
	id := owner + "/" + name

	s.mu.Lock()
	rr, ok := s.index[id]
	s.mu.Unlock()
	if ok {
		return rr, nil
	}

	rule, err := s.store.GetRule(owner, name)
	if err != nil {
		return nil, err
	}

	rr = compileResolved(s.logger, rule.Clone())

	s.mu.Lock()
	s.index[id] = rr
	s.mu.Unlock()
	return rr, nil
}

// Resolver caches resolved rule sets per site. Safe for concurrent use; a
// stale cache entry is replaced wholesale by a freshly built snapshot, so
// in-flight evaluations keep the snapshot they started with.
type Resolver struct {
	logger zerolog.Logger
	store  waf.ConfigStore

	mu    sync.RWMutex
	cache map[string]*RuleSet
}

// NewResolver creates a resolver over the given config store.
func NewResolver(logger zerolog.Logger, store waf.ConfigStore) *Resolver {
	return &Resolver{
		logger: logger,
		store:  store,
		cache:  make(map[string]*RuleSet),
	}
}

// ResolveSite returns the resolved rule set for a site, reusing the cached
// snapshot while the store generation is unchanged. Individual rules that
// fail to resolve are marked invalid and never match; they do not fail the
// site.
func (r *Resolver) ResolveSite(site *waf.Site) (*RuleSet, error) {
	siteId := site.GetId()
	gen := r.store.Generation()

	r.mu.RLock()
	cached, ok := r.cache[siteId]
	r.mu.RUnlock()
	if ok && cached.Generation == gen {
		return cached, nil
	}

	rs := r.build(site, gen)

	r.mu.Lock()
	// Concurrent builders of the same generation produce equivalent
	// snapshots; last write wins.
	r.cache[siteId] = rs
	r.mu.Unlock()

	return rs, nil
}

func (r *Resolver) build(site *waf.Site, gen uint64) *RuleSet {
	rs := &RuleSet{
		SiteId:     site.GetId(),
		Generation: gen,
		logger:     r.logger,
		store:      r.store,
		index:      make(map[string]*ruleeval.ResolvedRule),
	}

	for _, id := range site.Rules {
		rr := r.resolveOne(id)
		rs.Rules = append(rs.Rules, rr)
		rs.index[rr.Rule.GetId()] = rr

		if rr.Invalid {
			r.logger.Warn().Str("site", rs.SiteId).Str("rule", id).Str("reason", rr.InvalidReason).Msg("Rule failed to resolve and will never match")
		}
	}

	return rs
}

func (r *Resolver) resolveOne(id string) *ruleeval.ResolvedRule {
	owner, name, err := waf.ParseRuleId(id)
	if err != nil {
		return &ruleeval.ResolvedRule{
			Rule:          &waf.Rule{Name: id},
			Invalid:       true,
			InvalidReason: err.Error(),
		}
	}

	rule, err := r.store.GetRule(owner, name)
	if err != nil {
		return &ruleeval.ResolvedRule{
			Rule:          &waf.Rule{Owner: owner, Name: name},
			Invalid:       true,
			InvalidReason: fmt.Sprintf("rule not found: %v", err),
		}
	}

	rr := compileResolved(r.logger, rule.Clone())
	if rr.Invalid {
		return rr
	}

	// Compound chains are validated transitively here so a cyclic rule is
	// already marked invalid before any request evaluates it.
	if cm, ok := rr.Matcher.(*ruleeval.CompoundMatcher); ok {
		if err := r.checkReferences(id, cm, map[string]bool{id: true}, 0); err != nil {
			rr.Invalid = true
			rr.InvalidReason = err.Error()
		}
	}

	return rr
}

// checkReferences walks compound references to ensure the chain is acyclic,
// resolvable, and within the depth bound.
func (r *Resolver) checkReferences(id string, cm *ruleeval.CompoundMatcher, visited map[string]bool, depth int) error {
	if depth > maxReferenceDepth {
		return fmt.Errorf("compound reference chain deeper than %d", maxReferenceDepth)
	}

	for _, term := range cm.Terms {
		refId := term.Owner + "/" + term.Name
		if visited[refId] {
			return fmt.Errorf("cyclic compound reference via %s", refId)
		}

		rule, err := r.store.GetRule(term.Owner, term.Name)
		if err != nil {
			return fmt.Errorf("unresolvable reference %s: %v", refId, err)
		}
		if rule.Type != waf.RuleTypeCompound {
			continue
		}

		m, err := ruleeval.Compile(r.logger, rule)
		if err != nil {
			return fmt.Errorf("invalid reference %s: %v", refId, err)
		}

		visited[refId] = true
		err = r.checkReferences(refId, m.(*ruleeval.CompoundMatcher), visited, depth+1)
		delete(visited, refId)
		if err != nil {
			return err
		}
	}

	return nil
}

func compileResolved(logger zerolog.Logger, rule *waf.Rule) *ruleeval.ResolvedRule {
	m, err := ruleeval.Compile(logger, rule)
	if err != nil {
		return &ruleeval.ResolvedRule{Rule: rule, Invalid: true, InvalidReason: err.Error()}
	}
	return &ruleeval.ResolvedRule{Rule: rule, Matcher: m}
}
