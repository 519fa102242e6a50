package ruleset

import (
	"fmt"
	"sort"
	"sync"

	"github.com/casbin/caswaf/waf"
)

// MemStore is an in-memory waf.ConfigStore. Every mutation bumps the
// generation counter, invalidating cached resolutions. Reads return clones so
// callers can never observe later writes.
type MemStore struct {
	mu    sync.RWMutex
	rules map[string]*waf.Rule
	sites map[string]*waf.Site
	gen   uint64
}

// NewMemStore creates an empty store at generation zero.
func NewMemStore() *MemStore {
	return &MemStore{
		rules: make(map[string]*waf.Rule),
		sites: make(map[string]*waf.Site),
	}
}

func (s *MemStore) GetRule(owner string, name string) (*waf.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[owner+"/"+name]
	if !ok {
		return nil, fmt.Errorf("no rule %s/%s", owner, name)
	}
	return r.Clone(), nil
}

func (s *MemStore) GetRules(owner string) ([]*waf.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rr []*waf.Rule
	for _, r := range s.rules {
		if r.Owner == owner {
			rr = append(rr, r.Clone())
		}
	}
	sort.Slice(rr, func(i, j int) bool { return rr[i].Name < rr[j].Name })
	return rr, nil
}

func (s *MemStore) GetSite(owner string, name string) (*waf.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	site, ok := s.sites[owner+"/"+name]
	if !ok {
		return nil, fmt.Errorf("no site %s/%s", owner, name)
	}
	return cloneSite(site), nil
}

func (s *MemStore) GetSiteByDomain(domain string) (*waf.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, site := range s.sites {
		if site.MatchesDomain(domain) {
			return cloneSite(site), nil
		}
	}
	return nil, fmt.Errorf("no site serves domain %s", domain)
}

func (s *MemStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// PutRule inserts or replaces a rule.
func (s *MemStore) PutRule(r *waf.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.GetId()] = r.Clone()
	s.gen++
}

// DeleteRule removes a rule if present.
func (s *MemStore) DeleteRule(owner string, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[owner+"/"+name]; ok {
		delete(s.rules, owner+"/"+name)
		s.gen++
	}
}

// PutSite inserts or replaces a site.
func (s *MemStore) PutSite(site *waf.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[site.GetId()] = cloneSite(site)
	s.gen++
}

// DeleteSite removes a site if present.
func (s *MemStore) DeleteSite(owner string, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[owner+"/"+name]; ok {
		delete(s.sites, owner+"/"+name)
		s.gen++
	}
}

// Replace swaps the entire content in one step with a single generation bump.
// Used by file-backed stores on reload.
func (s *MemStore) Replace(rules []*waf.Rule, sites []*waf.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = make(map[string]*waf.Rule, len(rules))
	for _, r := range rules {
		s.rules[r.GetId()] = r.Clone()
	}
	s.sites = make(map[string]*waf.Site, len(sites))
	for _, site := range sites {
		s.sites[site.GetId()] = cloneSite(site)
	}
	s.gen++
}

func cloneSite(site *waf.Site) *waf.Site {
	c := *site
	c.OtherDomains = append([]string(nil), site.OtherDomains...)
	c.Rules = append([]string(nil), site.Rules...)
	c.Challenges = append([]string(nil), site.Challenges...)
	c.Nodes = make([]*waf.Node, len(site.Nodes))
	for i, n := range site.Nodes {
		nc := *n
		c.Nodes[i] = &nc
	}
	return &c
}
