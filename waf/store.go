package waf

// RuleStore is the config-store surface the evaluation engine consumes.
// Mutation happens elsewhere; reads return snapshots.
type RuleStore interface {
	GetRule(owner string, name string) (*Rule, error)
	GetRules(owner string) ([]*Rule, error)
}

// SiteStore looks up sites by identity or by serving domain.
type SiteStore interface {
	GetSite(owner string, name string) (*Site, error)
	GetSiteByDomain(domain string) (*Site, error)
}

// ConfigStore is the full external config collaborator. Generation increments
// on any rule or site mutation; cached resolutions keyed on an older
// generation are invalid.
type ConfigStore interface {
	RuleStore
	SiteStore
	Generation() uint64
}
