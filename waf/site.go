package waf

// Node is a backend target a site can forward allowed traffic to.
type Node struct {
	Name    string `json:"name" yaml:"name"`
	Host    string `json:"host" yaml:"host"`
	Version string `json:"version" yaml:"version"`
	Status  string `json:"status" yaml:"status"`
}

// Site binds domains to an ordered list of rule ids and a set of upstream
// nodes. It is the unit against which a rule set is resolved.
type Site struct {
	Owner string `json:"owner" yaml:"owner"`
	Name  string `json:"name" yaml:"name"`

	Domain         string   `json:"domain" yaml:"domain"`
	OtherDomains   []string `json:"otherDomains" yaml:"otherDomains"`
	Rules          []string `json:"rules" yaml:"rules"`
	Nodes          []*Node  `json:"nodes" yaml:"nodes"`
	SslMode        string   `json:"sslMode" yaml:"sslMode"`
	DefaultAction  string   `json:"defaultAction" yaml:"defaultAction"`
	DisableVerbose bool     `json:"disableVerbose" yaml:"disableVerbose"`
	Challenges     []string `json:"challenges" yaml:"challenges"`
}

// GetId returns the "owner/name" id of the site.
func (s *Site) GetId() string {
	return s.Owner + "/" + s.Name
}

// MatchesDomain reports whether host is the site's primary or one of its
// alternate domains.
func (s *Site) MatchesDomain(host string) bool {
	if host == s.Domain {
		return true
	}
	for _, d := range s.OtherDomains {
		if host == d {
			return true
		}
	}
	return false
}
