package waf

import (
	"testing"
)

func TestRuleId(t *testing.T) {
	r := &Rule{Owner: "admin", Name: "block-tor"}
	if r.GetId() != "admin/block-tor" {
		t.Fatalf("unexpected rule id: %s", r.GetId())
	}

	owner, name, err := ParseRuleId("admin/block-tor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner != "admin" || name != "block-tor" {
		t.Fatalf("unexpected parse result: %s %s", owner, name)
	}

	if _, _, err = ParseRuleId("no-slash"); err == nil {
		t.Fatalf("expected error for id without slash")
	}
}

func TestRuleCloneIsolatesExpressions(t *testing.T) {
	r := &Rule{
		Owner: "admin",
		Name:  "ua",
		Type:  RuleTypeUserAgent,
		Expressions: []*Expression{
			{Operator: "contains", Value: "curl"},
		},
	}

	c := r.Clone()
	c.Expressions[0].Value = "wget"

	if r.Expressions[0].Value != "curl" {
		t.Fatalf("clone mutated the original expression")
	}
}

func TestDefaultStatusCodes(t *testing.T) {
	tests := []struct {
		action string
		want   int
	}{
		{ActionBlock, 403},
		{ActionDrop, 400},
		{ActionAllow, 200},
		{ActionRedirect, 302},
		{ActionCaptcha, 302},
	}

	for _, tt := range tests {
		got, err := DefaultStatusCode(tt.action)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", tt.action, err)
		}
		if got != tt.want {
			t.Fatalf("DefaultStatusCode(%s) = %d, want %d", tt.action, got, tt.want)
		}
	}

	if _, err := DefaultStatusCode("Bounce"); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}

func TestSiteMatchesDomain(t *testing.T) {
	s := &Site{Domain: "example.com", OtherDomains: []string{"www.example.com"}}

	if !s.MatchesDomain("example.com") {
		t.Fatalf("primary domain did not match")
	}
	if !s.MatchesDomain("www.example.com") {
		t.Fatalf("alternate domain did not match")
	}
	if s.MatchesDomain("evil.com") {
		t.Fatalf("unrelated domain matched")
	}
}
