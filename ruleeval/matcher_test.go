package ruleeval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/casbin/caswaf/testutils"
	"github.com/casbin/caswaf/waf"
)

func TestCompileIPRule(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	rule := &waf.Rule{
		Owner: "admin", Name: "blocklist", Type: waf.RuleTypeIP, Action: waf.ActionBlock,
		Expressions: []*waf.Expression{
			{Operator: OpIsIn, Value: "1.2.3.0/24, 9.9.9.9"},
		},
	}

	// Act
	m, err := Compile(testutils.NewTestLogger(t), rule)

	// Assert
	assert.Nil(err)
	ipm, ok := m.(*IPMatcher)
	assert.True(ok)
	assert.Equal(1, len(ipm.exprs))
	assert.Equal(1, len(ipm.exprs[0].nets))
	assert.Equal([]string{"9.9.9.9"}, ipm.exprs[0].bareIps)
}

func TestCompileIPRuleSkipsMalformedEntries(t *testing.T) {
	assert := assert.New(t)

	rule := &waf.Rule{
		Owner: "admin", Name: "blocklist", Type: waf.RuleTypeIP,
		Expressions: []*waf.Expression{
			{Operator: OpIsIn, Value: "1.2.3.0/24, not-an-address, 300.1.1.1/8"},
		},
	}

	m, err := Compile(testutils.NewTestLogger(t), rule)

	assert.Nil(err)
	ipm := m.(*IPMatcher)
	assert.Equal(1, len(ipm.exprs[0].nets))
	assert.Equal(0, len(ipm.exprs[0].bareIps))
}

func TestCompileUserAgentRegex(t *testing.T) {
	assert := assert.New(t)

	rule := &waf.Rule{
		Owner: "admin", Name: "bots", Type: waf.RuleTypeUserAgent,
		Expressions: []*waf.Expression{
			{Operator: OpMatch, Value: `(?i)curl/\d+`},
		},
	}

	m, err := Compile(testutils.NewTestLogger(t), rule)

	assert.Nil(err)
	uam := m.(*UserAgentMatcher)
	assert.NotNil(uam.exprs[0].regex)
}

func TestCompileWAFRuleDefaultsToStockDirectives(t *testing.T) {
	assert := assert.New(t)

	rule := &waf.Rule{Owner: "admin", Name: "waf", Type: waf.RuleTypeWAF}

	m, err := Compile(testutils.NewTestLogger(t), rule)

	assert.Nil(err)
	wm := m.(*WAFMatcher)
	assert.Equal(3, len(wm.Directives))
}

func TestCompileRateRule(t *testing.T) {
	assert := assert.New(t)

	rule := &waf.Rule{
		Owner: "admin", Name: "rate", Type: waf.RuleTypeIPRate,
		Expressions: []*waf.Expression{{Operator: "100", Value: "60"}},
	}

	m, err := Compile(testutils.NewTestLogger(t), rule)

	assert.Nil(err)
	rm := m.(*RateLimitMatcher)
	assert.Equal(100, rm.PerSecond)
	assert.Equal(60, rm.BlockSeconds)
}

func TestCompileCompoundRule(t *testing.T) {
	assert := assert.New(t)

	rule := &waf.Rule{
		Owner: "admin", Name: "combo", Type: waf.RuleTypeCompound,
		Expressions: []*waf.Expression{
			{Operator: ConnectorBegin, Value: "admin/a"},
			{Operator: ConnectorAnd, Value: "admin/b"},
			{Operator: ConnectorOr, Value: "admin/c"},
		},
	}

	m, err := Compile(testutils.NewTestLogger(t), rule)

	assert.Nil(err)
	cm := m.(*CompoundMatcher)
	assert.Equal(3, len(cm.Terms))
	assert.Equal(CompoundTerm{Connector: ConnectorBegin, Owner: "admin", Name: "a"}, cm.Terms[0])
}

func TestCompileErrors(t *testing.T) {
	testCases := []struct {
		name string
		rule *waf.Rule
	}{
		{
			name: "unknown rule type",
			rule: &waf.Rule{Owner: "a", Name: "r", Type: "Voodoo"},
		},
		{
			name: "IP rule without expressions",
			rule: &waf.Rule{Owner: "a", Name: "r", Type: waf.RuleTypeIP},
		},
		{
			name: "unknown IP operator",
			rule: &waf.Rule{Owner: "a", Name: "r", Type: waf.RuleTypeIP,
				Expressions: []*waf.Expression{{Operator: "is near", Value: "1.2.3.4"}}},
		},
		{
			name: "bad User-Agent regex",
			rule: &waf.Rule{Owner: "a", Name: "r", Type: waf.RuleTypeUserAgent,
				Expressions: []*waf.Expression{{Operator: OpMatch, Value: "(unclosed"}}},
		},
		{
			name: "bad WAF directive",
			rule: &waf.Rule{Owner: "a", Name: "r", Type: waf.RuleTypeWAF,
				Expressions: []*waf.Expression{{Value: "NotADirective"}}},
		},
		{
			name: "non-numeric rate",
			rule: &waf.Rule{Owner: "a", Name: "r", Type: waf.RuleTypeIPRate,
				Expressions: []*waf.Expression{{Operator: "fast", Value: "60"}}},
		},
		{
			name: "zero rate",
			rule: &waf.Rule{Owner: "a", Name: "r", Type: waf.RuleTypeIPRate,
				Expressions: []*waf.Expression{{Operator: "0", Value: "60"}}},
		},
		{
			name: "compound not starting with begin",
			rule: &waf.Rule{Owner: "a", Name: "r", Type: waf.RuleTypeCompound,
				Expressions: []*waf.Expression{{Operator: ConnectorAnd, Value: "a/b"}}},
		},
		{
			name: "compound begin in the middle",
			rule: &waf.Rule{Owner: "a", Name: "r", Type: waf.RuleTypeCompound,
				Expressions: []*waf.Expression{
					{Operator: ConnectorBegin, Value: "a/b"},
					{Operator: ConnectorBegin, Value: "a/c"},
				}},
		},
		{
			name: "compound reference without owner",
			rule: &waf.Rule{Owner: "a", Name: "r", Type: waf.RuleTypeCompound,
				Expressions: []*waf.Expression{{Operator: ConnectorBegin, Value: "nameonly"}}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(testutils.NewTestLogger(t), tc.rule)
			assert.Error(t, err)
			assert.True(t, waf.IsConfigError(err))
		})
	}
}
