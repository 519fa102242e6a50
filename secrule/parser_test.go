package secrule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseContentTypeDirective(t *testing.T) {
	assert := assert.New(t)

	// Act
	d, err := ParseDirective(DefaultDirectives[1])

	// Assert
	assert.Nil(err)
	assert.Equal(1, len(d.Targets))
	assert.Equal("REQUEST_HEADERS", d.Targets[0].Name)
	assert.Equal("Content-Type", d.Targets[0].Selector)
	assert.False(d.Targets[0].IsCount)
	assert.Equal(OpRx, d.Operator)
	assert.Equal("^application/json", d.OpArg)
	assert.NotNil(d.OpRegex)
	assert.Equal(200001, d.Actions.ID)
	assert.Equal(1, d.Actions.Phase)
	assert.True(d.Actions.Pass)
	assert.True(d.Actions.NoLog)
	assert.False(d.Actions.Deny)
	assert.Equal("JSON", d.Actions.BodyProcessor)
	assert.Equal([]string{"none", "lowercase"}, d.Transformations)
}

func TestParseBodyCountDirective(t *testing.T) {
	assert := assert.New(t)

	// Act
	d, err := ParseDirective(DefaultDirectives[2])

	// Assert
	assert.Nil(err)
	assert.Equal("REQUEST_BODY", d.Targets[0].Name)
	assert.True(d.Targets[0].IsCount)
	assert.Equal(OpEq, d.Operator)
	assert.Equal(0, d.OpArgNum)
	assert.True(d.Actions.Deny)
	assert.Equal(400, d.Actions.Status)
	assert.Equal("Failed to parse request body.", d.Actions.Msg)
}

func TestParseXMLDirectiveKeepsRegexEscapes(t *testing.T) {
	assert := assert.New(t)

	d, err := ParseDirective(DefaultDirectives[0])

	assert.Nil(err)
	// The \+ escape must survive tokenization for the regex to compile as intended.
	assert.True(d.OpRegex.MatchString("application/soap+xml"))
	assert.True(d.OpRegex.MatchString("text/xml"))
	assert.False(d.OpRegex.MatchString("application/json"))
}

func TestParseDirectivesBlock(t *testing.T) {
	assert := assert.New(t)

	block := DefaultDirectives[0] + "\n\n# comment\n" + DefaultDirectives[1] + "\n" + DefaultDirectives[2] + "\n"

	dd, err := ParseDirectives(block)

	assert.Nil(err)
	assert.Equal(3, len(dd))
}

func TestParseDirectiveErrors(t *testing.T) {
	assert := assert.New(t)

	bad := []string{
		``,
		`SecAction "phase:1,pass"`,
		`SecRule REQUEST_HEADERS "unterminated`,
		`SecRule REQUEST_HEADERS:User-Agent "(unclosed" "deny"`,
		`SecRule &REQUEST_BODY "@eq banana" "deny"`,
		`SecRule REQUEST_URI "@detectSQLi" "deny"`,
	}

	for _, s := range bad {
		_, err := ParseDirective(s)
		assert.Error(err, "expected error for %q", s)
	}
}
