package secrule

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/casbin/caswaf/bodyparsing"
	"github.com/casbin/caswaf/testutils"
	"github.com/casbin/caswaf/waf"
)

type mockHeaderPair struct {
	k, v string
}

func (h *mockHeaderPair) Key() string   { return h.k }
func (h *mockHeaderPair) Value() string { return h.v }

type mockRequest struct {
	method  string
	uri     string
	headers []waf.HeaderPair
	body    string
}

func (r *mockRequest) Method() string            { return r.method }
func (r *mockRequest) Host() string              { return "example.com" }
func (r *mockRequest) URI() string               { return r.uri }
func (r *mockRequest) RemoteAddr() string        { return "203.0.113.7" }
func (r *mockRequest) UserAgent() string         { return "" }
func (r *mockRequest) Headers() []waf.HeaderPair { return r.headers }
func (r *mockRequest) BodyReader() io.Reader     { return strings.NewReader(r.body) }
func (r *mockRequest) TransactionID() string     { return "tx-secrule-test" }

func defaultDirectives(t *testing.T) []*Directive {
	dd, err := ParseDirectives(strings.Join(DefaultDirectives, "\n"))
	if err != nil {
		t.Fatalf("failed to parse default directives: %v", err)
	}
	return dd
}

func evalDefaults(t *testing.T, req *mockRequest) Result {
	logger := testutils.NewTestLogger(t)
	parser := bodyparsing.NewRequestBodyParser(waf.DefaultLengthLimits)

	res, err := Evaluate(logger, defaultDirectives(t), req, parser)
	if err != nil {
		t.Fatalf("unexpected evaluation error: %v", err)
	}
	return res
}

func TestEmptyJSONBodyDenied(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	req := &mockRequest{
		method:  "POST",
		uri:     "/api/items",
		headers: []waf.HeaderPair{&mockHeaderPair{"Content-Type", "application/json"}},
		body:    "",
	}

	// Act
	res := evalDefaults(t, req)

	// Assert
	assert.True(res.Matched)
	assert.Equal(waf.ActionBlock, res.Action)
	assert.Equal(400, res.StatusCode)
	assert.Equal("Failed to parse request body.", res.Msg)
}

func TestMalformedJSONBodyDenied(t *testing.T) {
	assert := assert.New(t)

	req := &mockRequest{
		method:  "POST",
		uri:     "/api/items",
		headers: []waf.HeaderPair{&mockHeaderPair{"Content-Type", "application/json"}},
		body:    `{"name":`,
	}

	res := evalDefaults(t, req)

	assert.True(res.Matched)
	assert.Equal("Failed to parse request body.", res.Msg)
}

func TestWellFormedJSONBodyPasses(t *testing.T) {
	assert := assert.New(t)

	req := &mockRequest{
		method:  "POST",
		uri:     "/api/items",
		headers: []waf.HeaderPair{&mockHeaderPair{"Content-Type", "application/json"}},
		body:    `{"name":"bob"}`,
	}

	res := evalDefaults(t, req)

	assert.False(res.Matched)
}

func TestMalformedXMLBodyDenied(t *testing.T) {
	assert := assert.New(t)

	req := &mockRequest{
		method:  "POST",
		uri:     "/api/items",
		headers: []waf.HeaderPair{&mockHeaderPair{"Content-Type", "text/xml"}},
		body:    `<open>`,
	}

	res := evalDefaults(t, req)

	assert.True(res.Matched)
	assert.Equal("Failed to parse request body.", res.Msg)
}

func TestBodylessRequestNotDenied(t *testing.T) {
	assert := assert.New(t)

	// No Content-Type, no body: the body-presence assertion must not fire.
	req := &mockRequest{method: "GET", uri: "/"}

	res := evalDefaults(t, req)

	assert.False(res.Matched)
}

func TestContentTypeMatchingIsCaseInsensitive(t *testing.T) {
	assert := assert.New(t)

	// t:lowercase on the ctl directives normalizes the header value.
	req := &mockRequest{
		method:  "POST",
		uri:     "/api/items",
		headers: []waf.HeaderPair{&mockHeaderPair{"Content-Type", "Application/JSON"}},
		body:    "",
	}

	res := evalDefaults(t, req)

	assert.True(res.Matched)
}

func TestDenyDirectiveHaltsEvaluation(t *testing.T) {
	assert := assert.New(t)
	logger := testutils.NewTestLogger(t)
	parser := bodyparsing.NewRequestBodyParser(waf.DefaultLengthLimits)

	dd, err := ParseDirectives(
		`SecRule REQUEST_METHOD "^TRACE$" "id:'1',phase:1,deny,status:405,msg:'method not allowed'"` + "\n" +
			`SecRule REQUEST_METHOD "^TRACE$" "id:'2',phase:1,deny,status:500,msg:'should never be reached'"`)
	assert.Nil(err)

	req := &mockRequest{method: "TRACE", uri: "/"}

	res, err := Evaluate(logger, dd, req, parser)

	assert.Nil(err)
	assert.True(res.Matched)
	assert.Equal(405, res.StatusCode)
	assert.Equal("method not allowed", res.Msg)
}
