package pipeline

import (
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/casbin/caswaf/waf"
)

type httpHeaderPair struct {
	key   string
	value string
}

func (h *httpHeaderPair) Key() string   { return h.key }
func (h *httpHeaderPair) Value() string { return h.value }

// httpRequest adapts a net/http request to the evaluation surface. The
// client address and headers are extracted once at construction.
type httpRequest struct {
	inner    *http.Request
	txid     string
	clientIp string
	headers  []waf.HeaderPair
}

// NewHTTPRequest wraps a net/http request for evaluation, assigning it a
// fresh transaction id.
func NewHTTPRequest(r *http.Request) waf.HTTPRequest {
	headers := make([]waf.HeaderPair, 0, len(r.Header))
	for k, vv := range r.Header {
		for _, v := range vv {
			headers = append(headers, &httpHeaderPair{key: k, value: v})
		}
	}

	return &httpRequest{
		inner:    r,
		txid:     uuid.NewString(),
		clientIp: clientIpFromRequest(r),
		headers:  headers,
	}
}

func (r *httpRequest) Method() string            { return r.inner.Method }
func (r *httpRequest) Host() string              { return hostWithoutPort(r.inner.Host) }
func (r *httpRequest) URI() string               { return r.inner.URL.RequestURI() }
func (r *httpRequest) RemoteAddr() string        { return r.clientIp }
func (r *httpRequest) UserAgent() string         { return r.inner.UserAgent() }
func (r *httpRequest) Headers() []waf.HeaderPair { return r.headers }
func (r *httpRequest) BodyReader() io.Reader     { return r.inner.Body }
func (r *httpRequest) TransactionID() string     { return r.txid }

// clientIpFromRequest extracts the real client address: the first
// X-Forwarded-For entry, then X-Real-IP, then the transport peer address.
func clientIpFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if i := strings.IndexByte(xff, ','); i >= 0 {
			first = xff[:i]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func hostWithoutPort(host string) string {
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}
