package waf

import (
	"io"
)

// HeaderPair represents a header line in an HTTP request.
type HeaderPair interface {
	Key() string
	Value() string
}

// HTTPRequest represents an HTTP request to be evaluated by the decision
// pipeline. Implementations are adapters over whatever the proxy transport
// hands us.
type HTTPRequest interface {
	Method() string
	Host() string
	URI() string
	RemoteAddr() string
	UserAgent() string
	Headers() []HeaderPair
	BodyReader() io.Reader
	TransactionID() string
}
