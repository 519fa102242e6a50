package waf

import (
	"errors"
	"io"

	"github.com/rs/zerolog"
)

// ParsedBodyFieldCb is called for each parsed body field.
type ParsedBodyFieldCb = func(contentType ContentType, fieldName string, data string) error

// RequestBodyParser parses HTTP request bodies.
type RequestBodyParser interface {
	// Parse selects a parser based on the Content-Type header.
	Parse(logger zerolog.Logger, req RequestBodyParserHTTPRequest, cb ParsedBodyFieldCb) error

	// ParseAs forces a specific body parser regardless of the Content-Type
	// header, the way a ctl:requestBodyProcessor directive does.
	ParseAs(logger zerolog.Logger, req RequestBodyParserHTTPRequest, contentType ContentType, cb ParsedBodyFieldCb) error

	LengthLimits() LengthLimits
}

// RequestBodyParserHTTPRequest represents an HTTP request to be parsed by RequestBodyParser.
type RequestBodyParserHTTPRequest interface {
	Headers() []HeaderPair
	BodyReader() io.Reader
}

// ContentType of the body field being parsed.
type ContentType int

// ContentTypes available.
const (
	_ ContentType = iota
	MultipartFormDataContent
	URLEncodedContent
	XMLContent
	JSONContent
)

// LengthLimits states limitations enforced on the lengths of different parts
// of the request body.
type LengthLimits struct {
	MaxLengthField int // Max number of bytes in a single parsed field.
	MaxLengthTotal int // Max number of bytes read from the body in total.
}

// DefaultLengthLimits are used when the composition root does not override them.
var DefaultLengthLimits = LengthLimits{
	MaxLengthField: 1024 * 20,
	MaxLengthTotal: 1024 * 1024 * 10,
}

// ErrFieldBytesLimitExceeded is returned when the field length limit was exceeded.
var ErrFieldBytesLimitExceeded = errors.New("field length limit exceeded")

// ErrTotalBytesLimitExceeded is returned when the total request length limit was exceeded.
var ErrTotalBytesLimitExceeded = errors.New("total request length limit exceeded")
