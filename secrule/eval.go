package secrule

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/casbin/caswaf/waf"
)

// Result is the outcome of evaluating one WAF rule's directive sequence
// against a request.
type Result struct {
	Matched    bool
	Action     string
	StatusCode int
	Msg        string
	ShouldLog  bool
}

// Evaluate runs the directives in stored order against the request. A
// satisfied deny directive halts evaluation with a match; a satisfied pass
// directive may set evaluation state (body processor) and continues;
// unsatisfied directives fall through with no effect.
func Evaluate(logger zerolog.Logger, directives []*Directive, req waf.HTTPRequest, bodyParser waf.RequestBodyParser) (res Result, err error) {
	e := &evaluation{
		logger:     logger,
		req:        req,
		bodyParser: bodyParser,
	}

	for _, d := range directives {
		matched := e.matches(d)
		if !matched {
			continue
		}

		if d.Actions.BodyProcessor != "" {
			e.bodyProcessor = d.Actions.BodyProcessor
		}

		if d.Actions.Deny {
			res = Result{
				Matched:    true,
				Action:     waf.ActionBlock,
				StatusCode: d.Actions.Status,
				Msg:        d.Actions.Msg,
				ShouldLog:  !d.Actions.NoLog,
			}
			return
		}
	}

	return
}

// evaluation is the per-request state threaded through one directive sequence.
type evaluation struct {
	logger        zerolog.Logger
	req           waf.HTTPRequest
	bodyParser    waf.RequestBodyParser
	bodyProcessor string
	bodyFields    int
	bodyParsed    bool
}

func (e *evaluation) matches(d *Directive) bool {
	for _, t := range d.Targets {
		if t.IsCount {
			count, present := e.countTarget(t)
			if present && opEqMatches(d, count) {
				return true
			}
			continue
		}

		for _, v := range e.targetValues(t) {
			if e.valueMatches(d, v) {
				return true
			}
		}
	}
	return false
}

func opEqMatches(d *Directive, count int) bool {
	switch d.Operator {
	case OpEq:
		return count == d.OpArgNum
	case OpRx:
		return d.OpRegex.MatchString(strconv.Itoa(count))
	}
	return false
}

func (e *evaluation) valueMatches(d *Directive, v string) bool {
	v = applyTransformations(v, d.Transformations)

	switch d.Operator {
	case OpRx:
		return d.OpRegex.MatchString(v)
	case OpEq:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return false
		}
		return n == d.OpArgNum
	}
	return false
}

func (e *evaluation) targetValues(t Target) (values []string) {
	switch t.Name {
	case "REQUEST_HEADERS":
		for _, h := range e.req.Headers() {
			if t.Selector == "" || strings.EqualFold(h.Key(), t.Selector) {
				values = append(values, h.Value())
			}
		}
	case "REQUEST_METHOD":
		values = append(values, e.req.Method())
	case "REQUEST_URI":
		values = append(values, e.req.URI())
	}
	return
}

// countTarget returns the count for a &TARGET form, plus whether the target
// is present at all. Body assertions on requests that never engaged a body
// processor (no ctl action fired, e.g. a bodyless GET) are absent rather than
// zero, so the stock deny-unparsable-body directive does not fire on them.
func (e *evaluation) countTarget(t Target) (count int, present bool) {
	switch t.Name {
	case "REQUEST_BODY":
		if e.bodyProcessor == "" {
			return 0, false
		}
		return e.parsedBodyFieldCount(), true
	case "REQUEST_HEADERS":
		return len(e.targetValues(t)), true
	}
	return 0, false
}

// parsedBodyFieldCount parses the request body at most once, using the body
// processor a prior ctl action selected. A body that fails to parse counts as
// zero fields, which is what the stock deny-unparsable-body directive keys on.
func (e *evaluation) parsedBodyFieldCount() int {
	if e.bodyParsed {
		return e.bodyFields
	}
	e.bodyParsed = true

	countCb := func(contentType waf.ContentType, fieldName string, data string) error {
		e.bodyFields++
		return nil
	}

	var err error
	switch e.bodyProcessor {
	case "XML":
		err = e.bodyParser.ParseAs(e.logger, e.req, waf.XMLContent, countCb)
	case "JSON":
		err = e.bodyParser.ParseAs(e.logger, e.req, waf.JSONContent, countCb)
	default:
		e.logger.Warn().Str("processor", e.bodyProcessor).Msg("Unsupported body processor requested by ctl action")
		err = e.bodyParser.Parse(e.logger, e.req, countCb)
	}

	if err != nil {
		e.logger.Debug().Err(err).Msg("Request body failed to parse")
		e.bodyFields = 0
	}

	return e.bodyFields
}

func applyTransformations(s string, transformations []string) string {
	for _, t := range transformations {
		switch t {
		case "lowercase":
			s = strings.ToLower(s)
		case "trim":
			s = strings.TrimSpace(s)
		case "none":
			// No effect; present in most real-world action lists.
		}
	}
	return s
}
