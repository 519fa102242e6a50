package bodyparsing

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/casbin/caswaf/waf"
)

// NewRequestBodyParser creates a RequestBodyParser.
func NewRequestBodyParser(lengthLimits waf.LengthLimits) waf.RequestBodyParser {
	return &reqBodyParserImpl{
		lengthLimits: lengthLimits,
	}
}

type reqBodyParserImpl struct {
	lengthLimits waf.LengthLimits
}

func (r *reqBodyParserImpl) LengthLimits() waf.LengthLimits {
	return r.lengthLimits
}

func (r *reqBodyParserImpl) Parse(logger zerolog.Logger, req waf.RequestBodyParserHTTPRequest, cb waf.ParsedBodyFieldCb) (err error) {
	contentType := contentTypeFromHeaders(req)

	// ModSec only looks at the Content-Type field, not the actual content.
	mediatype, _, _ := mime.ParseMediaType(contentType)

	switch {
	case mediatype == "application/x-www-form-urlencoded":
		return r.ParseAs(logger, req, waf.URLEncodedContent, cb)
	case mediatype == "text/xml", strings.HasSuffix(mediatype, "+xml"), strings.HasPrefix(mediatype, "application/xml"):
		return r.ParseAs(logger, req, waf.XMLContent, cb)
	case mediatype == "application/json":
		return r.ParseAs(logger, req, waf.JSONContent, cb)
	default:
		// Unsupported type of body. Not scanning.
		return nil
	}
}

func (r *reqBodyParserImpl) ParseAs(logger zerolog.Logger, req waf.RequestBodyParserHTTPRequest, contentType waf.ContentType, cb waf.ParsedBodyFieldCb) (err error) {
	bodyReader := req.BodyReader()
	if bodyReader == nil {
		return nil
	}

	bodyReaderWithMax := newMaxLengthReaderDecorator(bodyReader, r.lengthLimits)

	switch contentType {
	case waf.URLEncodedContent:
		err = r.scanURLEncodedBody(bodyReaderWithMax, cb)
	case waf.XMLContent:
		err = r.scanXMLBody(bodyReaderWithMax, cb)
	case waf.JSONContent:
		err = r.scanJSONBody(bodyReaderWithMax, cb)
	default:
		err = fmt.Errorf("unsupported body processor: %v", contentType)
		return
	}

	if err != nil {
		// Decoders may wrap the reader's error, so check the reader itself too.
		if isLengthLimitErr(bodyReaderWithMax.LastErr) {
			err = bodyReaderWithMax.LastErr
			return
		}
		if !isLengthLimitErr(err) {
			err = fmt.Errorf("body scanning error: %v", err)
		}
	}

	return
}

func (r *reqBodyParserImpl) scanURLEncodedBody(bodyReader *maxLengthReaderDecorator, cb waf.ParsedBodyFieldCb) (err error) {
	dec := newURLDecoder(bodyReader)
	for {
		bodyReader.ResetFieldReadCount()
		var key, value string
		key, value, err = dec.next()
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			return
		}

		if err = cb(waf.URLEncodedContent, key, value); err != nil {
			return
		}
	}
}

func (r *reqBodyParserImpl) scanJSONBody(bodyReader *maxLengthReaderDecorator, cb waf.ParsedBodyFieldCb) (err error) {
	dec := json.NewDecoder(bodyReader)
	for {
		bodyReader.ResetFieldReadCount()
		var token json.Token
		token, err = dec.Token()
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			return
		}

		switch v := token.(type) {
		case string:
			if err = cb(waf.JSONContent, "", v); err != nil {
				return
			}
		}
	}
}

func (r *reqBodyParserImpl) scanXMLBody(bodyReader *maxLengthReaderDecorator, cb waf.ParsedBodyFieldCb) (err error) {
	dec := xml.NewDecoder(bodyReader)
	for {
		bodyReader.ResetFieldReadCount()
		var token xml.Token
		token, err = dec.Token()
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			return
		}

		switch v := token.(type) {
		case xml.CharData:
			if err = cb(waf.XMLContent, "", string(v)); err != nil {
				return
			}
		}
	}
}

func contentTypeFromHeaders(req waf.RequestBodyParserHTTPRequest) string {
	for _, h := range req.Headers() {
		if strings.EqualFold("content-type", h.Key()) {
			return h.Value()
		}
	}
	return ""
}

func isLengthLimitErr(err error) bool {
	return err == waf.ErrFieldBytesLimitExceeded || err == waf.ErrTotalBytesLimitExceeded
}
