package bodyparsing

import (
	"io"
	"net/url"
	"strings"
)

func newURLDecoder(r io.Reader) *urlDecoder {
	return &urlDecoder{r: r}
}

// urlDecoder emits the key-value pairs of an application/x-www-form-urlencoded
// body one at a time.
type urlDecoder struct {
	r      io.Reader
	pairs  []string
	pos    int
	loaded bool
}

func (d *urlDecoder) next() (key string, val string, err error) {
	if !d.loaded {
		var bb []byte
		bb, err = io.ReadAll(d.r)
		if err != nil {
			return
		}
		if len(bb) > 0 {
			d.pairs = strings.Split(string(bb), "&")
		}
		d.loaded = true
	}

	for d.pos < len(d.pairs) {
		pair := d.pairs[d.pos]
		d.pos++
		if pair == "" {
			continue
		}

		key = pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key, val = pair[:i], pair[i+1:]
		}

		// Percent-decoding failures keep the raw value, they are a detection
		// signal themselves.
		if k, kerr := url.QueryUnescape(key); kerr == nil {
			key = k
		}
		if v, verr := url.QueryUnescape(val); verr == nil {
			val = v
		}

		return
	}

	err = io.EOF
	return
}
