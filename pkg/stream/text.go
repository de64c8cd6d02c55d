package stream

import (
	"errors"
	"mime"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TextDecoder turns raw body chunks into text. A multi-byte sequence split
// across two chunks is held back until the rest arrives, and invalid bytes
// become U+FFFD.
type TextDecoder struct {
	t     transform.Transformer
	carry []byte
	dst   []byte
}

// NewTextDecoder returns a TextDecoder for enc. A nil enc means UTF-8.
func NewTextDecoder(enc encoding.Encoding) *TextDecoder {
	if enc == nil {
		enc = unicode.UTF8
	}
	return &TextDecoder{
		t:   enc.NewDecoder(),
		dst: make([]byte, 4096),
	}
}

// Decode converts p, prefixed by any bytes held back from the previous call.
// Pass atEOF once the producer is exhausted so trailing bytes are flushed.
func (d *TextDecoder) Decode(p []byte, atEOF bool) (string, error) {
	src := p
	if len(d.carry) > 0 {
		src = append(d.carry, p...)
		d.carry = nil
	}

	var sb strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.dst, src, atEOF)
		sb.Write(d.dst[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
			return sb.String(), nil
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				d.dst = make([]byte, 2*len(d.dst))
			}
		case errors.Is(err, transform.ErrShortSrc):
			d.carry = append([]byte(nil), src...)
			return sb.String(), nil
		default:
			return sb.String(), err
		}
	}
}

// EncodingFromContentType resolves the charset parameter of a Content-Type
// header. It falls back to UTF-8 when the header has no charset or names one
// that is not known.
func EncodingFromContentType(contentType string) encoding.Encoding {
	if contentType == "" {
		return unicode.UTF8
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return unicode.UTF8
	}

	charset := params["charset"]
	if charset == "" {
		return unicode.UTF8
	}

	enc, err := htmlindex.Get(charset)
	if err != nil || enc == nil {
		return unicode.UTF8
	}
	return enc
}
