package parser

import (
	"bytes"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"
)

// decodeHeader decodes a header value that may interleave RFC 2047
// encoded-words (=?charset?Q|B?...?=) with plain text. Each word is decoded
// with its declared charset; spans that fail run through the header
// fallback chain instead. Never fails: malformed input comes back as
// best-effort text, empty input as "".
func decodeHeader(raw string) string {
	if raw == "" {
		return ""
	}
	dec := mime.WordDecoder{CharsetReader: headerCharsetReader}
	decoded, err := dec.DecodeHeader(raw)
	if err != nil {
		// Broken encoded-word syntax. The raw value is still text.
		return strings.TrimSpace(runChain([]byte(raw), headerChain))
	}
	return strings.TrimSpace(decoded)
}

// headerCharsetReader resolves a declared charset for the word decoder. It
// consults the go-message registry first, then the IANA index, and finally
// degrades to the header fallback chain, so it never reports an error for
// an unknown or lying charset declaration.
func headerCharsetReader(name string, input io.Reader) (io.Reader, error) {
	raw, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}
	if r, cerr := charset.Reader(name, bytes.NewReader(raw)); cerr == nil {
		if decoded, derr := io.ReadAll(r); derr == nil && utf8.Valid(decoded) {
			return bytes.NewReader(decoded), nil
		}
	}
	if enc, ierr := ianaindex.IANA.Encoding(name); ierr == nil && enc != nil {
		if decoded, derr := enc.NewDecoder().Bytes(raw); derr == nil && utf8.Valid(decoded) {
			return bytes.NewReader(decoded), nil
		}
	}
	logger.Debug("unknown header charset", zap.String("charset", name))
	return strings.NewReader(runChain(raw, headerChain)), nil
}

// Layouts seen in the wild that net/mail does not accept.
var dateLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 -0700",
	"2006-01-02 15:04:05 -0700",
	time.RFC3339,
}

// parseDate parses a Date header value. Missing or unparsable dates yield
// nil, never an error.
func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if t, err := mail.ParseDate(value); err == nil {
		return &t
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	logger.Debug("unparsable date header", zap.String("value", value))
	return nil
}
