package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// decodeStrategy is one step of an ordered charset fallback chain. A chain
// always ends in a lossy strategy that cannot fail, so decoding text never
// errors outright.
type decodeStrategy struct {
	name   string
	decode func([]byte) (string, bool)
}

var (
	utf8Strict = decodeStrategy{"utf-8", func(b []byte) (string, bool) {
		if !utf8.Valid(b) {
			return "", false
		}
		return string(b), true
	}}
	latin1 = decodeStrategy{"iso-8859-1", func(b []byte) (string, bool) {
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
		if err != nil {
			return "", false
		}
		return string(out), true
	}}
	windows1252 = decodeStrategy{"windows-1252", func(b []byte) (string, bool) {
		out, err := charmap.Windows1252.NewDecoder().Bytes(b)
		if err != nil {
			return "", false
		}
		return string(out), true
	}}
	utf8Lossy = decodeStrategy{"utf-8-lossy", func(b []byte) (string, bool) {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError)), true
	}}
)

// contentChain decodes body payloads, headerChain decodes header byte
// spans. Both terminate in the lossy strategy.
var (
	contentChain = []decodeStrategy{utf8Strict, latin1, utf8Lossy}
	headerChain  = []decodeStrategy{utf8Strict, latin1, windows1252, utf8Lossy}
)

// runChain tries each strategy in order and returns the first success. The
// terminal strategy always succeeds. Falling past the first strategy is a
// degradation, logged at debug level.
func runChain(b []byte, chain []decodeStrategy) string {
	for i, strategy := range chain {
		if out, ok := strategy.decode(b); ok {
			if i > 0 {
				logger.Debug("charset fallback used",
					zap.String("strategy", strategy.name))
			}
			return out
		}
	}
	// Unreachable as long as chains end in utf8Lossy.
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

// decodeContent decodes a body payload given its declared transfer
// encoding. Quoted-printable payloads are unescaped before charset
// decoding; everything else goes straight through the charset chain.
// A cleanup pass then removes soft line breaks and literal escape
// sequences that an earlier decoding layer left behind.
func decodeContent(payload []byte, transferEncoding string) string {
	if len(payload) == 0 {
		return ""
	}
	if strings.EqualFold(strings.TrimSpace(transferEncoding), "quoted-printable") {
		payload = unescapeQuotedPrintable(payload)
	}
	return cleanEncodedArtifacts(runChain(payload, contentChain))
}

// unescapeQuotedPrintable resolves =XX escapes and soft line breaks. Unlike
// mime/quotedprintable it never fails: malformed escapes pass through as
// literal bytes, which the cleanup pass may still catch.
func unescapeQuotedPrintable(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '=' {
			out = append(out, b[i])
			continue
		}
		// Soft line break: "=\r\n" or "=\n" disappears.
		if i+1 < len(b) && b[i+1] == '\n' {
			i++
			continue
		}
		if i+2 < len(b) && b[i+1] == '\r' && b[i+2] == '\n' {
			i += 2
			continue
		}
		if i+2 < len(b) {
			if hi, ok1 := unhex(b[i+1]); ok1 {
				if lo, ok2 := unhex(b[i+2]); ok2 {
					out = append(out, hi<<4|lo)
					i += 2
					continue
				}
			}
		}
		out = append(out, b[i])
	}
	return out
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

var softLineBreaks = regexp.MustCompile(`=\r?\n`)

// cleanEncodedArtifacts removes quoted-printable leftovers that survive in
// text which was only partially decoded upstream: soft line breaks glued to
// the next line, and the most common literal escapes.
func cleanEncodedArtifacts(s string) string {
	s = softLineBreaks.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "=3D", "=")
	s = strings.ReplaceAll(s, "=20", " ")
	s = strings.ReplaceAll(s, "=0D=0A", "\n")
	return s
}
