package parser

import (
	"fmt"
	"io"
	"mime"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-message/mail"
)

// textMessage is the parsed shape of an RFC-822 source: a header map plus
// the leaf parts of its MIME tree in reading order. Single-part messages
// have exactly one entry.
type textMessage struct {
	headers   map[string]string // canonical keys
	multipart bool
	parts     []part
}

func (tm *textMessage) header(name string) string {
	return tm.headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// parseText builds the canonical record from an RFC-822 text file.
func parseText(path string, size int64) (*Email, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tm, err := readTextMessage(f, false)
	if err != nil {
		return nil, err
	}

	plain, html := extractBodies(tm.parts, tm.multipart)
	if html != "" {
		if cids := contentIDMapFromParts(tm.parts); len(cids) > 0 {
			html = inlineReferences(html, cids)
		}
	}

	return &Email{
		Filename:    filepath.Base(path),
		Subject:     orDefault(decodeHeader(tm.header("Subject")), defaultSubject),
		Sender:      resolveSender("", "", tm.header("From")),
		Recipients:  splitAddresses(decodeHeader(tm.header("To")), ","),
		CC:          splitAddresses(decodeHeader(tm.header("Cc")), ","),
		BCC:         splitAddresses(decodeHeader(tm.header("Bcc")), ","),
		Date:        parseDate(tm.header("Date")),
		Body:        plain,
		HTMLBody:    html,
		Attachments: attachmentsFromParts(tm.parts),
		Headers:     tm.headers,
		MessageID:   strings.TrimSpace(tm.header("Message-Id")),
		Size:        size,
	}, nil
}

// parseTextSummary is the cheap projection of parseText: headers are
// decoded but part payloads are discarded unread where possible.
func parseTextSummary(path string, size int64) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tm, err := readTextMessage(f, true)
	if err != nil {
		return nil, err
	}

	// Every part declared as an attachment counts, named or not; the
	// metadata listing is stricter and skips unnamed ones.
	count := 0
	for i := range tm.parts {
		if tm.parts[i].disposition == "attachment" {
			count++
		}
	}

	return &Summary{
		Filename:        filepath.Base(path),
		Subject:         orDefault(decodeHeader(tm.header("Subject")), defaultSubject),
		Sender:          resolveSender("", "", tm.header("From")),
		Recipients:      splitAddresses(decodeHeader(tm.header("To")), ","),
		Date:            parseDate(tm.header("Date")),
		Size:            size,
		HasAttachments:  count > 0,
		AttachmentCount: count,
	}, nil
}

// extractTextAttachment returns the payload of the named attachment part.
func extractTextAttachment(path, name string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tm, err := readTextMessage(f, false)
	if err != nil {
		return nil, err
	}

	for i := range tm.parts {
		p := &tm.parts[i]
		if p.disposition == "attachment" && p.filename == name {
			return p.data, nil
		}
	}
	return nil, ErrAttachmentNotFound
}

// readTextMessage parses headers and walks the MIME tree with go-message,
// whose reader descends nested containers, transfer-decodes payloads and
// converts registered charsets on text parts. Payloads in a charset the
// registry does not know arrive as raw bytes for the content decode chain.
// skipData discards payload bytes after counting them, for callers that
// only need structure.
func readTextMessage(r io.Reader, skipData bool) (*textMessage, error) {
	mr, err := mail.CreateReader(r)
	if mr == nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}

	tm := &textMessage{headers: make(map[string]string)}
	fields := mr.Header.Fields()
	for fields.Next() {
		tm.headers[textproto.CanonicalMIMEHeaderKey(fields.Key())] = fields.Value()
	}

	mediaType, _ := parseMediaType(tm.header("Content-Type"))
	tm.multipart = strings.HasPrefix(mediaType, "multipart/")

	// Malformed trailing content ends the walk with what was read so far;
	// a permissive reader beats a strict one here.
	for {
		p, err := mr.NextPart()
		if p == nil || err == io.EOF {
			break
		}
		tm.parts = append(tm.parts, buildLeaf(p, skipData))
	}
	return tm, nil
}

// buildLeaf reads one leaf part handed over by the mail reader. The
// disposition and filename come from the part's own headers rather than
// the reader's inline/attachment split, which reclassifies typeless
// non-text parts.
func buildLeaf(p *mail.Part, skipData bool) part {
	leaf := part{contentID: strings.TrimSpace(p.Header.Get("Content-Id"))}

	if ct := p.Header.Get("Content-Type"); ct != "" {
		leaf.mediaType, leaf.params = parseMediaType(ct)
	}
	if disp := p.Header.Get("Content-Disposition"); disp != "" {
		token, dparams := parseMediaType(disp)
		leaf.disposition = token
		if fn := dparams["filename"]; fn != "" {
			leaf.filename = decodeHeader(fn)
		}
	}
	if leaf.filename == "" {
		if name := leaf.params["name"]; name != "" {
			leaf.filename = decodeHeader(name)
		}
	}

	if skipData {
		leaf.size, _ = io.Copy(io.Discard, p.Body)
		return leaf
	}

	// A decode error mid-stream keeps whatever bytes came through.
	raw, _ := io.ReadAll(p.Body)
	leaf.data = raw
	leaf.size = int64(len(raw))
	return leaf
}

// parseMediaType is a tolerant mime.ParseMediaType: on malformed input it
// falls back to the bare token before any parameters, and on empty input
// it reports no type at all.
func parseMediaType(value string) (string, map[string]string) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	mediaType, params, err := mime.ParseMediaType(value)
	if err != nil {
		token := strings.ToLower(strings.TrimSpace(strings.SplitN(value, ";", 2)[0]))
		return token, nil
	}
	return mediaType, params
}

// attachmentsFromParts lists metadata for parts explicitly marked as
// attachments. Unnamed attachment parts are counted but not listed.
func attachmentsFromParts(parts []part) []AttachmentMeta {
	var metas []AttachmentMeta
	for i := range parts {
		p := &parts[i]
		if p.disposition != "attachment" || p.filename == "" {
			continue
		}
		metas = append(metas, AttachmentMeta{
			Filename:    p.filename,
			Size:        p.size,
			ContentType: resolveContentType(p.mediaType, p.filename),
			ContentID:   normalizeContentID(p.contentID),
		})
	}
	return metas
}

// contentIDMapFromParts collects data URIs for every part that carries a
// Content-ID, attachment or inline alike.
func contentIDMapFromParts(parts []part) ContentIDMap {
	m := make(ContentIDMap)
	for i := range parts {
		p := &parts[i]
		if p.contentID == "" {
			continue
		}
		m.add(p.contentID, p.mediaType, p.filename, p.data)
	}
	return m
}

// splitAddresses splits a delimiter-joined address header into trimmed,
// non-empty entries.
func splitAddresses(joined, sep string) []string {
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	var out []string
	for _, addr := range strings.Split(joined, sep) {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
