// Package msgfile reads Outlook .msg compound-container files and exposes
// the typed message object (subject, addresses, bodies, attachments, raw
// transport headers) that the parsing engine consumes. Byte-level container
// access is delegated to github.com/richardlehane/mscfb; this package only
// maps property streams onto message fields.
package msgfile

import (
	"errors"
	"io"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/unicode"
)

// Message is a demultiplexed Outlook message. String fields are decoded to
// UTF-8; To/Cc/Bcc are the display strings as stored (semicolon-delimited).
type Message struct {
	Subject     string
	SenderName  string
	SenderEmail string
	To          string
	Cc          string
	Bcc         string
	Body        string
	HTMLBody    []byte // raw bytes, charset decoding is the caller's concern
	MessageID   string
	RawHeaders  string
	Headers     map[string]string
	Attachments []Attachment
	Recipients  []Recipient

	DeliveryTime *time.Time
	SubmitTime   *time.Time
	CreationTime *time.Time
}

// Attachment is a single attachment storage. Data is nil when the message
// was read with SkipAttachmentData or when the attachment embeds another
// message rather than a plain payload.
type Attachment struct {
	LongFilename  string
	ShortFilename string
	MimeTag       string
	ContentID     string
	Method        int32
	Size          int64
	Data          []byte
}

// Filename returns the long filename when present, the short one otherwise.
func (a *Attachment) Filename() string {
	if a.LongFilename != "" {
		return a.LongFilename
	}
	return a.ShortFilename
}

// Recipient is a single recipient storage entry.
type Recipient struct {
	DisplayName string
	Email       string
	SMTPAddress string
	Type        int32
}

// Address returns the most specific address available for the recipient.
func (r *Recipient) Address() string {
	if r.SMTPAddress != "" {
		return r.SMTPAddress
	}
	if r.Email != "" {
		return r.Email
	}
	return r.DisplayName
}

// Options controls how much of the container is read.
type Options struct {
	// SkipAttachmentData records attachment names, types and sizes but does
	// not read payload bytes. Used by the summary path.
	SkipAttachmentData bool
}

const (
	substgPrefix    = "__substg1.0_"
	attachPrefix    = "__attach_version1.0_#"
	recipPrefix     = "__recip_version1.0_#"
	propStreamName  = "__properties_version1.0"
	rootPropsOffset = 32
	subPropsOffset  = 8
)

// Read demultiplexes a compound container into a Message. Any structural
// error (not a compound file, missing streams) is returned to the caller,
// which treats it as a signal to try another format.
func Read(ra io.ReaderAt, opt Options) (*Message, error) {
	doc, err := mscfb.New(ra)
	if err != nil {
		return nil, err
	}

	m := &Message{Headers: map[string]string{}}
	attachments := map[int]*Attachment{}
	recipients := map[int]*Recipient{}

	attachmentAt := func(idx int) *Attachment {
		if a, ok := attachments[idx]; ok {
			return a
		}
		a := &Attachment{}
		attachments[idx] = a
		return a
	}
	recipientAt := func(idx int) *Recipient {
		if r, ok := recipients[idx]; ok {
			return r
		}
		r := &Recipient{}
		recipients[idx] = r
		return r
	}

	sawMessageStream := false
	for {
		entry, err := doc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch {
		case len(entry.Path) == 0:
			if entry.Name == propStreamName {
				data, err := readStream(entry, entry.Size)
				if err == nil {
					m.applyFixedProperties(fixedProperties(data, rootPropsOffset))
				}
				sawMessageStream = true
				continue
			}
			prop, typ, ok := parseSubstgName(entry.Name)
			if !ok {
				continue
			}
			sawMessageStream = true
			data, err := readStream(entry, entry.Size)
			if err != nil {
				continue
			}
			m.applyProperty(prop, typ, data)

		case len(entry.Path) == 1 && strings.HasPrefix(entry.Path[0], attachPrefix):
			idx, ok := storageIndex(entry.Path[0], attachPrefix)
			if !ok {
				continue
			}
			att := attachmentAt(idx)
			if entry.Name == propStreamName {
				data, err := readStream(entry, entry.Size)
				if err == nil {
					att.applyFixedProperties(fixedProperties(data, subPropsOffset))
				}
				continue
			}
			prop, typ, ok := parseSubstgName(entry.Name)
			if !ok {
				continue
			}
			if prop == MAPIAttachDataObj {
				if typ != ptBinary {
					continue // embedded message, not a plain payload
				}
				att.Size = entry.Size
				if opt.SkipAttachmentData {
					continue
				}
				data, err := readStream(entry, entry.Size)
				if err != nil {
					continue
				}
				att.Data = data
				att.Size = int64(len(data))
				continue
			}
			data, err := readStream(entry, entry.Size)
			if err != nil {
				continue
			}
			att.applyProperty(prop, typ, data)

		case len(entry.Path) == 1 && strings.HasPrefix(entry.Path[0], recipPrefix):
			idx, ok := storageIndex(entry.Path[0], recipPrefix)
			if !ok {
				continue
			}
			rcp := recipientAt(idx)
			if entry.Name == propStreamName {
				data, err := readStream(entry, entry.Size)
				if err == nil {
					rcp.applyFixedProperties(fixedProperties(data, subPropsOffset))
				}
				continue
			}
			prop, typ, ok := parseSubstgName(entry.Name)
			if !ok {
				continue
			}
			data, err := readStream(entry, entry.Size)
			if err != nil {
				continue
			}
			rcp.applyProperty(prop, typ, data)
		}
	}

	if !sawMessageStream {
		return nil, errors.New("msgfile: container holds no message property streams")
	}

	m.Attachments = orderedAttachments(attachments)
	m.Recipients = orderedRecipients(recipients)
	m.fillRecipientFallbacks()

	if m.RawHeaders != "" {
		m.Headers = parseHeaderBlock(m.RawHeaders)
	}

	return m, nil
}

// applyProperty assigns a variable-length message property.
func (m *Message) applyProperty(prop, typ uint16, data []byte) {
	switch prop {
	case MAPISubject:
		m.Subject = asText(data, typ)
	case MAPISenderName:
		m.SenderName = asText(data, typ)
	case MAPISenderEmail:
		if m.SenderEmail == "" {
			m.SenderEmail = asText(data, typ)
		}
	case MAPISenderSMTP:
		m.SenderEmail = asText(data, typ)
	case MAPIDisplayTo:
		m.To = asText(data, typ)
	case MAPIDisplayCc:
		m.Cc = asText(data, typ)
	case MAPIDisplayBcc:
		m.Bcc = asText(data, typ)
	case MAPIBody:
		m.Body = asText(data, typ)
	case MAPIBodyHTML:
		if typ == ptBinary {
			m.HTMLBody = data
		} else {
			m.HTMLBody = []byte(asText(data, typ))
		}
	case MAPIMessageID:
		m.MessageID = asText(data, typ)
	case MAPIHeaders:
		m.RawHeaders = asText(data, typ)
	}
}

func (m *Message) applyFixedProperties(props map[uint32][]byte) {
	if v, ok := props[tag(MAPIDeliveryTime, ptSystime)]; ok {
		m.DeliveryTime = filetimeToTime(v)
	}
	if v, ok := props[tag(MAPISubmitTime, ptSystime)]; ok {
		m.SubmitTime = filetimeToTime(v)
	}
	if v, ok := props[tag(MAPICreationTime, ptSystime)]; ok {
		m.CreationTime = filetimeToTime(v)
	}
}

func (a *Attachment) applyProperty(prop, typ uint16, data []byte) {
	switch prop {
	case MAPIAttachFilename:
		a.ShortFilename = asText(data, typ)
	case MAPIAttachLongFname:
		a.LongFilename = asText(data, typ)
	case MAPIAttachMimeTag:
		a.MimeTag = asText(data, typ)
	case MAPIAttachContentID:
		a.ContentID = asText(data, typ)
	}
}

func (a *Attachment) applyFixedProperties(props map[uint32][]byte) {
	if v, ok := props[tag(MAPIAttachMethod, ptLong)]; ok && len(v) >= 4 {
		a.Method = int32(leUint32(v))
	}
}

func (r *Recipient) applyProperty(prop, typ uint16, data []byte) {
	switch prop {
	case MAPIRecipDisplayName:
		r.DisplayName = asText(data, typ)
	case MAPIRecipEmail:
		r.Email = asText(data, typ)
	case MAPIRecipSMTP:
		r.SMTPAddress = asText(data, typ)
	}
}

func (r *Recipient) applyFixedProperties(props map[uint32][]byte) {
	if v, ok := props[tag(MAPIRecipType, ptLong)]; ok && len(v) >= 4 {
		r.Type = int32(leUint32(v))
	}
}

// fillRecipientFallbacks derives the To/Cc/Bcc display strings from the
// recipient storages when the display properties are absent.
func (m *Message) fillRecipientFallbacks() {
	if m.To == "" {
		m.To = joinRecipients(m.Recipients, recipTo)
	}
	if m.Cc == "" {
		m.Cc = joinRecipients(m.Recipients, recipCc)
	}
	if m.Bcc == "" {
		m.Bcc = joinRecipients(m.Recipients, recipBcc)
	}
}

func joinRecipients(recipients []Recipient, typ int32) string {
	var parts []string
	for i := range recipients {
		if recipients[i].Type == typ {
			if addr := recipients[i].Address(); addr != "" {
				parts = append(parts, addr)
			}
		}
	}
	return strings.Join(parts, "; ")
}

func orderedAttachments(byIndex map[int]*Attachment) []Attachment {
	keys := make([]int, 0, len(byIndex))
	for k := range byIndex {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]Attachment, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byIndex[k])
	}
	return out
}

func orderedRecipients(byIndex map[int]*Recipient) []Recipient {
	keys := make([]int, 0, len(byIndex))
	for k := range byIndex {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]Recipient, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byIndex[k])
	}
	return out
}

// parseSubstgName extracts the property id and type from a property stream
// name such as "__substg1.0_0037001F".
func parseSubstgName(name string) (prop, typ uint16, ok bool) {
	if !strings.HasPrefix(name, substgPrefix) {
		return 0, 0, false
	}
	hexPart := name[len(substgPrefix):]
	if len(hexPart) < 8 {
		return 0, 0, false
	}
	v, err := strconv.ParseUint(hexPart[:8], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return uint16(v >> 16), uint16(v & 0xFFFF), true
}

// storageIndex extracts the hex index from storage names such as
// "__attach_version1.0_#00000000".
func storageIndex(name, prefix string) (int, bool) {
	v, err := strconv.ParseUint(strings.TrimPrefix(name, prefix), 16, 32)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

func readStream(r io.Reader, size int64) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// asText converts a property payload to a string according to its type:
// 0x001F is UTF-16LE, 0x001E is an 8-bit string, anything else is taken as
// raw bytes. Trailing NULs are stripped in all cases.
func asText(data []byte, typ uint16) string {
	var s string
	switch typ {
	case ptUnicode:
		s = decodeUTF16(data)
	default:
		s = string(data)
	}
	return strings.TrimRight(s, "\x00")
}

func decodeUTF16(b []byte) string {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(b)
	if err != nil {
		// Odd-length or otherwise broken input: decode what is decodable.
		if len(b)%2 == 1 {
			out, err = dec.Bytes(b[:len(b)-1])
		}
		if err != nil {
			return string(b)
		}
	}
	return string(out)
}

// parseHeaderBlock parses the transport-header blob into a canonical-keyed
// map, folding continuation lines.
func parseHeaderBlock(raw string) map[string]string {
	headers := make(map[string]string)
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	var lastKey string
	for _, line := range lines {
		if line == "" {
			break
		}
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && lastKey != "" {
			headers[lastKey] += " " + strings.TrimSpace(line)
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		canonical := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(key))
		headers[canonical] = strings.TrimSpace(value)
		lastKey = canonical
	}
	return headers
}
