package msgfile

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubstgName(t *testing.T) {
	tests := []struct {
		name     string
		stream   string
		wantProp uint16
		wantType uint16
		wantOK   bool
	}{
		{
			name:     "Subject unicode stream",
			stream:   "__substg1.0_0037001F",
			wantProp: MAPISubject,
			wantType: ptUnicode,
			wantOK:   true,
		},
		{
			name:     "Attachment data binary stream",
			stream:   "__substg1.0_37010102",
			wantProp: MAPIAttachDataObj,
			wantType: ptBinary,
			wantOK:   true,
		},
		{
			name:     "Lowercase hex digits",
			stream:   "__substg1.0_370e001e",
			wantProp: MAPIAttachMimeTag,
			wantType: ptString8,
			wantOK:   true,
		},
		{
			name:   "Properties stream is not a property",
			stream: "__properties_version1.0",
			wantOK: false,
		},
		{
			name:   "Truncated hex suffix",
			stream: "__substg1.0_0037",
			wantOK: false,
		},
		{
			name:   "Garbage suffix",
			stream: "__substg1.0_zzzzzzzz",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prop, typ, ok := parseSubstgName(tt.stream)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantProp, prop)
				assert.Equal(t, tt.wantType, typ)
			}
		})
	}
}

func TestStorageIndex(t *testing.T) {
	idx, ok := storageIndex("__attach_version1.0_#00000000", attachPrefix)
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = storageIndex("__attach_version1.0_#0000000A", attachPrefix)
	require.True(t, ok)
	assert.Equal(t, 10, idx)

	_, ok = storageIndex("__attach_version1.0_#nothex", attachPrefix)
	assert.False(t, ok)
}

func TestFixedProperties(t *testing.T) {
	// One 16-byte record behind an 8-byte sub-storage header:
	// PR_ATTACH_METHOD (0x3705, type 0x0003) with value 1.
	data := make([]byte, 8+16)
	binary.LittleEndian.PutUint32(data[8:], tag(MAPIAttachMethod, ptLong))
	binary.LittleEndian.PutUint32(data[16:], 1)

	props := fixedProperties(data, subPropsOffset)
	require.Len(t, props, 1)

	value, ok := props[tag(MAPIAttachMethod, ptLong)]
	require.True(t, ok)
	assert.Equal(t, uint32(1), leUint32(value))
}

func TestFixedPropertiesTruncated(t *testing.T) {
	// A trailing partial record must be ignored, not panic.
	data := make([]byte, 8+16+7)
	binary.LittleEndian.PutUint32(data[8:], tag(MAPIRecipType, ptLong))
	binary.LittleEndian.PutUint32(data[16:], recipCc)

	props := fixedProperties(data, subPropsOffset)
	assert.Len(t, props, 1)
}

func TestFiletimeToTime(t *testing.T) {
	// 2021-01-01T00:00:00Z as FILETIME.
	want := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	ft := uint64(want.UnixNano()/100) + 116444736000000000

	v := make([]byte, 8)
	binary.LittleEndian.PutUint64(v, ft)

	got := filetimeToTime(v)
	require.NotNil(t, got)
	assert.True(t, want.Equal(*got))

	assert.Nil(t, filetimeToTime(make([]byte, 8)), "zero FILETIME has no date")
	assert.Nil(t, filetimeToTime([]byte{1, 2}), "short value has no date")
}

func TestDecodeUTF16(t *testing.T) {
	// "Café" in UTF-16LE with a trailing NUL pair.
	raw := []byte{'C', 0, 'a', 0, 'f', 0, 0xE9, 0, 0, 0}
	assert.Equal(t, "Café", asText(raw, ptUnicode))

	// Odd-length input decodes the even prefix instead of failing.
	odd := []byte{'H', 0, 'i', 0, 'x'}
	assert.Equal(t, "Hi", asText(odd, ptUnicode))
}

func TestAsTextString8(t *testing.T) {
	assert.Equal(t, "hello.txt", asText([]byte("hello.txt\x00"), ptString8))
}

func TestAttachmentFilename(t *testing.T) {
	att := Attachment{LongFilename: "quarterly report.pdf", ShortFilename: "QUARTE~1.PDF"}
	assert.Equal(t, "quarterly report.pdf", att.Filename())

	att = Attachment{ShortFilename: "QUARTE~1.PDF"}
	assert.Equal(t, "QUARTE~1.PDF", att.Filename())

	att = Attachment{}
	assert.Equal(t, "", att.Filename())
}

func TestRecipientFallbacks(t *testing.T) {
	m := &Message{
		Recipients: []Recipient{
			{DisplayName: "Alice", SMTPAddress: "alice@example.com", Type: recipTo},
			{DisplayName: "Bob", Email: "bob@example.com", Type: recipTo},
			{DisplayName: "Carol", Type: recipCc},
		},
	}
	m.fillRecipientFallbacks()

	assert.Equal(t, "alice@example.com; bob@example.com", m.To)
	assert.Equal(t, "Carol", m.Cc)
	assert.Equal(t, "", m.Bcc)
}

func TestRecipientFallbackKeepsDisplayTo(t *testing.T) {
	m := &Message{
		To: "Team <team@example.com>",
		Recipients: []Recipient{
			{SMTPAddress: "alice@example.com", Type: recipTo},
		},
	}
	m.fillRecipientFallbacks()

	assert.Equal(t, "Team <team@example.com>", m.To)
}

func TestParseHeaderBlock(t *testing.T) {
	raw := "Date: Mon, 1 Jan 2024 10:00:00 +0000\r\n" +
		"Subject: Hello\r\n" +
		"X-Folded: first part\r\n" +
		"\tsecond part\r\n" +
		"Received: from a\r\n" +
		"Received: from b\r\n" +
		"\r\n" +
		"Body that must be ignored: yes"

	headers := parseHeaderBlock(raw)

	assert.Equal(t, "Mon, 1 Jan 2024 10:00:00 +0000", headers["Date"])
	assert.Equal(t, "Hello", headers["Subject"])
	assert.Equal(t, "first part second part", headers["X-Folded"])
	assert.Equal(t, "from b", headers["Received"], "later duplicate replaces earlier")
	assert.NotContains(t, headers, "Body that must be ignored")
}

func TestApplyPropertySenderPreference(t *testing.T) {
	m := &Message{Headers: map[string]string{}}

	m.applyProperty(MAPISenderEmail, ptUnicode, utf16le("EXCHANGE/CN=BOX"))
	assert.Equal(t, "EXCHANGE/CN=BOX", m.SenderEmail)

	// The SMTP address wins over the exchange-internal one.
	m.applyProperty(MAPISenderSMTP, ptUnicode, utf16le("box@example.com"))
	assert.Equal(t, "box@example.com", m.SenderEmail)

	// A later plain address must not clobber the SMTP one.
	m.applyProperty(MAPISenderEmail, ptUnicode, utf16le("other"))
	assert.Equal(t, "box@example.com", m.SenderEmail)
}

func utf16le(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}
