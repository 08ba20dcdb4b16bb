package parser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalda/msgview/internal/msgfile"
)

// TestEmailFromContainer_Fields tests the container to record mapping
func TestEmailFromContainer_Fields(t *testing.T) {
	delivery := time.Date(2024, time.March, 5, 9, 30, 0, 0, time.UTC)
	m := &msgfile.Message{
		Subject:      "Budget Review",
		SenderName:   "Alice Smith",
		SenderEmail:  "alice@example.com",
		To:           "bob@example.com; carol@example.com",
		Cc:           "dave@example.com",
		Body:         "plain body",
		HTMLBody:     []byte("<p>html body</p>"),
		MessageID:    " <msg42@example.com> ",
		DeliveryTime: &delivery,
		Headers:      map[string]string{"X-Mailer": "Outlook"},
	}

	email := emailFromContainer(m, "budget.msg", 2048)

	assert.Equal(t, "budget.msg", email.Filename)
	assert.Equal(t, "Budget Review", email.Subject)
	assert.Equal(t, "Alice Smith <alice@example.com>", email.Sender)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, email.Recipients)
	assert.Equal(t, []string{"dave@example.com"}, email.CC)
	assert.Empty(t, email.BCC)
	assert.Equal(t, "plain body", email.Body)
	assert.Equal(t, "<p>html body</p>", email.HTMLBody)
	assert.Equal(t, "<msg42@example.com>", email.MessageID)
	assert.Equal(t, int64(2048), email.Size)
	assert.Equal(t, "Outlook", email.Headers["X-Mailer"])

	require.NotNil(t, email.Date)
	assert.True(t, email.Date.Equal(delivery))
}

// TestEmailFromContainer_Defaults tests placeholder values for empty containers
func TestEmailFromContainer_Defaults(t *testing.T) {
	email := emailFromContainer(&msgfile.Message{}, "empty.msg", 0)

	assert.Equal(t, "No Subject", email.Subject)
	assert.Equal(t, "Unknown Sender", email.Sender)
	assert.Nil(t, email.Date)
	assert.Empty(t, email.Body)
	assert.Empty(t, email.HTMLBody)
	assert.Empty(t, email.Recipients)
	assert.Empty(t, email.Attachments)
}

// TestEmailFromContainer_InlinesContentIDs tests cid rewriting from attachment data
func TestEmailFromContainer_InlinesContentIDs(t *testing.T) {
	m := &msgfile.Message{
		HTMLBody: []byte(`<img src="cid:pic1"><img src="cid:other">`),
		Attachments: []msgfile.Attachment{
			{
				LongFilename: "pic.png",
				MimeTag:      "image/png",
				ContentID:    "<pic1>",
				Data:         []byte{1, 2, 3},
				Size:         3,
			},
		},
	}

	email := emailFromContainer(m, "inline.msg", 0)

	assert.Contains(t, email.HTMLBody, `src="data:image/png;base64,AQID"`)
	assert.Contains(t, email.HTMLBody, "cid:other", "unmapped references stay verbatim")

	require.Len(t, email.Attachments, 1)
	assert.Equal(t, "pic.png", email.Attachments[0].Filename)
	assert.Equal(t, "image/png", email.Attachments[0].ContentType)
	assert.Equal(t, "pic1", email.Attachments[0].ContentID)
}

// TestEmailFromContainer_DecodesEncodedSubject tests that an encoded-word
// subject carried into the container property is decoded
func TestEmailFromContainer_DecodesEncodedSubject(t *testing.T) {
	m := &msgfile.Message{Subject: "=?UTF-8?Q?caf=C3=A9?="}

	email := emailFromContainer(m, "encoded.msg", 0)
	assert.Equal(t, "café", email.Subject)

	summary := summaryFromContainer(m, "encoded.msg", 0)
	assert.Equal(t, "café", summary.Subject)
}

// TestEmailFromContainer_CleansHTMLArtifacts tests soft-hyphen stripping and
// leftover quoted-printable repair on the container html body
func TestEmailFromContainer_CleansHTMLArtifacts(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "soft hyphen entities stripped",
			html: "<p>hy&shy;phen</p>",
			want: "<p>hyphen</p>",
		},
		{
			name: "partially decoded quoted-printable repaired",
			html: "<p>total =3D 100=20units</p>",
			want: "<p>total = 100 units</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := emailFromContainer(&msgfile.Message{HTMLBody: []byte(tt.html)}, "clean.msg", 0)
			assert.Equal(t, tt.want, email.HTMLBody)
		})
	}
}

// TestEmailFromContainer_PromotesMarkupBody tests promotion when only the
// plain body is present but holds markup
func TestEmailFromContainer_PromotesMarkupBody(t *testing.T) {
	m := &msgfile.Message{Body: "<html><b>styled</b></html>"}

	email := emailFromContainer(m, "styled.msg", 0)

	assert.Equal(t, "<html><b>styled</b></html>", email.Body)
	assert.Equal(t, "<html><b>styled</b></html>", email.HTMLBody)
}

// TestContainerSender tests the display form of the sender fields
func TestContainerSender(t *testing.T) {
	tests := []struct {
		name string
		msg  msgfile.Message
		want string
	}{
		{
			name: "name and address",
			msg:  msgfile.Message{SenderName: "Alice", SenderEmail: "alice@x.com"},
			want: "Alice <alice@x.com>",
		},
		{
			name: "name equals address",
			msg:  msgfile.Message{SenderName: "alice@x.com", SenderEmail: "Alice@X.com"},
			want: "alice@x.com",
		},
		{
			name: "name only",
			msg:  msgfile.Message{SenderName: "Alice"},
			want: "Alice",
		},
		{
			name: "address only",
			msg:  msgfile.Message{SenderEmail: "alice@x.com"},
			want: "",
		},
		{
			name: "neither",
			msg:  msgfile.Message{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, containerSender(&tt.msg))
		})
	}
}

// TestContainerDate tests timestamp precedence
func TestContainerDate(t *testing.T) {
	headerTime := time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)
	delivery := time.Date(2024, time.January, 2, 8, 0, 0, 0, time.UTC)
	submit := time.Date(2024, time.January, 3, 8, 0, 0, 0, time.UTC)
	creation := time.Date(2024, time.January, 4, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		msg  msgfile.Message
		want *time.Time
	}{
		{
			name: "transport date header wins",
			msg: msgfile.Message{
				Headers:      map[string]string{"Date": "Mon, 1 Jan 2024 08:00:00 +0000"},
				DeliveryTime: &delivery,
			},
			want: &headerTime,
		},
		{
			name: "delivery time next",
			msg:  msgfile.Message{DeliveryTime: &delivery, SubmitTime: &submit},
			want: &delivery,
		},
		{
			name: "submit time next",
			msg:  msgfile.Message{SubmitTime: &submit, CreationTime: &creation},
			want: &submit,
		},
		{
			name: "creation time last",
			msg:  msgfile.Message{CreationTime: &creation},
			want: &creation,
		},
		{
			name: "no timestamps",
			msg:  msgfile.Message{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := containerDate(&tt.msg)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, got.Equal(*tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

// TestAttachmentMetasFromContainer tests that unnamed attachments are kept
func TestAttachmentMetasFromContainer(t *testing.T) {
	atts := []msgfile.Attachment{
		{LongFilename: "doc.pdf", MimeTag: "application/pdf", Size: 10},
		{Size: 5}, // no name, no declared type
	}

	metas := attachmentMetasFromContainer(atts)

	require.Len(t, metas, 2)
	assert.Equal(t, "doc.pdf", metas[0].Filename)
	assert.Equal(t, "application/pdf", metas[0].ContentType)
	assert.Empty(t, metas[1].Filename)
	assert.Equal(t, "application/octet-stream", metas[1].ContentType)
}

// TestParseContainer_RejectsTextFile tests that plain text is not a container
func TestParseContainer_RejectsTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.msg")
	require.NoError(t, os.WriteFile(path, []byte("From: a@b\n\nnot a container\n"), 0644))

	_, err := parseContainer(path, 0)
	assert.Error(t, err)
}
