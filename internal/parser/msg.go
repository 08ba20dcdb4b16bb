package parser

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avalda/msgview/internal/msgfile"
)

// parseContainer builds the canonical record from an Outlook container
// file. Errors are structural (not a compound file, no message streams)
// and signal the dispatcher to try the text path instead.
func parseContainer(path string, size int64) (*Email, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := msgfile.Read(f, msgfile.Options{})
	if err != nil {
		return nil, err
	}
	return emailFromContainer(m, filepath.Base(path), size), nil
}

// parseContainerSummary reads only names, types and sizes for attachments.
func parseContainerSummary(path string, size int64) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := msgfile.Read(f, msgfile.Options{SkipAttachmentData: true})
	if err != nil {
		return nil, err
	}
	return summaryFromContainer(m, filepath.Base(path), size), nil
}

func summaryFromContainer(m *msgfile.Message, filename string, size int64) *Summary {
	return &Summary{
		Filename:        filename,
		Subject:         orDefault(decodeHeader(m.Subject), defaultSubject),
		Sender:          resolveSender(containerSender(m), m.SenderEmail, m.Headers["From"]),
		Recipients:      splitAddresses(m.To, ";"),
		Date:            containerDate(m),
		Size:            size,
		HasAttachments:  len(m.Attachments) > 0,
		AttachmentCount: len(m.Attachments),
	}
}

// extractContainerAttachment returns the payload of the first attachment
// whose resolved filename matches exactly.
func extractContainerAttachment(path, name string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := msgfile.Read(f, msgfile.Options{})
	if err != nil {
		return nil, err
	}
	for i := range m.Attachments {
		if m.Attachments[i].Filename() == name {
			return m.Attachments[i].Data, nil
		}
	}
	return nil, ErrAttachmentNotFound
}

func emailFromContainer(m *msgfile.Message, filename string, size int64) *Email {
	plain := m.Body
	html := cleanHTMLContent(decodeContent(m.HTMLBody, ""))
	if html == "" && plain != "" && looksLikeHTML(plain) {
		html = cleanHTMLContent(plain)
	}
	if html != "" {
		if cids := contentIDMapFromAttachments(m.Attachments); len(cids) > 0 {
			html = inlineReferences(html, cids)
		}
	}

	return &Email{
		Filename:    filename,
		Subject:     orDefault(decodeHeader(m.Subject), defaultSubject),
		Sender:      resolveSender(containerSender(m), m.SenderEmail, m.Headers["From"]),
		Recipients:  splitAddresses(m.To, ";"),
		CC:          splitAddresses(m.Cc, ";"),
		BCC:         splitAddresses(m.Bcc, ";"),
		Date:        containerDate(m),
		Body:        plain,
		HTMLBody:    html,
		Attachments: attachmentMetasFromContainer(m.Attachments),
		Headers:     m.Headers,
		MessageID:   strings.TrimSpace(m.MessageID),
		Size:        size,
	}
}

// containerSender renders the display form of the sender fields, matching
// the "Name <address>" shape the text path sees in From headers.
func containerSender(m *msgfile.Message) string {
	name := strings.TrimSpace(m.SenderName)
	email := strings.TrimSpace(m.SenderEmail)
	switch {
	case name != "" && email != "" && !strings.EqualFold(name, email):
		return name + " <" + email + ">"
	case name != "":
		return name
	default:
		return ""
	}
}

// containerDate prefers the transport Date header, then the container's
// own timestamps.
func containerDate(m *msgfile.Message) *time.Time {
	if t := parseDate(m.Headers["Date"]); t != nil {
		return t
	}
	for _, t := range []*time.Time{m.DeliveryTime, m.SubmitTime, m.CreationTime} {
		if t != nil {
			return t
		}
	}
	return nil
}

func attachmentMetasFromContainer(atts []msgfile.Attachment) []AttachmentMeta {
	var metas []AttachmentMeta
	for i := range atts {
		a := &atts[i]
		name := a.Filename()
		metas = append(metas, AttachmentMeta{
			Filename:    name,
			Size:        a.Size,
			ContentType: resolveContentType(a.MimeTag, name),
			ContentID:   normalizeContentID(a.ContentID),
		})
	}
	return metas
}

func contentIDMapFromAttachments(atts []msgfile.Attachment) ContentIDMap {
	m := make(ContentIDMap)
	for i := range atts {
		a := &atts[i]
		if a.ContentID == "" {
			continue
		}
		m.add(a.ContentID, a.MimeTag, a.Filename(), a.Data)
	}
	return m
}
