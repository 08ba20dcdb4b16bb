// Package export assembles download files from canonical email records:
// a combined JSON document, a readable text report, zip archives of
// per-email files, and a passthrough zip of the original source files.
package export

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avalda/msgview/internal/parser"
)

// Export formats accepted by the download endpoint
const (
	FormatJSON     = "json"
	FormatText     = "text"
	FormatOriginal = "original"
)

// Email is the serialized view of one parsed message
type Email struct {
	Filename    string            `json:"filename"`
	Subject     string            `json:"subject"`
	Sender      string            `json:"sender"`
	Recipients  []string          `json:"recipients"`
	CC          []string          `json:"cc,omitempty"`
	BCC         []string          `json:"bcc,omitempty"`
	Date        *time.Time        `json:"date,omitempty"`
	Body        string            `json:"body,omitempty"`
	HTMLBody    string            `json:"html_body,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Size        int64             `json:"size"`
	MessageID   string            `json:"message_id,omitempty"`
}

// Attachment is the serialized attachment metadata; payloads are never
// embedded in exports.
type Attachment struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// FromParsed converts a canonical record into its export view. With
// includeAttachments false the attachment list is omitted entirely.
func FromParsed(e *parser.Email, includeAttachments bool) *Email {
	out := &Email{
		Filename:   e.Filename,
		Subject:    e.Subject,
		Sender:     e.Sender,
		Recipients: e.Recipients,
		CC:         e.CC,
		BCC:        e.BCC,
		Date:       e.Date,
		Body:       e.Body,
		HTMLBody:   e.HTMLBody,
		Headers:    e.Headers,
		Size:       e.Size,
		MessageID:  e.MessageID,
	}

	if includeAttachments {
		for _, att := range e.Attachments {
			out.Attachments = append(out.Attachments, Attachment{
				Filename:    att.Filename,
				Size:        att.Size,
				ContentType: att.ContentType,
			})
		}
	}

	return out
}

// document is the top-level shape of a combined JSON export
type document struct {
	Emails          []*Email `json:"emails"`
	TotalCount      int      `json:"total_count"`
	ExportTimestamp string   `json:"export_timestamp"`
}

// JSON renders the combined JSON export document
func JSON(emails []*Email) ([]byte, error) {
	doc := document{
		Emails:          emails,
		TotalCount:      len(emails),
		ExportTimestamp: time.Now().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return data, nil
}

// Text renders the combined plain-text export report
func Text(emails []*Email) []byte {
	separator := strings.Repeat("=", 50)

	var b strings.Builder
	b.WriteString("EMAIL EXPORT\n")
	b.WriteString(separator + "\n")
	b.WriteString("Export Date: " + time.Now().Format(time.RFC3339) + "\n")
	fmt.Fprintf(&b, "Total Emails: %d\n", len(emails))
	b.WriteString(separator + "\n\n")

	for i, email := range emails {
		fmt.Fprintf(&b, "EMAIL #%d\n", i+1)
		b.WriteString(strings.Repeat("-", 30) + "\n")
		b.WriteString(emailAsText(email))
		b.WriteString("\n\n" + separator + "\n\n")
	}

	return []byte(b.String())
}

// emailAsText renders the field block plus body for one email
func emailAsText(email *Email) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filename: %s\n", orNA(email.Filename))
	fmt.Fprintf(&b, "Subject: %s\n", orNA(email.Subject))
	fmt.Fprintf(&b, "From: %s\n", orNA(email.Sender))
	fmt.Fprintf(&b, "To: %s\n", strings.Join(email.Recipients, ", "))
	if email.Date != nil {
		fmt.Fprintf(&b, "Date: %s\n", email.Date.Format(time.RFC3339))
	} else {
		b.WriteString("Date: N/A\n")
	}

	if len(email.CC) > 0 {
		fmt.Fprintf(&b, "CC: %s\n", strings.Join(email.CC, ", "))
	}
	if len(email.BCC) > 0 {
		fmt.Fprintf(&b, "BCC: %s\n", strings.Join(email.BCC, ", "))
	}

	fmt.Fprintf(&b, "Size: %d bytes\n", email.Size)

	if len(email.Attachments) > 0 {
		fmt.Fprintf(&b, "Attachments: %d\n", len(email.Attachments))
		for _, att := range email.Attachments {
			name := att.Filename
			if name == "" {
				name = "Unknown"
			}
			fmt.Fprintf(&b, "  - %s (%d bytes)\n", name, att.Size)
		}
	}

	b.WriteString("\nBody:\n")
	if email.Body != "" {
		b.WriteString(email.Body)
	} else {
		b.WriteString("No text body available")
	}

	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// Zip writes an archive with one .json or .txt entry per email, named
// after the source file's stem.
func Zip(w io.Writer, emails []*Email, format string) error {
	zw := zip.NewWriter(w)

	for _, email := range emails {
		stem := strings.TrimSuffix(filepath.Base(email.Filename), filepath.Ext(email.Filename))
		if stem == "" {
			stem = "email"
		}

		var (
			name string
			data []byte
			err  error
		)
		if format == FormatJSON {
			name = stem + ".json"
			data, err = json.MarshalIndent(email, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal %s: %w", email.Filename, err)
			}
		} else {
			name = stem + ".txt"
			data = []byte(emailAsText(email))
		}

		entry, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create zip entry %s: %w", name, err)
		}
		if _, err := entry.Write(data); err != nil {
			return fmt.Errorf("failed to write zip entry %s: %w", name, err)
		}
	}

	return zw.Close()
}

// OriginalZip streams the source files verbatim into an archive, each
// stored under its base name. Paths that cannot be read are skipped so a
// single vanished file does not abort the download.
func OriginalZip(w io.Writer, paths []string) error {
	zw := zip.NewWriter(w)

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}

		entry, err := zw.Create(filepath.Base(path))
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to create zip entry %s: %w", filepath.Base(path), err)
		}
		if _, err := io.Copy(entry, f); err != nil {
			f.Close()
			return fmt.Errorf("failed to write zip entry %s: %w", filepath.Base(path), err)
		}
		f.Close()
	}

	return zw.Close()
}
