package parser

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// Email is the canonical, format-agnostic record produced for one message,
// regardless of whether it came from an Outlook container or an RFC-822
// text file.
type Email struct {
	Filename    string
	Subject     string
	Sender      string
	Recipients  []string
	CC          []string
	BCC         []string
	Date        *time.Time // nil when the source declares no parsable date
	Body        string
	HTMLBody    string
	Attachments []AttachmentMeta
	Headers     map[string]string
	MessageID   string
	Size        int64
}

// Summary is the reduced projection of Email used by listings and the
// search index. It is computed by a cheaper path that skips body decoding
// and attachment payload reads.
type Summary struct {
	Filename        string
	Subject         string
	Sender          string
	Recipients      []string
	Date            *time.Time
	Size            int64
	HasAttachments  bool
	AttachmentCount int
}

// AttachmentMeta describes one attachment without carrying its payload.
type AttachmentMeta struct {
	Filename    string // may be empty when the source names nothing
	Size        int64
	ContentType string
	ContentID   string
}

// ContentIDMap maps a normalized content-id (angle brackets stripped) to a
// data URI. Built once per message and discarded after body extraction.
type ContentIDMap map[string]string

var (
	// ErrUnparsable is returned when a file can be interpreted neither as a
	// container message nor as RFC-822 text. The underlying causes are
	// logged, not propagated.
	ErrUnparsable = errors.New("file is not parsable as an email message")

	// ErrAttachmentNotFound is returned by ExtractAttachment when no
	// attachment matches the requested name. Callers treat it as an empty
	// result rather than a fault.
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// Placeholder values used when a message carries no subject or no usable
// sender field.
const (
	defaultSubject = "No Subject"
	defaultSender  = "Unknown Sender"
)

// Package logger for decode-degradation events. Parsing never fails because
// of charset trouble, but falling back to a lossy strategy is worth a trace.
var logger = zap.NewNop()

// SetLogger installs the process logger. Safe to call once at startup;
// parsing functions only read it.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}
