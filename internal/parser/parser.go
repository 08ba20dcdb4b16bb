// Package parser turns single email files into canonical, format-agnostic
// records. Sources may be Outlook container messages (.msg) or RFC-822
// text (.eml); the two extraction paths never mix fields, and charset or
// transfer-encoding trouble degrades to best-effort text instead of
// failing a parse.
package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ParseFile produces the full canonical record for one message file. The
// container path runs first; any error there silently falls back to the
// RFC-822 text path on the same file. Only when both fail does the caller
// see an error, and then only ErrUnparsable — the per-path causes are
// logged, not returned.
func ParseFile(path string) (*Email, error) {
	size := fileSize(path)

	email, containerErr := parseContainer(path, size)
	if containerErr == nil {
		return email, nil
	}

	email, textErr := parseText(path, size)
	if textErr == nil {
		return email, nil
	}

	logFailure(path, containerErr, textErr)
	return nil, ErrUnparsable
}

// ParseSummary produces the reduced listing projection, skipping body
// decoding and attachment payload reads. Fallback behavior matches
// ParseFile.
func ParseSummary(path string) (*Summary, error) {
	size := fileSize(path)

	summary, containerErr := parseContainerSummary(path, size)
	if containerErr == nil {
		return summary, nil
	}

	summary, textErr := parseTextSummary(path, size)
	if textErr == nil {
		return summary, nil
	}

	logFailure(path, containerErr, textErr)
	return nil, ErrUnparsable
}

// ExtractAttachment returns the raw bytes of the attachment with exactly
// the given name. A parsable message without a matching attachment yields
// ErrAttachmentNotFound; a file that parses in no format yields
// ErrUnparsable.
func ExtractAttachment(path, name string) ([]byte, error) {
	data, containerErr := extractContainerAttachment(path, name)
	if containerErr == nil {
		return data, nil
	}
	if errors.Is(containerErr, ErrAttachmentNotFound) {
		return nil, ErrAttachmentNotFound
	}

	data, textErr := extractTextAttachment(path, name)
	if textErr == nil {
		return data, nil
	}
	if errors.Is(textErr, ErrAttachmentNotFound) {
		return nil, ErrAttachmentNotFound
	}

	logFailure(path, containerErr, textErr)
	return nil, ErrUnparsable
}

// resolveSender picks the first non-empty of the explicit sender field,
// the sender email field and the From header, decoded. All empty means
// the fixed placeholder, never an empty string.
func resolveSender(sender, senderEmail, fromHeader string) string {
	for _, candidate := range []string{sender, senderEmail, fromHeader} {
		if strings.TrimSpace(candidate) != "" {
			return decodeHeader(candidate)
		}
	}
	return defaultSender
}

func fileSize(path string) int64 {
	if info, err := os.Stat(path); err == nil {
		return info.Size()
	}
	return 0
}

func logFailure(path string, containerErr, textErr error) {
	logger.Debug("no parse path succeeded",
		zap.String("file", filepath.Base(path)),
		zap.NamedError("container", containerErr),
		zap.NamedError("text", textErr))
}
