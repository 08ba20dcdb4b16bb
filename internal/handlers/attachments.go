package handlers

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/avalda/msgview/internal/db"
	"github.com/avalda/msgview/internal/parser"
)

// sanitizeFilename removes dangerous characters from attachment filenames
func sanitizeFilename(filename string) string {
	// Remove path separators
	filename = filepath.Base(filename)

	// Remove any control characters and quotes
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 || r == '"' || r == '\'' {
			return -1 // Remove character
		}
		return r
	}, filename)

	// Limit length
	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}

	// Fallback if empty
	if cleaned == "" {
		cleaned = "download.bin"
	}

	return cleaned
}

// DownloadAttachment extracts the named attachment from the source file
// and streams its raw bytes. An unknown attachment name is 404, never a
// server error.
func (h *Handlers) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	name := chi.URLParam(r, "name")

	path, err := h.db.ResolveSourcePath(filename)
	if err != nil {
		if errors.Is(err, db.ErrPathTraversal) {
			h.writeError(w, http.StatusBadRequest, "Invalid filename")
			return
		}
		h.logger.Error("failed to resolve source path", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	data, err := parser.ExtractAttachment(path, name)
	if err != nil {
		switch {
		case errors.Is(err, parser.ErrAttachmentNotFound):
			h.writeError(w, http.StatusNotFound, "Attachment not found")
		case errors.Is(err, parser.ErrUnparsable):
			h.writeError(w, http.StatusNotFound, "Email not found")
		default:
			h.logger.Error("failed to extract attachment",
				zap.String("file", filename),
				zap.String("attachment", name),
				zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	safeFilename := sanitizeFilename(name)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{
			"filename": safeFilename,
		}))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if _, err := w.Write(data); err != nil {
		h.logger.Debug("attachment write aborted", zap.Error(err))
	}
}
