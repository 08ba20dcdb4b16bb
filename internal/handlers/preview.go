package handlers

import (
	"errors"
	"html"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/avalda/msgview/internal/db"
	"github.com/avalda/msgview/internal/parser"
)

// HTMLPreview serves the sanitized HTML body of a message for iframe
// rendering. Messages without an HTML body fall back to the plain body in
// a <pre> block; scripts and event handlers never survive the policy.
func (h *Handlers) HTMLPreview(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

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

	email, err := parser.ParseFile(path)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Email not found")
		return
	}
	if h.metrics != nil {
		h.metrics.RecordParse("preview")
	}

	var body string
	switch {
	case email.HTMLBody != "":
		body = h.htmlPolicy.Sanitize(email.HTMLBody)
	case email.Body != "":
		body = "<pre>" + html.EscapeString(email.Body) + "</pre>"
	default:
		body = "<p>No content</p>"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src data:; style-src 'unsafe-inline'")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		h.logger.Debug("preview write aborted", zap.Error(err))
	}
}
