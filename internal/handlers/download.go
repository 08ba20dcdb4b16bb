package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/avalda/msgview/internal/export"
	"github.com/avalda/msgview/internal/parser"
)

// downloadRequest selects files and an export format. Format "original"
// bypasses the parsing engine entirely and streams the source files.
type downloadRequest struct {
	Filenames          []string `json:"filenames"`
	Format             string   `json:"format"`
	IncludeAttachments bool     `json:"include_attachments"`
}

// DownloadEmails assembles an export of the selected messages. A single
// email in json/text format comes back as a bare file; multiple emails
// come back zipped, one entry per message.
func (h *Handlers) DownloadEmails(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Filenames) == 0 {
		h.writeError(w, http.StatusBadRequest, "No files specified for download")
		return
	}

	format := req.Format
	if format == "" {
		format = export.FormatJSON
	}

	switch format {
	case export.FormatOriginal:
		h.downloadOriginal(w, req.Filenames)
	case export.FormatJSON, export.FormatText:
		h.downloadParsed(w, req, format)
	default:
		h.writeError(w, http.StatusBadRequest, "Unsupported format: "+format)
	}
}

// downloadOriginal zips the requested source files verbatim. Names that
// resolve to nothing are dropped; only a fully empty selection is an
// error.
func (h *Handlers) downloadOriginal(w http.ResponseWriter, filenames []string) {
	var paths []string
	for _, name := range filenames {
		path, err := h.db.ResolveSourcePath(name)
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		paths = append(paths, path)
	}

	if len(paths) == 0 {
		h.writeError(w, http.StatusNotFound, "No emails found for download")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="emails_original.zip"`)
	if err := export.OriginalZip(w, paths); err != nil {
		h.logger.Error("failed to stream original zip", zap.Error(err))
	}
}

// downloadParsed parses each requested file and renders the export.
// Unparsable files are skipped rather than failing the whole download.
func (h *Handlers) downloadParsed(w http.ResponseWriter, req downloadRequest, format string) {
	var emails []*export.Email
	for _, name := range req.Filenames {
		path, err := h.db.ResolveSourcePath(name)
		if err != nil {
			continue
		}

		parsed, err := parser.ParseFile(path)
		if err != nil {
			h.logger.Warn("skipping unparsable file in export",
				zap.String("file", name))
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordParse("export")
		}
		record := export.FromParsed(parsed, req.IncludeAttachments)
		record.Filename = name
		emails = append(emails, record)
	}

	if len(emails) == 0 {
		h.writeError(w, http.StatusNotFound, "No emails found for download")
		return
	}

	if len(emails) > 1 {
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="emails_export.zip"`)
		if err := export.Zip(w, emails, format); err != nil {
			h.logger.Error("failed to stream export zip", zap.Error(err))
		}
		return
	}

	var (
		data []byte
		err  error
	)
	if format == export.FormatJSON {
		data, err = export.JSON(emails)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="emails_export.json"`)
	} else {
		data = export.Text(emails)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="emails_export.txt"`)
	}
	if err != nil {
		h.logger.Error("failed to render export", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("export write aborted", zap.Error(err))
	}
}
