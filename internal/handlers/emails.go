package handlers

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/avalda/msgview/internal/db"
	"github.com/avalda/msgview/internal/parser"
)

// summaryResponse is the listing view of one indexed file
type summaryResponse struct {
	Filename        string     `json:"filename"`
	Subject         string     `json:"subject"`
	Sender          string     `json:"sender"`
	Recipients      []string   `json:"recipients"`
	Date            *time.Time `json:"date,omitempty"`
	Size            int64      `json:"size"`
	HasAttachments  bool       `json:"has_attachments"`
	AttachmentCount int        `json:"attachment_count"`
	ParseError      bool       `json:"parse_error,omitempty"`
}

// listResponse is one page of summaries with pagination metadata
type listResponse struct {
	Emails     []summaryResponse `json:"emails"`
	TotalCount int               `json:"total_count"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// detailResponse is the full record of one message
type detailResponse struct {
	Filename    string               `json:"filename"`
	Subject     string               `json:"subject"`
	Sender      string               `json:"sender"`
	Recipients  []string             `json:"recipients"`
	CC          []string             `json:"cc,omitempty"`
	BCC         []string             `json:"bcc,omitempty"`
	Date        *time.Time           `json:"date,omitempty"`
	Body        string               `json:"body,omitempty"`
	HTMLBody    string               `json:"html_body,omitempty"`
	Attachments []attachmentResponse `json:"attachments,omitempty"`
	Headers     map[string]string    `json:"headers,omitempty"`
	Size        int64                `json:"size"`
	MessageID   string               `json:"message_id,omitempty"`
	ParseError  bool                 `json:"parse_error,omitempty"`
}

type attachmentResponse struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// toSummaryResponse converts one index row to its listing view
func toSummaryResponse(row *db.Email) summaryResponse {
	resp := summaryResponse{
		Filename:        row.Filename,
		Subject:         row.Subject,
		Sender:          row.Sender,
		Size:            row.Size,
		HasAttachments:  row.HasAttachments,
		AttachmentCount: row.AttachmentCount,
		ParseError:      !row.ParseOK,
	}
	if row.Recipients != "" {
		resp.Recipients = strings.Split(row.Recipients, ", ")
	}
	if row.Date.Valid {
		date := row.Date.Time
		resp.Date = &date
	}
	return resp
}

// ListEmails serves one page of summary rows in filename order
func (h *Handlers) ListEmails(w http.ResponseWriter, r *http.Request) {
	page, pageSize := h.pageParams(
		queryInt(r, "page", 1),
		queryInt(r, "page_size", h.cfg.DefaultPageSize))

	totalCount, err := h.db.CountEmails()
	if err != nil {
		h.logger.Error("failed to count emails", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	rows, err := h.db.ListEmails(pageSize, (page-1)*pageSize)
	if err != nil {
		h.logger.Error("failed to list emails", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	emails := make([]summaryResponse, 0, len(rows))
	for _, row := range rows {
		emails = append(emails, toSummaryResponse(row))
	}

	h.writeJSON(w, http.StatusOK, listResponse{
		Emails:     emails,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(totalCount, pageSize),
	})
}

// EmailDetail parses the source file on demand and serves the full
// record. Files that no format can interpret get a placeholder detail
// built from filesystem metadata instead of an error.
func (h *Handlers) EmailDetail(w http.ResponseWriter, r *http.Request) {
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

	info, err := os.Stat(path)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Email not found")
		return
	}

	email, err := parser.ParseFile(path)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordParseFailure()
		}
		h.logger.Warn("serving placeholder detail for unparsable file",
			zap.String("file", filename))
		h.writeJSON(w, http.StatusOK, placeholderDetail(filename, info))
		return
	}
	if h.metrics != nil {
		h.metrics.RecordParse("detail")
	}

	resp := detailResponse{
		Filename:   filename,
		Subject:    email.Subject,
		Sender:     email.Sender,
		Recipients: email.Recipients,
		CC:         email.CC,
		BCC:        email.BCC,
		Date:       email.Date,
		Body:       email.Body,
		HTMLBody:   email.HTMLBody,
		Headers:    email.Headers,
		Size:       email.Size,
		MessageID:  email.MessageID,
	}
	for _, att := range email.Attachments {
		resp.Attachments = append(resp.Attachments, attachmentResponse{
			Filename:    att.Filename,
			Size:        att.Size,
			ContentType: att.ContentType,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// placeholderDetail builds the visible stand-in record for a file that
// failed both parse paths.
func placeholderDetail(filename string, info os.FileInfo) detailResponse {
	mtime := info.ModTime()
	return detailResponse{
		Filename:   filename,
		Subject:    "[Parse Error] " + filename,
		Sender:     "Unknown",
		Date:       &mtime,
		Size:       info.Size(),
		ParseError: true,
	}
}
