package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/avalda/msgview/internal/db"
)

// searchRequest carries the search filters. All fields are optional; an
// empty request behaves like a plain listing.
type searchRequest struct {
	Query    string `json:"query"`
	Sender   string `json:"sender"`
	Subject  string `json:"subject"`
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// SearchEmails filters the summary index. Free text goes through the
// full-text index; sender/subject/date are column filters. Placeholder
// rows for unparsable files match by filename like any other row.
func (h *Handlers) SearchEmails(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	page, pageSize := h.pageParams(req.Page, req.PageSize)

	rows, totalCount, err := h.db.SearchEmails(db.SearchOptions{
		Query:    req.Query,
		Sender:   req.Sender,
		Subject:  req.Subject,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	})
	if err != nil {
		h.logger.Error("search failed", zap.Error(err))
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
