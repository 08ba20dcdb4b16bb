package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type statsResponse struct {
	TotalEmails           int    `json:"total_emails"`
	Parsed                int    `json:"parsed"`
	ParseFailures         int    `json:"parse_failures"`
	EmailsWithAttachments int    `json:"emails_with_attachments"`
	TotalSizeBytes        int64  `json:"total_size_bytes"`
	EmailFolder           string `json:"email_folder"`
	LastIndexed           string `json:"last_indexed,omitempty"`
}

// EmailStats reports index-wide statistics
func (h *Handlers) EmailStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		h.logger.Error("failed to collect stats", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := statsResponse{
		TotalEmails:           stats.TotalEmails,
		Parsed:                stats.Parsed,
		ParseFailures:         stats.ParseFailures,
		EmailsWithAttachments: stats.WithAttachments,
		TotalSizeBytes:        stats.TotalSize,
		EmailFolder:           h.cfg.EmailsPath,
	}
	if !stats.LastIndexed.IsZero() {
		resp.LastIndexed = stats.LastIndexed.Format(time.RFC3339)
	}

	h.writeJSON(w, http.StatusOK, resp)
}
