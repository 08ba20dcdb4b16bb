package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/avalda/msgview/internal/relay"
)

type domainResponse struct {
	Domain  string `json:"domain"`
	AddedAt string `json:"added_at,omitempty"`
}

type addDomainRequest struct {
	Domain string `json:"domain"`
}

type updateDomainRequest struct {
	NewDomain string `json:"new_domain"`
}

// ListDomains returns the configured relay domains, newest first
func (h *Handlers) ListDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := h.relay.List()
	if err != nil {
		h.logger.Error("failed to list relay domains", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to read relay domains file")
		return
	}

	items := make([]domainResponse, 0, len(domains))
	for _, d := range domains {
		item := domainResponse{Domain: d.Domain}
		if !d.AddedAt.IsZero() {
			item.AddedAt = d.AddedAt.Format(time.RFC3339)
		}
		items = append(items, item)
	}

	h.writeJSON(w, http.StatusOK, map[string][]domainResponse{"domains": items})
}

// AddDomain appends a relay domain
func (h *Handlers) AddDomain(w http.ResponseWriter, r *http.Request) {
	var req addDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	added, err := h.relay.Add(req.Domain)
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrInvalidDomain):
			h.writeError(w, http.StatusBadRequest, "Invalid domain name. Use a valid domain like example.com")
		case errors.Is(err, relay.ErrDomainExists):
			h.writeError(w, http.StatusConflict, "Domain already exists")
		default:
			h.logger.Error("failed to add relay domain", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "Failed to write relay domains file")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Domain added",
		"domain":  added.Domain,
	})
}

// UpdateDomain renames a relay domain
func (h *Handlers) UpdateDomain(w http.ResponseWriter, r *http.Request) {
	oldDomain := chi.URLParam(r, "domain")

	var req updateDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if relay.Normalize(oldDomain) == relay.Normalize(req.NewDomain) {
		h.writeJSON(w, http.StatusOK, map[string]string{
			"message": "No changes",
			"domain":  relay.Normalize(req.NewDomain),
		})
		return
	}

	updated, err := h.relay.Update(oldDomain, req.NewDomain)
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrInvalidDomain):
			h.writeError(w, http.StatusBadRequest, "Invalid domain")
		case errors.Is(err, relay.ErrDomainExists):
			h.writeError(w, http.StatusConflict, "New domain already exists")
		case errors.Is(err, relay.ErrDomainNotFound):
			h.writeError(w, http.StatusNotFound, "Domain not found")
		default:
			h.logger.Error("failed to update relay domain", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "Failed to update relay domains file")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Domain updated",
		"domain":  updated.Domain,
	})
}

// DeleteDomain removes a relay domain
func (h *Handlers) DeleteDomain(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")

	if err := h.relay.Delete(domain); err != nil {
		switch {
		case errors.Is(err, relay.ErrInvalidDomain):
			h.writeError(w, http.StatusBadRequest, "Invalid domain")
		case errors.Is(err, relay.ErrDomainNotFound):
			h.writeError(w, http.StatusNotFound, "Domain not found")
		default:
			h.logger.Error("failed to delete relay domain", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "Failed to update relay domains file")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Domain deleted",
		"domain":  relay.Normalize(domain),
	})
}

// Reindex synchronizes the summary index with the archive folder and
// reports the result counts.
func (h *Handlers) Reindex(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Indexing is not available")
		return
	}

	result, err := h.indexer.IndexAll()
	if err != nil {
		h.logger.Error("reindex failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Indexing failed")
		return
	}

	if h.metrics != nil {
		if count, err := h.db.CountEmails(); err == nil {
			h.metrics.RecordIndexRun(count)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]int{
		"total_found": result.TotalFound,
		"indexed":     result.Indexed,
		"skipped":     result.Skipped,
		"failed":      result.Failed,
		"pruned":      result.Pruned,
	})
}
