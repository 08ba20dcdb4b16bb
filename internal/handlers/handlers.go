// Package handlers implements the JSON API over the email archive:
// listing, search, detail, attachment download, HTML preview, export,
// stats, authentication and relay-domain administration.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/avalda/msgview/internal/auth"
	"github.com/avalda/msgview/internal/config"
	"github.com/avalda/msgview/internal/db"
	"github.com/avalda/msgview/internal/indexer"
	"github.com/avalda/msgview/internal/metrics"
	"github.com/avalda/msgview/internal/relay"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	db      *db.DB
	cfg     *config.Config
	auth    *auth.Service
	relay   *relay.Store
	indexer *indexer.Indexer
	metrics *metrics.Metrics
	logger  *zap.Logger

	// htmlPolicy sanitizes message HTML for preview. Data-URI images stay
	// allowed because the parser inlines cid attachments that way.
	htmlPolicy *bluemonday.Policy
}

// New creates a Handlers instance. A nil logger is replaced with a no-op
// one; metrics and indexer may be nil, which disables the corresponding
// endpoints.
func New(database *db.DB, cfg *config.Config, authSvc *auth.Service, relayStore *relay.Store, idx *indexer.Indexer, m *metrics.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}

	policy := bluemonday.UGCPolicy()
	policy.AllowDataURIImages()
	policy.AllowAttrs("style").OnElements("p", "span", "div", "td", "th", "table", "img")

	return &Handlers{
		db:         database,
		cfg:        cfg,
		auth:       authSvc,
		relay:      relayStore,
		indexer:    idx,
		metrics:    m,
		logger:     logger,
		htmlPolicy: policy,
	}
}

// Router assembles the full route tree with middleware
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}

	r.Get("/health", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware)
			r.Get("/me", h.Me)
			r.Post("/logout", h.Logout)
		})
	})

	r.Route("/api/emails", func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Get("/", h.ListEmails)
		r.Post("/search", h.SearchEmails)
		r.Post("/download", h.DownloadEmails)
		r.Get("/stats/summary", h.EmailStats)
		r.Route("/{filename}", func(r chi.Router) {
			r.Get("/", h.EmailDetail)
			r.Get("/html", h.HTMLPreview)
			r.Get("/attachments/{name}", h.DownloadAttachment)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Use(auth.RequireRole(auth.RoleAdmin))
		r.Get("/relay-domains", h.ListDomains)
		r.Post("/relay-domains", h.AddDomain)
		r.Put("/relay-domains/{domain}", h.UpdateDomain)
		r.Delete("/relay-domains/{domain}", h.DeleteDomain)
		r.Post("/reindex", h.Reindex)
	})

	return r
}

// Health reports process liveness
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// logRequests emits one structured log line per request
func (h *Handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		level := h.logger.Debug
		if ww.Status() >= 500 {
			level = h.logger.Error
		}
		level("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// writeJSON serializes a response body with the given status
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError serializes an error response as {"detail": ...}
func (h *Handlers) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

// pageParams resolves page/page_size values against the configured
// defaults and caps. Page numbers start at 1.
func (h *Handlers) pageParams(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = h.cfg.DefaultPageSize
	}
	if pageSize > h.cfg.MaxPageSize {
		pageSize = h.cfg.MaxPageSize
	}
	return page, pageSize
}

// queryInt reads an integer query parameter, falling back on absence or
// garbage.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// totalPages computes the page count for a result set
func totalPages(totalCount, pageSize int) int {
	if pageSize < 1 {
		return 0
	}
	return (totalCount + pageSize - 1) / pageSize
}
