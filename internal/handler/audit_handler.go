package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/auth"
	"github.com/sekolahku/merit/internal/service"
)

// AuditHandler exposes the audit trail to administrators.
type AuditHandler struct {
	audit  *service.AuditService
	logger zerolog.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(audit *service.AuditService, logger zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger.With().Str("handler", "audit").Logger(),
	}
}

// RegisterRoutes registers audit routes.
func (h *AuditHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(rolesAdmin...))
		r.Get("/audit-logs", h.handleList)
	})
}

func (h *AuditHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := h.audit.List(r.Context(), service.ListAuditLogsQuery{
		UserID:   q.Get("userId"),
		Resource: q.Get("resource"),
		Action:   q.Get("action"),
		After:    q.Get("after"),
		Before:   q.Get("before"),
		Page:     queryInt(q.Get("page")),
		Limit:    queryInt(q.Get("limit")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
