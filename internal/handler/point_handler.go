package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/auth"
	"github.com/sekolahku/merit/internal/service"
)

// PointHandler handles manual ledger grants and deductions.
type PointHandler struct {
	points *service.PointService
	logger zerolog.Logger
}

// NewPointHandler creates a new PointHandler.
func NewPointHandler(points *service.PointService, logger zerolog.Logger) *PointHandler {
	return &PointHandler{
		points: points,
		logger: logger.With().Str("handler", "points").Logger(),
	}
}

// RegisterRoutes registers point routes.
func (h *PointHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(rolesStaff...))
		r.Post("/points/grant", h.handleGrant)
	})
}

// grantRequest is the manual grant payload. Negative points deduct.
type grantRequest struct {
	UserID      string `json:"userId"`
	Points      int    `json:"points"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

func (h *PointHandler) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	userID, err := service.ValidateIDFormat(req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.points.Grant(r.Context(), service.GrantInput{
		UserID:      userID,
		Points:      req.Points,
		Category:    req.Category,
		Description: req.Description,
		AwardedBy:   actorID(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}
