package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/auth"
	"github.com/sekolahku/merit/internal/service"
)

// AppealHandler handles appeal submission and review requests.
type AppealHandler struct {
	appeals *service.AppealService
	logger  zerolog.Logger
}

// NewAppealHandler creates a new AppealHandler.
func NewAppealHandler(appeals *service.AppealService, logger zerolog.Logger) *AppealHandler {
	return &AppealHandler{
		appeals: appeals,
		logger:  logger.With().Str("handler", "appeals").Logger(),
	}
}

// RegisterRoutes registers appeal routes.
func (h *AppealHandler) RegisterRoutes(r chi.Router) {
	r.Post("/appeals", h.handleSubmit)
	r.Get("/appeals/{id}", h.handleGet)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(rolesStaff...))
		r.Get("/appeals", h.handleList)
		r.Post("/appeals/{id}/review", h.handleReview)
	})
}

func (h *AppealHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var input service.SubmitAppealInput
	if err := decodeJSON(r, &input); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	appeal, err := h.appeals.Submit(r.Context(), actorID(r).String(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appeal)
}

func (h *AppealHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	appeal, err := h.appeals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appeal)
}

func (h *AppealHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := h.appeals.List(r.Context(), service.ListAppealsQuery{
		UserID: q.Get("userId"),
		Status: q.Get("status"),
		Page:   queryInt(q.Get("page")),
		Limit:  queryInt(q.Get("limit")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AppealHandler) handleReview(w http.ResponseWriter, r *http.Request) {
	var input service.ReviewInput
	if err := decodeJSON(r, &input); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	appeal, err := h.appeals.Review(r.Context(), chi.URLParam(r, "id"), input, actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appeal)
}
