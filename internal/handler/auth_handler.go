package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/auth"
	"github.com/sekolahku/merit/internal/service"
)

// AuthHandler handles login and password administration.
type AuthHandler struct {
	authSvc *service.AuthService
	tokens  *auth.TokenService
	logger  zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc *service.AuthService, tokens *auth.TokenService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authSvc: authSvc,
		tokens:  tokens,
		logger:  logger.With().Str("handler", "auth").Logger(),
	}
}

// RegisterPublicRoutes registers the unauthenticated auth routes.
func (h *AuthHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/reset/complete", h.handleCompleteReset)
}

// RegisterRoutes registers the authenticated auth routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/password", h.handleChangePassword)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(rolesAdmin...))
		r.Post("/users/{id}/reset-password", h.handleResetPassword)
	})
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input service.LoginInput
	if err := decodeJSON(r, &input); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	out, err := h.authSvc.LoginByNISN(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AuthHandler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var input service.ChangePasswordInput
	if err := decodeJSON(r, &input); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := h.authSvc.ChangePassword(r.Context(), actorID(r), input); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	out, err := h.authSvc.ResetPassword(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AuthHandler) handleCompleteReset(w http.ResponseWriter, r *http.Request) {
	var input service.CompleteResetInput
	if err := decodeJSON(r, &input); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := h.authSvc.CompleteReset(r.Context(), input); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
