// Package handler provides the HTTP API for Merit.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/auth"
	"github.com/sekolahku/merit/internal/service"
)

// UserHandler handles user lifecycle requests.
type UserHandler struct {
	users  *service.UserService
	points *service.PointService
	logger zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService, points *service.PointService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		points: points,
		logger: logger.With().Str("handler", "users").Logger(),
	}
}

// RegisterRoutes registers user routes.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/users", h.handleList)
	r.Get("/users/{id}", h.handleGet)
	r.Get("/users/{id}/points", h.handlePointLog)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(rolesAdmin...))
		r.Post("/users", h.handleCreate)
		r.Patch("/users/{id}", h.handleUpdate)
		r.Post("/users/bulk", h.handleCreateBulk)
		r.Post("/users/{id}/archive", h.handleArchive)
		r.Post("/users/{id}/restore", h.handleRestore)
		r.Delete("/users/{id}", h.handleDelete)
	})
}

func (h *UserHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input service.CreateUserInput
	if err := decodeJSON(r, &input); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	user, err := h.users.Create(r.Context(), input, actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) handleCreateBulk(w http.ResponseWriter, r *http.Request) {
	var inputs []service.CreateUserInput
	if err := decodeJSON(r, &inputs); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if len(inputs) == 0 {
		badRequest(w, "empty batch")
		return
	}

	result, err := h.users.CreateBulk(r.Context(), inputs, actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Partial failures still answer 201; per-row errors travel in the
	// body alongside the created users.
	writeJSON(w, http.StatusCreated, result)
}

func (h *UserHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := h.users.List(r.Context(), service.ListUsersQuery{
		Page:            queryInt(q.Get("page")),
		Limit:           queryInt(q.Get("limit")),
		Search:          q.Get("search"),
		Role:            q.Get("role"),
		ClassID:         q.Get("classId"),
		SortBy:          q.Get("sortBy"),
		SortOrder:       q.Get("sortOrder"),
		CreatedAfter:    q.Get("createdAfter"),
		CreatedBefore:   q.Get("createdBefore"),
		LastLoginAfter:  q.Get("lastLoginAfter"),
		LastLoginBefore: q.Get("lastLoginBefore"),
		IncludeProfile:  queryBool(q.Get("includeProfile")),
		IncludePrefs:    queryBool(q.Get("includePreferences")),
		IncludeArchived: queryBool(q.Get("includeArchived")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *UserHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var input service.UpdateUserInput
	if err := decodeJSON(r, &input); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	user, err := h.users.Update(r.Context(), chi.URLParam(r, "id"), input, actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) handleArchive(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Archive(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) handleRestore(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Restore(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), chi.URLParam(r, "id"), actorID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) handlePointLog(w http.ResponseWriter, r *http.Request) {
	userID, err := service.ValidateIDFormat(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	result, err := h.points.ListByUser(r.Context(), userID, queryInt(q.Get("page")), queryInt(q.Get("limit")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// actorID extracts the authenticated user's id; zero when the route is
// reached without auth (tests, internal calls).
func actorID(r *http.Request) uuid.UUID {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.UserID
	}
	return uuid.Nil
}

// isStaff reports whether the authenticated caller holds a staff role.
func isStaff(r *http.Request) bool {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return false
	}
	for _, role := range rolesStaff {
		if identity.HasRole(role) {
			return true
		}
	}
	return false
}

func queryInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func queryBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
