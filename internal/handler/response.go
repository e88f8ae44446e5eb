package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/service"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps a service error onto the HTTP error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal detail stays in the log.
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		message = "internal server error"
	}

	writeJSON(w, status, errorBody{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
	})
}

// statusForError translates domain and service sentinels to HTTP
// status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrQuestNotFound),
		errors.Is(err, domain.ErrAppealNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrDuplicateField),
		errors.Is(err, domain.ErrQuestAlreadyCompleted),
		errors.Is(err, domain.ErrQuestNotCompletable),
		errors.Is(err, domain.ErrAppealNotPending):
		return http.StatusConflict

	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUserArchived):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrAccountLocked):
		return http.StatusLocked

	case errors.Is(err, domain.ErrIDRequired),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrFieldRequired),
		errors.Is(err, domain.ErrRolesEmpty),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrInvalidQuestType),
		errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, domain.ErrInvalidPointAmount),
		errors.Is(err, domain.ErrInsufficientPoints),
		errors.Is(err, domain.ErrPasswordReuse),
		errors.Is(err, service.ErrInvalidPassword),
		errors.Is(err, service.ErrNISNRequired):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// badRequest writes a 400 for malformed request bodies.
// forbidden rejects a caller that lacks the required role.
func forbidden(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, errorBody{
		StatusCode: http.StatusForbidden,
		Message:    "insufficient role",
		Error:      http.StatusText(http.StatusForbidden),
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Error:      http.StatusText(http.StatusBadRequest),
	})
}
