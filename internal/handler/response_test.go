package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/service"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrUserNotFound, http.StatusNotFound},
		{domain.ErrQuestNotFound, http.StatusNotFound},
		{domain.ErrAppealNotFound, http.StatusNotFound},
		{domain.ErrDuplicateField, http.StatusConflict},
		{domain.ErrQuestAlreadyCompleted, http.StatusConflict},
		{domain.ErrQuestNotCompletable, http.StatusConflict},
		{domain.ErrAppealNotPending, http.StatusConflict},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{domain.ErrUserArchived, http.StatusUnauthorized},
		{domain.ErrAccountLocked, http.StatusLocked},
		{domain.ErrInvalidID, http.StatusBadRequest},
		{domain.ErrInsufficientPoints, http.StatusBadRequest},
		{domain.ErrPasswordReuse, http.StatusBadRequest},
		{service.ErrInvalidPassword, http.StatusBadRequest},
		{service.ErrInternal, http.StatusInternalServerError},
		{errors.New("surprise"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestStatusForError_Wrapped(t *testing.T) {
	// Sentinels survive both %w wrapping and the DomainError type.
	wrapped := fmt.Errorf("%w: classId %q", domain.ErrInvalidID, "nope")
	if got := statusForError(wrapped); got != http.StatusBadRequest {
		t.Errorf("got %d, want %d", got, http.StatusBadRequest)
	}

	conflict := domain.NewConflictError("username", "budi")
	if got := statusForError(conflict); got != http.StatusConflict {
		t.Errorf("got %d, want %d", got, http.StatusConflict)
	}
}

func TestWriteError_Envelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/users/x", nil)
	rec := httptest.NewRecorder()

	writeError(rec, req, domain.ErrUserNotFound)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("got content type %q", ct)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}
	if body.StatusCode != http.StatusNotFound || body.Error != "Not Found" {
		t.Errorf("unexpected envelope: %+v", body)
	}
	if body.Message != domain.ErrUserNotFound.Error() {
		t.Errorf("unexpected message: %q", body.Message)
	}
}

func TestWriteError_MasksInternalDetail(t *testing.T) {
	logger := zerolog.Nop()
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req = req.WithContext(logger.WithContext(req.Context()))
	rec := httptest.NewRecorder()

	writeError(rec, req, fmt.Errorf("%w: %v", service.ErrInternal, errors.New("pq: connection refused")))

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}
	if body.Message != "internal server error" {
		t.Errorf("internal detail leaked: %q", body.Message)
	}
}
