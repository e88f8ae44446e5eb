package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sekolahku/merit/internal/domain"
)

func protectedChain(t *testing.T, tokens *TokenService, roles ...domain.Role) http.Handler {
	t.Helper()

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if len(roles) > 0 {
		h = RequireRole(roles...)(h)
	}
	return RequireAuth(tokens)(h)
}

func TestRequireAuth(t *testing.T) {
	tokens, err := NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := protectedChain(t, tokens)

	token, err := tokens.Generate(testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + token, http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.token", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tokens, err := NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	adminOnly := protectedChain(t, tokens, domain.RoleAdmin)

	student := testUser()
	studentToken, err := tokens.Generate(student)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	admin := domain.NewUser("0987654321", "hash", []domain.Role{domain.RoleAdmin})
	adminToken, err := tokens.Generate(admin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/users/x", nil)
	req.Header.Set("Authorization", "Bearer "+studentToken)
	rec := httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("student should be forbidden, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/users/x", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("admin should pass, got %d", rec.Code)
	}
}

func TestRequireRole_WithoutAuth(t *testing.T) {
	// Mounted without RequireAuth there is no identity in the context.
	h := RequireRole(domain.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
