package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/sekolahku/merit/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testUser() *domain.User {
	user := domain.NewUser("1234567890", "hash", []domain.Role{domain.RoleStudent, domain.RoleTeacher})
	return user
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc, err := NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	user := testUser()

	token, err := svc.Generate(user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	identity, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.UserID != user.ID {
		t.Errorf("subject mismatch: %s", identity.UserID)
	}
	if !identity.HasRole(domain.RoleStudent) || !identity.HasRole(domain.RoleTeacher) {
		t.Error("roles lost in transit")
	}
	if identity.HasRole(domain.RoleAdmin) {
		t.Error("unexpected admin role")
	}
}

func TestTokenService_Expired(t *testing.T) {
	svc, err := NewTokenService(testSecret, time.Nanosecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, err := svc.Generate(testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := svc.Validate(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected expired token, got %v", err)
	}
}

func TestTokenService_WrongSecret(t *testing.T) {
	issuerSvc, err := NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	otherSvc, err := NewTokenService("another-secret-entirely-here", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, err := issuerSvc.Generate(testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := otherSvc.Validate(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected invalid token, got %v", err)
	}
}

func TestTokenService_Garbage(t *testing.T) {
	svc, err := NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, tok := range []string{"", "not.a.token", "eyJhbGciOiJub25lIn0.e30."} {
		if _, err := svc.Validate(tok); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Validate(%q): expected invalid token, got %v", tok, err)
		}
	}
}

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("too-short", time.Hour); err == nil {
		t.Error("expected short secret to be rejected")
	}
}
