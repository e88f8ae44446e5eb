package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/sekolahku/merit/internal/domain"
)

func TestValidateIDFormat(t *testing.T) {
	id := uuid.New()

	parsed, err := ValidateIDFormat(id.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != id {
		t.Error("parsed id does not round-trip")
	}

	if _, err := ValidateIDFormat("   "); !errors.Is(err, domain.ErrIDRequired) {
		t.Errorf("expected required error, got %v", err)
	}
	if _, err := ValidateIDFormat("abc-123"); !errors.Is(err, domain.ErrInvalidID) {
		t.Errorf("expected invalid id, got %v", err)
	}
}

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Budi  ", "budi"},
		{"SITI.A", "siti.a"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeUsername(tt.in); got != tt.want {
			t.Errorf("NormalizeUsername(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidator_UsernameUniqueness(t *testing.T) {
	_, users, _, _, _, _ := newFakeRepos()
	v := NewValidator(users, true)
	ctx := context.Background()

	existing := seedUser(t, users, 0)
	existing.Username = "budi"
	if err := users.Update(ctx, existing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Comparison is case-insensitive via normalization.
	err := v.ValidateUsernameUniqueness(ctx, "  BUDI ", uuid.New())
	var derr *domain.DomainError
	if !errors.As(err, &derr) || derr.Field != "username" {
		t.Fatalf("expected username conflict, got %v", err)
	}

	// Excluding the holder allows the update through.
	if err := v.ValidateUsernameUniqueness(ctx, "budi", existing.ID); err != nil {
		t.Errorf("self-exclusion should pass, got %v", err)
	}

	// Empty usernames are never checked.
	if err := v.ValidateUsernameUniqueness(ctx, "   ", uuid.New()); err != nil {
		t.Errorf("empty username should pass, got %v", err)
	}
}

func TestValidator_NISNUniquenessFlag(t *testing.T) {
	_, users, _, _, _, _ := newFakeRepos()
	ctx := context.Background()
	existing := seedUser(t, users, 0)

	enforced := NewValidator(users, true)
	err := enforced.ValidateAllUniqueness(ctx, existing.NISN, "", uuid.New())
	var derr *domain.DomainError
	if !errors.As(err, &derr) || derr.Field != "nisn" {
		t.Fatalf("expected nisn conflict, got %v", err)
	}

	// With the flag off the database index is the only backstop.
	relaxed := NewValidator(users, false)
	if err := relaxed.ValidateAllUniqueness(ctx, existing.NISN, "", uuid.New()); err != nil {
		t.Errorf("relaxed validator should pass, got %v", err)
	}
}

func TestValidator_BatchUniqueness(t *testing.T) {
	_, users, _, _, _, _ := newFakeRepos()
	v := NewValidator(users, true)
	ctx := context.Background()

	inBatch := []CreateUserInput{
		{NISN: "1000000001", Username: "ani"},
		{NISN: "1000000002", Username: " ANI "},
	}
	err := v.ValidateBatchUniqueness(ctx, inBatch)
	var derr *domain.DomainError
	if !errors.As(err, &derr) || derr.Field != "username" {
		t.Fatalf("expected in-batch username conflict, got %v", err)
	}

	dupNISN := []CreateUserInput{
		{NISN: "1000000003", Username: "ani"},
		{NISN: "1000000003", Username: "budi"},
	}
	if err := v.ValidateBatchUniqueness(ctx, dupNISN); !errors.As(err, &derr) || derr.Field != "nisn" {
		t.Fatalf("expected in-batch nisn conflict, got %v", err)
	}

	existing := seedUser(t, users, 0)
	against := []CreateUserInput{
		{NISN: existing.NISN, Username: "citra"},
	}
	if err := v.ValidateBatchUniqueness(ctx, against); !errors.As(err, &derr) || derr.Field != "nisn" {
		t.Fatalf("expected conflict against stored user, got %v", err)
	}

	clean := []CreateUserInput{
		{NISN: "1000000004", Username: "dewi"},
		{NISN: "1000000005", Username: "eka"},
	}
	if err := v.ValidateBatchUniqueness(ctx, clean); err != nil {
		t.Errorf("clean batch should pass, got %v", err)
	}
}
