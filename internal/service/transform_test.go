package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sekolahku/merit/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestApplyUpdate_PresentFieldsOnly(t *testing.T) {
	classID := uuid.New()
	user := domain.NewUser("1234567890", "hash", []domain.Role{domain.RoleStudent})
	user.Username = "budi"
	user.FirstName = "Budi"
	user.LastName = "Santoso"
	user.ClassID = &classID

	err := applyUpdate(user, UpdateUserInput{
		FirstName: strPtr("Adi"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if user.FirstName != "Adi" {
		t.Errorf("first name not applied: %q", user.FirstName)
	}
	if user.LastName != "Santoso" || user.Username != "budi" || user.NISN != "1234567890" {
		t.Error("omitted fields were clobbered")
	}
	if user.ClassID == nil || *user.ClassID != classID {
		t.Error("class assignment lost")
	}
}

func TestApplyUpdate_ClearClassID(t *testing.T) {
	classID := uuid.New()
	user := domain.NewUser("1234567890", "hash", []domain.Role{domain.RoleStudent})
	user.ClassID = &classID

	if err := applyUpdate(user, UpdateUserInput{ClassID: strPtr("")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ClassID != nil {
		t.Error("empty classId should clear the assignment")
	}
}

func TestApplyUpdate_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		input UpdateUserInput
		want  error
	}{
		{"blank nisn", UpdateUserInput{NISN: strPtr("  ")}, domain.ErrFieldRequired},
		{"malformed class id", UpdateUserInput{ClassID: strPtr("not-a-uuid")}, domain.ErrInvalidID},
		{"empty roles", UpdateUserInput{Roles: &[]domain.Role{}}, domain.ErrRolesEmpty},
		{"unknown role", UpdateUserInput{Roles: &[]domain.Role{"janitor"}}, domain.ErrInvalidRole},
		{"bad birth date", UpdateUserInput{Profile: &ProfileInput{DateOfBirth: "31/12/2010"}}, domain.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := domain.NewUser("1234567890", "hash", []domain.Role{domain.RoleStudent})
			if err := applyUpdate(user, tt.input); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBuildUser_ProfileDates(t *testing.T) {
	user, err := buildUser(CreateUserInput{
		NISN:     " 1234567890 ",
		Username: "  Siti  ",
		Roles:    []domain.Role{domain.RoleStudent},
		Profile:  &ProfileInput{DateOfBirth: "2010-06-15"},
	}, "hash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if user.NISN != "1234567890" {
		t.Errorf("nisn not trimmed: %q", user.NISN)
	}
	if user.Username != "siti" {
		t.Errorf("username not normalized: %q", user.Username)
	}
	if user.Profile == nil || user.Profile.DateOfBirth == nil {
		t.Fatal("profile date missing")
	}
	if got := user.Profile.DateOfBirth.Format("2006-01-02"); got != "2010-06-15" {
		t.Errorf("wrong birth date: %s", got)
	}
}

func TestParseDate(t *testing.T) {
	if _, err := parseDate("2026-03-01"); err != nil {
		t.Errorf("date-only form rejected: %v", err)
	}
	if _, err := parseDate("2026-03-01T10:30:00Z"); err != nil {
		t.Errorf("RFC 3339 form rejected: %v", err)
	}
	if _, err := parseDate("01-03-2026"); err == nil {
		t.Error("day-first form should be rejected")
	}

	ptr, err := parseDatePtr("")
	if err != nil || ptr != nil {
		t.Error("empty value should map to nil without error")
	}
	if _, err := parseDatePtr("soon"); !errors.Is(err, domain.ErrInvalidDate) {
		t.Errorf("expected invalid date, got %v", err)
	}
}

func TestBuildUserFilter(t *testing.T) {
	classID := uuid.New()
	filter, err := buildUserFilter(ListUsersQuery{
		Search:       "  siti ",
		Role:         string(domain.RoleStudent),
		ClassID:      classID.String(),
		CreatedAfter: "2026-01-01",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if filter.Search != "siti" {
		t.Errorf("search not trimmed: %q", filter.Search)
	}
	if filter.Role == nil || *filter.Role != domain.RoleStudent {
		t.Error("role filter missing")
	}
	if filter.ClassID == nil || *filter.ClassID != classID {
		t.Error("class filter missing")
	}
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if filter.CreatedAfter == nil || !filter.CreatedAfter.Equal(want) {
		t.Error("created-after bound missing")
	}

	if _, err := buildUserFilter(ListUsersQuery{Role: "janitor"}); !errors.Is(err, domain.ErrInvalidRole) {
		t.Errorf("expected invalid role, got %v", err)
	}
	if _, err := buildUserFilter(ListUsersQuery{CreatedBefore: "soon"}); !errors.Is(err, domain.ErrInvalidDate) {
		t.Errorf("expected invalid date, got %v", err)
	}
}

func TestPageOptions(t *testing.T) {
	tests := []struct {
		name       string
		page       int
		limit      int
		wantOffset int
		wantLimit  int
	}{
		{"defaults", 0, 0, 0, defaultPageLimit},
		{"second page", 2, 10, 10, 10},
		{"limit capped", 1, 500, 0, maxPageLimit},
		{"negative page clamped", -3, 10, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := pageOptions(tt.page, tt.limit)
			if opts.Offset != tt.wantOffset || opts.Limit != tt.wantLimit {
				t.Errorf("got offset=%d limit=%d, want offset=%d limit=%d",
					opts.Offset, opts.Limit, tt.wantOffset, tt.wantLimit)
			}
		})
	}
}
