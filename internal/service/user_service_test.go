package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/cache/memory"
	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

const testPassword = "hunter42secret"

func newTestUserService(t *testing.T) (*UserService, *fakeUserRepo, *fakePointLogRepo, *fakeAuditRepo) {
	t.Helper()

	repos, users, points, _, _, audits := newFakeRepos()
	cache := memory.NewCache()
	t.Cleanup(cache.Stop)

	logger := zerolog.Nop()
	pointService := NewPointService(repos, logger, NoopRecorder{})
	validator := NewValidator(repos.User, true)

	svc := NewUserService(repos, pointService, validator, cache, UserServiceOptions{
		BcryptCost: 4, // minimum cost keeps the tests fast
		UserTTL:    time.Minute,
		ListTTL:    time.Minute,
	}, logger, NoopRecorder{})

	return svc, users, points, audits
}

func studentInput(nisn, username string) CreateUserInput {
	return CreateUserInput{
		NISN:      nisn,
		Username:  username,
		Password:  testPassword,
		FirstName: "Test",
		LastName:  "Student",
		Roles:     []domain.Role{domain.RoleStudent},
	}
}

func TestUserService_Create_StudentWelcomeBonus(t *testing.T) {
	svc, _, points, _ := newTestUserService(t)

	user, err := svc.Create(context.Background(), studentInput("1234567890", "budi"), uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if user.Points != domain.WelcomeBonusPoints {
		t.Errorf("expected balance %d, got %d", domain.WelcomeBonusPoints, user.Points)
	}

	entries := points.byUser(user.ID)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Points != domain.WelcomeBonusPoints {
		t.Errorf("expected %d points, got %d", domain.WelcomeBonusPoints, entry.Points)
	}
	if entry.Category != domain.WelcomeBonusCategory {
		t.Errorf("expected category %q, got %q", domain.WelcomeBonusCategory, entry.Category)
	}
}

func TestUserService_Create_NonStudentNoBonus(t *testing.T) {
	svc, _, points, _ := newTestUserService(t)

	input := studentInput("2234567890", "ibu-guru")
	input.Roles = []domain.Role{domain.RoleTeacher}

	user, err := svc.Create(context.Background(), input, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if user.Points != 0 {
		t.Errorf("expected zero balance, got %d", user.Points)
	}
	if entries := points.byUser(user.ID); len(entries) != 0 {
		t.Errorf("expected no ledger entries, got %d", len(entries))
	}
}

func TestUserService_Create_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateUserInput)
		wantErr error
	}{
		{
			name:    "missing nisn",
			mutate:  func(in *CreateUserInput) { in.NISN = "" },
			wantErr: ErrNISNRequired,
		},
		{
			name:    "empty roles",
			mutate:  func(in *CreateUserInput) { in.Roles = nil },
			wantErr: domain.ErrRolesEmpty,
		},
		{
			name:    "unknown role",
			mutate:  func(in *CreateUserInput) { in.Roles = []domain.Role{"janitor"} },
			wantErr: domain.ErrInvalidRole,
		},
		{
			name:    "weak password",
			mutate:  func(in *CreateUserInput) { in.Password = "short" },
			wantErr: ErrInvalidPassword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, _ := newTestUserService(t)

			input := studentInput("3234567890", "siti")
			tt.mutate(&input)

			_, err := svc.Create(context.Background(), input, uuid.Nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestUserService_Create_DuplicateUsername(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, studentInput("4234567890", "andi"), uuid.Nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same username, different case.
	_, err := svc.Create(ctx, studentInput("4234567891", "ANDI"), uuid.Nil)
	if !errors.Is(err, domain.ErrDuplicateField) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %T", err)
	}
	if domainErr.Field != "username" {
		t.Errorf("expected field username, got %q", domainErr.Field)
	}
}

func TestUserService_Create_DuplicateNISN(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, studentInput("5234567890", "citra"), uuid.Nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := svc.Create(ctx, studentInput("5234567890", "dewi"), uuid.Nil)
	if !errors.Is(err, domain.ErrDuplicateField) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestUserService_CreateBulk_PartialSuccess(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	ctx := context.Background()

	// Pre-existing user collides with one batch entry.
	if _, err := svc.Create(ctx, studentInput("6234567890", "eka"), uuid.Nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inputs := []CreateUserInput{
		studentInput("6234567891", "fajar"),
		studentInput("6234567890", "gita"), // duplicate NISN
		studentInput("6234567892", "hadi"),
	}

	result, err := svc.CreateBulk(ctx, inputs, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Created) != 2 {
		t.Errorf("expected 2 created, got %d", len(result.Created))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(result.Errors))
	}
	if result.Errors[0].Index != 1 {
		t.Errorf("expected error at index 1, got %d", result.Errors[0].Index)
	}
	if result.Errors[0].NISN != "6234567890" {
		t.Errorf("expected NISN 6234567890, got %s", result.Errors[0].NISN)
	}
}

func TestUserService_CreateBulk_InBatchDuplicateFailsWholeBatch(t *testing.T) {
	svc, users, _, _ := newTestUserService(t)

	inputs := []CreateUserInput{
		studentInput("7234567890", "indra"),
		studentInput("7234567890", "joko"), // duplicate within the batch
	}

	_, err := svc.CreateBulk(context.Background(), inputs, uuid.Nil)
	if !errors.Is(err, domain.ErrDuplicateField) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	users.mu.Lock()
	stored := len(users.users)
	users.mu.Unlock()
	if stored != 0 {
		t.Errorf("expected no users created, got %d", stored)
	}
}

func TestUserService_Get(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, studentInput("8234567890", "kiki"), uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.Get(ctx, created.ID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Username != "kiki" {
		t.Errorf("expected username kiki, got %s", got.Username)
	}

	if _, err := svc.Get(ctx, uuid.NewString()); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := svc.Get(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrInvalidID) {
		t.Errorf("expected invalid id, got %v", err)
	}
}

func TestUserService_Update_PartialNonDestructive(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	ctx := context.Background()

	input := studentInput("9234567890", "lala")
	input.ClassID = uuid.NewString()
	created, err := svc.Create(ctx, input, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	newName := "Lailatul"
	updated, err := svc.Update(ctx, created.ID.String(), UpdateUserInput{
		FirstName: &newName,
	}, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.FirstName != newName {
		t.Errorf("expected first name %s, got %s", newName, updated.FirstName)
	}
	if updated.LastName != created.LastName {
		t.Errorf("last name changed: expected %s, got %s", created.LastName, updated.LastName)
	}
	if updated.Username != created.Username {
		t.Errorf("username changed: expected %s, got %s", created.Username, updated.Username)
	}
	if updated.ClassID == nil || *updated.ClassID != *created.ClassID {
		t.Error("class membership lost on partial update")
	}
	if updated.Points != created.Points {
		t.Errorf("balance changed: expected %d, got %d", created.Points, updated.Points)
	}
}

func TestUserService_Update_UsernameConflict(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, studentInput("1034567890", "mira"), uuid.Nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Create(ctx, studentInput("1034567891", "nina"), uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	taken := "mira"
	_, err = svc.Update(ctx, second.ID.String(), UpdateUserInput{Username: &taken}, uuid.Nil)
	if !errors.Is(err, domain.ErrDuplicateField) {
		t.Errorf("expected duplicate error, got %v", err)
	}
}

func TestUserService_Get_FreshAfterUpdate(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, studentInput("1134567890", "oki"), uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Prime the cache.
	if _, err := svc.Get(ctx, created.ID.String()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	newName := "Oktavia"
	if _, err := svc.Update(ctx, created.ID.String(), UpdateUserInput{FirstName: &newName}, uuid.Nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.Get(ctx, created.ID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.FirstName != newName {
		t.Errorf("read served stale data: expected %s, got %s", newName, got.FirstName)
	}
}

func TestUserService_ArchiveRestore_Idempotent(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, studentInput("1234567801", "putra"), uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id := created.ID.String()

	for i := 0; i < 2; i++ {
		user, err := svc.Archive(ctx, id, uuid.Nil)
		if err != nil {
			t.Fatalf("archive %d: unexpected error: %v", i, err)
		}
		if !user.IsArchived {
			t.Fatalf("archive %d: user not archived", i)
		}
	}

	for i := 0; i < 2; i++ {
		user, err := svc.Restore(ctx, id, uuid.Nil)
		if err != nil {
			t.Fatalf("restore %d: unexpected error: %v", i, err)
		}
		if user.IsArchived {
			t.Fatalf("restore %d: user still archived", i)
		}
	}
}

func TestUserService_ArchivedExcludedFromList(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, studentInput("1334567890", "qori"), uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Archive(ctx, created.ID.String(), uuid.Nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page, err := svc.List(ctx, ListUsersQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("expected archived user excluded, got total %d", page.Total)
	}

	page, err = svc.List(ctx, ListUsersQuery{IncludeArchived: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("expected archived user included, got total %d", page.Total)
	}
}

func TestUserService_Delete(t *testing.T) {
	svc, _, _, audits := newTestUserService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, studentInput("1434567890", "rudi"), uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Delete(ctx, created.ID.String(), uuid.Nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Get(ctx, created.ID.String()); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := svc.Delete(ctx, created.ID.String(), uuid.Nil); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected not found on repeat delete, got %v", err)
	}

	if entries := audits.byAction(domain.AuditActionDelete); len(entries) != 1 {
		t.Errorf("expected one delete audit entry, got %d", len(entries))
	}
}

func TestUserService_PasswordNeverSerialized(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)

	user, err := svc.Create(context.Background(), studentInput("1534567890", "sari"), uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := strings.ToLower(string(data))
	for _, needle := range []string{"password", "resettoken", "lockeduntil"} {
		if strings.Contains(body, needle) {
			t.Errorf("serialized user leaks %q: %s", needle, body)
		}
	}
}

func TestUserService_Create_DBUniqueBackstop(t *testing.T) {
	// The application-layer check can miss a concurrent insert; the
	// repository's duplicate error must still surface as a conflict.
	svc, users, _, _ := newTestUserService(t)

	users.createErr = repository.ErrDuplicateKey
	_, err := svc.Create(context.Background(), studentInput("1634567890", "tono"), uuid.Nil)
	if !errors.Is(err, domain.ErrDuplicateField) {
		t.Errorf("expected duplicate error, got %v", err)
	}
}
