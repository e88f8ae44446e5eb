package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/domain"
)

func seedUser(t *testing.T, users *fakeUserRepo, points int) *domain.User {
	t.Helper()

	user := domain.NewUser(uuid.NewString(), "hash", []domain.Role{domain.RoleStudent})
	user.Username = uuid.NewString()
	user.FirstName = "Seed"
	user.LastName = "User"
	user.Points = points
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func TestPointService_Grant(t *testing.T) {
	repos, users, pointLogs, _, _, audits := newFakeRepos()
	svc := NewPointService(repos, zerolog.Nop(), NoopRecorder{})
	user := seedUser(t, users, 0)

	out, err := svc.Grant(context.Background(), GrantInput{
		UserID:      user.ID,
		Points:      25,
		Category:    domain.PointCategoryManual,
		Description: "cleaned the lab",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Balance != 25 {
		t.Errorf("expected balance 25, got %d", out.Balance)
	}
	if out.Entry.Points != 25 {
		t.Errorf("expected entry points 25, got %d", out.Entry.Points)
	}
	if len(pointLogs.byUser(user.ID)) != 1 {
		t.Errorf("expected one ledger entry")
	}
	if len(audits.byAction(domain.AuditActionGrant)) != 1 {
		t.Errorf("expected one grant audit entry")
	}
}

func TestPointService_Grant_DeductionFloor(t *testing.T) {
	repos, users, pointLogs, _, _, _ := newFakeRepos()
	svc := NewPointService(repos, zerolog.Nop(), NoopRecorder{})
	user := seedUser(t, users, 10)

	_, err := svc.Grant(context.Background(), GrantInput{
		UserID:   user.ID,
		Points:   -15,
		Category: domain.PointCategoryPenalty,
	})
	if !errors.Is(err, domain.ErrInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}

	// The refused deduction must not touch the ledger or the balance.
	if len(pointLogs.byUser(user.ID)) != 0 {
		t.Errorf("expected empty ledger after refused deduction")
	}
	stored, err := users.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Points != 10 {
		t.Errorf("expected balance unchanged at 10, got %d", stored.Points)
	}
}

func TestPointService_Grant_DeductionToZero(t *testing.T) {
	repos, users, _, _, _, _ := newFakeRepos()
	svc := NewPointService(repos, zerolog.Nop(), NoopRecorder{})
	user := seedUser(t, users, 10)

	out, err := svc.Grant(context.Background(), GrantInput{
		UserID:   user.ID,
		Points:   -10,
		Category: domain.PointCategoryPenalty,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Balance != 0 {
		t.Errorf("expected balance 0, got %d", out.Balance)
	}
}

func TestPointService_Grant_Validation(t *testing.T) {
	repos, users, _, _, _, _ := newFakeRepos()
	svc := NewPointService(repos, zerolog.Nop(), NoopRecorder{})
	user := seedUser(t, users, 0)

	tests := []struct {
		name    string
		input   GrantInput
		wantErr error
	}{
		{
			name:    "zero points",
			input:   GrantInput{UserID: user.ID, Points: 0, Category: domain.PointCategoryManual},
			wantErr: domain.ErrInvalidPointAmount,
		},
		{
			name:    "missing category",
			input:   GrantInput{UserID: user.ID, Points: 5},
			wantErr: domain.ErrFieldRequired,
		},
		{
			name:    "unknown user",
			input:   GrantInput{UserID: uuid.New(), Points: 5, Category: domain.PointCategoryManual},
			wantErr: domain.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Grant(context.Background(), tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPointService_ListByUser(t *testing.T) {
	repos, users, _, _, _, _ := newFakeRepos()
	svc := NewPointService(repos, zerolog.Nop(), NoopRecorder{})
	user := seedUser(t, users, 0)

	for i := 0; i < 3; i++ {
		if _, err := svc.Grant(context.Background(), GrantInput{
			UserID:   user.ID,
			Points:   10,
			Category: domain.PointCategoryManual,
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	result, err := svc.ListByUser(context.Background(), user.ID, 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 3 {
		t.Errorf("expected total 3, got %d", result.Total)
	}
	if len(result.Items) != 2 {
		t.Errorf("expected 2 items on page, got %d", len(result.Items))
	}
}
