package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// PointService maintains the append-only reward ledger and the balance
// on the user row.
type PointService struct {
	userRepo     repository.UserRepository
	pointLogRepo repository.PointLogRepository
	auditRepo    repository.AuditLogRepository
	tx           repository.TxManager
	logger       zerolog.Logger
	metrics      Recorder
}

// NewPointService creates a new PointService.
func NewPointService(repos *repository.Repositories, logger zerolog.Logger, metrics Recorder) *PointService {
	return &PointService{
		userRepo:     repos.User,
		pointLogRepo: repos.PointLog,
		auditRepo:    repos.AuditLog,
		tx:           repos.Tx,
		logger:       logger.With().Str("service", "points").Logger(),
		metrics:      metrics,
	}
}

// GrantInput contains the data for a ledger grant or deduction.
type GrantInput struct {
	UserID      uuid.UUID
	Points      int // positive grants, negative deducts
	Category    string
	Description string

	// AwardedBy is the acting user; zero for system grants.
	AwardedBy uuid.UUID

	// QuestID links the entry to a quest completion.
	QuestID *uuid.UUID

	// SkipAudit suppresses the audit entry when the caller writes its
	// own (e.g. quest completion).
	SkipAudit bool
}

// GrantOutput contains the appended entry and the new balance.
type GrantOutput struct {
	Entry   *domain.PointLog
	Balance int
}

// Grant appends a ledger entry and adjusts the user's balance inside
// one unit of work. Deductions that would drop the balance below zero
// are refused. Nested calls join the caller's transaction.
func (s *PointService) Grant(ctx context.Context, input GrantInput) (*GrantOutput, error) {
	if input.Points == 0 {
		return nil, domain.ErrInvalidPointAmount
	}
	if input.Category == "" {
		return nil, domain.NewRequiredError("category")
	}

	var out GrantOutput

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if input.Points < 0 {
			user, err := s.userRepo.GetByID(ctx, input.UserID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.ErrUserNotFound
				}
				return fmt.Errorf("%w: %v", ErrInternal, err)
			}
			if user.Points+input.Points < 0 {
				return fmt.Errorf("%w: balance %d, requested %d", domain.ErrInsufficientPoints, user.Points, input.Points)
			}
		}

		balance, err := s.userRepo.AddPoints(ctx, input.UserID, input.Points)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}

		entry := domain.NewPointLog(input.UserID, input.Points, input.Category, input.Description)
		entry.AwardedBy = input.AwardedBy
		entry.QuestID = input.QuestID

		if err := s.pointLogRepo.Create(ctx, entry); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}

		if !input.SkipAudit {
			audit := domain.NewAuditLog(input.AwardedBy, domain.AuditActionGrant, "points", entry.ID, map[string]any{
				"userId":   input.UserID.String(),
				"points":   input.Points,
				"category": input.Category,
			})
			if err := s.auditRepo.Create(ctx, audit); err != nil {
				return fmt.Errorf("%w: %v", ErrInternal, err)
			}
		}

		out.Entry = entry
		out.Balance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", input.UserID.String()).
		Int("points", input.Points).
		Str("category", input.Category).
		Int("balance", out.Balance).
		Msg("points granted")

	return &out, nil
}

// ListByUser returns a user's ledger entries, newest first.
func (s *PointService) ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) (*repository.ListResult[domain.PointLog], error) {
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if page < 1 {
		page = 1
	}

	var result *repository.ListResult[domain.PointLog]
	err := s.metrics.TrackDBOperation(ctx, "list", "point_logs", func(ctx context.Context) error {
		var err error
		result, err = s.pointLogRepo.ListByUser(ctx, userID, repository.ListOptions{
			Offset: (page - 1) * limit,
			Limit:  limit,
		})
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to list point logs")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	return result, nil
}
