package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// AppealService manages point appeals and their review workflow.
type AppealService struct {
	appealRepo   repository.AppealRepository
	pointLogRepo repository.PointLogRepository
	auditRepo    repository.AuditLogRepository
	tx           repository.TxManager
	points       *PointService
	logger       zerolog.Logger
	metrics      Recorder
}

// NewAppealService creates a new AppealService.
func NewAppealService(repos *repository.Repositories, points *PointService, logger zerolog.Logger, metrics Recorder) *AppealService {
	return &AppealService{
		appealRepo:   repos.Appeal,
		pointLogRepo: repos.PointLog,
		auditRepo:    repos.AuditLog,
		tx:           repos.Tx,
		points:       points,
		logger:       logger.With().Str("service", "appeal").Logger(),
		metrics:      metrics,
	}
}

// SubmitAppealInput contains a student's appeal request.
type SubmitAppealInput struct {
	Reason string `json:"reason"`

	// PointLogID optionally names the disputed ledger entry.
	PointLogID string `json:"pointLogId"`
}

// Submit files a pending appeal on behalf of a student.
func (s *AppealService) Submit(ctx context.Context, studentID string, input SubmitAppealInput) (*domain.Appeal, error) {
	uID, err := ValidateIDFormat(studentID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, domain.NewRequiredError("reason")
	}

	appeal := domain.NewAppeal(uID, strings.TrimSpace(input.Reason))

	if input.PointLogID != "" {
		logID, err := ValidateIDFormat(input.PointLogID)
		if err != nil {
			return nil, err
		}
		entry, err := s.pointLogRepo.GetByID(ctx, logID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, domain.NewDomainError(domain.ErrAppealNotFound, "disputed entry not found", input.PointLogID)
			}
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		if entry.UserID != uID {
			return nil, domain.NewDomainError(domain.ErrAppealNotFound, "disputed entry belongs to another user", input.PointLogID)
		}
		appeal.PointLogID = &entry.ID
	}

	if err := s.appealRepo.Create(ctx, appeal); err != nil {
		s.logger.Error().Err(err).Str("user_id", studentID).Msg("failed to create appeal")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	s.logger.Info().
		Str("appeal_id", appeal.ID.String()).
		Str("user_id", studentID).
		Msg("appeal submitted")

	return appeal, nil
}

// Get retrieves an appeal by ID.
func (s *AppealService) Get(ctx context.Context, id string) (*domain.Appeal, error) {
	appealID, err := ValidateIDFormat(id)
	if err != nil {
		return nil, err
	}

	appeal, err := s.appealRepo.GetByID(ctx, appealID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrAppealNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return appeal, nil
}

// ListAppealsQuery captures appeal list criteria.
type ListAppealsQuery struct {
	UserID string
	Status string
	Page   int
	Limit  int
}

// List returns appeals matching the query.
func (s *AppealService) List(ctx context.Context, q ListAppealsQuery) (*repository.ListResult[domain.Appeal], error) {
	var filter repository.AppealFilter

	if q.UserID != "" {
		userID, err := ValidateIDFormat(q.UserID)
		if err != nil {
			return nil, err
		}
		filter.UserID = &userID
	}
	if q.Status != "" {
		status := domain.AppealStatus(q.Status)
		if !domain.ValidAppealStatus(status) {
			return nil, domain.NewDomainError(domain.ErrFieldRequired, "unknown status", q.Status)
		}
		filter.Status = &status
	}

	var result *repository.ListResult[domain.Appeal]
	err := s.metrics.TrackDBOperation(ctx, "list", "appeals", func(ctx context.Context) error {
		var err error
		result, err = s.appealRepo.List(ctx, filter, pageOptions(q.Page, q.Limit))
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list appeals")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return result, nil
}

// ReviewInput contains a reviewer's decision.
type ReviewInput struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`

	// Points overrides the compensating grant amount. When zero and the
	// appeal disputes a deduction, the deducted amount is restored.
	Points int `json:"points"`
}

// Review settles a pending appeal. Approval applies a compensating
// ledger grant inside the same unit of work.
func (s *AppealService) Review(ctx context.Context, id string, input ReviewInput, reviewerID uuid.UUID) (*domain.Appeal, error) {
	appealID, err := ValidateIDFormat(id)
	if err != nil {
		return nil, err
	}

	appeal, err := s.appealRepo.GetByID(ctx, appealID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrAppealNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !appeal.IsPending() {
		return nil, domain.ErrAppealNotPending
	}

	status := domain.AppealStatusRejected
	if input.Approve {
		status = domain.AppealStatusApproved
	}

	compensation := input.Points
	if input.Approve && compensation == 0 && appeal.PointLogID != nil {
		entry, err := s.pointLogRepo.GetByID(ctx, *appeal.PointLogID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		if entry != nil && entry.Points < 0 {
			compensation = -entry.Points
		}
	}
	if input.Approve && compensation <= 0 {
		return nil, domain.ErrInvalidPointAmount
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		appeal.Status = status
		appeal.ReviewedBy = &reviewerID
		appeal.ReviewNote = input.Note

		if err := s.appealRepo.Update(ctx, appeal); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrAppealNotFound
			}
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}

		if input.Approve {
			_, err := s.points.Grant(ctx, GrantInput{
				UserID:      appeal.UserID,
				Points:      compensation,
				Category:    domain.PointCategoryAppeal,
				Description: fmt.Sprintf("Appeal approved: %s", appeal.Reason),
				AwardedBy:   reviewerID,
				SkipAudit:   true,
			})
			if err != nil {
				return err
			}
		}

		audit := domain.NewAuditLog(reviewerID, domain.AuditActionReview, "appeal", appeal.ID, map[string]any{
			"status": string(status),
			"points": compensation,
			"note":   input.Note,
		})
		if err := s.auditRepo.Create(ctx, audit); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appeal_id", id).
		Str("status", string(status)).
		Str("reviewed_by", reviewerID.String()).
		Msg("appeal reviewed")

	return appeal, nil
}
