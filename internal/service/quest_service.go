package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// QuestService manages quests and quest completions.
type QuestService struct {
	questRepo    repository.QuestRepository
	pointLogRepo repository.PointLogRepository
	auditRepo    repository.AuditLogRepository
	tx           repository.TxManager
	points       *PointService
	logger       zerolog.Logger
	metrics      Recorder
}

// NewQuestService creates a new QuestService.
func NewQuestService(repos *repository.Repositories, points *PointService, logger zerolog.Logger, metrics Recorder) *QuestService {
	return &QuestService{
		questRepo:    repos.Quest,
		pointLogRepo: repos.PointLog,
		auditRepo:    repos.AuditLog,
		tx:           repos.Tx,
		points:       points,
		logger:       logger.With().Str("service", "quest").Logger(),
		metrics:      metrics,
	}
}

// CreateQuestInput contains the data needed to publish a quest.
type CreateQuestInput struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Points      int              `json:"points"`
	Type        domain.QuestType `json:"type"`
	ExpiresAt   *time.Time       `json:"expiresAt"`
}

// UpdateQuestInput contains a partial quest update.
type UpdateQuestInput struct {
	Title       *string           `json:"title"`
	Description *string           `json:"description"`
	Points      *int              `json:"points"`
	Type        *domain.QuestType `json:"type"`
	IsActive    *bool             `json:"isActive"`
	ExpiresAt   *time.Time        `json:"expiresAt"`
}

// Create publishes a new quest.
func (s *QuestService) Create(ctx context.Context, input CreateQuestInput, createdBy uuid.UUID) (*domain.Quest, error) {
	if input.Title == "" {
		return nil, domain.NewRequiredError("title")
	}
	if input.Points <= 0 {
		return nil, domain.ErrInvalidPointAmount
	}
	if !domain.ValidQuestType(input.Type) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidQuestType, input.Type)
	}

	quest := domain.NewQuest(input.Title, input.Points, input.Type, createdBy)
	quest.Description = input.Description
	quest.ExpiresAt = input.ExpiresAt

	if err := s.questRepo.Create(ctx, quest); err != nil {
		s.logger.Error().Err(err).Str("title", input.Title).Msg("failed to create quest")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	s.logger.Info().
		Str("quest_id", quest.ID.String()).
		Str("type", string(quest.Type)).
		Int("points", quest.Points).
		Msg("quest created")

	return quest, nil
}

// Get retrieves a quest by ID.
func (s *QuestService) Get(ctx context.Context, id string) (*domain.Quest, error) {
	questID, err := ValidateIDFormat(id)
	if err != nil {
		return nil, err
	}

	quest, err := s.questRepo.GetByID(ctx, questID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrQuestNotFound
		}
		s.logger.Error().Err(err).Str("quest_id", id).Msg("failed to get quest")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return quest, nil
}

// ListQuestsQuery captures quest list criteria.
type ListQuestsQuery struct {
	Type       string
	ActiveOnly bool
	CreatedBy  string
	Page       int
	Limit      int
}

// List returns quests matching the query.
func (s *QuestService) List(ctx context.Context, q ListQuestsQuery) (*repository.ListResult[domain.Quest], error) {
	filter := repository.QuestFilter{ActiveOnly: q.ActiveOnly}

	if q.Type != "" {
		questType := domain.QuestType(q.Type)
		if !domain.ValidQuestType(questType) {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidQuestType, q.Type)
		}
		filter.Type = &questType
	}
	if q.CreatedBy != "" {
		createdBy, err := ValidateIDFormat(q.CreatedBy)
		if err != nil {
			return nil, err
		}
		filter.CreatedBy = &createdBy
	}

	opts := pageOptions(q.Page, q.Limit)

	var result *repository.ListResult[domain.Quest]
	err := s.metrics.TrackDBOperation(ctx, "list", "quests", func(ctx context.Context) error {
		var err error
		result, err = s.questRepo.List(ctx, filter, opts)
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list quests")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return result, nil
}

// Update applies a partial quest update.
func (s *QuestService) Update(ctx context.Context, id string, input UpdateQuestInput) (*domain.Quest, error) {
	questID, err := ValidateIDFormat(id)
	if err != nil {
		return nil, err
	}

	quest, err := s.questRepo.GetByID(ctx, questID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrQuestNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if input.Title != nil {
		if *input.Title == "" {
			return nil, domain.NewRequiredError("title")
		}
		quest.Title = *input.Title
	}
	if input.Description != nil {
		quest.Description = *input.Description
	}
	if input.Points != nil {
		if *input.Points <= 0 {
			return nil, domain.ErrInvalidPointAmount
		}
		quest.Points = *input.Points
	}
	if input.Type != nil {
		if !domain.ValidQuestType(*input.Type) {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidQuestType, *input.Type)
		}
		quest.Type = *input.Type
	}
	if input.IsActive != nil {
		quest.IsActive = *input.IsActive
	}
	if input.ExpiresAt != nil {
		quest.ExpiresAt = input.ExpiresAt
	}

	if err := s.questRepo.Update(ctx, quest); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrQuestNotFound
		}
		s.logger.Error().Err(err).Str("quest_id", id).Msg("failed to update quest")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	s.logger.Info().Str("quest_id", id).Msg("quest updated")
	return quest, nil
}

// Delete removes a quest. Existing ledger entries keep their quest
// reference as a dangling weak link.
func (s *QuestService) Delete(ctx context.Context, id string) error {
	questID, err := ValidateIDFormat(id)
	if err != nil {
		return err
	}

	if err := s.questRepo.Delete(ctx, questID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrQuestNotFound
		}
		s.logger.Error().Err(err).Str("quest_id", id).Msg("failed to delete quest")
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	s.logger.Info().Str("quest_id", id).Msg("quest deleted")
	return nil
}

// Complete grants the quest's reward to a student. Daily and weekly
// quests can be completed once per recurrence window; special quests
// once ever.
func (s *QuestService) Complete(ctx context.Context, questID, studentID string) (*GrantOutput, error) {
	qID, err := ValidateIDFormat(questID)
	if err != nil {
		return nil, err
	}
	uID, err := ValidateIDFormat(studentID)
	if err != nil {
		return nil, err
	}

	quest, err := s.questRepo.GetByID(ctx, qID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrQuestNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := time.Now().UTC()
	if !quest.Completable(now) {
		return nil, domain.ErrQuestNotCompletable
	}

	completed, err := s.pointLogRepo.HasQuestEntrySince(ctx, uID, qID, windowStart(quest.Type, now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if completed {
		return nil, domain.ErrQuestAlreadyCompleted
	}

	var out *GrantOutput
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		out, err = s.points.Grant(ctx, GrantInput{
			UserID:      uID,
			Points:      quest.Points,
			Category:    domain.PointCategoryQuest,
			Description: quest.Title,
			QuestID:     &qID,
			SkipAudit:   true,
		})
		if err != nil {
			return err
		}

		audit := domain.NewAuditLog(uID, domain.AuditActionGrant, "quest", qID, map[string]any{
			"points": quest.Points,
			"title":  quest.Title,
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
		Str("quest_id", questID).
		Str("user_id", studentID).
		Int("points", quest.Points).
		Msg("quest completed")

	return out, nil
}

// windowStart returns the beginning of the recurrence window for a
// quest type: midnight for daily, Monday midnight for weekly, the zero
// time (once ever) for special.
func windowStart(questType domain.QuestType, now time.Time) time.Time {
	switch questType {
	case domain.QuestTypeDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case domain.QuestTypeWeekly:
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday belongs to the preceding Monday-start week
		}
		return midnight.AddDate(0, 0, -(weekday - 1))
	default:
		return time.Time{}
	}
}
