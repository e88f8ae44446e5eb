package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// AuditService exposes read access to the append-only audit trail.
type AuditService struct {
	auditRepo repository.AuditLogRepository
	logger    zerolog.Logger
	metrics   Recorder
}

// NewAuditService creates a new AuditService.
func NewAuditService(repos *repository.Repositories, logger zerolog.Logger, metrics Recorder) *AuditService {
	return &AuditService{
		auditRepo: repos.AuditLog,
		logger:    logger.With().Str("service", "audit").Logger(),
		metrics:   metrics,
	}
}

// ListAuditLogsQuery captures audit trail query criteria.
type ListAuditLogsQuery struct {
	UserID   string
	Resource string
	Action   string
	After    string
	Before   string
	Page     int
	Limit    int
}

// List returns audit entries matching the query, newest first.
func (s *AuditService) List(ctx context.Context, q ListAuditLogsQuery) (*repository.ListResult[domain.AuditLog], error) {
	filter := repository.AuditFilter{
		Resource: q.Resource,
		Action:   q.Action,
	}

	if q.UserID != "" {
		userID, err := ValidateIDFormat(q.UserID)
		if err != nil {
			return nil, err
		}
		filter.UserID = &userID
	}

	var err error
	if filter.After, err = parseDatePtr(q.After); err != nil {
		return nil, fmt.Errorf("%w: after", domain.ErrInvalidDate)
	}
	if filter.Before, err = parseDatePtr(q.Before); err != nil {
		return nil, fmt.Errorf("%w: before", domain.ErrInvalidDate)
	}

	var result *repository.ListResult[domain.AuditLog]
	err = s.metrics.TrackDBOperation(ctx, "list", "audit_logs", func(ctx context.Context) error {
		var err error
		result, err = s.auditRepo.List(ctx, filter, pageOptions(q.Page, q.Limit))
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list audit logs")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return result, nil
}
