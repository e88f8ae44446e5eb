package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// appealRepository implements repository.AppealRepository for SQLite.
type appealRepository struct {
	db *DB
}

// NewAppealRepository creates a new SQLite appeal repository.
func NewAppealRepository(db *DB) repository.AppealRepository {
	return &appealRepository{db: db}
}

const appealColumns = `id, user_id, point_log_id, reason, status, reviewed_by, review_note, created_at, updated_at`

// Create creates a new appeal.
func (r *appealRepository) Create(ctx context.Context, appeal *domain.Appeal) error {
	query := `
		INSERT INTO appeals (` + appealColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.querier(ctx).ExecContext(ctx, query,
		appeal.ID.String(),
		appeal.UserID.String(),
		uuidPtrString(appeal.PointLogID),
		appeal.Reason,
		string(appeal.Status),
		uuidPtrString(appeal.ReviewedBy),
		appeal.ReviewNote,
		formatTime(appeal.CreatedAt),
		formatTime(appeal.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create appeal: %w", translateError(err))
	}

	return nil
}

// GetByID retrieves an appeal by ID.
func (r *appealRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Appeal, error) {
	query := `SELECT ` + appealColumns + ` FROM appeals WHERE id = ?`

	appeal, err := scanAppeal(r.db.querier(ctx).QueryRowContext(ctx, query, id.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to get appeal by ID: %w", translateError(err))
	}
	return appeal, nil
}

// Update updates an existing appeal.
func (r *appealRepository) Update(ctx context.Context, appeal *domain.Appeal) error {
	appeal.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE appeals
		SET status = ?, reviewed_by = ?, review_note = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.querier(ctx).ExecContext(ctx, query,
		string(appeal.Status),
		uuidPtrString(appeal.ReviewedBy),
		appeal.ReviewNote,
		formatTime(appeal.UpdatedAt),
		appeal.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update appeal: %w", translateError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// List returns appeals matching the filter with pagination.
func (r *appealRepository) List(ctx context.Context, filter repository.AppealFilter, opts repository.ListOptions) (*repository.ListResult[domain.Appeal], error) {
	var conds []string
	var args []any

	if filter.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID.String())
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.querier(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM appeals`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count appeals: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(
		`SELECT %s FROM appeals%s ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		appealColumns, where,
	)

	rows, err := r.db.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appeals: %w", err)
	}
	defer rows.Close()

	var appeals []*domain.Appeal
	for rows.Next() {
		appeal, err := scanAppeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appeal: %w", err)
		}
		appeals = append(appeals, appeal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating appeals: %w", err)
	}

	return &repository.ListResult[domain.Appeal]{
		Items:  appeals,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// scanAppeal reads a full appeal row.
func scanAppeal(row rowScanner) (*domain.Appeal, error) {
	appeal := &domain.Appeal{}
	var (
		id, userID, status, createdAt, updatedAt string
		pointLogID, reviewedBy                   sql.NullString
	)

	err := row.Scan(
		&id,
		&userID,
		&pointLogID,
		&appeal.Reason,
		&status,
		&reviewedBy,
		&appeal.ReviewNote,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if appeal.ID, err = parseUUID(id); err != nil {
		return nil, err
	}
	if appeal.UserID, err = parseUUID(userID); err != nil {
		return nil, err
	}
	appeal.Status = domain.AppealStatus(status)
	if appeal.PointLogID, err = parseUUIDPtr(pointLogID); err != nil {
		return nil, err
	}
	if appeal.ReviewedBy, err = parseUUIDPtr(reviewedBy); err != nil {
		return nil, err
	}
	if appeal.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if appeal.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return appeal, nil
}

// Ensure appealRepository implements repository.AppealRepository.
var _ repository.AppealRepository = (*appealRepository)(nil)
