package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// appealRepository implements repository.AppealRepository for PostgreSQL.
type appealRepository struct {
	db *DB
}

// NewAppealRepository creates a new PostgreSQL appeal repository.
func NewAppealRepository(db *DB) repository.AppealRepository {
	return &appealRepository{db: db}
}

const appealColumns = `id, user_id, point_log_id, reason, status, reviewed_by, review_note, created_at, updated_at`

// Create creates a new appeal.
func (r *appealRepository) Create(ctx context.Context, appeal *domain.Appeal) error {
	query := `
		INSERT INTO appeals (` + appealColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.querier(ctx).Exec(ctx, query,
		appeal.ID,
		appeal.UserID,
		nullableUUID(appeal.PointLogID),
		appeal.Reason,
		string(appeal.Status),
		nullableUUID(appeal.ReviewedBy),
		appeal.ReviewNote,
		appeal.CreatedAt,
		appeal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appeal: %w", translateError(err))
	}

	return nil
}

// GetByID retrieves an appeal by ID.
func (r *appealRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Appeal, error) {
	query := `SELECT ` + appealColumns + ` FROM appeals WHERE id = $1`

	appeal, err := scanAppeal(r.db.querier(ctx).QueryRow(ctx, query, id))
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
		SET status = $2, reviewed_by = $3, review_note = $4, updated_at = $5
		WHERE id = $1
	`

	tag, err := r.db.querier(ctx).Exec(ctx, query,
		appeal.ID,
		string(appeal.Status),
		nullableUUID(appeal.ReviewedBy),
		appeal.ReviewNote,
		appeal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update appeal: %w", translateError(err))
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// List returns appeals matching the filter with pagination.
func (r *appealRepository) List(ctx context.Context, filter repository.AppealFilter, opts repository.ListOptions) (*repository.ListResult[domain.Appeal], error) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != nil {
		conds = append(conds, fmt.Sprintf("user_id = %s", arg(*filter.UserID)))
	}
	if filter.Status != nil {
		conds = append(conds, fmt.Sprintf("status = %s", arg(string(*filter.Status))))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appeals`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count appeals: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(
		`SELECT %s FROM appeals%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		appealColumns, where, len(args)-1, len(args),
	)

	rows, err := r.db.querier(ctx).Query(ctx, query, args...)
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
func scanAppeal(row pgx.Row) (*domain.Appeal, error) {
	appeal := &domain.Appeal{}
	var status string
	var pointLogID, reviewedBy uuid.NullUUID

	err := row.Scan(
		&appeal.ID,
		&appeal.UserID,
		&pointLogID,
		&appeal.Reason,
		&status,
		&reviewedBy,
		&appeal.ReviewNote,
		&appeal.CreatedAt,
		&appeal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	appeal.Status = domain.AppealStatus(status)
	if pointLogID.Valid {
		id := pointLogID.UUID
		appeal.PointLogID = &id
	}
	if reviewedBy.Valid {
		id := reviewedBy.UUID
		appeal.ReviewedBy = &id
	}

	return appeal, nil
}

// Ensure appealRepository implements repository.AppealRepository.
var _ repository.AppealRepository = (*appealRepository)(nil)
