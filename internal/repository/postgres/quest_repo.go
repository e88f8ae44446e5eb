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

// questRepository implements repository.QuestRepository for PostgreSQL.
type questRepository struct {
	db *DB
}

// NewQuestRepository creates a new PostgreSQL quest repository.
func NewQuestRepository(db *DB) repository.QuestRepository {
	return &questRepository{db: db}
}

const questColumns = `id, title, description, points, type, created_by, is_active, expires_at, created_at, updated_at`

// Create creates a new quest.
func (r *questRepository) Create(ctx context.Context, quest *domain.Quest) error {
	query := `
		INSERT INTO quests (` + questColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.querier(ctx).Exec(ctx, query,
		quest.ID,
		quest.Title,
		quest.Description,
		quest.Points,
		string(quest.Type),
		quest.CreatedBy,
		quest.IsActive,
		quest.ExpiresAt,
		quest.CreatedAt,
		quest.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create quest: %w", translateError(err))
	}

	return nil
}

// GetByID retrieves a quest by ID.
func (r *questRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests WHERE id = $1`

	quest, err := scanQuest(r.db.querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get quest by ID: %w", translateError(err))
	}
	return quest, nil
}

// Update updates an existing quest.
func (r *questRepository) Update(ctx context.Context, quest *domain.Quest) error {
	quest.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE quests
		SET title = $2, description = $3, points = $4, type = $5,
		    is_active = $6, expires_at = $7, updated_at = $8
		WHERE id = $1
	`

	tag, err := r.db.querier(ctx).Exec(ctx, query,
		quest.ID,
		quest.Title,
		quest.Description,
		quest.Points,
		string(quest.Type),
		quest.IsActive,
		quest.ExpiresAt,
		quest.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update quest: %w", translateError(err))
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete deletes a quest by ID.
func (r *questRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.querier(ctx).Exec(ctx, `DELETE FROM quests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete quest: %w", translateError(err))
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// List returns quests matching the filter with pagination.
func (r *questRepository) List(ctx context.Context, filter repository.QuestFilter, opts repository.ListOptions) (*repository.ListResult[domain.Quest], error) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Type != nil {
		conds = append(conds, fmt.Sprintf("type = %s", arg(string(*filter.Type))))
	}
	if filter.ActiveOnly {
		conds = append(conds, fmt.Sprintf("is_active = TRUE AND (expires_at IS NULL OR expires_at > %s)", arg(time.Now().UTC())))
	}
	if filter.CreatedBy != nil {
		conds = append(conds, fmt.Sprintf("created_by = %s", arg(*filter.CreatedBy)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM quests`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count quests: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(
		`SELECT %s FROM quests%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		questColumns, where, len(args)-1, len(args),
	)

	rows, err := r.db.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	defer rows.Close()

	var quests []*domain.Quest
	for rows.Next() {
		quest, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest: %w", err)
		}
		quests = append(quests, quest)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quests: %w", err)
	}

	return &repository.ListResult[domain.Quest]{
		Items:  quests,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// scanQuest reads a full quest row.
func scanQuest(row pgx.Row) (*domain.Quest, error) {
	quest := &domain.Quest{}
	var questType string

	err := row.Scan(
		&quest.ID,
		&quest.Title,
		&quest.Description,
		&quest.Points,
		&questType,
		&quest.CreatedBy,
		&quest.IsActive,
		&quest.ExpiresAt,
		&quest.CreatedAt,
		&quest.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	quest.Type = domain.QuestType(questType)
	return quest, nil
}

// Ensure questRepository implements repository.QuestRepository.
var _ repository.QuestRepository = (*questRepository)(nil)
