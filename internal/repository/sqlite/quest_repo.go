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

// questRepository implements repository.QuestRepository for SQLite.
type questRepository struct {
	db *DB
}

// NewQuestRepository creates a new SQLite quest repository.
func NewQuestRepository(db *DB) repository.QuestRepository {
	return &questRepository{db: db}
}

const questColumns = `id, title, description, points, type, created_by, is_active, expires_at, created_at, updated_at`

// Create creates a new quest.
func (r *questRepository) Create(ctx context.Context, quest *domain.Quest) error {
	query := `
		INSERT INTO quests (` + questColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.querier(ctx).ExecContext(ctx, query,
		quest.ID.String(),
		quest.Title,
		quest.Description,
		quest.Points,
		string(quest.Type),
		quest.CreatedBy.String(),
		boolToInt(quest.IsActive),
		formatTimePtr(quest.ExpiresAt),
		formatTime(quest.CreatedAt),
		formatTime(quest.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create quest: %w", translateError(err))
	}

	return nil
}

// GetByID retrieves a quest by ID.
func (r *questRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests WHERE id = ?`

	quest, err := scanQuest(r.db.querier(ctx).QueryRowContext(ctx, query, id.String()))
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
		SET title = ?, description = ?, points = ?, type = ?,
		    is_active = ?, expires_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.querier(ctx).ExecContext(ctx, query,
		quest.Title,
		quest.Description,
		quest.Points,
		string(quest.Type),
		boolToInt(quest.IsActive),
		formatTimePtr(quest.ExpiresAt),
		formatTime(quest.UpdatedAt),
		quest.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update quest: %w", translateError(err))
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

// Delete deletes a quest by ID.
func (r *questRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.querier(ctx).ExecContext(ctx, `DELETE FROM quests WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete quest: %w", translateError(err))
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

// List returns quests matching the filter with pagination.
func (r *questRepository) List(ctx context.Context, filter repository.QuestFilter, opts repository.ListOptions) (*repository.ListResult[domain.Quest], error) {
	var conds []string
	var args []any

	if filter.Type != nil {
		conds = append(conds, "type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.ActiveOnly {
		conds = append(conds, "is_active = 1 AND (expires_at IS NULL OR expires_at > ?)")
		args = append(args, formatTime(time.Now()))
	}
	if filter.CreatedBy != nil {
		conds = append(conds, "created_by = ?")
		args = append(args, filter.CreatedBy.String())
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.querier(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM quests`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count quests: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(
		`SELECT %s FROM quests%s ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		questColumns, where,
	)

	rows, err := r.db.querier(ctx).QueryContext(ctx, query, args...)
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
func scanQuest(row rowScanner) (*domain.Quest, error) {
	quest := &domain.Quest{}
	var (
		id, questType, createdBy, createdAt, updatedAt string
		isActive                                       int
		expiresAt                                      sql.NullString
	)

	err := row.Scan(
		&id,
		&quest.Title,
		&quest.Description,
		&quest.Points,
		&questType,
		&createdBy,
		&isActive,
		&expiresAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if quest.ID, err = parseUUID(id); err != nil {
		return nil, err
	}
	quest.Type = domain.QuestType(questType)
	if quest.CreatedBy, err = parseUUID(createdBy); err != nil {
		return nil, err
	}
	quest.IsActive = isActive != 0
	if quest.ExpiresAt, err = parseTimePtr(expiresAt); err != nil {
		return nil, err
	}
	if quest.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if quest.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return quest, nil
}

// Ensure questRepository implements repository.QuestRepository.
var _ repository.QuestRepository = (*questRepository)(nil)
