package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// pointLogRepository implements repository.PointLogRepository for PostgreSQL.
type pointLogRepository struct {
	db *DB
}

// NewPointLogRepository creates a new PostgreSQL point log repository.
func NewPointLogRepository(db *DB) repository.PointLogRepository {
	return &pointLogRepository{db: db}
}

// Create appends a ledger entry.
func (r *pointLogRepository) Create(ctx context.Context, entry *domain.PointLog) error {
	query := `
		INSERT INTO point_logs (id, user_id, points, category, description, awarded_by, quest_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.querier(ctx).Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Points,
		entry.Category,
		entry.Description,
		nullableActorUUID(entry.AwardedBy),
		nullableUUID(entry.QuestID),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create point log: %w", translateError(err))
	}

	return nil
}

// GetByID retrieves a single ledger entry.
func (r *pointLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PointLog, error) {
	query := `
		SELECT id, user_id, points, category, description, awarded_by, quest_id, created_at
		FROM point_logs
		WHERE id = $1
	`

	entry := &domain.PointLog{}
	var awardedBy, questID uuid.NullUUID

	err := r.db.querier(ctx).QueryRow(ctx, query, id).Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Points,
		&entry.Category,
		&entry.Description,
		&awardedBy,
		&questID,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get point log: %w", translateError(err))
	}

	if awardedBy.Valid {
		entry.AwardedBy = awardedBy.UUID
	}
	if questID.Valid {
		qid := questID.UUID
		entry.QuestID = &qid
	}
	return entry, nil
}

// ListByUser returns a user's ledger entries, newest first.
func (r *pointLogRepository) ListByUser(ctx context.Context, userID uuid.UUID, opts repository.ListOptions) (*repository.ListResult[domain.PointLog], error) {
	var total int64
	if err := r.db.querier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM point_logs WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count point logs: %w", err)
	}

	query := `
		SELECT id, user_id, points, category, description, awarded_by, quest_id, created_at
		FROM point_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.querier(ctx).Query(ctx, query, userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list point logs: %w", err)
	}
	defer rows.Close()

	var entries []*domain.PointLog
	for rows.Next() {
		entry := &domain.PointLog{}
		var awardedBy, questID uuid.NullUUID

		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Points,
			&entry.Category,
			&entry.Description,
			&awardedBy,
			&questID,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan point log: %w", err)
		}

		if awardedBy.Valid {
			entry.AwardedBy = awardedBy.UUID
		}
		if questID.Valid {
			id := questID.UUID
			entry.QuestID = &id
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating point logs: %w", err)
	}

	return &repository.ListResult[domain.PointLog]{
		Items:  entries,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// HasQuestEntrySince reports whether the user already has an entry for
// the quest at or after the given time.
func (r *pointLogRepository) HasQuestEntrySince(ctx context.Context, userID, questID uuid.UUID, since time.Time) (bool, error) {
	var count int
	err := r.db.querier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM point_logs WHERE user_id = $1 AND quest_id = $2 AND created_at >= $3`,
		userID, questID, since,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check quest completion: %w", err)
	}
	return count > 0, nil
}

// nullableActorUUID maps the zero UUID (system actor) to NULL.
func nullableActorUUID(id uuid.UUID) uuid.NullUUID {
	if id == uuid.Nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}

// Ensure pointLogRepository implements repository.PointLogRepository.
var _ repository.PointLogRepository = (*pointLogRepository)(nil)
