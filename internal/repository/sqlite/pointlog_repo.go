package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// pointLogRepository implements repository.PointLogRepository for SQLite.
type pointLogRepository struct {
	db *DB
}

// NewPointLogRepository creates a new SQLite point log repository.
func NewPointLogRepository(db *DB) repository.PointLogRepository {
	return &pointLogRepository{db: db}
}

// Create appends a ledger entry.
func (r *pointLogRepository) Create(ctx context.Context, entry *domain.PointLog) error {
	query := `
		INSERT INTO point_logs (id, user_id, points, category, description, awarded_by, quest_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.querier(ctx).ExecContext(ctx, query,
		entry.ID.String(),
		entry.UserID.String(),
		entry.Points,
		entry.Category,
		entry.Description,
		actorString(entry.AwardedBy),
		uuidPtrString(entry.QuestID),
		formatTime(entry.CreatedAt),
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
		WHERE id = ?
	`

	entry := &domain.PointLog{}
	var rowID, uid, createdAt string
	var awardedBy, questID sql.NullString

	err := r.db.querier(ctx).QueryRowContext(ctx, query, id.String()).Scan(
		&rowID,
		&uid,
		&entry.Points,
		&entry.Category,
		&entry.Description,
		&awardedBy,
		&questID,
		&createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get point log: %w", translateError(err))
	}

	if entry.ID, err = parseUUID(rowID); err != nil {
		return nil, err
	}
	if entry.UserID, err = parseUUID(uid); err != nil {
		return nil, err
	}
	if awardedBy.Valid {
		if entry.AwardedBy, err = parseUUID(awardedBy.String); err != nil {
			return nil, err
		}
	}
	if entry.QuestID, err = parseUUIDPtr(questID); err != nil {
		return nil, err
	}
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListByUser returns a user's ledger entries, newest first.
func (r *pointLogRepository) ListByUser(ctx context.Context, userID uuid.UUID, opts repository.ListOptions) (*repository.ListResult[domain.PointLog], error) {
	var total int64
	if err := r.db.querier(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM point_logs WHERE user_id = ?`, userID.String(),
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count point logs: %w", err)
	}

	query := `
		SELECT id, user_id, points, category, description, awarded_by, quest_id, created_at
		FROM point_logs
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.querier(ctx).QueryContext(ctx, query, userID.String(), opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list point logs: %w", err)
	}
	defer rows.Close()

	var entries []*domain.PointLog
	for rows.Next() {
		entry := &domain.PointLog{}
		var id, uid, createdAt string
		var awardedBy, questID sql.NullString

		err := rows.Scan(
			&id,
			&uid,
			&entry.Points,
			&entry.Category,
			&entry.Description,
			&awardedBy,
			&questID,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan point log: %w", err)
		}

		if entry.ID, err = parseUUID(id); err != nil {
			return nil, err
		}
		if entry.UserID, err = parseUUID(uid); err != nil {
			return nil, err
		}
		if awardedBy.Valid {
			if entry.AwardedBy, err = parseUUID(awardedBy.String); err != nil {
				return nil, err
			}
		}
		if entry.QuestID, err = parseUUIDPtr(questID); err != nil {
			return nil, err
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
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
	err := r.db.querier(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM point_logs WHERE user_id = ? AND quest_id = ? AND created_at >= ?`,
		userID.String(), questID.String(), formatTime(since),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check quest completion: %w", err)
	}
	return count > 0, nil
}

// Ensure pointLogRepository implements repository.PointLogRepository.
var _ repository.PointLogRepository = (*pointLogRepository)(nil)
