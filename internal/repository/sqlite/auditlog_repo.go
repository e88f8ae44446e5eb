package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// auditLogRepository implements repository.AuditLogRepository for SQLite.
type auditLogRepository struct {
	db *DB
}

// NewAuditLogRepository creates a new SQLite audit log repository.
func NewAuditLogRepository(db *DB) repository.AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Create appends an audit entry.
func (r *auditLogRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	var dataRaw sql.NullString
	if entry.Data != nil {
		raw, err := json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("failed to encode audit data: %w", err)
		}
		dataRaw = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO audit_logs (id, user_id, action, resource, resource_id, data, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.querier(ctx).ExecContext(ctx, query,
		entry.ID.String(),
		entry.UserID.String(),
		entry.Action,
		entry.Resource,
		entry.ResourceID.String(),
		dataRaw,
		entry.IPAddress,
		entry.UserAgent,
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", translateError(err))
	}

	return nil
}

// List returns audit entries matching the filter, newest first.
func (r *auditLogRepository) List(ctx context.Context, filter repository.AuditFilter, opts repository.ListOptions) (*repository.ListResult[domain.AuditLog], error) {
	var conds []string
	var args []any

	if filter.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID.String())
	}
	if filter.Resource != "" {
		conds = append(conds, "resource = ?")
		args = append(args, filter.Resource)
	}
	if filter.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.After != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, formatTime(*filter.After))
	}
	if filter.Before != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, formatTime(*filter.Before))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.querier(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(
		`SELECT id, user_id, action, resource, resource_id, data, ip_address, user_agent, created_at
		 FROM audit_logs%s ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		where,
	)

	rows, err := r.db.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditLog
	for rows.Next() {
		entry := &domain.AuditLog{}
		var id, userID, resourceID, createdAt string
		var dataRaw sql.NullString

		err := rows.Scan(
			&id,
			&userID,
			&entry.Action,
			&entry.Resource,
			&resourceID,
			&dataRaw,
			&entry.IPAddress,
			&entry.UserAgent,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if entry.ID, err = parseUUID(id); err != nil {
			return nil, err
		}
		if entry.UserID, err = parseUUID(userID); err != nil {
			return nil, err
		}
		if entry.ResourceID, err = parseUUID(resourceID); err != nil {
			return nil, err
		}
		if dataRaw.Valid && dataRaw.String != "" {
			if err := json.Unmarshal([]byte(dataRaw.String), &entry.Data); err != nil {
				return nil, fmt.Errorf("failed to decode audit data: %w", err)
			}
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return &repository.ListResult[domain.AuditLog]{
		Items:  entries,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// Ensure auditLogRepository implements repository.AuditLogRepository.
var _ repository.AuditLogRepository = (*auditLogRepository)(nil)
