package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// auditLogRepository implements repository.AuditLogRepository for PostgreSQL.
type auditLogRepository struct {
	db *DB
}

// NewAuditLogRepository creates a new PostgreSQL audit log repository.
func NewAuditLogRepository(db *DB) repository.AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Create appends an audit entry.
func (r *auditLogRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	var dataRaw []byte
	if entry.Data != nil {
		var err error
		if dataRaw, err = json.Marshal(entry.Data); err != nil {
			return fmt.Errorf("failed to encode audit data: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (id, user_id, action, resource, resource_id, data, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.querier(ctx).Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.Resource,
		entry.ResourceID,
		dataRaw,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
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

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != nil {
		conds = append(conds, fmt.Sprintf("user_id = %s", arg(*filter.UserID)))
	}
	if filter.Resource != "" {
		conds = append(conds, fmt.Sprintf("resource = %s", arg(filter.Resource)))
	}
	if filter.Action != "" {
		conds = append(conds, fmt.Sprintf("action = %s", arg(filter.Action)))
	}
	if filter.After != nil {
		conds = append(conds, fmt.Sprintf("created_at >= %s", arg(*filter.After)))
	}
	if filter.Before != nil {
		conds = append(conds, fmt.Sprintf("created_at <= %s", arg(*filter.Before)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(
		`SELECT id, user_id, action, resource, resource_id, data, ip_address, user_agent, created_at
		 FROM audit_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args),
	)

	rows, err := r.db.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditLog
	for rows.Next() {
		entry := &domain.AuditLog{}
		var dataRaw []byte

		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Action,
			&entry.Resource,
			&entry.ResourceID,
			&dataRaw,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if len(dataRaw) > 0 {
			if err := json.Unmarshal(dataRaw, &entry.Data); err != nil {
				return nil, fmt.Errorf("failed to decode audit data: %w", err)
			}
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
