package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// userRepository implements repository.UserRepository for PostgreSQL.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, nisn, username, password_hash, previous_passwords,
	password_changed_at, failed_login_attempts, locked_until,
	reset_token, reset_token_expires, reset_token_attempts,
	first_name, last_name, avatar, roles, class_id, points, is_archived,
	last_login_at, profile, preferences, created_at, updated_at`

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	profileRaw, preferencesRaw, err := marshalEmbedded(user)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`

	_, err = r.db.querier(ctx).Exec(ctx, query,
		user.ID,
		user.NISN,
		user.Username,
		user.PasswordHash,
		user.PreviousPasswords,
		user.PasswordChangedAt,
		user.FailedLoginAttempts,
		user.LockedUntil,
		user.ResetToken,
		user.ResetTokenExpires,
		user.ResetTokenAttempts,
		user.FirstName,
		user.LastName,
		user.Avatar,
		rolesToStrings(user.Roles),
		nullableUUID(user.ClassID),
		user.Points,
		user.IsArchived,
		user.LastLoginAt,
		profileRaw,
		preferencesRaw,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translateError(err))
	}

	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", translateError(err))
	}
	return user, nil
}

// GetByNISN retrieves a user by their national student number.
func (r *userRepository) GetByNISN(ctx context.Context, nisn string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE nisn = $1`

	user, err := scanUser(r.db.querier(ctx).QueryRow(ctx, query, nisn))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by NISN: %w", translateError(err))
	}
	return user, nil
}

// Update updates an existing user.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now().UTC()

	profileRaw, preferencesRaw, err := marshalEmbedded(user)
	if err != nil {
		return err
	}

	query := `
		UPDATE users
		SET nisn = $2, username = $3, password_hash = $4,
		    previous_passwords = $5, password_changed_at = $6,
		    failed_login_attempts = $7, locked_until = $8,
		    reset_token = $9, reset_token_expires = $10,
		    reset_token_attempts = $11, first_name = $12, last_name = $13,
		    avatar = $14, roles = $15, class_id = $16, points = $17,
		    is_archived = $18, last_login_at = $19, profile = $20,
		    preferences = $21, updated_at = $22
		WHERE id = $1
	`

	tag, err := r.db.querier(ctx).Exec(ctx, query,
		user.ID,
		user.NISN,
		user.Username,
		user.PasswordHash,
		user.PreviousPasswords,
		user.PasswordChangedAt,
		user.FailedLoginAttempts,
		user.LockedUntil,
		user.ResetToken,
		user.ResetTokenExpires,
		user.ResetTokenAttempts,
		user.FirstName,
		user.LastName,
		user.Avatar,
		rolesToStrings(user.Roles),
		nullableUUID(user.ClassID),
		user.Points,
		user.IsArchived,
		user.LastLoginAt,
		profileRaw,
		preferencesRaw,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", translateError(err))
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete hard-deletes a user by ID.
func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.querier(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", translateError(err))
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// List returns users matching the filter with pagination.
func (r *userRepository) List(ctx context.Context, filter repository.UserFilter, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	where, args := buildUserWhere(filter)

	countQuery := `SELECT COUNT(*) FROM users` + where
	var total int64
	if err := r.db.querier(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	order := userOrderClause(opts)
	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(
		`SELECT %s FROM users%s%s LIMIT $%d OFFSET $%d`,
		userColumns, where, order, len(args)-1, len(args),
	)

	rows, err := r.db.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if !opts.IncludeProfile {
			user.Profile = nil
		}
		if !opts.IncludePreferences {
			user.Preferences = nil
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return &repository.ListResult[domain.User]{
		Items:  users,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// ExistsByUsername checks if another user holds the given username.
func (r *userRepository) ExistsByUsername(ctx context.Context, username string, excludeID uuid.UUID) (bool, error) {
	var count int
	err := r.db.querier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE lower(username) = lower($1) AND username <> '' AND id <> $2`,
		username, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return count > 0, nil
}

// ExistsByNISN checks if another user holds the given NISN.
func (r *userRepository) ExistsByNISN(ctx context.Context, nisn string, excludeID uuid.UUID) (bool, error) {
	var count int
	err := r.db.querier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE nisn = $1 AND id <> $2`,
		nisn, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check nisn existence: %w", err)
	}
	return count > 0, nil
}

// AddPoints atomically adjusts the user's point balance.
func (r *userRepository) AddPoints(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var balance int
	err := r.db.querier(ctx).QueryRow(ctx,
		`UPDATE users SET points = points + $2, updated_at = now() WHERE id = $1 RETURNING points`,
		id, delta,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust points: %w", translateError(err))
	}
	return balance, nil
}

// UnlockExpired clears lockouts whose window has passed.
func (r *userRepository) UnlockExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.querier(ctx).Exec(ctx,
		`UPDATE users SET locked_until = NULL, failed_login_attempts = 0
		 WHERE locked_until IS NOT NULL AND locked_until <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to unlock accounts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeExpiredResetTokens clears password reset tokens past expiry.
func (r *userRepository) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.querier(ctx).Exec(ctx,
		`UPDATE users SET reset_token = '', reset_token_expires = NULL, reset_token_attempts = 0
		 WHERE reset_token <> '' AND reset_token_expires IS NOT NULL AND reset_token_expires <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// =============================================================================
// Helpers
// =============================================================================

// buildUserWhere translates the filter into a WHERE clause and args.
func buildUserWhere(filter repository.UserFilter) (string, []any) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.IncludeArchived {
		conds = append(conds, "is_archived = FALSE")
	}
	if filter.Search != "" {
		p := arg("%" + escapeLike(filter.Search) + "%")
		conds = append(conds, fmt.Sprintf(
			"(first_name ILIKE %[1]s OR last_name ILIKE %[1]s OR nisn ILIKE %[1]s OR username ILIKE %[1]s)", p,
		))
	}
	if filter.Role != nil {
		conds = append(conds, fmt.Sprintf("%s = ANY(roles)", arg(string(*filter.Role))))
	}
	if filter.ClassID != nil {
		conds = append(conds, fmt.Sprintf("class_id = %s", arg(*filter.ClassID)))
	}
	if filter.CreatedAfter != nil {
		conds = append(conds, fmt.Sprintf("created_at >= %s", arg(*filter.CreatedAfter)))
	}
	if filter.CreatedBefore != nil {
		conds = append(conds, fmt.Sprintf("created_at <= %s", arg(*filter.CreatedBefore)))
	}
	if filter.LastLoginAfter != nil {
		conds = append(conds, fmt.Sprintf("last_login_at >= %s", arg(*filter.LastLoginAfter)))
	}
	if filter.LastLoginBefore != nil {
		conds = append(conds, fmt.Sprintf("last_login_at <= %s", arg(*filter.LastLoginBefore)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes pattern metacharacters in user-supplied search
// text so it matches literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// userSortColumns whitelists sortable columns.
var userSortColumns = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"firstName":   "first_name",
	"lastName":    "last_name",
	"nisn":        "nisn",
	"username":    "username",
	"points":      "points",
	"lastLoginAt": "last_login_at",
}

func userOrderClause(opts repository.ListOptions) string {
	col, ok := userSortColumns[opts.OrderBy]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if opts.Descending {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", col, dir)
}

// scanUser reads a full user row.
func scanUser(row pgx.Row) (*domain.User, error) {
	user := &domain.User{}
	var roles []string
	var classID uuid.NullUUID
	var profileRaw, preferencesRaw []byte

	err := row.Scan(
		&user.ID,
		&user.NISN,
		&user.Username,
		&user.PasswordHash,
		&user.PreviousPasswords,
		&user.PasswordChangedAt,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.ResetToken,
		&user.ResetTokenExpires,
		&user.ResetTokenAttempts,
		&user.FirstName,
		&user.LastName,
		&user.Avatar,
		&roles,
		&classID,
		&user.Points,
		&user.IsArchived,
		&user.LastLoginAt,
		&profileRaw,
		&preferencesRaw,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Roles = stringsToRoles(roles)
	if classID.Valid {
		id := classID.UUID
		user.ClassID = &id
	}
	if len(profileRaw) > 0 {
		user.Profile = &domain.Profile{}
		if err := json.Unmarshal(profileRaw, user.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
	}
	if len(preferencesRaw) > 0 {
		user.Preferences = &domain.Preferences{}
		if err := json.Unmarshal(preferencesRaw, user.Preferences); err != nil {
			return nil, fmt.Errorf("failed to decode preferences: %w", err)
		}
	}

	return user, nil
}

// marshalEmbedded encodes the optional profile and preferences as JSON.
func marshalEmbedded(user *domain.User) ([]byte, []byte, error) {
	var profileRaw, preferencesRaw []byte
	var err error
	if user.Profile != nil {
		if profileRaw, err = json.Marshal(user.Profile); err != nil {
			return nil, nil, fmt.Errorf("failed to encode profile: %w", err)
		}
	}
	if user.Preferences != nil {
		if preferencesRaw, err = json.Marshal(user.Preferences); err != nil {
			return nil, nil, fmt.Errorf("failed to encode preferences: %w", err)
		}
	}
	return profileRaw, preferencesRaw, nil
}

func rolesToStrings(roles []domain.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func stringsToRoles(values []string) []domain.Role {
	out := make([]domain.Role, len(values))
	for i, v := range values {
		out[i] = domain.Role(v)
	}
	return out
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)
