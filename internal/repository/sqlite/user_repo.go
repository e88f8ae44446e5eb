package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// userRepository implements repository.UserRepository for SQLite.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new SQLite user repository.
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
	args, err := userArgs(user)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if _, err := r.db.querier(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create user: %w", translateError(err))
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.db.querier(ctx).QueryRowContext(ctx, query, id.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", translateError(err))
	}
	return user, nil
}

// GetByNISN retrieves a user by their national student number.
func (r *userRepository) GetByNISN(ctx context.Context, nisn string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE nisn = ?`

	user, err := scanUser(r.db.querier(ctx).QueryRowContext(ctx, query, nisn))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by NISN: %w", translateError(err))
	}
	return user, nil
}

// Update updates an existing user.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now().UTC()

	args, err := userArgs(user)
	if err != nil {
		return err
	}
	// userArgs is in column order: id first, created_at second to last.
	// The update sets everything between, then updated_at, with id last.
	id := args[0]
	updatedAt := args[len(args)-1]
	args = append(args[1:len(args)-2:len(args)-2], updatedAt, id)

	query := `
		UPDATE users
		SET nisn = ?, username = ?, password_hash = ?,
		    previous_passwords = ?, password_changed_at = ?,
		    failed_login_attempts = ?, locked_until = ?,
		    reset_token = ?, reset_token_expires = ?,
		    reset_token_attempts = ?, first_name = ?, last_name = ?,
		    avatar = ?, roles = ?, class_id = ?, points = ?,
		    is_archived = ?, last_login_at = ?, profile = ?,
		    preferences = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.querier(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", translateError(err))
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

// Delete hard-deletes a user by ID.
func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.querier(ctx).ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", translateError(err))
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

// List returns users matching the filter with pagination.
func (r *userRepository) List(ctx context.Context, filter repository.UserFilter, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	where, args := buildUserWhere(filter)

	var total int64
	if err := r.db.querier(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	order := userOrderClause(opts)
	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(`SELECT %s FROM users%s%s LIMIT ? OFFSET ?`, userColumns, where, order)

	rows, err := r.db.querier(ctx).QueryContext(ctx, query, args...)
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
	err := r.db.querier(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE lower(username) = lower(?) AND username <> '' AND id <> ?`,
		username, excludeID.String(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return count > 0, nil
}

// ExistsByNISN checks if another user holds the given NISN.
func (r *userRepository) ExistsByNISN(ctx context.Context, nisn string, excludeID uuid.UUID) (bool, error) {
	var count int
	err := r.db.querier(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE nisn = ? AND id <> ?`,
		nisn, excludeID.String(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check nisn existence: %w", err)
	}
	return count > 0, nil
}

// AddPoints atomically adjusts the user's point balance.
func (r *userRepository) AddPoints(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var balance int
	err := r.db.querier(ctx).QueryRowContext(ctx,
		`UPDATE users SET points = points + ?, updated_at = ? WHERE id = ? RETURNING points`,
		delta, formatTime(time.Now()), id.String(),
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust points: %w", translateError(err))
	}
	return balance, nil
}

// UnlockExpired clears lockouts whose window has passed.
func (r *userRepository) UnlockExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.querier(ctx).ExecContext(ctx,
		`UPDATE users SET locked_until = NULL, failed_login_attempts = 0
		 WHERE locked_until IS NOT NULL AND locked_until <= ?`,
		formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to unlock accounts: %w", err)
	}
	return result.RowsAffected()
}

// PurgeExpiredResetTokens clears password reset tokens past expiry.
func (r *userRepository) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.querier(ctx).ExecContext(ctx,
		`UPDATE users SET reset_token = '', reset_token_expires = NULL, reset_token_attempts = 0
		 WHERE reset_token <> '' AND reset_token_expires IS NOT NULL AND reset_token_expires <= ?`,
		formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge reset tokens: %w", err)
	}
	return result.RowsAffected()
}

// =============================================================================
// Helpers
// =============================================================================

// userArgs encodes a user into the insert argument list, in column order.
func userArgs(user *domain.User) ([]any, error) {
	rolesRaw, err := json.Marshal(rolesToStrings(user.Roles))
	if err != nil {
		return nil, fmt.Errorf("failed to encode roles: %w", err)
	}
	prevRaw, err := json.Marshal(user.PreviousPasswords)
	if err != nil {
		return nil, fmt.Errorf("failed to encode password history: %w", err)
	}

	var profileRaw, preferencesRaw sql.NullString
	if user.Profile != nil {
		raw, err := json.Marshal(user.Profile)
		if err != nil {
			return nil, fmt.Errorf("failed to encode profile: %w", err)
		}
		profileRaw = sql.NullString{String: string(raw), Valid: true}
	}
	if user.Preferences != nil {
		raw, err := json.Marshal(user.Preferences)
		if err != nil {
			return nil, fmt.Errorf("failed to encode preferences: %w", err)
		}
		preferencesRaw = sql.NullString{String: string(raw), Valid: true}
	}

	return []any{
		user.ID.String(),
		user.NISN,
		user.Username,
		user.PasswordHash,
		string(prevRaw),
		formatTimePtr(user.PasswordChangedAt),
		user.FailedLoginAttempts,
		formatTimePtr(user.LockedUntil),
		user.ResetToken,
		formatTimePtr(user.ResetTokenExpires),
		user.ResetTokenAttempts,
		user.FirstName,
		user.LastName,
		user.Avatar,
		string(rolesRaw),
		uuidPtrString(user.ClassID),
		user.Points,
		boolToInt(user.IsArchived),
		formatTimePtr(user.LastLoginAt),
		profileRaw,
		preferencesRaw,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	}, nil
}

// buildUserWhere translates the filter into a WHERE clause and args.
func buildUserWhere(filter repository.UserFilter) (string, []any) {
	var conds []string
	var args []any

	if !filter.IncludeArchived {
		conds = append(conds, "is_archived = 0")
	}
	if filter.Search != "" {
		// SQLite LIKE has no escape character unless ESCAPE is given.
		p := "%" + escapeLike(strings.ToLower(filter.Search)) + "%"
		conds = append(conds,
			`(lower(first_name) LIKE ? ESCAPE '\' OR lower(last_name) LIKE ? ESCAPE '\' OR lower(nisn) LIKE ? ESCAPE '\' OR lower(username) LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p, p)
	}
	if filter.Role != nil {
		// Roles are a JSON array; match the quoted element.
		conds = append(conds, "roles LIKE ?")
		args = append(args, `%"`+string(*filter.Role)+`"%`)
	}
	if filter.ClassID != nil {
		conds = append(conds, "class_id = ?")
		args = append(args, filter.ClassID.String())
	}
	if filter.CreatedAfter != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, formatTime(*filter.CreatedAfter))
	}
	if filter.CreatedBefore != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, formatTime(*filter.CreatedBefore))
	}
	if filter.LastLoginAfter != nil {
		conds = append(conds, "last_login_at >= ?")
		args = append(args, formatTime(*filter.LastLoginAfter))
	}
	if filter.LastLoginBefore != nil {
		conds = append(conds, "last_login_at <= ?")
		args = append(args, formatTime(*filter.LastLoginBefore))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes pattern metacharacters in user-supplied search
// text so it matches literally inside a LIKE pattern.
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

// rowScanner abstracts sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads a full user row.
func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var (
		id, createdAt, updatedAt                          string
		rolesRaw, prevRaw                                 string
		passwordChangedAt, lockedUntil, resetTokenExpires sql.NullString
		lastLoginAt, classID                              sql.NullString
		profileRaw, preferencesRaw                        sql.NullString
		isArchived                                        int
	)

	err := row.Scan(
		&id,
		&user.NISN,
		&user.Username,
		&user.PasswordHash,
		&prevRaw,
		&passwordChangedAt,
		&user.FailedLoginAttempts,
		&lockedUntil,
		&user.ResetToken,
		&resetTokenExpires,
		&user.ResetTokenAttempts,
		&user.FirstName,
		&user.LastName,
		&user.Avatar,
		&rolesRaw,
		&classID,
		&user.Points,
		&isArchived,
		&lastLoginAt,
		&profileRaw,
		&preferencesRaw,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if user.ID, err = parseUUID(id); err != nil {
		return nil, err
	}
	var roles []string
	if err := json.Unmarshal([]byte(rolesRaw), &roles); err != nil {
		return nil, fmt.Errorf("failed to decode roles: %w", err)
	}
	user.Roles = stringsToRoles(roles)
	if err := json.Unmarshal([]byte(prevRaw), &user.PreviousPasswords); err != nil {
		return nil, fmt.Errorf("failed to decode password history: %w", err)
	}
	if user.PasswordChangedAt, err = parseTimePtr(passwordChangedAt); err != nil {
		return nil, err
	}
	if user.LockedUntil, err = parseTimePtr(lockedUntil); err != nil {
		return nil, err
	}
	if user.ResetTokenExpires, err = parseTimePtr(resetTokenExpires); err != nil {
		return nil, err
	}
	if user.LastLoginAt, err = parseTimePtr(lastLoginAt); err != nil {
		return nil, err
	}
	if user.ClassID, err = parseUUIDPtr(classID); err != nil {
		return nil, err
	}
	user.IsArchived = isArchived != 0
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if profileRaw.Valid && profileRaw.String != "" {
		user.Profile = &domain.Profile{}
		if err := json.Unmarshal([]byte(profileRaw.String), user.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
	}
	if preferencesRaw.Valid && preferencesRaw.String != "" {
		user.Preferences = &domain.Preferences{}
		if err := json.Unmarshal([]byte(preferencesRaw.String), user.Preferences); err != nil {
			return nil, fmt.Errorf("failed to decode preferences: %w", err)
		}
	}

	return user, nil
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

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)
