// Package repository defines data access interfaces for Merit.
// These interfaces abstract database operations, allowing for different
// implementations (PostgreSQL, SQLite, in-memory for testing) while keeping
// the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sekolahku/merit/internal/domain"
)

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// Create creates a new user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByNISN retrieves a user by their national student number.
	// Used by the login path.
	GetByNISN(ctx context.Context, nisn string) (*domain.User, error)

	// Update updates an existing user.
	Update(ctx context.Context, user *domain.User) error

	// Delete hard-deletes a user by ID.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns users matching the filter with pagination.
	List(ctx context.Context, filter UserFilter, opts ListOptions) (*ListResult[domain.User], error)

	// ExistsByUsername checks if another user holds the given username.
	// The username is compared case-insensitively; excludeID skips the
	// user being updated.
	ExistsByUsername(ctx context.Context, username string, excludeID uuid.UUID) (bool, error)

	// ExistsByNISN checks if another user holds the given NISN.
	ExistsByNISN(ctx context.Context, nisn string, excludeID uuid.UUID) (bool, error)

	// AddPoints atomically adjusts the user's point balance and returns
	// the new balance.
	AddPoints(ctx context.Context, id uuid.UUID, delta int) (int, error)

	// UnlockExpired clears lockouts whose window has passed.
	// Returns the number of accounts unlocked.
	UnlockExpired(ctx context.Context, now time.Time) (int64, error)

	// PurgeExpiredResetTokens clears password reset tokens past expiry.
	// Returns the number of tokens purged.
	PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// UserFilter captures the list/search query grammar.
type UserFilter struct {
	// Search matches case-insensitively against first name, last name,
	// NISN and username.
	Search string

	// Role filters users holding the given role.
	Role *domain.Role

	// ClassID filters by exact class membership.
	ClassID *uuid.UUID

	// IncludeArchived includes soft-deleted users; excluded by default.
	IncludeArchived bool

	// Inclusive creation-time window.
	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	// Inclusive last-login window.
	LastLoginAfter  *time.Time
	LastLoginBefore *time.Time
}

// =============================================================================
// Point Log Repository
// =============================================================================

// PointLogRepository defines the interface for the append-only reward ledger.
type PointLogRepository interface {
	// Create appends a ledger entry.
	Create(ctx context.Context, entry *domain.PointLog) error

	// GetByID retrieves a single ledger entry.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PointLog, error)

	// ListByUser returns a user's ledger entries, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, opts ListOptions) (*ListResult[domain.PointLog], error)

	// HasQuestEntrySince reports whether the user already has an entry
	// for the given quest at or after the given time. Used to enforce
	// quest recurrence windows.
	HasQuestEntrySince(ctx context.Context, userID, questID uuid.UUID, since time.Time) (bool, error)
}

// =============================================================================
// Quest Repository
// =============================================================================

// QuestRepository defines the interface for quest data access.
type QuestRepository interface {
	// Create creates a new quest.
	Create(ctx context.Context, quest *domain.Quest) error

	// GetByID retrieves a quest by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Quest, error)

	// Update updates an existing quest.
	Update(ctx context.Context, quest *domain.Quest) error

	// Delete deletes a quest by ID.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns quests matching the filter with pagination.
	List(ctx context.Context, filter QuestFilter, opts ListOptions) (*ListResult[domain.Quest], error)
}

// QuestFilter captures quest list criteria.
type QuestFilter struct {
	// Type filters by quest recurrence type.
	Type *domain.QuestType

	// ActiveOnly excludes inactive and expired quests.
	ActiveOnly bool

	// CreatedBy filters by the publishing user.
	CreatedBy *uuid.UUID
}

// =============================================================================
// Appeal Repository
// =============================================================================

// AppealRepository defines the interface for appeal data access.
type AppealRepository interface {
	// Create creates a new appeal.
	Create(ctx context.Context, appeal *domain.Appeal) error

	// GetByID retrieves an appeal by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Appeal, error)

	// Update updates an existing appeal (review outcome).
	Update(ctx context.Context, appeal *domain.Appeal) error

	// List returns appeals matching the filter with pagination.
	List(ctx context.Context, filter AppealFilter, opts ListOptions) (*ListResult[domain.Appeal], error)
}

// AppealFilter captures appeal list criteria.
type AppealFilter struct {
	// UserID filters by the appealing student.
	UserID *uuid.UUID

	// Status filters by review state.
	Status *domain.AppealStatus
}

// =============================================================================
// Audit Log Repository
// =============================================================================

// AuditLogRepository defines the interface for the append-only audit trail.
type AuditLogRepository interface {
	// Create appends an audit entry.
	Create(ctx context.Context, entry *domain.AuditLog) error

	// List returns audit entries matching the filter, newest first.
	List(ctx context.Context, filter AuditFilter, opts ListOptions) (*ListResult[domain.AuditLog], error)
}

// AuditFilter captures audit query criteria.
type AuditFilter struct {
	// UserID filters by acting user.
	UserID *uuid.UUID

	// Resource filters by entity type, e.g. "user".
	Resource string

	// Action filters by mutation name, e.g. "update".
	Action string

	// Inclusive time window.
	After  *time.Time
	Before *time.Time
}

// =============================================================================
// Common Types
// =============================================================================

// ListOptions contains common pagination options.
type ListOptions struct {
	// Offset is the number of records to skip.
	Offset int

	// Limit is the maximum number of records to return.
	Limit int

	// OrderBy specifies the sort field.
	OrderBy string

	// Descending specifies descending order if true.
	Descending bool

	// IncludeProfile includes the embedded profile in results.
	IncludeProfile bool

	// IncludePreferences includes the embedded preferences in results.
	IncludePreferences bool
}

// ListResult is a generic paginated list result.
type ListResult[T any] struct {
	// Items is the list of items.
	Items []*T

	// Total is the total number of items (without pagination).
	Total int64

	// Offset is the current offset.
	Offset int

	// Limit is the current limit.
	Limit int
}

// =============================================================================
// Transaction Support
// =============================================================================

// TxManager defines the interface for transaction management.
// Repositories participate in the transaction through the context.
type TxManager interface {
	// WithTx executes the given function within a transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoopTxManager runs operation bodies without an explicit transaction.
// Used when the deployment disables multi-statement transactions;
// single-statement writes remain atomic.
type NoopTxManager struct{}

// WithTx runs fn directly on the caller's context.
func (NoopTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ TxManager = NoopTxManager{}

// =============================================================================
// Aggregate / Health
// =============================================================================

// Repositories holds all repository instances for wiring.
type Repositories struct {
	User     UserRepository
	PointLog PointLogRepository
	Quest    QuestRepository
	Appeal   AppealRepository
	AuditLog AuditLogRepository
	Tx       TxManager
}

// DatabaseHealth is an interface for database health checks.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}
