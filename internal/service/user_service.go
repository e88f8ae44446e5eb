package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/pkg/password"
	"github.com/sekolahku/merit/internal/repository"
)

// UserServiceOptions tunes the user service.
type UserServiceOptions struct {
	// BcryptCost is the bcrypt cost factor for password hashing.
	BcryptCost int

	// UserTTL and ListTTL control how long read results stay cached.
	UserTTL time.Duration
	ListTTL time.Duration
}

// UserService orchestrates the user lifecycle: create, read, update,
// archive, restore, delete. Every mutating operation follows the same
// protocol: validate, run the body inside one unit of work, then apply
// post-commit side effects (cache invalidation, audit, welcome grant)
// and return the user with credentials stripped by serialization.
type UserService struct {
	userRepo  repository.UserRepository
	auditRepo repository.AuditLogRepository
	tx        repository.TxManager
	points    *PointService
	validator *Validator
	cache     *userCache
	logger    zerolog.Logger
	metrics   Recorder
	opts      UserServiceOptions
}

// NewUserService creates a new UserService.
func NewUserService(
	repos *repository.Repositories,
	points *PointService,
	validator *Validator,
	cache repository.Cache,
	opts UserServiceOptions,
	logger zerolog.Logger,
	metrics Recorder,
) *UserService {
	serviceLogger := logger.With().Str("service", "user").Logger()
	return &UserService{
		userRepo:  repos.User,
		auditRepo: repos.AuditLog,
		tx:        repos.Tx,
		points:    points,
		validator: validator,
		cache:     newUserCache(cache, serviceLogger, metrics, opts.UserTTL, opts.ListTTL),
		logger:    serviceLogger,
		metrics:   metrics,
		opts:      opts,
	}
}

// Create creates a new user. Students receive a one-time welcome grant
// in the same unit of work as the insert.
func (s *UserService) Create(ctx context.Context, input CreateUserInput, actorID uuid.UUID) (*domain.User, error) {
	if strings.TrimSpace(input.NISN) == "" {
		return nil, ErrNISNRequired
	}
	if err := validateRoles(input.Roles); err != nil {
		return nil, err
	}
	if err := password.Validate(input.Password); err != nil {
		return nil, ErrInvalidPassword
	}

	if err := s.validator.ValidateAllUniqueness(ctx, input.NISN, input.Username, uuid.Nil); err != nil {
		return nil, err
	}

	hash, err := password.Hash(input.Password, s.opts.BcryptCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: password hashing failed", ErrInternal)
	}

	user, err := buildUser(input, hash)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.userRepo.Create(ctx, user); err != nil {
			return translateWriteError(err)
		}

		if user.IsStudent() {
			out, err := s.points.Grant(ctx, GrantInput{
				UserID:      user.ID,
				Points:      domain.WelcomeBonusPoints,
				Category:    domain.WelcomeBonusCategory,
				Description: "Welcome bonus for new student",
				SkipAudit:   true,
			})
			if err != nil {
				return err
			}
			user.Points = out.Balance
		}

		audit := domain.NewAuditLog(actorID, domain.AuditActionCreate, "user", user.ID, map[string]any{
			"nisn":  user.NISN,
			"roles": user.Roles,
		})
		if err := s.auditRepo.Create(ctx, audit); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateLists(ctx)

	s.logger.Info().
		Str("user_id", user.ID.String()).
		Str("nisn", user.NISN).
		Bool("student", user.IsStudent()).
		Msg("user created")

	return user, nil
}

// BulkError reports a single failed entry of a bulk create.
type BulkError struct {
	Index int    `json:"index"`
	NISN  string `json:"nisn,omitempty"`
	Error string `json:"error"`
}

// BulkResult is the partial-success outcome of CreateBulk.
type BulkResult struct {
	Created []*domain.User `json:"created"`
	Errors  []BulkError    `json:"errors"`
}

// CreateBulk processes entries sequentially, collecting successes and
// per-entry errors so one bad entry never aborts the batch. Duplicates
// within the batch itself fail the whole request up front.
func (s *UserService) CreateBulk(ctx context.Context, inputs []CreateUserInput, actorID uuid.UUID) (*BulkResult, error) {
	if len(inputs) == 0 {
		return nil, domain.NewRequiredError("users")
	}

	if err := s.validator.ValidateBatchUniqueness(ctx, inputs); err != nil {
		return nil, err
	}

	result := &BulkResult{}
	for i, input := range inputs {
		user, err := s.Create(ctx, input, actorID)
		if err != nil {
			result.Errors = append(result.Errors, BulkError{
				Index: i,
				NISN:  input.NISN,
				Error: err.Error(),
			})
			continue
		}
		result.Created = append(result.Created, user)
	}

	s.logger.Info().
		Int("created", len(result.Created)).
		Int("failed", len(result.Errors)).
		Msg("bulk user creation finished")

	return result, nil
}

// Get retrieves a user by ID, reading through the cache.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	userID, err := ValidateIDFormat(id)
	if err != nil {
		return nil, err
	}

	if user := s.cache.GetUser(ctx, userID); user != nil {
		return user, nil
	}

	var user *domain.User
	err = s.metrics.TrackDBOperation(ctx, "get", "users", func(ctx context.Context) error {
		var err error
		user, err = s.userRepo.GetByID(ctx, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Str("user_id", id).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	s.cache.SetUser(ctx, user)
	return user, nil
}

// List returns users matching the query, reading through the list cache.
func (s *UserService) List(ctx context.Context, q ListUsersQuery) (*UserPage, error) {
	filter, err := buildUserFilter(q)
	if err != nil {
		return nil, err
	}
	opts := buildListOptions(q)

	if page := s.cache.GetUsersList(ctx, q); page != nil {
		return page, nil
	}

	var result *repository.ListResult[domain.User]
	err = s.metrics.TrackDBOperation(ctx, "list", "users", func(ctx context.Context) error {
		var err error
		result, err = s.userRepo.List(ctx, filter, opts)
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	page := &UserPage{
		Users: result.Items,
		Total: result.Total,
		Page:  result.Offset/result.Limit + 1,
		Limit: result.Limit,
	}
	s.cache.SetUsersList(ctx, q, page)
	return page, nil
}

// Update applies a partial update. Omitted fields keep their stored
// values; username and NISN changes re-check uniqueness.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput, actorID uuid.UUID) (*domain.User, error) {
	userID, err := ValidateIDFormat(id)
	if err != nil {
		return nil, err
	}

	var user *domain.User

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.userRepo.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}

		if err := applyUpdate(user, input); err != nil {
			return err
		}

		if input.Username != nil {
			if err := s.validator.ValidateUsernameUniqueness(ctx, user.Username, userID); err != nil {
				return err
			}
		}
		if input.NISN != nil {
			if err := s.validator.ValidateNISNUniqueness(ctx, user.NISN, userID); err != nil {
				return err
			}
		}

		if err := s.userRepo.Update(ctx, user); err != nil {
			return translateWriteError(err)
		}

		audit := domain.NewAuditLog(actorID, domain.AuditActionUpdate, "user", user.ID, updatedFields(input))
		if err := s.auditRepo.Create(ctx, audit); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)

	s.logger.Info().Str("user_id", id).Msg("user updated")
	return user, nil
}

// Archive soft-deletes a user. Archiving an archived user succeeds and
// leaves the same state.
func (s *UserService) Archive(ctx context.Context, id string, actorID uuid.UUID) (*domain.User, error) {
	return s.setArchived(ctx, id, actorID, true, domain.AuditActionArchive)
}

// Restore reverses an archive. Restoring an active user succeeds and
// leaves the same state.
func (s *UserService) Restore(ctx context.Context, id string, actorID uuid.UUID) (*domain.User, error) {
	return s.setArchived(ctx, id, actorID, false, domain.AuditActionRestore)
}

func (s *UserService) setArchived(ctx context.Context, id string, actorID uuid.UUID, archived bool, action string) (*domain.User, error) {
	userID, err := ValidateIDFormat(id)
	if err != nil {
		return nil, err
	}

	var user *domain.User

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.userRepo.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}

		if user.IsArchived == archived {
			// Idempotent: the target state already holds.
			return nil
		}

		user.IsArchived = archived
		if err := s.userRepo.Update(ctx, user); err != nil {
			return translateWriteError(err)
		}

		audit := domain.NewAuditLog(actorID, action, "user", user.ID, nil)
		if err := s.auditRepo.Create(ctx, audit); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)

	s.logger.Info().Str("user_id", id).Bool("archived", archived).Msg("user archive state changed")
	return user, nil
}

// Delete hard-deletes a user. Unrecoverable.
func (s *UserService) Delete(ctx context.Context, id string, actorID uuid.UUID) error {
	userID, err := ValidateIDFormat(id)
	if err != nil {
		return err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}

		if err := s.userRepo.Delete(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}

		audit := domain.NewAuditLog(actorID, domain.AuditActionDelete, "user", user.ID, map[string]any{
			"nisn": user.NISN,
		})
		if err := s.auditRepo.Create(ctx, audit); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, userID)

	s.logger.Info().Str("user_id", id).Msg("user deleted")
	return nil
}

// invalidate drops the single-user entry and bumps the list generation.
func (s *UserService) invalidate(ctx context.Context, userID uuid.UUID) {
	s.cache.InvalidateUser(ctx, userID)
	s.cache.InvalidateLists(ctx)
}

// translateWriteError maps a duplicate-key rejection from the unique
// indexes to a Conflict naming the field. The index is the backstop
// for concurrent check-then-act races.
func translateWriteError(err error) error {
	if errors.Is(err, repository.ErrDuplicateKey) {
		field := "unique field"
		msg := err.Error()
		switch {
		case strings.Contains(msg, "nisn"):
			field = "nisn"
		case strings.Contains(msg, "username"):
			field = "username"
		}
		return &domain.DomainError{
			Err:     domain.ErrDuplicateField,
			Message: "already taken",
			Field:   field,
		}
	}
	if errors.Is(err, repository.ErrNotFound) {
		return domain.ErrUserNotFound
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

// updatedFields snapshots which fields an update touched for the audit
// trail. Values are omitted for credential-adjacent fields.
func updatedFields(input UpdateUserInput) map[string]any {
	fields := make(map[string]any)
	if input.NISN != nil {
		fields["nisn"] = *input.NISN
	}
	if input.Username != nil {
		fields["username"] = *input.Username
	}
	if input.FirstName != nil {
		fields["firstName"] = *input.FirstName
	}
	if input.LastName != nil {
		fields["lastName"] = *input.LastName
	}
	if input.Avatar != nil {
		fields["avatar"] = true
	}
	if input.Roles != nil {
		fields["roles"] = *input.Roles
	}
	if input.ClassID != nil {
		fields["classId"] = *input.ClassID
	}
	if input.Profile != nil {
		fields["profile"] = true
	}
	if input.Prefs != nil {
		fields["preferences"] = true
	}
	return fields
}
