package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// Validator performs input and uniqueness validation for user writes.
// All database access is read-only.
type Validator struct {
	userRepo    repository.UserRepository
	enforceNISN bool
}

// NewValidator creates a Validator. enforceNISN controls whether NISN
// uniqueness is checked at the application layer; the database unique
// index remains the backstop either way.
func NewValidator(userRepo repository.UserRepository, enforceNISN bool) *Validator {
	return &Validator{userRepo: userRepo, enforceNISN: enforceNISN}
}

// ValidateIDRequired rejects empty or whitespace-only ids.
func ValidateIDRequired(id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.ErrIDRequired
	}
	return nil
}

// ValidateIDFormat parses the id, rejecting anything that is not a
// well-formed UUID before any database round-trip.
func ValidateIDFormat(id string) (uuid.UUID, error) {
	if err := ValidateIDRequired(id); err != nil {
		return uuid.Nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", domain.ErrInvalidID, id)
	}
	return parsed, nil
}

// NormalizeUsername trims and lowercases a username for comparison and
// storage.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsernameUniqueness checks that no other user holds the
// username. excludeID skips the user being updated. Empty usernames
// are always allowed.
func (v *Validator) ValidateUsernameUniqueness(ctx context.Context, username string, excludeID uuid.UUID) error {
	normalized := NormalizeUsername(username)
	if normalized == "" {
		return nil
	}

	exists, err := v.userRepo.ExistsByUsername(ctx, normalized, excludeID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if exists {
		return domain.NewConflictError("username", normalized)
	}
	return nil
}

// ValidateNISNUniqueness checks that no other user holds the NISN.
// Disabled by default: the check only runs when the uniqueness flag is
// on, otherwise the unique index alone rejects duplicates.
func (v *Validator) ValidateNISNUniqueness(ctx context.Context, nisn string, excludeID uuid.UUID) error {
	if !v.enforceNISN {
		return nil
	}

	nisn = strings.TrimSpace(nisn)
	if nisn == "" {
		return nil
	}

	exists, err := v.userRepo.ExistsByNISN(ctx, nisn, excludeID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if exists {
		return domain.NewConflictError("nisn", nisn)
	}
	return nil
}

// ValidateAllUniqueness runs the independent uniqueness checks
// concurrently and surfaces the first failure.
func (v *Validator) ValidateAllUniqueness(ctx context.Context, nisn, username string, excludeID uuid.UUID) error {
	checks := []func() error{
		func() error { return v.ValidateNISNUniqueness(ctx, nisn, excludeID) },
		func() error { return v.ValidateUsernameUniqueness(ctx, username, excludeID) },
	}

	errCh := make(chan error, len(checks))
	for _, check := range checks {
		go func(fn func() error) {
			errCh <- fn()
		}(check)
	}

	var firstErr error
	for range checks {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ValidateBatchUniqueness checks a bulk-create batch: first for
// duplicates within the batch itself (normalized comparison), then each
// entry against the database.
func (v *Validator) ValidateBatchUniqueness(ctx context.Context, inputs []CreateUserInput) error {
	seenUsernames := make(map[string]struct{}, len(inputs))
	seenNISNs := make(map[string]struct{}, len(inputs))

	for _, input := range inputs {
		if username := NormalizeUsername(input.Username); username != "" {
			if _, dup := seenUsernames[username]; dup {
				return domain.NewConflictError("username", username)
			}
			seenUsernames[username] = struct{}{}
		}
		if nisn := strings.TrimSpace(input.NISN); nisn != "" {
			if _, dup := seenNISNs[nisn]; dup {
				return domain.NewConflictError("nisn", nisn)
			}
			seenNISNs[nisn] = struct{}{}
		}
	}

	errCh := make(chan error, len(inputs))
	for _, input := range inputs {
		go func(in CreateUserInput) {
			errCh <- v.ValidateAllUniqueness(ctx, in.NISN, in.Username, uuid.Nil)
		}(input)
	}

	var firstErr error
	for range inputs {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// validateRoles checks the role set is non-empty and well-formed.
func validateRoles(roles []domain.Role) error {
	if len(roles) == 0 {
		return domain.ErrRolesEmpty
	}
	for _, r := range roles {
		if !domain.ValidRole(r) {
			return fmt.Errorf("%w: %q", domain.ErrInvalidRole, r)
		}
	}
	return nil
}
