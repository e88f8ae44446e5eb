package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/auth"
	"github.com/sekolahku/merit/internal/config"
	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/pkg/password"
	"github.com/sekolahku/merit/internal/repository"
)

// maxResetAttempts bounds reset-token guesses before the token burns.
const maxResetAttempts = 5

// AuthService handles login, password changes, and admin password
// resets.
type AuthService struct {
	userRepo  repository.UserRepository
	auditRepo repository.AuditLogRepository
	tx        repository.TxManager
	tokens    *auth.TokenService
	cfg       config.AuthConfig
	logger    zerolog.Logger
	metrics   Recorder
}

// NewAuthService creates a new AuthService.
func NewAuthService(repos *repository.Repositories, tokens *auth.TokenService, cfg config.AuthConfig, logger zerolog.Logger, metrics Recorder) *AuthService {
	return &AuthService{
		userRepo:  repos.User,
		auditRepo: repos.AuditLog,
		tx:        repos.Tx,
		tokens:    tokens,
		cfg:       cfg,
		logger:    logger.With().Str("service", "auth").Logger(),
		metrics:   metrics,
	}
}

// LoginInput contains login credentials.
type LoginInput struct {
	NISN     string `json:"nisn"`
	Password string `json:"password"`
}

// LoginOutput contains the issued token and the authenticated user.
type LoginOutput struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// LoginByNISN authenticates a user by national student number and
// password. Archived users are rejected; repeated failures lock the
// account for the configured duration.
func (s *AuthService) LoginByNISN(ctx context.Context, input LoginInput) (*LoginOutput, error) {
	nisn := strings.TrimSpace(input.NISN)
	if nisn == "" {
		return nil, domain.NewRequiredError("nisn")
	}
	if input.Password == "" {
		return nil, domain.NewRequiredError("password")
	}

	user, err := s.userRepo.GetByNISN(ctx, nisn)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Same error as a bad password so NISNs cannot be probed.
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := time.Now().UTC()
	if user.IsArchived {
		return nil, domain.ErrUserArchived
	}
	if !user.CanAuthenticate(now) {
		return nil, domain.ErrAccountLocked
	}

	if !password.Verify(input.Password, user.PasswordHash) {
		if err := s.recordFailedLogin(ctx, user, now); err != nil {
			s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to record login failure")
		}
		return nil, domain.ErrInvalidCredentials
	}

	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	user.UpdatedAt = now

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.userRepo.Update(ctx, user); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		audit := domain.NewAuditLog(user.ID, domain.AuditActionLogin, "user", user.ID, nil)
		if err := s.auditRepo.Create(ctx, audit); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to issue token")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("user logged in")

	return &LoginOutput{Token: token, User: user}, nil
}

// recordFailedLogin bumps the failure counter and locks the account
// once the configured threshold is reached.
func (s *AuthService) recordFailedLogin(ctx context.Context, user *domain.User, now time.Time) error {
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= s.cfg.MaxFailedLogins {
		lockedUntil := now.Add(s.cfg.LockoutDuration)
		user.LockedUntil = &lockedUntil
		s.logger.Warn().
			Str("user_id", user.ID.String()).
			Time("locked_until", lockedUntil).
			Msg("account locked after repeated login failures")
	}
	user.UpdatedAt = now
	return s.userRepo.Update(ctx, user)
}

// ChangePasswordInput contains a password change request.
type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword rotates a user's password after verifying the old
// one. New passwords must satisfy the policy and must not match any
// hash in the retained history.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, input ChangePasswordInput) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if !password.Verify(input.OldPassword, user.PasswordHash) {
		return domain.ErrInvalidCredentials
	}
	if err := password.Validate(input.NewPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}

	if password.Verify(input.NewPassword, user.PasswordHash) {
		return domain.ErrPasswordReuse
	}
	for _, old := range user.PreviousPasswords {
		if password.Verify(input.NewPassword, old) {
			return domain.ErrPasswordReuse
		}
	}

	hash, err := password.Hash(input.NewPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	user.PreviousPasswords = append(user.PreviousPasswords, user.PasswordHash)
	if excess := len(user.PreviousPasswords) - s.cfg.PasswordHistory; excess > 0 {
		user.PreviousPasswords = user.PreviousPasswords[excess:]
	}
	user.PasswordHash = hash
	user.ResetToken = ""
	user.ResetTokenExpires = nil
	user.ResetTokenAttempts = 0
	user.UpdatedAt = time.Now().UTC()

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.userRepo.Update(ctx, user); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		audit := domain.NewAuditLog(user.ID, domain.AuditActionUpdate, "user", user.ID, map[string]any{
			"fields": []string{"password"},
		})
		if err := s.auditRepo.Create(ctx, audit); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("user_id", userID.String()).Msg("password changed")
	return nil
}

// ResetPasswordOutput carries the one-time reset token back to the
// administrator.
type ResetPasswordOutput struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ResetPassword issues a one-time reset token for a user. The token
// expires after the configured duration and burns after too many
// failed completion attempts.
func (s *AuthService) ResetPassword(ctx context.Context, id string, actorID uuid.UUID) (*ResetPasswordOutput, error) {
	userID, err := ValidateIDFormat(id)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	token, err := generateResetToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	expiresAt := time.Now().UTC().Add(s.cfg.ResetTokenExpiry)
	user.ResetToken = token
	user.ResetTokenExpires = &expiresAt
	user.ResetTokenAttempts = 0
	user.UpdatedAt = time.Now().UTC()

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.userRepo.Update(ctx, user); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		audit := domain.NewAuditLog(actorID, domain.AuditActionUpdate, "user", user.ID, map[string]any{
			"fields": []string{"resetToken"},
		})
		if err := s.auditRepo.Create(ctx, audit); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", id).Msg("password reset token issued")

	return &ResetPasswordOutput{Token: token, ExpiresAt: expiresAt}, nil
}

// CompleteResetInput finishes a reset: the token proves possession,
// the new password replaces the old one.
type CompleteResetInput struct {
	NISN        string `json:"nisn"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// CompleteReset consumes a reset token and sets a new password.
func (s *AuthService) CompleteReset(ctx context.Context, input CompleteResetInput) error {
	nisn := strings.TrimSpace(input.NISN)
	if nisn == "" {
		return domain.NewRequiredError("nisn")
	}
	if input.Token == "" {
		return domain.NewRequiredError("token")
	}

	user, err := s.userRepo.GetByNISN(ctx, nisn)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := time.Now().UTC()
	if user.ResetToken == "" || user.ResetTokenExpires == nil || now.After(*user.ResetTokenExpires) {
		return domain.ErrInvalidCredentials
	}

	if user.ResetToken != input.Token {
		user.ResetTokenAttempts++
		if user.ResetTokenAttempts >= maxResetAttempts {
			user.ResetToken = ""
			user.ResetTokenExpires = nil
			user.ResetTokenAttempts = 0
		}
		user.UpdatedAt = now
		if err := s.userRepo.Update(ctx, user); err != nil {
			s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to record reset attempt")
		}
		return domain.ErrInvalidCredentials
	}

	if err := password.Validate(input.NewPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	for _, old := range append(user.PreviousPasswords, user.PasswordHash) {
		if password.Verify(input.NewPassword, old) {
			return domain.ErrPasswordReuse
		}
	}

	hash, err := password.Hash(input.NewPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	user.PreviousPasswords = append(user.PreviousPasswords, user.PasswordHash)
	if excess := len(user.PreviousPasswords) - s.cfg.PasswordHistory; excess > 0 {
		user.PreviousPasswords = user.PreviousPasswords[excess:]
	}
	user.PasswordHash = hash
	user.ResetToken = ""
	user.ResetTokenExpires = nil
	user.ResetTokenAttempts = 0
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.UpdatedAt = now

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.userRepo.Update(ctx, user); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		audit := domain.NewAuditLog(user.ID, domain.AuditActionUpdate, "user", user.ID, map[string]any{
			"fields": []string{"password"},
			"reset":  true,
		})
		if err := s.auditRepo.Create(ctx, audit); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("password reset completed")
	return nil
}

// generateResetToken produces a 32-hex-character random token.
func generateResetToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
