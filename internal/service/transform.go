package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// Pure mapping functions between API inputs and persistence shapes.
// Fields are copied only when present and non-empty, so omitted fields
// never clobber stored values. No I/O happens here.

// ProfileInput is the profile payload. Date fields arrive as strings
// and are parsed here.
type ProfileInput struct {
	Bio         string              `json:"bio"`
	Phone       string              `json:"phone"`
	DateOfBirth string              `json:"dateOfBirth"`
	Gender      string              `json:"gender"`
	Subject     string              `json:"subject"`
	Address     *domain.Address     `json:"address"`
	SocialLinks *domain.SocialLinks `json:"socialLinks"`
}

// PreferencesInput is the preferences payload.
type PreferencesInput struct {
	Theme             string                    `json:"theme"`
	Language          string                    `json:"language"`
	Timezone          string                    `json:"timezone"`
	PushNotifications *domain.PushNotifications `json:"pushNotifications"`
}

// CreateUserInput contains the data needed to create a new user.
type CreateUserInput struct {
	NISN      string            `json:"nisn"`
	Username  string            `json:"username"`
	Password  string            `json:"password"`
	FirstName string            `json:"firstName"`
	LastName  string            `json:"lastName"`
	Avatar    string            `json:"avatar"`
	Roles     []domain.Role     `json:"roles"`
	ClassID   string            `json:"classId"`
	Profile   *ProfileInput     `json:"profile"`
	Prefs     *PreferencesInput `json:"preferences"`
}

// UpdateUserInput contains a partial update. Pointer fields distinguish
// "omitted" from "set to the zero value".
type UpdateUserInput struct {
	NISN      *string           `json:"nisn"`
	Username  *string           `json:"username"`
	FirstName *string           `json:"firstName"`
	LastName  *string           `json:"lastName"`
	Avatar    *string           `json:"avatar"`
	Roles     *[]domain.Role    `json:"roles"`
	ClassID   *string           `json:"classId"`
	Profile   *ProfileInput     `json:"profile"`
	Prefs     *PreferencesInput `json:"preferences"`
}

// buildUser maps a create input onto a fresh domain.User. The password
// hash is computed by the caller; plaintext never reaches this function.
func buildUser(input CreateUserInput, passwordHash string) (*domain.User, error) {
	user := domain.NewUser(strings.TrimSpace(input.NISN), passwordHash, input.Roles)

	if username := NormalizeUsername(input.Username); username != "" {
		user.Username = username
	}
	if input.FirstName != "" {
		user.FirstName = input.FirstName
	}
	if input.LastName != "" {
		user.LastName = input.LastName
	}
	if input.Avatar != "" {
		user.Avatar = input.Avatar
	}
	if input.ClassID != "" {
		classID, err := uuid.Parse(input.ClassID)
		if err != nil {
			return nil, fmt.Errorf("%w: classId %q", domain.ErrInvalidID, input.ClassID)
		}
		user.ClassID = &classID
	}

	if input.Profile != nil {
		profile, err := transformProfile(input.Profile)
		if err != nil {
			return nil, err
		}
		user.Profile = profile
	}
	if input.Prefs != nil {
		user.Preferences = transformPreferences(input.Prefs)
	}

	return user, nil
}

// applyUpdate copies the present fields of a partial update onto the
// user. Omitted fields are left untouched.
func applyUpdate(user *domain.User, input UpdateUserInput) error {
	if input.NISN != nil {
		nisn := strings.TrimSpace(*input.NISN)
		if nisn == "" {
			return domain.NewRequiredError("nisn")
		}
		user.NISN = nisn
	}
	if input.Username != nil {
		user.Username = NormalizeUsername(*input.Username)
	}
	if input.FirstName != nil {
		user.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		user.LastName = *input.LastName
	}
	if input.Avatar != nil {
		user.Avatar = *input.Avatar
	}
	if input.Roles != nil {
		if err := validateRoles(*input.Roles); err != nil {
			return err
		}
		user.Roles = *input.Roles
	}
	if input.ClassID != nil {
		if *input.ClassID == "" {
			user.ClassID = nil
		} else {
			classID, err := uuid.Parse(*input.ClassID)
			if err != nil {
				return fmt.Errorf("%w: classId %q", domain.ErrInvalidID, *input.ClassID)
			}
			user.ClassID = &classID
		}
	}
	if input.Profile != nil {
		profile, err := transformProfile(input.Profile)
		if err != nil {
			return err
		}
		user.Profile = profile
	}
	if input.Prefs != nil {
		user.Preferences = transformPreferences(input.Prefs)
	}
	return nil
}

// transformProfile maps a profile input, parsing the date of birth.
func transformProfile(input *ProfileInput) (*domain.Profile, error) {
	profile := &domain.Profile{
		Bio:         input.Bio,
		Phone:       input.Phone,
		Gender:      input.Gender,
		Subject:     input.Subject,
		Address:     input.Address,
		SocialLinks: input.SocialLinks,
	}

	if input.DateOfBirth != "" {
		dob, err := parseDate(input.DateOfBirth)
		if err != nil {
			return nil, fmt.Errorf("%w: dateOfBirth %q", domain.ErrInvalidDate, input.DateOfBirth)
		}
		profile.DateOfBirth = &dob
	}

	return profile, nil
}

func transformPreferences(input *PreferencesInput) *domain.Preferences {
	return &domain.Preferences{
		Theme:             input.Theme,
		Language:          input.Language,
		Timezone:          input.Timezone,
		PushNotifications: input.PushNotifications,
	}
}

// =============================================================================
// List query translation
// =============================================================================

// ListUsersQuery is the raw list/search query grammar as it arrives
// from the HTTP layer.
type ListUsersQuery struct {
	Page            int
	Limit           int
	Search          string
	Role            string
	ClassID         string
	SortBy          string
	SortOrder       string
	CreatedAfter    string
	CreatedBefore   string
	LastLoginAfter  string
	LastLoginBefore string
	IncludeProfile  bool
	IncludePrefs    bool
	IncludeArchived bool
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// buildUserFilter translates the query into a repository filter.
func buildUserFilter(q ListUsersQuery) (repository.UserFilter, error) {
	filter := repository.UserFilter{
		Search:          strings.TrimSpace(q.Search),
		IncludeArchived: q.IncludeArchived,
	}

	if q.Role != "" {
		role := domain.Role(q.Role)
		if !domain.ValidRole(role) {
			return filter, fmt.Errorf("%w: %q", domain.ErrInvalidRole, q.Role)
		}
		filter.Role = &role
	}
	if q.ClassID != "" {
		classID, err := uuid.Parse(q.ClassID)
		if err != nil {
			return filter, fmt.Errorf("%w: classId %q", domain.ErrInvalidID, q.ClassID)
		}
		filter.ClassID = &classID
	}

	var err error
	if filter.CreatedAfter, err = parseDatePtr(q.CreatedAfter); err != nil {
		return filter, err
	}
	if filter.CreatedBefore, err = parseDatePtr(q.CreatedBefore); err != nil {
		return filter, err
	}
	if filter.LastLoginAfter, err = parseDatePtr(q.LastLoginAfter); err != nil {
		return filter, err
	}
	if filter.LastLoginBefore, err = parseDatePtr(q.LastLoginBefore); err != nil {
		return filter, err
	}

	return filter, nil
}

// buildListOptions translates pagination, sorting, and projection flags.
func buildListOptions(q ListUsersQuery) repository.ListOptions {
	opts := pageOptions(q.Page, q.Limit)
	opts.OrderBy = q.SortBy
	opts.Descending = strings.EqualFold(q.SortOrder, "desc")
	opts.IncludeProfile = q.IncludeProfile
	opts.IncludePreferences = q.IncludePrefs
	return opts
}

// pageOptions clamps page and limit into repository offset paging.
func pageOptions(page, limit int) repository.ListOptions {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return repository.ListOptions{
		Offset: (page - 1) * limit,
		Limit:  limit,
	}
}

// parseDate accepts date-only or full RFC 3339 timestamps.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

func parseDatePtr(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseDate(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDate, value)
	}
	return &t, nil
}
