// Package domain contains the core business entities for Merit.
// These are pure Go structs with no external dependencies, representing
// the fundamental concepts of the school point management system.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is an enumerated user role. A user may hold several at once.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleTeacher     Role = "teacher"
	RoleStudent     Role = "student"
	RoleParent      Role = "parent"
	RoleHeadOfClass Role = "head_of_class"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleParent, RoleHeadOfClass:
		return true
	}
	return false
}

// WelcomeBonusPoints is the one-time grant for newly created students.
const WelcomeBonusPoints = 100

// WelcomeBonusCategory tags the welcome grant in the point ledger.
const WelcomeBonusCategory = "Initial Setup"

// User represents a registered user in the system.
// Students accumulate reward points; teachers and admins manage them.
type User struct {
	// ID is the unique identifier for the user (assigned at creation).
	ID uuid.UUID `json:"id"`

	// NISN is the national student identification number, used as the
	// login identifier. Unique across non-deleted users.
	NISN string `json:"nisn"`

	// Username is an optional unique handle, stored lowercase.
	Username string `json:"username,omitempty"`

	// PasswordHash is the bcrypt hash of the user's password.
	// Never exposed in API responses.
	PasswordHash string `json:"-"`

	// PreviousPasswords holds hashes of recently used passwords so they
	// cannot be reused on change.
	PreviousPasswords []string `json:"-"`

	// PasswordChangedAt is when the password was last changed.
	PasswordChangedAt *time.Time `json:"-"`

	// FailedLoginAttempts counts consecutive failed logins.
	FailedLoginAttempts int `json:"-"`

	// LockedUntil blocks authentication until this time when set.
	LockedUntil *time.Time `json:"-"`

	// ResetToken and friends drive the admin password-reset flow.
	ResetToken         string     `json:"-"`
	ResetTokenExpires  *time.Time `json:"-"`
	ResetTokenAttempts int        `json:"-"`

	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Avatar    string `json:"avatar,omitempty"`

	// Roles is the non-empty set of roles held by the user.
	Roles []Role `json:"roles"`

	// ClassID is a weak reference to the class the user belongs to.
	ClassID *uuid.UUID `json:"classId,omitempty"`

	// Points is the student reward balance.
	Points int `json:"points"`

	// IsArchived soft-deletes the user: excluded from default listings
	// and from login, reversible via restore.
	IsArchived bool `json:"isArchived"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`

	// Profile and Preferences are optional embedded value objects with
	// no independent lifecycle.
	Profile     *Profile     `json:"profile,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile holds extended user information.
type Profile struct {
	Bio         string       `json:"bio,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	DateOfBirth *time.Time   `json:"dateOfBirth,omitempty"`
	Gender      string       `json:"gender,omitempty"`
	Subject     string       `json:"subject,omitempty"`
	Address     *Address     `json:"address,omitempty"`
	SocialLinks *SocialLinks `json:"socialLinks,omitempty"`
}

// Address is a nested postal address.
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// SocialLinks holds optional social media handles.
type SocialLinks struct {
	Instagram string `json:"instagram,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	Website   string `json:"website,omitempty"`
}

// Preferences holds per-user UI and notification settings.
type Preferences struct {
	Theme             string             `json:"theme,omitempty"`
	Language          string             `json:"language,omitempty"`
	Timezone          string             `json:"timezone,omitempty"`
	PushNotifications *PushNotifications `json:"pushNotifications,omitempty"`
}

// PushNotifications holds per-channel notification flags.
type PushNotifications struct {
	PointsReceived bool `json:"pointsReceived"`
	QuestAssigned  bool `json:"questAssigned"`
	AppealReviewed bool `json:"appealReviewed"`
}

// NewUser creates a new active User with default values.
func NewUser(nisn, passwordHash string, roles []Role) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		NISN:         nisn,
		PasswordHash: passwordHash,
		Roles:        roles,
		IsArchived:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsStudent reports whether the user holds the student role.
// Students are eligible for the one-time welcome grant at creation.
func (u *User) IsStudent() bool {
	return u.HasRole(RoleStudent)
}

// CanAuthenticate returns true if the user is allowed to authenticate.
// Archived users cannot log in; locked accounts must wait out the lockout.
func (u *User) CanAuthenticate(now time.Time) bool {
	if u.IsArchived {
		return false
	}
	if u.LockedUntil != nil && now.Before(*u.LockedUntil) {
		return false
	}
	return true
}
