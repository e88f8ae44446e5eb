// Package domain contains the core business entities for Merit.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// User Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateField indicates a unique field (username, nisn) is taken.
	ErrDuplicateField = errors.New("duplicate field value")

	// ErrUserArchived indicates the user account is archived.
	ErrUserArchived = errors.New("user account is archived")

	// ErrAccountLocked indicates too many failed login attempts.
	ErrAccountLocked = errors.New("account is temporarily locked")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPasswordReuse indicates the new password matches a recent one.
	ErrPasswordReuse = errors.New("password was used recently")

	// ===========================================
	// Validation Errors
	// ===========================================

	// ErrIDRequired indicates a required id was empty or whitespace.
	ErrIDRequired = errors.New("id is required")

	// ErrInvalidID indicates the id does not match the identifier format.
	ErrInvalidID = errors.New("invalid id format")

	// ErrFieldRequired indicates a mandatory field was missing.
	ErrFieldRequired = errors.New("required field is missing")

	// ErrRolesEmpty indicates a user was submitted without any role.
	ErrRolesEmpty = errors.New("roles must not be empty")

	// ErrInvalidRole indicates an unknown role value.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidDate indicates a malformed date value.
	ErrInvalidDate = errors.New("invalid date format")

	// ===========================================
	// Point Ledger Errors
	// ===========================================

	// ErrInsufficientPoints indicates a deduction would drop the balance
	// below zero.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrInvalidPointAmount indicates a zero point grant or deduction.
	ErrInvalidPointAmount = errors.New("point amount must be non-zero")

	// ===========================================
	// Quest Errors
	// ===========================================

	// ErrQuestNotFound indicates the requested quest does not exist.
	ErrQuestNotFound = errors.New("quest not found")

	// ErrInvalidQuestType indicates an unknown quest type value.
	ErrInvalidQuestType = errors.New("invalid quest type")

	// ErrQuestNotCompletable indicates the quest is inactive or expired.
	ErrQuestNotCompletable = errors.New("quest is not completable")

	// ErrQuestAlreadyCompleted indicates the student already completed
	// the quest within its recurrence window.
	ErrQuestAlreadyCompleted = errors.New("quest already completed")

	// ===========================================
	// Appeal Errors
	// ===========================================

	// ErrAppealNotFound indicates the requested appeal does not exist.
	ErrAppealNotFound = errors.New("appeal not found")

	// ErrAppealNotPending indicates the appeal was already reviewed.
	ErrAppealNotPending = errors.New("appeal is not pending")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Field identifies the offending field for validation/conflict errors.
	Field string

	// Resource identifies the affected resource (e.g., user id).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field %s)", e.Err.Error(), e.Message, e.Field)
	case e.Resource != "":
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// NewConflictError creates a DomainError for a duplicate unique field,
// naming the field and the offending value.
func NewConflictError(field, value string) *DomainError {
	return &DomainError{
		Err:     ErrDuplicateField,
		Message: fmt.Sprintf("%q is already taken", value),
		Field:   field,
	}
}

// NewRequiredError creates a DomainError for a missing mandatory field.
func NewRequiredError(field string) *DomainError {
	return &DomainError{
		Err:     ErrFieldRequired,
		Message: "must be provided",
		Field:   field,
	}
}
