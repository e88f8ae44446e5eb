// Package service provides business logic services for Merit.
package service

import "errors"

// Common service errors.
var (
	// ErrInternal wraps unclassified persistence or infrastructure
	// failures after logging.
	ErrInternal = errors.New("internal server error")

	// ErrInvalidPassword rejects passwords failing the policy check.
	ErrInvalidPassword = errors.New("invalid password: must be at least 8 characters with a letter and a digit")

	// ErrNISNRequired rejects create inputs without a NISN.
	ErrNISNRequired = errors.New("nisn is required")
)
