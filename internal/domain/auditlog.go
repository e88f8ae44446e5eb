package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the services.
const (
	AuditActionCreate  = "create"
	AuditActionUpdate  = "update"
	AuditActionArchive = "archive"
	AuditActionRestore = "restore"
	AuditActionDelete  = "delete"
	AuditActionGrant   = "grant"
	AuditActionReview  = "review"
	AuditActionLogin   = "login"
)

// AuditLog is an append-only record of a significant mutation.
// Entries are never updated or deleted by the application.
type AuditLog struct {
	ID uuid.UUID `json:"id"`

	// UserID is the acting user (admin/teacher performing the mutation).
	UserID uuid.UUID `json:"userId"`

	// Action names the mutation, e.g. "update".
	Action string `json:"action"`

	// Resource names the entity type, e.g. "user".
	Resource string `json:"resource"`

	// ResourceID identifies the affected entity.
	ResourceID uuid.UUID `json:"resourceId"`

	// Data holds a JSON snapshot of the changed fields.
	Data map[string]any `json:"data,omitempty"`

	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewAuditLog creates an audit entry with a fresh ID.
func NewAuditLog(userID uuid.UUID, action, resource string, resourceID uuid.UUID, data map[string]any) *AuditLog {
	return &AuditLog{
		ID:         uuid.New(),
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Data:       data,
		CreatedAt:  time.Now().UTC(),
	}
}
