package domain

import (
	"time"

	"github.com/google/uuid"
)

// AppealStatus is the review state of an appeal.
type AppealStatus string

const (
	AppealStatusPending  AppealStatus = "pending"
	AppealStatusApproved AppealStatus = "approved"
	AppealStatusRejected AppealStatus = "rejected"
)

// ValidAppealStatus reports whether s is a known appeal status.
func ValidAppealStatus(s AppealStatus) bool {
	switch s {
	case AppealStatusPending, AppealStatusApproved, AppealStatusRejected:
		return true
	}
	return false
}

// Appeal is a student's request to revisit a point decision.
// Approval results in a compensating ledger grant.
type Appeal struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"userId"`

	// PointLogID references the disputed ledger entry when the appeal
	// targets a specific deduction.
	PointLogID *uuid.UUID `json:"pointLogId,omitempty"`

	Reason string       `json:"reason"`
	Status AppealStatus `json:"status"`

	// ReviewedBy and ReviewNote are set when the appeal leaves pending.
	ReviewedBy *uuid.UUID `json:"reviewedBy,omitempty"`
	ReviewNote string     `json:"reviewNote,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewAppeal creates a pending appeal.
func NewAppeal(userID uuid.UUID, reason string) *Appeal {
	now := time.Now().UTC()
	return &Appeal{
		ID:        uuid.New(),
		UserID:    userID,
		Reason:    reason,
		Status:    AppealStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsPending reports whether the appeal is still awaiting review.
func (a *Appeal) IsPending() bool {
	return a.Status == AppealStatusPending
}
