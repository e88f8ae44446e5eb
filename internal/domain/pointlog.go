package domain

import (
	"time"

	"github.com/google/uuid"
)

// Common point log categories.
const (
	PointCategoryQuest   = "Quest"
	PointCategoryManual  = "Manual"
	PointCategoryAppeal  = "Appeal"
	PointCategoryPenalty = "Penalty"
)

// PointLog is a single append-only entry in the reward ledger.
// The user's balance is the sum of their entries; entries are never
// updated or deleted.
type PointLog struct {
	ID uuid.UUID `json:"id"`

	// UserID is the student the points were granted to or deducted from.
	UserID uuid.UUID `json:"userId"`

	// Points is positive for grants and negative for deductions.
	Points int `json:"points"`

	// Category tags the source of the entry, e.g. "Quest" or "Initial Setup".
	Category string `json:"category"`

	Description string `json:"description,omitempty"`

	// AwardedBy references the acting user; zero for system grants.
	AwardedBy uuid.UUID `json:"awardedBy,omitempty"`

	// QuestID links the entry to a quest completion when applicable.
	QuestID *uuid.UUID `json:"questId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewPointLog creates a ledger entry with a fresh ID.
func NewPointLog(userID uuid.UUID, points int, category, description string) *PointLog {
	return &PointLog{
		ID:          uuid.New(),
		UserID:      userID,
		Points:      points,
		Category:    category,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}
