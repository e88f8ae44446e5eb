package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuestType classifies how often a quest can recur.
type QuestType string

const (
	QuestTypeDaily   QuestType = "daily"
	QuestTypeWeekly  QuestType = "weekly"
	QuestTypeSpecial QuestType = "special"
)

// ValidQuestType reports whether t is a known quest type.
func ValidQuestType(t QuestType) bool {
	switch t {
	case QuestTypeDaily, QuestTypeWeekly, QuestTypeSpecial:
		return true
	}
	return false
}

// Quest is a task students complete to earn reward points.
type Quest struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`

	// Points is the reward granted on completion.
	Points int `json:"points"`

	Type QuestType `json:"type"`

	// CreatedBy references the teacher or admin who published the quest.
	CreatedBy uuid.UUID `json:"createdBy"`

	// IsActive gates completion; inactive quests grant nothing.
	IsActive bool `json:"isActive"`

	// ExpiresAt, when set, stops completions after the given time.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewQuest creates an active quest with the given reward.
func NewQuest(title string, points int, questType QuestType, createdBy uuid.UUID) *Quest {
	now := time.Now().UTC()
	return &Quest{
		ID:        uuid.New(),
		Title:     title,
		Points:    points,
		Type:      questType,
		CreatedBy: createdBy,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Completable reports whether the quest can be completed at the given time.
func (q *Quest) Completable(now time.Time) bool {
	if !q.IsActive {
		return false
	}
	if q.ExpiresAt != nil && now.After(*q.ExpiresAt) {
		return false
	}
	return true
}
