package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one side of an exchange. Turns are always written in pairs, so a
// session's history has even length and alternates user, assistant.
type Turn struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:36;not null;uniqueIndex:idx_turn_session_index,priority:1" json:"session_id"`
	TurnIndex int       `gorm:"not null;uniqueIndex:idx_turn_session_index,priority:2" json:"turn_index"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
