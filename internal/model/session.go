package model

import "time"

// Session states. A session is only ever in one of these, and every state
// change goes through a compare-and-set on the row.
const (
	StateIdle           = "idle"
	StateIngesting      = "ingesting"
	StateAwaitingAnswer = "awaiting_answer"
)

// Document binding status, used to report background ingestion progress.
const (
	StatusEmpty   = "empty"
	StatusPending = "pending"
	StatusReady   = "ready"
	StatusFailed  = "failed"
)

type Session struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	DocumentID *string   `gorm:"size:36;index" json:"document_id,omitempty"`
	Title      string    `gorm:"size:256;not null;default:''" json:"title"`
	State      string    `gorm:"size:32;not null;index" json:"state"`
	Status     string    `gorm:"size:16;not null" json:"status"`
	LastError  string    `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *Session) HasDocument() bool {
	return s.DocumentID != nil && *s.DocumentID != ""
}
