package model

import "time"

const (
	SourcePDF = "pdf"
	SourceURL = "url"
)

type Document struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID   string    `gorm:"size:36;not null;uniqueIndex" json:"session_id"`
	SourceKind  string    `gorm:"size:16;not null" json:"source_kind"`
	SourceRef   string    `gorm:"size:2048;not null" json:"source_ref"`
	Title       string    `gorm:"size:512" json:"title"`
	RawText     string    `gorm:"type:longtext;not null" json:"-"`
	Pages       int       `gorm:"not null;default:0" json:"pages"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// DocumentBundle is everything the conversation engine needs about a bound
// document: the text, its chunks in order and the summaries.
type DocumentBundle struct {
	Document  Document
	Chunks    []Chunk
	Summaries []Summary
}

// DocumentSummary returns the top-level summary text, empty if missing.
func (b *DocumentBundle) DocumentSummary() string {
	for _, s := range b.Summaries {
		if s.Level == SummaryLevelDocument {
			return s.Text
		}
	}
	return ""
}
