package model

const (
	SummaryLevelChunk    = "chunk"
	SummaryLevelDocument = "document"
)

// Summary is either the summary of one chunk (ChunkIndex set) or the single
// document summary (ChunkIndex nil).
type Summary struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	DocumentID string `gorm:"size:36;not null;index" json:"document_id"`
	Level      string `gorm:"size:16;not null" json:"level"`
	ChunkIndex *int   `json:"chunk_index,omitempty"`
	Text       string `gorm:"type:text;not null" json:"text"`
}
