package model

import "encoding/json"

// Chunk stores a contiguous slice of the document text and, optionally, its
// embedding. Embedding is stored as JSON array of float32 for portability.
type Chunk struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	DocumentID  string `gorm:"size:36;not null;index:idx_chunk_doc_index,priority:1" json:"document_id"`
	ChunkIndex  int    `gorm:"not null;index:idx_chunk_doc_index,priority:2" json:"chunk_index"`
	Text        string `gorm:"type:text;not null" json:"text"`
	StartOffset int    `gorm:"not null" json:"start_offset"`
	EndOffset   int    `gorm:"not null" json:"end_offset"`
	Embedding   string `gorm:"type:text" json:"-"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *Chunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

// SetEmbedding stores the embedding as JSON.
func (c *Chunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = ""
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}
