package model

import (
	"encoding/json"
	"time"
)

// Chunk is a contiguous span of extracted document text. Chunks are
// immutable once created; re-processing a document creates new chunks and
// marks the old generation superseded so embeddings are never rewritten in
// place. The embedding is stored as a JSON array of float32 for portability.
type Chunk struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	DocumentID uint   `gorm:"not null;index" json:"document_id"`
	TenantID   uint   `gorm:"not null;index" json:"tenant_id"`
	Ordinal    int    `gorm:"not null" json:"ordinal"`
	Content    string `gorm:"type:text;not null" json:"content"`
	// ContentHash is the sha256 hex of Content, used for dedup across runs.
	ContentHash string `gorm:"size:64;index" json:"-"`

	// SpanStart/SpanEnd are rune offsets into the extracted document text.
	SpanStart int `json:"span_start"`
	SpanEnd   int `json:"span_end"`
	// ForceSplit marks chunks cut mid-block because a single structural
	// block exceeded the maximum chunk size.
	ForceSplit bool `json:"force_split,omitempty"`

	Embedding      string `gorm:"type:mediumtext" json:"-"` // JSON array of float32
	EmbeddingModel string `gorm:"size:64;index" json:"embedding_model"`

	Superseded bool      `gorm:"not null;default:false;index" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
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
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}
