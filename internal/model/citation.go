package model

import "time"

// Citation links one Answer span to the Chunk that supports it. SpanStart
// and SpanEnd are rune offsets into the answer text and must lie within its
// bounds; the RAG service validates this before persisting.
type Citation struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	AnswerID   uint `gorm:"not null;index" json:"answer_id"`
	ChunkID    uint `gorm:"not null;index" json:"chunk_id"`
	DocumentID uint `gorm:"not null;index" json:"document_id"`

	SpanStart int `json:"span_start"`
	SpanEnd   int `json:"span_end"`

	Confidence     float64 `json:"confidence"`
	ContentPreview string  `gorm:"size:512" json:"content_preview,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
