package model

import "time"

// Document lifecycle statuses. A document moves forward through the
// pipeline stages and lands in indexed or failed.
const (
	DocStatusUploaded   = "uploaded"
	DocStatusExtracting = "extracting"
	DocStatusChunking   = "chunking"
	DocStatusEmbedding  = "embedding"
	DocStatusIndexed    = "indexed"
	DocStatusFailed     = "failed"
)

type Document struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	TenantID    uint   `gorm:"not null;index" json:"tenant_id"`
	UploadedBy  uint   `gorm:"not null;index" json:"uploaded_by"`
	Filename    string `gorm:"size:256;not null" json:"filename"`
	MimeType    string `gorm:"size:100;not null" json:"mime_type"`
	SizeBytes   int64  `gorm:"not null" json:"size_bytes"`
	RawContent  []byte `gorm:"type:mediumblob" json:"-"`
	ContentHash string `gorm:"size:64;index" json:"-"` // sha256 of extracted text, set after extraction

	Status      string `gorm:"size:16;not null;index;default:uploaded" json:"status"`
	FailedStage string `gorm:"size:16" json:"failed_stage,omitempty"`
	ErrorMsg    string `gorm:"type:text" json:"error_message,omitempty"`

	// ProcessingToken identifies the pipeline run that last touched this
	// document; retries with the same token are idempotent.
	ProcessingToken string `gorm:"size:36" json:"-"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	IndexedAt *time.Time `json:"indexed_at,omitempty"`
}

// Processable reports whether a new pipeline run may start for this document.
func (d *Document) Processable() bool {
	switch d.Status {
	case DocStatusUploaded, DocStatusIndexed, DocStatusFailed:
		return true
	}
	return false
}

// Stalled reports whether an in-flight run stopped making progress: the
// document sits at a pipeline stage but nothing has touched it for longer
// than threshold. A stalled document may be taken over by a new run.
func (d *Document) Stalled(threshold time.Duration) bool {
	switch d.Status {
	case DocStatusExtracting, DocStatusChunking, DocStatusEmbedding:
		return time.Since(d.UpdatedAt) > threshold
	}
	return false
}
