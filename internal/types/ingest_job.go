package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// JobNameIngestPDF identifies the PDF ingestion job in the queue.
const JobNameIngestPDF = "ingest-pdf"

// IngestPDFPayload is the ingest job input. Field names are part of the
// queue contract between enqueue and handler.
type IngestPDFPayload struct {
	ChatID         int    `json:"chat_id"`
	DocumentID     int    `json:"document_id"`
	FileKey        string `json:"file_key"`
	FileName       string `json:"file_name"`
	MimeType       string `json:"mime_type"`
	SizeBytes      int64  `json:"size_bytes"`
	CollectionName string `json:"collection_name"`
}

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusFailed    = "failed"
	JobStatusDead      = "dead"
	JobStatusSucceeded = "succeeded"
)

type IngestJob struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobName     string         `gorm:"column:job_name;not null;index" json:"job_name"`
	Status      string         `gorm:"column:status;not null;default:queued;index" json:"status"`
	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Payload     datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	Error       string         `gorm:"column:error" json:"error"`
	LastErrorAt *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	LockedAt    *time.Time     `gorm:"column:locked_at" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time     `gorm:"column:heartbeat_at" json:"heartbeat_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (IngestJob) TableName() string {
	return "ingest_job"
}
