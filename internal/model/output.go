package model

import (
	"time"

	"github.com/google/uuid"
)

// Output is one produced image (or external image reference) belonging
// to a task. Index is zero-based and matches emission order from the
// model stream; the output with index 0 is the primary result consulted
// by the status and result endpoints.
type Output struct {
	ID            uuid.UUID      `json:"id"`
	TaskID        uuid.UUID      `json:"task_id"`
	Index         int            `json:"index"`
	StorageBucket string         `json:"storage_bucket"`
	StoragePath   string         `json:"storage_path"`
	MIME          *string        `json:"mime,omitempty"`
	Size          *int64         `json:"size,omitempty"` // byte length; nil for externally-hosted URLs
	Width         *int           `json:"width,omitempty"`
	Height        *int           `json:"height,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
