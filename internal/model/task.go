package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus enumerates the lifecycle states of a generation task.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued" // reserved for a future admission stage, never assigned today
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// Task is the durable record of a single generation or edit request.
// A task reaches exactly one terminal state, exactly once; CompletedAt
// is set at that transition and stays nil while the task is non-terminal.
type Task struct {
	ID          uuid.UUID      `json:"id"`
	Status      TaskStatus     `json:"status"`
	Prompt      string         `json:"prompt"` // final compiled instruction text
	Params      map[string]any `json:"params"` // open metadata captured at creation, enriched later
	StyleID     *uuid.UUID     `json:"style_id,omitempty"`
	PromptID    *uuid.UUID     `json:"prompt_id,omitempty"`
	OutputText  *string        `json:"output_text,omitempty"` // accumulated model text, set on success
	Error       *string        `json:"error,omitempty"`       // failure message, set on terminal failure
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Filter is a catalog filter applied to a generation request,
// e.g. {grain 0.4} or a bare {warm}.
type Filter struct {
	Slug  string `json:"slug"`
	Value any    `json:"value,omitempty"`
}
