package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/pixmint/genapi/internal/model"
)

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrOutputNotFound = errors.New("output not found")
	// ErrNotRunning is returned when a finalize hits a task that is not
	// in the running state anymore: the terminal transition happens
	// exactly once.
	ErrNotRunning = errors.New("task is not running")
)

// Repository persists generation tasks and their ordered outputs.
type Repository struct {
	db *dbpg.DB
}

func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new task row and returns its generated id.
func (r *Repository) Create(ctx context.Context, t model.Task) (uuid.UUID, error) {
	params, err := json.Marshal(t.Params)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create: failed to marshal params: %w", err)
	}

	query := `
		INSERT INTO generation_tasks (status, prompt, params, style_id, prompt_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id uuid.UUID
	err = r.db.Master.QueryRowContext(
		ctx, query, t.Status, t.Prompt, string(params), t.StyleID, t.PromptID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create: failed to insert task: %w", err)
	}

	return id, nil
}

// Finalize moves a running task to its terminal state, recording the
// accumulated text or the failure message and stamping completed_at.
// The conditional update guarantees the transition happens once.
func (r *Repository) Finalize(ctx context.Context, id uuid.UUID, status model.TaskStatus, outputText, errMsg *string) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize: %s is not a terminal status", status)
	}

	query := `
		UPDATE generation_tasks
		SET status = $2, output_text = $3, error = $4, completed_at = now()
		WHERE id = $1 AND status = 'running'
	`

	res, err := r.db.ExecContext(ctx, query, id, status, outputText, errMsg)
	if err != nil {
		return fmt.Errorf("finalize: failed to update task: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotRunning
	}

	return nil
}

// UpdateParams replaces the task's params map (enrichment only, the
// caller merges before writing).
func (r *Repository) UpdateParams(ctx context.Context, id uuid.UUID, params map[string]any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("update params: failed to marshal: %w", err)
	}

	query := `UPDATE generation_tasks SET params = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, string(data))
	if err != nil {
		return fmt.Errorf("update params: failed to update task: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update params: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// GetByID returns a task row.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (model.Task, error) {
	query := `
		SELECT status, prompt, params, style_id, prompt_id, output_text, error, created_at, completed_at
		FROM generation_tasks
		WHERE id = $1
	`

	var (
		t      model.Task
		params []byte
	)
	t.ID = id
	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(
		&t.Status, &t.Prompt, &params, &t.StyleID, &t.PromptID,
		&t.OutputText, &t.Error, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, ErrTaskNotFound
		}
		return model.Task{}, fmt.Errorf("get: failed to get task: %w", err)
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &t.Params); err != nil {
			return model.Task{}, fmt.Errorf("get: failed to unmarshal params: %w", err)
		}
	}

	return t, nil
}

// AddOutput inserts one output row for a task.
func (r *Repository) AddOutput(ctx context.Context, o model.Output) (uuid.UUID, error) {
	metadata, err := json.Marshal(o.Metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("add output: failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO generation_outputs (task_id, index, storage_bucket, storage_path, mime, size, width, height, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id uuid.UUID
	err = r.db.Master.QueryRowContext(
		ctx, query, o.TaskID, o.Index, o.StorageBucket, o.StoragePath,
		o.MIME, o.Size, o.Width, o.Height, string(metadata),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("add output: failed to insert output: %w", err)
	}

	return id, nil
}

// ListOutputs returns all outputs of a task ordered by emission index.
func (r *Repository) ListOutputs(ctx context.Context, taskID uuid.UUID) ([]model.Output, error) {
	query := `
		SELECT id, index, storage_bucket, storage_path, mime, size, width, height, metadata, created_at
		FROM generation_outputs
		WHERE task_id = $1
		ORDER BY index
	`

	rows, err := r.db.Master.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list outputs: query failed: %w", err)
	}
	defer rows.Close()

	var outputs []model.Output
	for rows.Next() {
		o, err := scanOutput(rows, taskID)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list outputs: rows failed: %w", err)
	}

	return outputs, nil
}

// GetPrimaryOutput returns the output with index 0.
func (r *Repository) GetPrimaryOutput(ctx context.Context, taskID uuid.UUID) (model.Output, error) {
	query := `
		SELECT id, index, storage_bucket, storage_path, mime, size, width, height, metadata, created_at
		FROM generation_outputs
		WHERE task_id = $1 AND index = 0
	`

	row := r.db.Master.QueryRowContext(ctx, query, taskID)
	o, err := scanOutput(row, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Output{}, ErrOutputNotFound
		}
		return model.Output{}, err
	}

	return o, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanOutput.
type scanner interface {
	Scan(dest ...any) error
}

func scanOutput(s scanner, taskID uuid.UUID) (model.Output, error) {
	var (
		o        model.Output
		metadata []byte
	)
	o.TaskID = taskID
	err := s.Scan(
		&o.ID, &o.Index, &o.StorageBucket, &o.StoragePath,
		&o.MIME, &o.Size, &o.Width, &o.Height, &metadata, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Output{}, sql.ErrNoRows
		}
		return model.Output{}, fmt.Errorf("scan output: %w", err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &o.Metadata); err != nil {
			return model.Output{}, fmt.Errorf("scan output: failed to unmarshal metadata: %w", err)
		}
	}

	return o, nil
}
