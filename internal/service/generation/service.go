package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixmint/genapi/internal/genai"
	"github.com/pixmint/genapi/internal/model"
	"github.com/pixmint/genapi/internal/storage"
)

// ErrResultNotReady is returned when a result is requested for a task
// that has not succeeded (yet).
var ErrResultNotReady = errors.New("result not available")

// taskRepo defines the task-store operations the service needs.
type taskRepo interface {
	Create(ctx context.Context, t model.Task) (uuid.UUID, error)
	Finalize(ctx context.Context, id uuid.UUID, status model.TaskStatus, outputText, errMsg *string) error
	UpdateParams(ctx context.Context, id uuid.UUID, params map[string]any) error
	GetByID(ctx context.Context, id uuid.UUID) (model.Task, error)
	AddOutput(ctx context.Context, o model.Output) (uuid.UUID, error)
	ListOutputs(ctx context.Context, taskID uuid.UUID) ([]model.Output, error)
	GetPrimaryOutput(ctx context.Context, taskID uuid.UUID) (model.Output, error)
}

// catalogRepo defines the read-only catalog lookups.
type catalogRepo interface {
	GetStyleBySlug(ctx context.Context, slug string) (model.Style, bool, error)
	GetPromptByID(ctx context.Context, id uuid.UUID) (model.PromptTemplate, bool, error)
}

// backend defines the generative model invocation.
type backend interface {
	StreamGenerate(ctx context.Context, parts []genai.Part) (genai.Stream, error)
}

// Options holds the service policy knobs.
type Options struct {
	Bucket         string        // bucket generated images are stored under
	InlineMaxBytes int64         // result-delivery inline threshold
	URLTTL         time.Duration // expiry of resolved access URLs
	Retry          retry.Strategy
}

// Service owns the generation task lifecycle: it creates task records,
// drives the backend stream, persists outputs through the storage
// gateway and finalizes tasks exactly once.
type Service struct {
	tasks      taskRepo
	catalog    catalogRepo
	backend    backend
	gateway    storage.Gateway
	opts       Options
	httpClient *http.Client
}

// NewService creates a new Service.
func NewService(tasks taskRepo, catalog catalogRepo, b backend, gw storage.Gateway, opts Options) *Service {
	return &Service{
		tasks:      tasks,
		catalog:    catalog,
		backend:    b,
		gateway:    gw,
		opts:       opts,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// InputFile is an uploaded or downloaded binary input.
type InputFile struct {
	Data []byte
	MIME string
}

// GenerateParams describes an immediate-flow request.
type GenerateParams struct {
	StyleSlug  string
	PromptID   *uuid.UUID
	Quality    string
	Filters    []model.Filter
	PromptText string
	Image      *InputFile
	Mask       *InputFile
}

// GenerateResult is what a finished consumption yields.
type GenerateResult struct {
	Outputs []OutputRef
	Text    string
}

// Generate runs the immediate flow: resolve catalog overrides, compile
// the prompt, create the task record in running state, drive the
// stream, and finalize. The task row exists before the backend is
// invoked so a job id survives generation failure. Errors finalize the
// task to failed and are returned to the caller.
func (s *Service) Generate(ctx context.Context, p GenerateParams) (model.Task, GenerateResult, error) {
	base, styleID, promptID, err := s.resolveBase(ctx, p)
	if err != nil {
		return model.Task{}, GenerateResult{}, err
	}

	prompt := CompilePrompt(base, p.Quality, p.Filters, p.PromptText)

	params := map[string]any{}
	if p.Quality != "" {
		params["quality"] = p.Quality
	}
	if len(p.Filters) > 0 {
		params["filters"] = p.Filters
	}
	if p.Image != nil {
		params["has_input_image"] = true
	}
	if p.Mask != nil {
		params["has_mask"] = true
	}

	task := model.Task{
		Status:   model.TaskStatusRunning,
		Prompt:   prompt,
		Params:   params,
		StyleID:  styleID,
		PromptID: promptID,
	}

	id, err := s.tasks.Create(ctx, task)
	if err != nil {
		return model.Task{}, GenerateResult{}, fmt.Errorf("generate: failed to create task: %w", err)
	}
	task.ID = id

	// Parts order: input image, mask, then the compiled prompt text.
	var parts []genai.Part
	if p.Image != nil {
		parts = append(parts, genai.InlinePart(p.Image.MIME, p.Image.Data))
	}
	if p.Mask != nil {
		parts = append(parts, genai.InlinePart(p.Mask.MIME, p.Mask.Data))
	}
	parts = append(parts, genai.TextPart(prompt))

	res, err := s.run(ctx, id, parts)
	if err != nil {
		s.fail(ctx, id, err)
		return task, GenerateResult{}, err
	}

	if err := s.succeed(ctx, id, res.Text); err != nil {
		return task, GenerateResult{}, err
	}

	return task, res, nil
}

// Edit runs the edit flow for an existing task: instruction text
// first, then the required input image, then the optional mask. This
// flow neither creates nor finalizes the task; the caller owns the
// terminal transition and uses the returned outputs and text.
func (s *Service) Edit(ctx context.Context, taskID uuid.UUID, prompt string, image InputFile, mask *InputFile) (GenerateResult, error) {
	parts := []genai.Part{
		genai.TextPart(editInstruction(prompt, mask != nil)),
		genai.InlinePart(image.MIME, image.Data),
	}
	if mask != nil {
		parts = append(parts, genai.InlinePart(mask.MIME, mask.Data))
	}

	return s.run(ctx, taskID, parts)
}

// CreateEditTask inserts the running task row for an edit request and
// records the input-image upload path into the task params, so clients
// get a job id before generation starts.
func (s *Service) CreateEditTask(ctx context.Context, prompt string, image InputFile, hasMask bool) (model.Task, error) {
	params := map[string]any{
		"flow":     "edit",
		"has_mask": hasMask,
	}

	task := model.Task{
		Status: model.TaskStatusRunning,
		Prompt: editInstruction(prompt, hasMask),
		Params: params,
	}

	id, err := s.tasks.Create(ctx, task)
	if err != nil {
		return model.Task{}, fmt.Errorf("edit: failed to create task: %w", err)
	}
	task.ID = id

	// Provenance upload is enrichment, not part of the core flow: a
	// storage hiccup here must not lose the accepted task.
	path := fmt.Sprintf("tasks/%s/input.%s", id, extFromMIME(image.MIME))
	if res, err := s.gateway.Upload(ctx, s.opts.Bucket, path, image.Data, image.MIME, true); err != nil {
		zlog.Logger.Warn().Err(err).Str("task_id", id.String()).Msg("failed to store input image")
	} else {
		params["input_path"] = res.Path
		if err := s.tasks.UpdateParams(ctx, id, params); err != nil {
			zlog.Logger.Warn().Err(err).Str("task_id", id.String()).Msg("failed to record input path")
		}
		task.Params = params
	}

	return task, nil
}

// CompleteInBackground finishes an edit task detached from the
// originating request: the outcome is only observable through the task
// store, never through the HTTP response that accepted the job.
func (s *Service) CompleteInBackground(taskID uuid.UUID, prompt string, image InputFile, mask *InputFile) {
	go func() {
		ctx := context.Background()

		res, err := s.Edit(ctx, taskID, prompt, image, mask)
		if err != nil {
			s.fail(ctx, taskID, err)
			return
		}
		if err := s.succeed(ctx, taskID, res.Text); err != nil {
			zlog.Logger.Error().Err(err).Str("task_id", taskID.String()).Msg("failed to finalize task")
		}
	}()
}

// run invokes the backend and consumes the resulting stream.
func (s *Service) run(ctx context.Context, taskID uuid.UUID, parts []genai.Part) (GenerateResult, error) {
	st, err := s.backend.StreamGenerate(ctx, parts)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("generate: backend invocation failed: %w", err)
	}
	defer st.Close()

	text, outputs, err := s.consumeStream(ctx, taskID, st)
	if err != nil {
		return GenerateResult{}, err
	}

	return GenerateResult{Outputs: outputs, Text: text}, nil
}

// resolveBase looks up the optional style and prompt-template
// overrides. Absence of a match yields no override.
func (s *Service) resolveBase(ctx context.Context, p GenerateParams) (string, *uuid.UUID, *uuid.UUID, error) {
	var (
		segments []string
		styleID  *uuid.UUID
		promptID *uuid.UUID
	)

	if p.StyleSlug != "" {
		style, ok, err := s.catalog.GetStyleBySlug(ctx, p.StyleSlug)
		if err != nil {
			return "", nil, nil, fmt.Errorf("generate: style lookup failed: %w", err)
		}
		if ok {
			segments = append(segments, style.BasePrompt)
			styleID = &style.ID
		}
	}

	if p.PromptID != nil {
		tmpl, ok, err := s.catalog.GetPromptByID(ctx, *p.PromptID)
		if err != nil {
			return "", nil, nil, fmt.Errorf("generate: prompt lookup failed: %w", err)
		}
		if ok {
			segments = append(segments, tmpl.Body)
			promptID = &tmpl.ID
		}
	}

	base := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if base != "" {
			base += "\n"
		}
		base += seg
	}

	return base, styleID, promptID, nil
}

func (s *Service) succeed(ctx context.Context, id uuid.UUID, text string) error {
	var outputText *string
	if text != "" {
		outputText = &text
	}

	if err := s.tasks.Finalize(ctx, id, model.TaskStatusSucceeded, outputText, nil); err != nil {
		return fmt.Errorf("generate: failed to finalize task: %w", err)
	}
	return nil
}

// fail records the terminal failure; the original error still
// propagates to the caller, so a finalize problem is only logged.
func (s *Service) fail(ctx context.Context, id uuid.UUID, cause error) {
	msg := cause.Error()
	if err := s.tasks.Finalize(ctx, id, model.TaskStatusFailed, nil, &msg); err != nil {
		zlog.Logger.Error().Err(err).Str("task_id", id.String()).Msg("failed to finalize failed task")
	}
}

// DownloadInput fetches a remote input image with retries, returning
// its bytes and content type. Used by the URL-based edit compatibility
// path.
func (s *Service) DownloadInput(ctx context.Context, url string) (InputFile, error) {
	var file InputFile

	err := retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("download: failed to build request: %w", err)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("download: request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("download: unexpected status %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("download: failed to read body: %w", err)
		}

		mime := resp.Header.Get("Content-Type")
		if mime == "" {
			mime = "image/png"
		}
		file = InputFile{Data: data, MIME: mime}
		return nil
	}, s.opts.Retry)

	return file, err
}
