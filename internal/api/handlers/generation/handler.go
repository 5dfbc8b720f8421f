package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixmint/genapi/internal/api/respond"
	"github.com/pixmint/genapi/internal/model"
	taskrepo "github.com/pixmint/genapi/internal/repository/task"
	gensvc "github.com/pixmint/genapi/internal/service/generation"
)

// service defines the generation operations the handlers depend on.
type service interface {
	Generate(ctx context.Context, p gensvc.GenerateParams) (model.Task, gensvc.GenerateResult, error)
	CreateEditTask(ctx context.Context, prompt string, image gensvc.InputFile, hasMask bool) (model.Task, error)
	CompleteInBackground(taskID uuid.UUID, prompt string, image gensvc.InputFile, mask *gensvc.InputFile)
	Status(ctx context.Context, taskID uuid.UUID) (model.Task, string, error)
	FetchResult(ctx context.Context, taskID uuid.UUID) (gensvc.ResultDelivery, error)
	DownloadInput(ctx context.Context, url string) (gensvc.InputFile, error)
}

// Handler provides HTTP handlers for generation job endpoints.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// Generate handles the synchronous generation endpoint: the request
// runs to completion and the response carries the produced outputs.
func (h *Handler) Generate(c *ginext.Context) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("parse multipart form failed: %v", err))
		return
	}

	params := gensvc.GenerateParams{
		StyleSlug:  c.PostForm("style_slug"),
		Quality:    c.PostForm("quality"),
		PromptText: c.PostForm("prompt"),
	}

	if idStr := c.PostForm("prompt_id"); idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid prompt_id: %v", err))
			return
		}
		params.PromptID = &id
	}

	if filtersJSON := c.PostForm("filters"); filtersJSON != "" {
		if err := json.Unmarshal([]byte(filtersJSON), &params.Filters); err != nil {
			zlog.Logger.Err(err).Msg("failed to unmarshal filters")
			respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to unmarshal filters"))
			return
		}
	}

	image, err := h.formImage(c, "image")
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, err)
		return
	}
	params.Image = image

	mask, err := h.formImage(c, "mask")
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, err)
		return
	}
	params.Mask = mask

	if params.StyleSlug == "" && params.PromptID == nil && params.PromptText == "" {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("prompt, style_slug or prompt_id is required"))
		return
	}

	task, res, err := h.service.Generate(c.Request.Context(), params)
	if err != nil {
		zlog.Logger.Err(err).Str("task_id", task.ID.String()).Msg("generation failed")
		status := http.StatusBadGateway
		if task.ID == uuid.Nil {
			status = http.StatusInternalServerError
		}
		respond.Fail(c, status, fmt.Errorf("generation failed: %v", err))
		return
	}

	urls := make([]string, 0, len(res.Outputs))
	for _, o := range res.Outputs {
		urls = append(urls, o.URL)
	}

	respond.OK(c, map[string]interface{}{
		"job_id":      task.ID,
		"status":      statusLabel(model.TaskStatusSucceeded),
		"output_urls": urls,
		"output_text": res.Text,
	})
}

// Edit handles the asynchronous edit endpoint: the task is accepted
// and completed in the background; clients poll for the outcome.
func (h *Handler) Edit(c *ginext.Context) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("parse multipart form failed: %v", err))
		return
	}

	prompt := c.PostForm("prompt")
	if prompt == "" {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("prompt is required"))
		return
	}

	image, mask, err := h.editInputs(c)
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, err)
		return
	}

	task, err := h.service.CreateEditTask(c.Request.Context(), prompt, *image, mask != nil)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to create edit task")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to create task"))
		return
	}

	h.service.CompleteInBackground(task.ID, prompt, *image, mask)

	inputBytes := len(image.Data)
	if mask != nil {
		inputBytes += len(mask.Data)
	}

	respond.Accepted(c, map[string]interface{}{
		"job_id":               task.ID,
		"status":               "accepted",
		"estimated_cost_cents": estimateCostCents(inputBytes),
	})
}

// editInputs collects the input image and optional mask from uploaded
// files, falling back to the URL-based compatibility fields. A failed
// mask download is logged and skipped; the primary image still gets
// processed.
func (h *Handler) editInputs(c *ginext.Context) (*gensvc.InputFile, *gensvc.InputFile, error) {
	image, err := h.formImage(c, "image")
	if err != nil {
		return nil, nil, err
	}
	if image == nil {
		if url := c.PostForm("image_url"); url != "" {
			file, err := h.service.DownloadInput(c.Request.Context(), url)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to download image: %v", err)
			}
			image = &file
		}
	}
	if image == nil {
		return nil, nil, fmt.Errorf("image file is required")
	}

	mask, err := h.formImage(c, "mask")
	if err != nil {
		return nil, nil, err
	}
	if mask == nil {
		if url := c.PostForm("mask_url"); url != "" {
			file, err := h.service.DownloadInput(c.Request.Context(), url)
			if err != nil {
				zlog.Logger.Warn().Err(err).Msg("mask download failed, proceeding without mask")
			} else {
				mask = &file
			}
		}
	}

	return image, mask, nil
}

// formImage reads an optional uploaded file from the multipart form.
func (h *Handler) formImage(c *ginext.Context, field string) (*gensvc.InputFile, error) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to retrieve %s file", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file", field)
	}

	return &gensvc.InputFile{Data: data, MIME: fileMIME(header)}, nil
}

// Status handles job status polling.
func (h *Handler) Status(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	task, resultURL, err := h.service.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, taskrepo.ErrTaskNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("job not found"))
			return
		}
		zlog.Logger.Err(err).Msg("failed to get job status")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get job status"))
		return
	}

	result := map[string]interface{}{
		"job_id": task.ID,
		"status": statusLabel(task.Status),
	}
	if task.Status == model.TaskStatusSucceeded && resultURL != "" {
		result["result_url"] = resultURL
	}

	respond.OK(c, result)
}

// Result serves the primary output of a succeeded job: inline base64
// when the delivery policy allows it, a redirect otherwise.
func (h *Handler) Result(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	delivery, err := h.service.FetchResult(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, taskrepo.ErrTaskNotFound), errors.Is(err, taskrepo.ErrOutputNotFound):
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("result not found"))
		case errors.Is(err, gensvc.ErrResultNotReady):
			respond.Fail(c, http.StatusConflict, fmt.Errorf("result not available"))
		default:
			zlog.Logger.Err(err).Msg("failed to fetch result")
			respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to fetch result"))
		}
		return
	}

	if delivery.Inline {
		respond.OK(c, map[string]interface{}{"result_base64": delivery.Base64})
		return
	}

	c.Redirect(http.StatusFound, delivery.RedirectURL)
}

// statusLabel remaps internal task states to the public job states.
func statusLabel(s model.TaskStatus) string {
	switch s {
	case model.TaskStatusRunning:
		return "processing"
	case model.TaskStatusSucceeded:
		return "done"
	case model.TaskStatusFailed:
		return "error"
	default:
		return string(s)
	}
}

// estimateCostCents prices a job at 35 cents per MiB of input.
func estimateCostCents(inputBytes int) int {
	return int(math.Round(float64(inputBytes) / (1 << 20) * 35))
}

func fileMIME(header *multipart.FileHeader) string {
	if mime := header.Header.Get("Content-Type"); mime != "" {
		return mime
	}
	return "image/png"
}
