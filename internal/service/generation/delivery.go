package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pixmint/genapi/internal/model"
	taskrepo "github.com/pixmint/genapi/internal/repository/task"
)

// ResultDelivery tells the transport layer how to answer a result
// request: inline base64 for small outputs, a redirect otherwise.
type ResultDelivery struct {
	Inline      bool
	Base64      string
	RedirectURL string
}

// Status returns the task and, when it has succeeded, the resolved URL
// of its primary output.
func (s *Service) Status(ctx context.Context, taskID uuid.UUID) (model.Task, string, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return model.Task{}, "", err
	}
	if task.Status != model.TaskStatusSucceeded {
		return task, "", nil
	}

	out, err := s.tasks.GetPrimaryOutput(ctx, taskID)
	if err != nil {
		if errors.Is(err, taskrepo.ErrOutputNotFound) {
			// Text-only result: succeeded without an image output.
			return task, "", nil
		}
		return task, "", err
	}

	url, err := s.gateway.ResolveURL(ctx, out.StorageBucket, out.StoragePath, s.opts.URLTTL)
	if err != nil {
		return task, "", fmt.Errorf("status: failed to resolve url: %w", err)
	}

	return task, url, nil
}

// FetchResult applies the result-delivery policy to a succeeded task's
// primary output. Outputs with a known byte size strictly below the
// inline threshold come back inline as base64; everything else (size
// unknown, zero, or at/above the threshold) redirects to a
// short-lived resolved URL.
func (s *Service) FetchResult(ctx context.Context, taskID uuid.UUID) (ResultDelivery, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return ResultDelivery{}, err
	}
	if task.Status != model.TaskStatusSucceeded {
		return ResultDelivery{}, ErrResultNotReady
	}

	out, err := s.tasks.GetPrimaryOutput(ctx, taskID)
	if err != nil {
		return ResultDelivery{}, err
	}

	if out.Size != nil && *out.Size > 0 && *out.Size < s.opts.InlineMaxBytes {
		b64, err := s.gateway.FetchBase64(ctx, out.StorageBucket, out.StoragePath)
		if err != nil {
			return ResultDelivery{}, fmt.Errorf("result: failed to fetch output: %w", err)
		}
		return ResultDelivery{Inline: true, Base64: b64}, nil
	}

	url, err := s.gateway.ResolveURL(ctx, out.StorageBucket, out.StoragePath, s.opts.URLTTL)
	if err != nil {
		return ResultDelivery{}, fmt.Errorf("result: failed to resolve url: %w", err)
	}

	return ResultDelivery{RedirectURL: url}, nil
}
