package catalog

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixmint/genapi/internal/api/respond"
	"github.com/pixmint/genapi/internal/model"
)

// repository defines the read-only catalog lookups the handlers use.
type repository interface {
	ListStyles(ctx context.Context) ([]model.Style, error)
	GetPromptByID(ctx context.Context, id uuid.UUID) (model.PromptTemplate, bool, error)
}

// Handler serves the read-only style and prompt catalogs.
type Handler struct {
	repo repository
}

func NewHandler(repo repository) *Handler {
	return &Handler{repo: repo}
}

// ListStyles returns all catalog styles.
func (h *Handler) ListStyles(c *ginext.Context) {
	styles, err := h.repo.ListStyles(c.Request.Context())
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to list styles")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to list styles"))
		return
	}

	respond.OK(c, styles)
}

// GetPrompt returns one prompt template by id.
func (h *Handler) GetPrompt(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	prompt, ok, err := h.repo.GetPromptByID(c.Request.Context(), id)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to get prompt")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get prompt"))
		return
	}
	if !ok {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("prompt not found"))
		return
	}

	respond.OK(c, prompt)
}
