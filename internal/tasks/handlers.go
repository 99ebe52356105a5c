package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/easy-diagrams/internal/apperr"
	"github.com/hugh/easy-diagrams/internal/diagrams"
)

type Handler struct {
	renders    *diagrams.RenderService
	logger     *slog.Logger
	sweepBatch int
}

func NewHandler(renders *diagrams.RenderService, logger *slog.Logger, sweepBatch int) *Handler {
	return &Handler{
		renders:    renders,
		logger:     logger,
		sweepBatch: sweepBatch,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeRenderDiagram, h.HandleRenderDiagram)
	mux.HandleFunc(TypeRenderSweep, h.HandleRenderSweep)
}

func (h *Handler) HandleRenderDiagram(ctx context.Context, t *asynq.Task) error {
	var payload RenderDiagramPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	h.logger.Debug("rendering diagram",
		"diagram_id", payload.DiagramID,
		"code_version", payload.CodeVersion,
	)

	err := h.renders.RenderDiagram(ctx, payload.DiagramID, payload.CodeVersion)
	switch apperr.CodeOf(err) {
	case apperr.CodeRenderFailed, apperr.CodeNotFound:
		// Bad markup or a deleted diagram; retrying gives the same answer.
		h.logger.Info("render not retried", "diagram_id", payload.DiagramID, "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("render diagram %s: %w", payload.DiagramID, err)
	}
	return nil
}

func (h *Handler) HandleRenderSweep(ctx context.Context, t *asynq.Task) error {
	n, err := h.renders.SweepStale(ctx, h.sweepBatch)
	if err != nil {
		return fmt.Errorf("render sweep: %w", err)
	}
	h.logger.Debug("render sweep done", "rendered", n)
	return nil
}
