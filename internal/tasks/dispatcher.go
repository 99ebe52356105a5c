package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/easy-diagrams/internal/diagrams"
)

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher sends diagram renders to the worker through asynq.
type Dispatcher struct {
	client Enqueuer
	logger *slog.Logger
}

var _ diagrams.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(client Enqueuer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{client: client, logger: logger}
}

func (d *Dispatcher) EnqueueRender(ctx context.Context, diagramID string, version int64) error {
	task, err := NewRenderDiagramTask(RenderDiagramPayload{DiagramID: diagramID, CodeVersion: version})
	if err != nil {
		return fmt.Errorf("building render task: %w", err)
	}

	info, err := d.client.EnqueueContext(ctx, task, asynq.Queue(QueueCritical), asynq.MaxRetry(3))
	if err != nil {
		return fmt.Errorf("enqueue render: %w", err)
	}

	d.logger.Debug("render enqueued", "diagram_id", diagramID, "code_version", version, "task_id", info.ID)
	return nil
}
