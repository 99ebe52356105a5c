package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeRenderDiagram = "diagram:render"
	TypeRenderSweep   = "diagram:render_sweep"
)

// Queue names, matching the weights in queue.NewServer.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// RenderDiagramPayload asks the worker to render one code version of a
// diagram. The render is skipped if the code has moved on since.
type RenderDiagramPayload struct {
	DiagramID   string `json:"diagram_id"`
	CodeVersion int64  `json:"code_version"`
}

func NewRenderDiagramTask(payload RenderDiagramPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRenderDiagram, data), nil
}

// RenderSweepPayload is empty; the sweep looks at every organization.
type RenderSweepPayload struct{}

func NewRenderSweepTask() *asynq.Task {
	return asynq.NewTask(TypeRenderSweep, nil)
}
