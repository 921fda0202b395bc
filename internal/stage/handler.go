package stage

import (
	"context"

	"vidpress/internal/queue"
)

// Handler describes the contract the workflow manager needs from each
// publish step.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}
