package interfaces

import (
	"context"

	"pulseroom/pkg/types"
)

// Dispatcher handles decoded inbound events in receipt order.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn Connection, in *types.Inbound)
}

// Job is one unit of deferred work, usually a store write that must stay
// off the broadcast path.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Persister accepts background persistence work without blocking.
type Persister interface {
	Enqueue(job Job) error
}
