package hub

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"pulseroom/pkg/interfaces"
)

// Job is one unit of deferred work.
type Job = interfaces.Job

type queuedJob struct {
	job      Job
	enqueued time.Time
}

// Hub runs deferred jobs on a single goroutine, in enqueue order.
// ARCHITECTURAL DISCOVERY: Single goroutine coordination keeps persistence
// ordered without a lock around the store.
type Hub struct {
	jobs            chan queuedJob
	shutdownChannel chan struct{}
	stopped         chan struct{}

	running bool
	mu      sync.RWMutex

	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates a hub whose queue holds queueSize pending jobs.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &Hub{
		jobs:            make(chan queuedJob, queueSize),
		shutdownChannel: make(chan struct{}),
		stopped:         make(chan struct{}),
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting persistence hub...")
	go h.run(ctx)

	return nil
}

// Stop refuses new jobs, runs what is already queued and waits for the
// loop to exit.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	log.Println("Stopping persistence hub...")
	<-h.stopped
	return nil
}

// Enqueue hands job to the hub without blocking. A full queue drops it.
func (h *Hub) Enqueue(job Job) error {
	if job.Run == nil {
		return ErrNilJob
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.jobs <- queuedJob{job: job, enqueued: time.Now()}:
		return nil
	default:
		h.dropped.Add(1)
		return ErrQueueFull
	}
}

// run is the main hub processing loop
func (h *Hub) run(ctx context.Context) {
	defer close(h.stopped)
	defer log.Println("Hub processing stopped")

	for {
		select {
		case qj := <-h.jobs:
			h.execute(ctx, qj)

		case <-h.shutdownChannel:
			h.drain(ctx)
			return

		case <-ctx.Done():
			log.Printf("Hub context cancelled, %d job(s) abandoned", len(h.jobs))
			return
		}
	}
}

func (h *Hub) drain(ctx context.Context) {
	for {
		select {
		case qj := <-h.jobs:
			h.execute(ctx, qj)
		default:
			return
		}
	}
}

// execute runs one job. Failures are logged and never retried.
func (h *Hub) execute(ctx context.Context, qj queuedJob) {
	defer func() {
		if r := recover(); r != nil {
			h.failed.Add(1)
			log.Printf("Job %s panicked: %v", qj.job.Name, r)
		}
	}()

	if err := qj.job.Run(ctx); err != nil {
		h.failed.Add(1)
		log.Printf("Job %s failed after %v: %v", qj.job.Name, time.Since(qj.enqueued), err)
		return
	}
	h.processed.Add(1)
}

// Stats returns counters for health reporting.
func (h *Hub) Stats() map[string]int64 {
	return map[string]int64{
		"queued":    int64(len(h.jobs)),
		"processed": h.processed.Load(),
		"failed":    h.failed.Load(),
		"dropped":   h.dropped.Load(),
	}
}
