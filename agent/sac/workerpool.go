package sac

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds the number of turns processed concurrently by one
// agent process (spec §5: "A fixed-size worker pool handles inbound broker
// messages. Each worker runs one turn of the state machine to completion
// or to a suspension point."). Grounded on the teacher's errgroup/semaphore
// usage in workflowagent (golang.org/x/sync), narrowed here to a bare
// semaphore since turns fire-and-forget rather than needing a joined error.
type WorkerPool struct {
	sem  *semaphore.Weighted
	size int64

	onBusyChange func(n int)
}

// NewWorkerPool creates a pool with the given number of slots
// (worker_pool_size, spec §6; the config default is 8). A non-positive
// size is treated as 1.
func NewWorkerPool(size int, onBusyChange func(n int)) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{sem: semaphore.NewWeighted(int64(size)), size: int64(size), onBusyChange: onBusyChange}
}

// Submit blocks until a slot is free (or ctx is cancelled), then runs fn in
// a new goroutine holding that slot. Submit itself returns once fn has been
// launched, not once it completes — callers that need completion should
// synchronize through fn itself (e.g. a WaitGroup or channel close).
func (p *WorkerPool) Submit(ctx context.Context, fn func(context.Context)) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.reportBusy()
	go func() {
		defer func() {
			p.sem.Release(1)
			p.reportBusy()
		}()
		fn(ctx)
	}()
	return nil
}

// Drain blocks until every in-flight turn has released its slot (i.e. the
// pool is fully idle) or ctx is cancelled. It acquires and immediately
// releases the full weight of the semaphore, which only succeeds once no
// goroutine still holds a slot.
func (p *WorkerPool) Drain(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, p.size); err != nil {
		return err
	}
	p.sem.Release(p.size)
	return nil
}

func (p *WorkerPool) reportBusy() {
	if p.onBusyChange == nil {
		return
	}
	// TryAcquire free slots one at a time to count them without
	// blocking, then release them; approximate but adequate for a gauge.
	free := int64(0)
	for free < p.size && p.sem.TryAcquire(1) {
		free++
	}
	for i := int64(0); i < free; i++ {
		p.sem.Release(1)
	}
	p.onBusyChange(int(p.size - free))
}
