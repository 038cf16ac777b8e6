package sac

import (
	"context"
	"time"
)

// Runtime wraps a Core with the background workers that accompany it in a
// running agent process: the timeout sweeper (spec §4.5) and the discovery
// heartbeat publisher (spec §3, §5). It exists so a process has a single
// handle to start and stop everything cleanly, the way the teacher's
// cmd/hector wires its executor and watch-mode goroutines behind one
// lifecycle object.
type Runtime struct {
	Core *Core

	SweepInterval     time.Duration
	DiscoveryInterval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRuntime wires a Runtime around an already-constructed Core.
func NewRuntime(core *Core, sweepInterval, discoveryInterval time.Duration) *Runtime {
	return &Runtime{Core: core, SweepInterval: sweepInterval, DiscoveryInterval: discoveryInterval}
}

// Start subscribes the Core to its broker topics and launches the sweeper
// and discovery publisher as background goroutines. It returns once
// subscriptions are established; the background loops keep running until
// Shutdown is called.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.Core.Start(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		stopped := make(chan struct{}, 2)

		go func() {
			r.Core.RunTimeoutSweeper(runCtx, r.SweepInterval)
			stopped <- struct{}{}
		}()
		go func() {
			r.Core.RunDiscoveryPublisher(runCtx, r.DiscoveryInterval)
			stopped <- struct{}{}
		}()

		<-stopped
		<-stopped
	}()

	return nil
}

// Shutdown stops the sweeper and discovery publisher and drains the worker
// pool, letting in-flight turns reach their next suspension point before
// returning (SPEC_FULL supplemented feature). It does not attempt to cancel
// turns already in progress: a turn only ever pauses at the cooperative
// suspension points the turn loop already defines (spec §4.3), so draining
// is simply waiting for the pool's in-flight goroutines to finish their
// current step.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.Core.pool.Drain(ctx)
}
