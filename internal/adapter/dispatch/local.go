package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
	"github.com/bnema/tubeaudit/internal/port"
)

const ModeLocal = "local"

var errDispatcherClosed = errors.New("dispatcher is shut down")

// Runner executes one job's pipeline.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// Local runs pipelines on goroutines inside this process.
type Local struct {
	runner Runner

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewLocal(runner Runner) *Local {
	return &Local{runner: runner}
}

func (d *Local) Mode() string { return ModeLocal }

func (d *Local) Dispatch(ctx context.Context, jobID string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return &domain.DispatchError{Mode: ModeLocal, Err: errDispatcherClosed}
	}
	d.wg.Add(1)
	d.mu.Unlock()

	// The pipeline must outlive the request that created the job.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		if err := d.runner.Run(runCtx, jobID); err != nil && !errors.Is(err, domain.ErrAlreadyClaimed) {
			logger.Error.Printf("local run of job %s: %v", jobID, err)
		}
	}()
	return nil
}

// Shutdown stops accepting jobs and waits for running pipelines, or for ctx.
func (d *Local) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every dispatched pipeline has returned.
func (d *Local) Wait() {
	d.wg.Wait()
}

var _ port.Dispatcher = (*Local)(nil)
