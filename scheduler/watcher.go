package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Watcher invokes a job on a fixed interval. Cycles never overlap: the
// next tick is only honored once the previous cycle has finished.
type Watcher struct {
	job      *Job
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher builds a watcher running job every interval.
func NewWatcher(job *Job, interval time.Duration) *Watcher {
	return &Watcher{job: job, interval: interval}
}

// Start runs one cycle immediately and then on every tick. It blocks
// until the context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	// Context cancellation exits the loop without going through Stop;
	// clear the flag either way so the watcher can be started again.
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	w.runCycle(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// Stop shuts the loop down and waits for an in-flight cycle to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *Watcher) runCycle(ctx context.Context) {
	w.wg.Add(1)
	defer w.wg.Done()

	if ctx.Err() != nil {
		return
	}
	if _, err := w.job.RunOnce(ctx); err != nil {
		slog.Error("scheduled cycle failed", slog.Any("error", err))
	}
}
