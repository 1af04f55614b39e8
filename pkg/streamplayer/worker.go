// ABOUTME: Single-slot executor for the playback loop
// ABOUTME: Joins the previous run with a timeout before a new one may start
package streamplayer

import (
	"context"
	"sync"
	"time"
)

type worker struct {
	mu     sync.Mutex
	done   chan struct{}
	cancel context.CancelFunc
}

// submit starts fn unless a previous run is still active. fn calls finish
// to mark the slot free; anything it does afterwards runs outside the slot.
func (w *worker) submit(fn func(ctx context.Context, finish func())) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done != nil {
		select {
		case <-w.done:
		default:
			return ErrWorkerBusy
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w.done = done
	w.cancel = cancel

	go func() {
		var once sync.Once
		finish := func() {
			once.Do(func() {
				cancel()
				close(done)
			})
		}
		defer finish()
		fn(ctx, finish)
	}()
	return nil
}

// current returns the done channel of the active run, nil when idle
func (w *worker) current() chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

func (w *worker) busy() bool {
	done := w.current()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// wait joins the current run, giving up after timeout
func (w *worker) wait(timeout time.Duration) bool {
	done := w.current()
	if done == nil {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// interrupt cancels the context of the current run
func (w *worker) interrupt() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}
