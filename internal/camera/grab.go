package camera

import (
	"context"
	"sync"
)

// Worker is the Grab implementation shared by the backends. The backend
// supplies a run function that delivers frames until its context is
// cancelled, calling Frame after each completed frame.
type Worker struct {
	cancel context.CancelFunc
	done   chan struct{}
	count  int

	mu        sync.Mutex
	delivered int
	seqDone   chan struct{}
	err       error
}

// StartWorker runs run on a new goroutine. For a sequence of count frames
// the worker tracks completion so Stop(true) can wait for it.
func StartWorker(op StartOp, run func(ctx context.Context, w *Worker) error) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		cancel:  cancel,
		done:    make(chan struct{}),
		count:   op.Count,
		seqDone: make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		err := run(ctx, w)
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
	}()
	return w
}

// Frame records a delivered frame and reports whether the sequence, if
// any, is complete. run should return once it is.
func (w *Worker) Frame() (complete bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.delivered++
	if w.count > 0 && w.delivered == w.count {
		close(w.seqDone)
		return true
	}
	return false
}

// Delivered returns the number of frames delivered so far.
func (w *Worker) Delivered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.delivered
}

// Stop implements Grab.
func (w *Worker) Stop(wait bool) error {
	if wait && w.count > 0 {
		select {
		case <-w.seqDone:
		case <-w.done:
		}
	}
	w.cancel()
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Done implements Grab.
func (w *Worker) Done() <-chan struct{} { return w.done }
