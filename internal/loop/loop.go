// Package loop provides the single serial executor every event handler,
// command and module timer runs on.
package loop

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/SlastyonArtyom/BotCore/internal/shared"
)

var (
	// ErrStopped is returned when work is handed to a loop that is not running.
	ErrStopped = errors.New("loop is not running")
	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("loop is already running")
)

// Loop runs posted tasks one at a time, in the order they were posted.
// Post never blocks, so event sources can hand work over from any goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	stopped bool
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}

	timers timerSet
	logger *log.Logger
}

// New returns a loop that is ready to Run.
func New(logger *log.Logger) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: shared.Tagged(logger, "Loop"),
	}
	l.timers.init()
	return l
}

// Run executes tasks until ctx is cancelled or Stop is called. Tasks still
// queued at that point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.mu.Unlock()

	defer close(l.done)
	defer l.finish()

	l.logger.Debug("loop started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.quit:
			return nil
		case <-l.wake:
		}

		for {
			task, ok := l.next()
			if !ok {
				break
			}
			shared.SafeCall(l.logger, "loop task", task)

			select {
			case <-l.quit:
				return nil
			default:
			}
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Loop) finish() {
	l.mu.Lock()
	l.stopped = true
	l.running = false
	dropped := len(l.queue)
	l.queue = nil
	l.mu.Unlock()

	l.timers.stopAll()
	if dropped > 0 {
		l.logger.Warn("loop stopped with pending tasks", "dropped", dropped)
	}
	l.logger.Debug("loop stopped")
}

// Post queues fn. It reports false when the loop has already stopped.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it. It must not be called from the
// loop goroutine, since the loop would wait on itself.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	posted := l.Post(func() {
		result <- shared.SafeCallWithError(l.logger, "loop task", fn)
	})
	if !posted {
		return ErrStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The task may have finished right before the loop exited.
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// Stop asks Run to return after the task in progress. Safe to call more
// than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	close(l.quit)
	idle := !l.running
	if idle {
		close(l.done)
	}
	l.mu.Unlock()

	if idle {
		l.timers.stopAll()
	}
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Running reports whether Run is executing.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
