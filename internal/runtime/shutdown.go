package runtime

import (
	"context"
	"time"
)

// ForceQuitQuestion is what the operator is asked when shutdown stalls.
const ForceQuitQuestion = "Send [y] to force quit: "

// Prompter asks the operator a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, question string) (bool, error)

// Confirm calls f.
func (f PrompterFunc) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// State is the shutdown progress of the runtime. Draining means the client
// is disconnected and modules are unloading; Stalled means the unload has
// outlived the shutdown timeout.
type State int

const (
	StateRunning State = iota
	StateDraining
	StateStalled
	StateStopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateDraining:
		return "Draining"
	case StateStalled:
		return "Stalled"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// State returns the current shutdown state.
func (r *Runtime) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Runtime) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	r.logger.Debug("shutdown state", "state", s)
}

// Stopped is closed once Shutdown has finished unloading.
func (r *Runtime) Stopped() <-chan struct{} {
	return r.stopped
}

type answer struct {
	ok  bool
	err error
}

// Shutdown disconnects the client and unloads every module on the loop.
// If that takes longer than the shutdown timeout the operator is asked
// whether to force quit; declining keeps waiting and asks again after
// another timeout. A second call waits for the first to finish.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return ErrNotInitialized
	}
	if r.state != StateRunning {
		r.mu.Unlock()
		select {
		case <-r.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.state = StateDraining
	c := r.client
	r.mu.Unlock()

	r.logger.Info("Shutting down...")
	if err := c.Disconnect(); err != nil {
		r.logger.Warn("Client disconnect failed", "err", err)
	}

	unloaded := make(chan struct{})
	unloadAll := func() {
		defer close(unloaded)
		r.modules.UnloadAll()
	}
	if !r.loop.Post(unloadAll) {
		r.logger.Warn("Loop is not running, unloading modules directly")
		go unloadAll()
	}

	timeout := r.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var answers chan answer
	for {
		select {
		case <-unloaded:
			r.finish()
			return nil

		case <-timer.C:
			r.setState(StateStalled)
			r.logger.Warn("Shutdown is taking too long", "waited", timeout)
			if r.prompter == nil {
				r.logger.Warn("No prompter configured, still waiting for modules to unload")
				timer.Reset(timeout)
				continue
			}
			answers = make(chan answer, 1)
			go func(out chan<- answer) {
				ok, err := r.prompter.Confirm(ctx, ForceQuitQuestion)
				out <- answer{ok, err}
			}(answers)

		case a := <-answers:
			answers = nil
			if a.err != nil {
				r.logger.Error("Force quit prompt failed", "err", a.err)
			}
			if a.ok {
				r.logger.Warn("Forcing exit")
				r.exit(0)
				return nil
			}
			r.logger.Info("Still waiting for modules to unload")
			timer.Reset(timeout)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Runtime) finish() {
	r.events.Detach()
	r.loop.Stop()

	r.mu.Lock()
	store, own := r.store, r.ownStore
	r.state = StateStopped
	r.mu.Unlock()

	if own && store != nil {
		if err := store.Close(); err != nil {
			r.logger.Warn("Closing config store failed", "err", err)
		}
	}
	close(r.stopped)
	r.logger.Info("Shutdown complete")
}
