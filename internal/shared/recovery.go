package shared

import (
	"fmt"
	"runtime/debug"

	"github.com/charmbracelet/log"
)

// PanicError carries a recovered panic value and the stack it unwound from.
type PanicError struct {
	Context string
	Value   any
	Stack   string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Context, e.Value)
}

func logPanic(logger *log.Logger, p *PanicError) {
	if logger == nil {
		logger = log.Default()
	}
	logger.Error("recovered panic", "context", p.Context, "panic", p.Value, "stack", p.Stack)
}

// SafeCall calls fn with panic recovery.
// Returns true if fn completed without panicking.
func SafeCall(logger *log.Logger, context string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, &PanicError{Context: context, Value: r, Stack: string(debug.Stack())})
			ok = false
		}
	}()
	fn()
	return true
}

// SafeCallWithError calls fn with panic recovery. A panic is logged and
// returned as a *PanicError.
func SafeCallWithError(logger *log.Logger, context string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p := &PanicError{Context: context, Value: r, Stack: string(debug.Stack())}
			logPanic(logger, p)
			err = p
		}
	}()
	return fn()
}
