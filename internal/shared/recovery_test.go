package shared

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSafeCall(t *testing.T) {
	if !SafeCall(Discard(), "ok", func() {}) {
		t.Error("SafeCall returned false for a clean call")
	}
	if SafeCall(Discard(), "boom", func() { panic("boom") }) {
		t.Error("SafeCall returned true for a panicking call")
	}
}

func TestSafeCallWithError(t *testing.T) {
	sentinel := errors.New("sentinel")
	if err := SafeCallWithError(Discard(), "err", func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want sentinel", err)
	}

	err := SafeCallWithError(Discard(), "unload combat", func() error { panic("stuck") })
	var p *PanicError
	if !errors.As(err, &p) {
		t.Fatalf("err = %v, want *PanicError", err)
	}
	if p.Value != "stuck" || p.Context != "unload combat" {
		t.Errorf("unexpected panic error: %+v", p)
	}
	if p.Stack == "" {
		t.Error("panic error has no stack")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "debug", "logfmt")
	if err != nil {
		t.Fatal(err)
	}
	Tagged(logger, "Core").Debug("started", "modules", 3)
	out := buf.String()
	if !strings.Contains(out, "Core") || !strings.Contains(out, "modules=3") {
		t.Errorf("unexpected log output %q", out)
	}

	if _, err := NewLogger(&buf, "loud", ""); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := NewLogger(&buf, "", "xml"); err == nil {
		t.Error("expected error for invalid format")
	}
}
