// Package modulestest provides a runtime for exercising modules in tests.
// Events raised on its local client are dispatched on a running loop, and
// module settings live in an in-memory SQLite store.
package modulestest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/SlastyonArtyom/BotCore/internal/client"
	"github.com/SlastyonArtyom/BotCore/internal/command"
	"github.com/SlastyonArtyom/BotCore/internal/config"
	"github.com/SlastyonArtyom/BotCore/internal/events"
	"github.com/SlastyonArtyom/BotCore/internal/loop"
	"github.com/SlastyonArtyom/BotCore/internal/modules"
	"github.com/SlastyonArtyom/BotCore/internal/shared"
)

// Runtime implements modules.Runtime around a connected client.Local.
type Runtime struct {
	Local   *client.Local
	Manager *modules.Manager

	t         testing.TB
	cfg       *config.Config
	commands  *command.Registry
	events    *events.Registry
	loop      *loop.Loop
	store     *config.SQLStore
	logger    *log.Logger
	shutdowns int
}

var _ modules.Runtime = (*Runtime)(nil)

// New starts a runtime whose manager knows catalog. Nothing is loaded yet.
func New(t testing.TB, catalog modules.Catalog) *Runtime {
	t.Helper()
	logger := shared.Discard()

	store, err := config.OpenSQLStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	l := loop.New(logger)
	go l.Run(context.Background())
	t.Cleanup(l.Stop)

	c := client.NewLocal(logger)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	r := &Runtime{
		Local:    c,
		t:        t,
		cfg:      config.Default(),
		commands: command.NewRegistry(logger),
		events:   events.NewRegistry(c, events.WithPoster(l.Post), events.WithLogger(logger)),
		loop:     l,
		store:    store,
		logger:   logger,
	}
	r.Manager = modules.NewManager(r, catalog)
	return r
}

// Autoload loads the catalog on the loop and fails the test on any error.
func (r *Runtime) Autoload() {
	r.t.Helper()
	if err := r.Do(r.Manager.Autoload); err != nil {
		r.t.Fatal(err)
	}
}

// Do runs fn on the loop and waits for it.
func (r *Runtime) Do(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.loop.Do(ctx, fn)
}

// Sync waits until everything queued on the loop so far has run.
func (r *Runtime) Sync() {
	r.t.Helper()
	if err := r.Do(func() error { return nil }); err != nil {
		r.t.Fatal(err)
	}
}

// Raise delivers an incoming event and waits for its handlers.
func (r *Runtime) Raise(event string, args ...any) {
	r.t.Helper()
	r.Local.Raise(event, args...)
	r.Sync()
}

// Exec runs a console line on the loop and returns what it printed.
func (r *Runtime) Exec(line string) string {
	r.t.Helper()
	var buf bytes.Buffer
	name, rest := command.SplitLine(line)
	if err := r.Do(func() error { return r.commands.Execute(name, rest, &buf) }); err != nil {
		r.t.Fatalf("%s: %v", line, err)
	}
	return buf.String()
}

// Sent returns the events emitted so far and clears the outbox.
func (r *Runtime) Sent() []client.Message {
	sent := r.Local.Sent()
	r.Local.Reset()
	return sent
}

// Shutdowns counts RequestShutdown calls.
func (r *Runtime) Shutdowns() int {
	var n int
	r.Do(func() error { n = r.shutdowns; return nil })
	return n
}

func (r *Runtime) Config() *config.Config          { return r.cfg }
func (r *Runtime) Client() client.Client           { return r.Local }
func (r *Runtime) Commands() *command.Registry     { return r.commands }
func (r *Runtime) Events() *events.Registry        { return r.events }
func (r *Runtime) Loop() *loop.Loop                { return r.loop }
func (r *Runtime) Store() config.Store             { return r.store }
func (r *Runtime) Logger() *log.Logger             { return r.logger }
func (r *Runtime) RequestShutdown()                { r.shutdowns++ }
func (r *Runtime) UnregisterEvent(id string) error { return r.events.Unregister(id) }
func (r *Runtime) RegisterEvent(typ string, h events.Handler, once bool) (string, error) {
	return r.events.Register(typ, h, once)
}
