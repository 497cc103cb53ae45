// Package runtime provides the process-wide BotCore runtime: it owns the
// client, the event and command registries, the loop and the module
// manager, and drives startup and shutdown.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/SlastyonArtyom/BotCore/internal/client"
	"github.com/SlastyonArtyom/BotCore/internal/command"
	"github.com/SlastyonArtyom/BotCore/internal/config"
	"github.com/SlastyonArtyom/BotCore/internal/events"
	"github.com/SlastyonArtyom/BotCore/internal/loop"
	"github.com/SlastyonArtyom/BotCore/internal/modules"
	"github.com/SlastyonArtyom/BotCore/internal/shared"
)

var (
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("runtime already initialized")
	// ErrNotInitialized is returned by operations that need a client before Init.
	ErrNotInitialized = errors.New("runtime not initialized")
)

// ClientFactory builds the client during Init.
type ClientFactory func(cfg config.Client, logger *log.Logger) (client.Client, error)

// Option configures a Runtime. Options only apply to the call of New that
// creates the instance.
type Option func(*Runtime)

// WithClientFactory replaces client.New.
func WithClientFactory(f ClientFactory) Option {
	return func(r *Runtime) { r.newClient = f }
}

// WithCatalog sets the module table autoloaded by Init.
func WithCatalog(catalog modules.Catalog) Option {
	return func(r *Runtime) { r.catalog = catalog }
}

// WithStore sets the module config store. Without it Init opens the store
// described by the storage config and closes it on shutdown.
func WithStore(store config.Store) Option {
	return func(r *Runtime) { r.store = store }
}

// WithLogger sets the root logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Runtime) { r.root = logger }
}

// WithPrompter sets who is asked about a forced exit when shutdown stalls.
func WithPrompter(p Prompter) Option {
	return func(r *Runtime) { r.prompter = p }
}

// WithExit replaces os.Exit for the forced exit.
func WithExit(exit func(code int)) Option {
	return func(r *Runtime) { r.exit = exit }
}

// Runtime is the process-wide instance. Only the first New creates one.
type Runtime struct {
	cfg       *config.Config
	root      *log.Logger
	logger    *log.Logger
	newClient ClientFactory
	catalog   modules.Catalog
	prompter  Prompter
	exit      func(code int)

	loop     *loop.Loop
	events   *events.Registry
	commands *command.Registry
	modules  *modules.Manager

	mu          sync.RWMutex
	initialized bool
	client      client.Client
	store       config.Store
	ownStore    bool
	state       State
	stopped     chan struct{}

	requested     chan struct{}
	requestedOnce sync.Once
}

var _ modules.Runtime = (*Runtime)(nil)

var (
	instance   *Runtime
	instanceMu sync.Mutex
)

// New returns the process runtime. The first call creates it from cfg; every
// later call returns that same instance unchanged and ignores its arguments.
func New(cfg *config.Config, opts ...Option) *Runtime {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance != nil {
		instance.logger.Debug("runtime already exists, ignoring new configuration")
		return instance
	}

	if cfg == nil {
		cfg = config.Default()
	}
	r := &Runtime{
		cfg:       cfg,
		newClient: client.New,
		exit:      os.Exit,
		stopped:   make(chan struct{}),
		requested: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.root == nil {
		r.root = log.Default()
	}
	r.logger = shared.Tagged(r.root, "Runtime")

	r.loop = loop.New(r.root)
	r.events = events.NewRegistry(nil, events.WithPoster(r.loop.Post), events.WithLogger(r.root))
	r.commands = command.NewRegistry(r.root)
	r.modules = modules.NewManager(r, r.catalog)

	instance = r
	return r
}

// Current returns the runtime created by New, or nil.
func Current() *Runtime {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

// Init builds the client, starts the loop, autoloads the modules on it and
// connects. Module load failures are logged and do not fail Init.
func (r *Runtime) Init(ctx context.Context) error {
	r.mu.Lock()
	if r.initialized {
		r.mu.Unlock()
		return ErrAlreadyInitialized
	}

	c, err := r.newClient(r.cfg.Client, r.root)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("create client: %w", err)
	}
	if r.store == nil {
		store, err := config.OpenStore(r.cfg.Storage)
		if err != nil {
			r.mu.Unlock()
			return fmt.Errorf("open config store: %w", err)
		}
		r.store, r.ownStore = store, true
	}
	r.client = c
	r.initialized = true
	r.mu.Unlock()

	r.events.Bind(c)
	go func() {
		if err := r.loop.Run(context.Background()); err != nil {
			r.logger.Error("loop exited", "err", err)
		}
	}()

	r.logger.Info("Initializing runtime", "transport", r.cfg.Client.Transport)
	if err := r.loop.Do(ctx, r.modules.Autoload); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		r.logger.Warn("Some modules failed to load", "err", err)
	}

	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect client: %w", err)
	}
	r.logger.Info("Runtime initialized")
	return nil
}

// Initialized reports whether Init has run.
func (r *Runtime) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// RegisterEvent subscribes handler to events of type typ and returns the
// subscription id.
func (r *Runtime) RegisterEvent(typ string, handler events.Handler, once bool) (string, error) {
	if !r.Initialized() {
		return "", ErrNotInitialized
	}
	return r.events.Register(typ, handler, once)
}

// UnregisterEvent removes a subscription. An unknown or already removed id
// fails with events.ErrEventNotFound.
func (r *Runtime) UnregisterEvent(id string) error {
	return r.events.Unregister(id)
}

// RequestShutdown asks the owner of the process to call Shutdown. It never
// blocks, so commands running on the loop can use it.
func (r *Runtime) RequestShutdown() {
	r.requestedOnce.Do(func() {
		r.logger.Info("Shutdown requested")
		close(r.requested)
	})
}

// Done is closed once RequestShutdown has been called.
func (r *Runtime) Done() <-chan struct{} {
	return r.requested
}

// Config returns the configuration the runtime was created with.
func (r *Runtime) Config() *config.Config {
	return r.cfg
}

// Client returns the client, nil before Init.
func (r *Runtime) Client() client.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}

// Store returns the module config store, nil before Init unless one was
// passed to New.
func (r *Runtime) Store() config.Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store
}

// Commands returns the console command registry.
func (r *Runtime) Commands() *command.Registry {
	return r.commands
}

// Events returns the event registry.
func (r *Runtime) Events() *events.Registry {
	return r.events
}

// Modules returns the module manager.
func (r *Runtime) Modules() *modules.Manager {
	return r.modules
}

// Loop returns the loop every handler runs on.
func (r *Runtime) Loop() *loop.Loop {
	return r.loop
}

// Logger returns the root logger.
func (r *Runtime) Logger() *log.Logger {
	return r.root
}
