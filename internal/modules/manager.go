package modules

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/SlastyonArtyom/BotCore/internal/config"
	"github.com/SlastyonArtyom/BotCore/internal/shared"
)

// entry holds an indexed module
type entry struct {
	def      Definition
	module   Module
	host     *Host
	state    State
	err      error
	loadedAt time.Time
}

// Manager owns the module index and drives every lifecycle transition.
// Module callbacks run without the manager lock held so that a module can
// look up other modules while it loads.
type Manager struct {
	mu      sync.RWMutex
	rt      Runtime
	catalog Catalog
	entries []*entry
	index   map[string]*entry
	indexed bool
	logger  *log.Logger
}

// NewManager returns a manager for catalog. Nothing is instantiated until
// Autoload.
func NewManager(rt Runtime, catalog Catalog) *Manager {
	return &Manager{
		rt:      rt,
		catalog: catalog,
		index:   make(map[string]*entry),
		logger:  shared.Tagged(rt.Logger(), "Modules"),
	}
}

// Autoload instantiates every definition once, in table order, and loads
// each one that is not disabled. Failures are isolated per module and
// returned joined.
func (m *Manager) Autoload() error {
	var errs []error
	if err := m.buildIndex(); err != nil {
		errs = append(errs, err)
	}

	m.mu.RLock()
	pending := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.state == StateUnloaded {
			pending = append(pending, e)
		}
	}
	m.mu.RUnlock()

	m.logger.Info("Loading modules...", "count", len(pending))
	for _, e := range pending {
		if err := m.load(e); err != nil {
			errs = append(errs, err)
		}
	}

	loaded := 0
	for _, info := range m.List() {
		if info.State == StateLoaded {
			loaded++
		}
	}
	m.logger.Info(fmt.Sprintf("Modules initialized: %d loaded", loaded))
	return errors.Join(errs...)
}

func (m *Manager) buildIndex() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexed {
		return nil
	}
	m.indexed = true

	cfg := m.rt.Config()
	var errs []error
	for _, def := range m.catalog {
		if err := validateName(def.Name); err != nil {
			m.logger.Error("Rejected module", "name", def.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		if _, exists := m.index[def.Name]; exists {
			err := fmt.Errorf("%w: %s", ErrDuplicateModule, def.Name)
			m.logger.Error("Rejected module", "name", def.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		if def.New == nil {
			err := fmt.Errorf("module %s has no constructor", def.Name)
			m.logger.Error("Rejected module", "name", def.Name, "err", err)
			errs = append(errs, err)
			continue
		}

		e := &entry{def: def, state: StateUnloaded}
		ok := shared.SafeCall(m.logger, "new module "+def.Name, func() {
			e.module = def.New()
		})
		if !ok || e.module == nil {
			e.state = StateFailed
			e.err = fmt.Errorf("constructor did not return a module")
		} else if cfg != nil && cfg.IsDisabled(def.Name) {
			e.state = StateDisabled
			m.logger.Info(fmt.Sprintf("Module %s is disabled in config", def.Name))
		}

		m.entries = append(m.entries, e)
		m.index[def.Name] = e
	}
	return errors.Join(errs...)
}

// Get returns a loaded module by name.
func (m *Manager) Get(name string) (Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.index[name]
	if !ok || e.state != StateLoaded {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return e.module, nil
}

// Load loads one indexed module. Loading a loaded module is a no-op; a
// disabled or failed module can be loaded explicitly.
func (m *Manager) Load(name string) error {
	e, err := m.lookup(name)
	if err != nil {
		return err
	}
	return m.load(e)
}

// Unload unloads one module. Unloading a module that is not loaded is a no-op.
func (m *Manager) Unload(name string) error {
	e, err := m.lookup(name)
	if err != nil {
		return err
	}
	return m.unload(e)
}

// Reload unloads and loads a module again, keeping its instance.
func (m *Manager) Reload(name string) error {
	e, err := m.lookup(name)
	if err != nil {
		return err
	}
	if err := m.unload(e); err != nil {
		m.logger.Warn("unload before reload failed", "module", name, "err", err)
	}
	return m.load(e)
}

// UnloadAll unloads every loaded module in reverse table order. Errors and
// panics are logged per module and never stop the sweep.
func (m *Manager) UnloadAll() {
	m.mu.RLock()
	entries := make([]*entry, len(m.entries))
	copy(entries, m.entries)
	m.mu.RUnlock()

	m.logger.Info("Shutting down modules...")
	for i := len(entries) - 1; i >= 0; i-- {
		// unload already logs failures
		_ = m.unload(entries[i])
	}
	m.logger.Info("Modules shutdown complete")
}

func (m *Manager) lookup(name string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return e, nil
}

func (m *Manager) load(e *entry) error {
	name := e.def.Name

	m.mu.Lock()
	if e.state == StateLoaded || e.state == StateLoading || e.state == StateUnloading {
		m.mu.Unlock()
		return nil
	}
	if e.module == nil {
		m.mu.Unlock()
		return fmt.Errorf("load module %s: %w", name, e.err)
	}
	e.state = StateLoading
	host := newHost(name, m.rt, m)
	e.host = host
	m.mu.Unlock()

	m.logger.Info(fmt.Sprintf("Loading module: %s", name))
	m.writeDefaults(e, host)

	err := shared.SafeCallWithError(m.logger, "load "+name, func() error {
		return e.module.Load(host)
	})
	if err != nil {
		if n := host.release(); n > 0 {
			m.logger.Debug("rolled back partial load", "module", name, "released", n)
		}
		m.mu.Lock()
		e.state = StateFailed
		e.err = err
		m.mu.Unlock()
		m.logger.Error(fmt.Sprintf("Module %s failed to load: %v", name, err))
		return fmt.Errorf("load module %s: %w", name, err)
	}

	m.mu.Lock()
	e.state = StateLoaded
	e.err = nil
	e.loadedAt = time.Now()
	m.mu.Unlock()
	m.logger.Info(fmt.Sprintf("Module %s loaded successfully", name))
	return nil
}

func (m *Manager) unload(e *entry) error {
	name := e.def.Name

	m.mu.Lock()
	if e.state != StateLoaded {
		m.mu.Unlock()
		return nil
	}
	e.state = StateUnloading
	host := e.host
	m.mu.Unlock()

	m.logger.Info(fmt.Sprintf("Unloading module: %s", name))
	err := shared.SafeCallWithError(m.logger, "unload "+name, func() error {
		return e.module.Unload(host)
	})
	if n := host.release(); n > 0 {
		m.logger.Debug("released leftover resources", "module", name, "released", n)
	}

	m.mu.Lock()
	e.state = StateUnloaded
	e.err = err
	e.loadedAt = time.Time{}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error(fmt.Sprintf("Module %s failed to unload cleanly: %v", name, err))
		return fmt.Errorf("unload module %s: %w", name, err)
	}
	m.logger.Info(fmt.Sprintf("Module %s unloaded", name))
	return nil
}

// writeDefaults stores a Configurable module's defaults if its settings
// entry does not exist yet.
func (m *Manager) writeDefaults(e *entry, host *Host) {
	c, ok := e.module.(Configurable)
	if !ok || m.rt.Store() == nil {
		return
	}
	defaults := c.DefaultConfig()
	if defaults == nil {
		return
	}

	var existing any
	err := host.ReadConfig(SettingsName, &existing)
	if err == nil {
		return
	}
	if !errors.Is(err, config.ErrNotFound) {
		m.logger.Error(fmt.Sprintf("Failed to read config for %s: %v", e.def.Name, err))
		return
	}
	if err := host.WriteConfig(SettingsName, defaults); err != nil {
		m.logger.Error(fmt.Sprintf("Failed to write default config for %s: %v", e.def.Name, err))
		return
	}
	m.logger.Info(fmt.Sprintf("Created default config for %s", e.def.Name))
}

// List returns information about every indexed module in table order.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, len(m.entries))
	for i, e := range m.entries {
		out[i] = Info{
			Name:        e.def.Name,
			Description: e.def.Description,
			State:       e.state,
			Err:         e.err,
			LoadedAt:    e.loadedAt,
		}
		if e.host != nil && e.state == StateLoaded {
			out[i].Subscriptions, out[i].Commands, out[i].Timers = e.host.counts()
		}
	}
	return out
}

// Info returns information about one module.
func (m *Manager) Info(name string) (Info, error) {
	for _, info := range m.List() {
		if info.Name == name {
			return info, nil
		}
	}
	return Info{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
}

// Host returns the host of a module that has been loaded at least once.
func (m *Manager) Host(name string) (*Host, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.index[name]
	if !ok || e.host == nil {
		return nil, false
	}
	return e.host, true
}
