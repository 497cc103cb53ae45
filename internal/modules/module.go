// Package modules provides the module system for BotCore.
// Modules are feature units compiled into the binary and attached to the
// runtime through a per-module Host.
package modules

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/charmbracelet/log"

	"github.com/SlastyonArtyom/BotCore/internal/client"
	"github.com/SlastyonArtyom/BotCore/internal/command"
	"github.com/SlastyonArtyom/BotCore/internal/config"
	"github.com/SlastyonArtyom/BotCore/internal/events"
	"github.com/SlastyonArtyom/BotCore/internal/loop"
)

var (
	// ErrModuleNotFound is returned when a module is unknown or not loaded.
	ErrModuleNotFound = errors.New("module not found")
	// ErrDuplicateModule is returned when two definitions share a name.
	ErrDuplicateModule = errors.New("duplicate module name")
)

// State represents the state of a module
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateUnloading
	StateFailed
	StateDisabled // listed in modules.disabled
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "Unloaded"
	case StateLoading:
		return "Loading"
	case StateLoaded:
		return "Loaded"
	case StateUnloading:
		return "Unloading"
	case StateFailed:
		return "Failed"
	case StateDisabled:
		return "Disabled"
	default:
		return "Unknown"
	}
}

// Module is the interface every feature unit implements. Load registers
// the module's events, commands and timers through h; anything still held
// after Unload returns is released by the manager.
type Module interface {
	Load(h *Host) error
	Unload(h *Host) error
}

// Configurable is implemented by modules that ship default settings. The
// defaults are written to the module's config namespace before the first
// load when nothing is stored there yet.
type Configurable interface {
	DefaultConfig() any
}

// SettingsName is the store entry defaults are written to.
const SettingsName = "settings"

// Definition is one entry of the static module table.
type Definition struct {
	Name        string
	Description string
	New         func() Module
}

// Catalog lists the known modules. Definition order is load order.
type Catalog []Definition

// nameRegex validates module names: lower case letter first, then letters,
// digits, '-' or '_', 2-32 chars.
var nameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,31}$`)

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("module name cannot be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid module name '%s': must start with a lower case letter, contain only letters/numbers/'-'/'_', 2-32 chars", name)
	}
	return nil
}

// Runtime is the part of the runtime a module can reach through its Host.
type Runtime interface {
	Config() *config.Config
	Client() client.Client
	Commands() *command.Registry
	Events() *events.Registry
	RegisterEvent(typ string, handler events.Handler, once bool) (string, error)
	UnregisterEvent(id string) error
	Loop() *loop.Loop
	Store() config.Store
	Logger() *log.Logger
	RequestShutdown()
}

// Info contains module metadata for listings.
type Info struct {
	Name          string
	Description   string
	State         State
	Err           error
	LoadedAt      time.Time
	Subscriptions int
	Commands      int
	Timers        int
}
