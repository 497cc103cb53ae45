package modules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/SlastyonArtyom/BotCore/internal/command"
	"github.com/SlastyonArtyom/BotCore/internal/events"
	"github.com/SlastyonArtyom/BotCore/internal/shared"
)

// Host is a module's handle on the runtime. It records every subscription,
// command and timer the module creates so the manager can release them.
type Host struct {
	name    string
	rt      Runtime
	manager *Manager
	logger  *log.Logger

	mu       sync.Mutex
	subs     []string
	commands []string
	timers   []uint64
}

func newHost(name string, rt Runtime, manager *Manager) *Host {
	return &Host{
		name:    name,
		rt:      rt,
		manager: manager,
		logger:  shared.Tagged(rt.Logger(), name),
	}
}

// Name returns the module name.
func (h *Host) Name() string {
	return h.name
}

// Logger returns a logger tagged with the module name.
func (h *Host) Logger() *log.Logger {
	return h.logger
}

// Runtime returns the runtime view modules are allowed to use.
func (h *Host) Runtime() Runtime {
	return h.rt
}

// Manager returns the module manager.
func (h *Host) Manager() *Manager {
	return h.manager
}

// Module looks up another loaded module by name.
func (h *Host) Module(name string) (Module, error) {
	return h.manager.Get(name)
}

// On subscribes handler to every occurrence of typ.
func (h *Host) On(typ string, handler events.Handler) (string, error) {
	return h.subscribe(typ, handler, false)
}

// Once subscribes handler to the next occurrence of typ only.
func (h *Host) Once(typ string, handler events.Handler) (string, error) {
	return h.subscribe(typ, handler, true)
}

func (h *Host) subscribe(typ string, handler events.Handler, once bool) (string, error) {
	id, err := h.rt.RegisterEvent(typ, handler, once)
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	h.subs = append(h.subs, id)
	h.mu.Unlock()
	return id, nil
}

// Off releases a subscription made through this host.
func (h *Host) Off(id string) error {
	h.mu.Lock()
	i := slices.Index(h.subs, id)
	if i >= 0 {
		h.subs = slices.Delete(h.subs, i, i+1)
	}
	h.mu.Unlock()

	if i < 0 {
		return fmt.Errorf("%w: %s is not owned by %s", events.ErrEventNotFound, id, h.name)
	}
	return h.rt.UnregisterEvent(id)
}

// AddCommand registers a console command owned by this module.
func (h *Host) AddCommand(cmd command.Command) error {
	cmd.Name = strings.TrimSpace(cmd.Name)
	if err := h.rt.Commands().Add(cmd); err != nil {
		return err
	}
	h.mu.Lock()
	h.commands = append(h.commands, cmd.Name)
	h.mu.Unlock()
	return nil
}

// RemoveCommand unregisters a command owned by this module.
func (h *Host) RemoveCommand(name string) error {
	name = strings.TrimSpace(name)
	h.mu.Lock()
	i := slices.Index(h.commands, name)
	if i >= 0 {
		h.commands = slices.Delete(h.commands, i, i+1)
	}
	h.mu.Unlock()

	if i < 0 {
		return fmt.Errorf("%w: %s is not owned by %s", command.ErrCommandNotFound, name, h.name)
	}
	return h.rt.Commands().Remove(name)
}

// AfterFunc runs fn on the loop after d.
func (h *Host) AfterFunc(d time.Duration, fn func()) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	var id uint64
	id = h.rt.Loop().AfterFunc(d, func() {
		h.mu.Lock()
		h.timers = slices.DeleteFunc(h.timers, func(t uint64) bool { return t == id })
		h.mu.Unlock()
		fn()
	})
	h.timers = append(h.timers, id)
	return id
}

// Every runs fn on the loop every d until stopped or the module unloads.
func (h *Host) Every(d time.Duration, fn func()) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.rt.Loop().Every(d, fn)
	h.timers = append(h.timers, id)
	return id
}

// StopTimer cancels a timer started through this host.
func (h *Host) StopTimer(id uint64) bool {
	h.mu.Lock()
	i := slices.Index(h.timers, id)
	if i >= 0 {
		h.timers = slices.Delete(h.timers, i, i+1)
	}
	h.mu.Unlock()

	if i < 0 {
		return false
	}
	return h.rt.Loop().StopTimer(id)
}

// Emit sends an event through the client.
func (h *Host) Emit(event string, args ...any) error {
	c := h.rt.Client()
	if c == nil {
		return errors.New("no client")
	}
	return c.Emit(event, args...)
}

// ReadConfig decodes the module's stored entry name into out.
func (h *Host) ReadConfig(name string, out any) error {
	store := h.rt.Store()
	if store == nil {
		return fmt.Errorf("no config store")
	}
	return store.Read(context.Background(), h.name, name, out)
}

// WriteConfig stores v as the module's entry name.
func (h *Host) WriteConfig(name string, v any) error {
	store := h.rt.Store()
	if store == nil {
		return fmt.Errorf("no config store")
	}
	return store.Write(context.Background(), h.name, name, v)
}

// Subscriptions returns the ids of the subscriptions the module holds.
func (h *Host) Subscriptions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.subs)
}

// CommandNames returns the commands the module holds.
func (h *Host) CommandNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.commands)
}

// Timers returns the ids of the module's pending timers.
func (h *Host) Timers() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.timers)
}

func (h *Host) counts() (subs, cmds, timers int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs), len(h.commands), len(h.timers)
}

// release removes everything the module still holds and reports how many
// resources were left behind.
func (h *Host) release() int {
	h.mu.Lock()
	subs, cmds, timers := h.subs, h.commands, h.timers
	h.subs, h.commands, h.timers = nil, nil, nil
	h.mu.Unlock()

	for _, id := range subs {
		if err := h.rt.UnregisterEvent(id); err != nil {
			h.logger.Debug("subscription already gone", "id", id, "err", err)
		}
	}
	for _, name := range cmds {
		if err := h.rt.Commands().Remove(name); err != nil {
			h.logger.Debug("command already gone", "name", name, "err", err)
		}
	}
	for _, id := range timers {
		h.rt.Loop().StopTimer(id)
	}
	return len(subs) + len(cmds) + len(timers)
}
