// Package command provides the shared console command registry. Every
// command name is kept in a prefix tree so the console can complete it.
package command

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/SlastyonArtyom/BotCore/internal/shared"
	"github.com/SlastyonArtyom/BotCore/internal/trie"
)

var (
	// ErrCommandNotFound is returned when executing or removing an unknown command.
	ErrCommandNotFound = errors.New("command not found")
	// ErrCommandExists is returned when a name is registered twice.
	ErrCommandExists = errors.New("command already registered")
)

// Handler runs a command. arg is everything after the command name.
// Failures meant for the operator are written to w, not returned.
type Handler func(w io.Writer, arg string)

// TrieMutator decides which strings become searchable for a command.
// It is called with remove=false on registration and remove=true on removal.
type TrieMutator func(t *trie.Trie, remove bool)

// Command is a registered console command.
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         Handler
	// Mutate is optional. When nil, exactly Name is inserted and removed.
	Mutate TrieMutator
}

func (c *Command) mutate(t *trie.Trie, remove bool) {
	if c.Mutate != nil {
		c.Mutate(t, remove)
		return
	}
	if remove {
		t.Remove(c.Name)
		return
	}
	t.Insert(c.Name)
}

// Registry maps command names to handlers and owns the completion trie.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
	trie     *trie.Trie
	logger   *log.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{
		commands: make(map[string]*Command),
		trie:     trie.New(),
		logger:   shared.Tagged(logger, "Commands"),
	}
}

// Add registers cmd under its trimmed name. It fails if the name is
// already taken; the first registration wins. A Mutate that panics leaves
// the command unregistered.
func (r *Registry) Add(cmd Command) error {
	name := strings.TrimSpace(cmd.Name)
	if name == "" || strings.ContainsAny(name, " \t\r\n") {
		return fmt.Errorf("invalid command name %q", cmd.Name)
	}
	if cmd.Run == nil {
		return fmt.Errorf("command %q has no handler", name)
	}
	cmd.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("%w: %s", ErrCommandExists, name)
	}

	c := &cmd
	if err := shared.SafeCallWithError(r.logger, "completion for "+name, func() error {
		c.mutate(r.trie, false)
		return nil
	}); err != nil {
		shared.SafeCall(r.logger, "completion for "+name, func() {
			c.mutate(r.trie, true)
		})
		return fmt.Errorf("register command %s: %w", name, err)
	}
	r.commands[name] = c

	r.logger.Debug("registered command", "name", name)
	return nil
}

// Remove unregisters a command and removes its searchable strings.
func (r *Registry) Remove(name string) error {
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.commands[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	delete(r.commands, name)
	shared.SafeCall(r.logger, "completion for "+name, func() {
		c.mutate(r.trie, true)
	})

	r.logger.Debug("removed command", "name", name)
	return nil
}

// Execute runs the named command with arg. The handler runs outside the
// registry lock so it may add or remove commands itself.
func (r *Registry) Execute(name, arg string, w io.Writer) error {
	r.mu.RLock()
	c, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	if w == nil {
		w = io.Discard
	}

	r.logger.Debug("executing command", "name", name, "arg", arg)
	ran := shared.SafeCall(r.logger, "command "+name, func() {
		c.Run(w, arg)
	})
	if !ran {
		fmt.Fprintf(w, "Command %s failed unexpectedly\n", name)
	}
	return nil
}

// Complete returns the searchable strings starting with prefix, sorted.
func (r *Registry) Complete(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Collect(r.trie.Complete(prefix))
}

// Lookup returns a copy of the named command.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.commands[name]
	if !ok {
		return Command{}, false
	}
	return *c, true
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[name]
	return ok
}

// Names returns every registered command name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}
