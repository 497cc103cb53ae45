// Package system provides the built-in console commands for inspecting and
// managing the runtime.
package system

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/SlastyonArtyom/BotCore/internal/command"
	"github.com/SlastyonArtyom/BotCore/internal/modules"
	"github.com/SlastyonArtyom/BotCore/internal/trie"
)

// Name is the module name of the built-in commands.
const Name = "system"

// Definition returns the catalog entry for the system module.
func Definition() modules.Definition {
	return modules.Definition{
		Name:        Name,
		Description: "Built-in console commands",
		New:         func() modules.Module { return &Module{} },
	}
}

// Module registers help, modules, load, unload, reload, events, emit and quit.
type Module struct {
	host *modules.Host
}

// Load registers the commands.
func (m *Module) Load(h *modules.Host) error {
	m.host = h

	cmds := []command.Command{
		{Name: "help", Description: "List commands", Usage: "help [prefix]", Run: m.help},
		{Name: "modules", Description: "List modules and their state", Usage: "modules", Run: m.listModules},
		{Name: "load", Description: "Load a module", Usage: "load <name>", Run: m.lifecycle("load")},
		{Name: "unload", Description: "Unload a module", Usage: "unload <name>", Run: m.lifecycle("unload")},
		{Name: "reload", Description: "Reload a module", Usage: "reload <name>", Run: m.lifecycle("reload")},
		{Name: "events", Description: "List subscribed event types", Usage: "events", Run: m.listEvents},
		{Name: "emit", Description: "Send an event through the client", Usage: "emit <event> [args...]", Run: m.emit},
		{Name: "quit", Description: "Shut down", Usage: "quit", Run: m.quit},
		// exit works like quit but stays out of completion and help
		{Name: "exit", Run: m.quit, Mutate: func(*trie.Trie, bool) {}},
	}
	for _, cmd := range cmds {
		if err := h.AddCommand(cmd); err != nil {
			return fmt.Errorf("register %s: %w", cmd.Name, err)
		}
	}
	return nil
}

// Unload removes the commands.
func (m *Module) Unload(h *modules.Host) error {
	var errs []error
	for _, name := range h.CommandNames() {
		if err := h.RemoveCommand(name); err != nil {
			errs = append(errs, err)
		}
	}
	m.host = nil
	return errors.Join(errs...)
}

func (m *Module) help(w io.Writer, arg string) {
	reg := m.host.Runtime().Commands()
	names := reg.Complete(strings.TrimSpace(arg))
	if len(names) == 0 {
		fmt.Fprintf(w, "No commands match %q\n", arg)
		return
	}

	width := 0
	for _, name := range names {
		width = max(width, len(name))
	}
	for _, name := range names {
		cmd, ok := reg.Lookup(name)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %-*s  %s\n", width, name, cmd.Description)
		if cmd.Usage != "" && cmd.Usage != name {
			fmt.Fprintf(w, "  %-*s    usage: %s\n", width, "", cmd.Usage)
		}
	}
}

func (m *Module) listModules(w io.Writer, _ string) {
	list := m.host.Manager().List()
	fmt.Fprintf(w, "Modules (%d):\n", len(list))
	for _, info := range list {
		line := fmt.Sprintf("  %s [%s]", info.Name, info.State)
		if info.State == modules.StateLoaded {
			line += fmt.Sprintf(" since %s, %d subscriptions, %d commands, %d timers",
				humanize.Time(info.LoadedAt), info.Subscriptions, info.Commands, info.Timers)
		}
		if info.Err != nil {
			line += fmt.Sprintf(" (%v)", info.Err)
		}
		if info.Description != "" {
			line += " - " + info.Description
		}
		fmt.Fprintln(w, line)
	}
}

func (m *Module) lifecycle(action string) command.Handler {
	return func(w io.Writer, arg string) {
		args := command.SplitArgs(arg)
		if len(args) != 1 {
			fmt.Fprintf(w, "Usage: %s <name>\n", action)
			return
		}
		name := args[0]
		if name == Name && action == "unload" {
			fmt.Fprintln(w, "[ERROR] The system module cannot be unloaded")
			return
		}

		mgr := m.host.Manager()
		var err error
		switch action {
		case "load":
			err = mgr.Load(name)
		case "unload":
			err = mgr.Unload(name)
		case "reload":
			err = mgr.Reload(name)
		}
		if err != nil {
			fmt.Fprintf(w, "[ERROR] %v\n", err)
			return
		}
		fmt.Fprintf(w, "Module %s %sed successfully\n", name, action)
	}
}

func (m *Module) listEvents(w io.Writer, _ string) {
	types := m.host.Runtime().Events().Types()
	if len(types) == 0 {
		fmt.Fprintln(w, "No event subscriptions")
		return
	}
	names := make([]string, 0, len(types))
	for typ := range types {
		names = append(names, typ)
	}
	slices.Sort(names)
	fmt.Fprintf(w, "Event types (%d):\n", len(names))
	for _, typ := range names {
		fmt.Fprintf(w, "  %s: %d\n", typ, types[typ])
	}
}

func (m *Module) emit(w io.Writer, arg string) {
	args := command.SplitArgs(arg)
	if len(args) == 0 {
		fmt.Fprintln(w, "Usage: emit <event> [args...]")
		return
	}
	payload := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		payload = append(payload, a)
	}
	if err := m.host.Emit(args[0], payload...); err != nil {
		fmt.Fprintf(w, "[ERROR] %v\n", err)
		return
	}
	fmt.Fprintf(w, "Sent %s\n", args[0])
}

func (m *Module) quit(w io.Writer, _ string) {
	fmt.Fprintln(w, "Shutting down...")
	m.host.Runtime().RequestShutdown()
}
