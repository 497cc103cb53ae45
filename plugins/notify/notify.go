// Package notify keeps a short history of notifications and relays each
// one to the bot server, which forwards it to the operator's chat.
package notify

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/SlastyonArtyom/BotCore/internal/command"
	"github.com/SlastyonArtyom/BotCore/internal/modules"
)

// Name is the module name other modules look notify up by.
const Name = "notify"

// Event is emitted to the server for every notification.
const Event = "notify"

// DefaultColor is used when Send gets an empty color.
const DefaultColor = "ffffff"

// Sender is what other modules need from notify.
type Sender interface {
	Send(message, color string) error
}

// Settings is stored as notify/settings. Limit caps the kept history and
// Relay turns forwarding to the server on or off.
type Settings struct {
	Limit int  `json:"limit" yaml:"limit" toml:"limit"`
	Relay bool `json:"relay" yaml:"relay" toml:"relay"`
}

// Entry is one notification.
type Entry struct {
	At      time.Time
	Message string
	Color   string
}

// Definition returns the catalog entry.
func Definition() modules.Definition {
	return modules.Definition{
		Name:        Name,
		Description: "Keeps and relays notifications",
		New:         func() modules.Module { return &Module{} },
	}
}

// Module is the notify module.
type Module struct {
	host     *modules.Host
	settings Settings
	entries  []Entry
	now      func() time.Time
}

var (
	_ Sender               = (*Module)(nil)
	_ modules.Configurable = (*Module)(nil)
)

// DefaultConfig implements modules.Configurable.
func (m *Module) DefaultConfig() any {
	return Settings{Limit: 50, Relay: true}
}

// Load reads the settings and registers the notifications command.
func (m *Module) Load(h *modules.Host) error {
	m.host = h
	m.entries = nil
	if m.now == nil {
		m.now = time.Now
	}

	m.settings = m.DefaultConfig().(Settings)
	if err := h.ReadConfig(modules.SettingsName, &m.settings); err != nil {
		h.Logger().Warn("Using default settings", "err", err)
	}
	if m.settings.Limit <= 0 {
		m.settings.Limit = 50
	}

	return h.AddCommand(command.Command{
		Name:        "notifications",
		Description: "Show recent notifications",
		Usage:       "notifications [count]",
		Run:         m.list,
	})
}

// Unload drops the history.
func (m *Module) Unload(h *modules.Host) error {
	m.entries = nil
	return h.RemoveCommand("notifications")
}

// Send records message and relays it to the server. The entry is kept even
// when relaying fails.
func (m *Module) Send(message, color string) error {
	if color == "" {
		color = DefaultColor
	}
	color = strings.TrimPrefix(strings.ToLower(color), "#")

	m.entries = append(m.entries, Entry{At: m.now(), Message: message, Color: color})
	if over := len(m.entries) - m.settings.Limit; over > 0 {
		m.entries = append(m.entries[:0:0], m.entries[over:]...)
	}

	m.host.Logger().Info(message)
	if !m.settings.Relay {
		return nil
	}
	if err := m.host.Emit(Event, map[string]any{"message": message, "color": color}); err != nil {
		return fmt.Errorf("relay notification: %w", err)
	}
	return nil
}

// Entries returns the kept history, oldest first.
func (m *Module) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

func (m *Module) list(w io.Writer, arg string) {
	n := len(m.entries)
	if arg = strings.TrimSpace(arg); arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v <= 0 {
			fmt.Fprintf(w, "Usage: notifications [count]\n")
			return
		}
		n = min(v, n)
	}
	if n == 0 {
		fmt.Fprintln(w, "No notifications")
		return
	}
	for _, e := range m.entries[len(m.entries)-n:] {
		fmt.Fprintf(w, "  [%s] %s (%s)\n", e.Color, e.Message, humanize.Time(e.At))
	}
}
