// Package combat fights back when the bot gets hurt and lets the operator
// pick targets from the console.
package combat

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/SlastyonArtyom/BotCore/internal/command"
	"github.com/SlastyonArtyom/BotCore/internal/modules"
	"github.com/SlastyonArtyom/BotCore/internal/trie"
	"github.com/SlastyonArtyom/BotCore/plugins/notify"
	"github.com/SlastyonArtyom/BotCore/plugins/world"
)

// Name is the module name.
const Name = "combat"

// Events exchanged with the bot server.
const (
	EventPlayerJoined = "playerJoined"
	EventPlayerLeft   = "playerLeft"
	EventEntityHurt   = "entityHurt"
	EventAttack       = "attack"
	EventStopAttack   = "stopAttack"
)

// AttackRange is sent with every attack request.
const AttackRange = 6

// NotifyColor is the color of "started attacking" notifications.
const NotifyColor = "00ff00"

// Definition returns the catalog entry.
func Definition() modules.Definition {
	return modules.Definition{
		Name:        Name,
		Description: "Fights back and attacks on request",
		New:         func() modules.Module { return &Module{} },
	}
}

// Module is the combat module.
type Module struct {
	host    *modules.Host
	players map[string]world.Player
	target  *world.Entity
}

// Load subscribes to the world events and registers attack and stopattack.
func (m *Module) Load(h *modules.Host) error {
	m.host = h
	m.players = make(map[string]world.Player)
	m.target = nil

	if _, err := h.Module(notify.Name); err != nil {
		h.Logger().Warn("Notifications are unavailable", "err", err)
	}

	subs := []struct {
		typ string
		fn  func(...any)
	}{
		{EventPlayerJoined, m.onPlayerJoined},
		{EventPlayerLeft, m.onPlayerLeft},
		{EventEntityHurt, m.onEntityHurt},
	}
	for _, s := range subs {
		if _, err := h.On(s.typ, s.fn); err != nil {
			return fmt.Errorf("subscribe %s: %w", s.typ, err)
		}
	}

	if err := h.AddCommand(command.Command{
		Name:        "attack",
		Description: "Attack a visible player",
		Usage:       "attack <player>",
		Run:         m.attackCommand,
		Mutate: func(t *trie.Trie, remove bool) {
			if remove {
				t.Remove("attack")
				return
			}
			t.Insert("attack")
		},
	}); err != nil {
		return err
	}
	return h.AddCommand(command.Command{
		Name:        "stopattack",
		Description: "Stop attacking",
		Run:         m.stopCommand,
	})
}

// Unload forgets every tracked player. Subscriptions and commands are
// released by the host.
func (m *Module) Unload(h *modules.Host) error {
	m.players = nil
	m.target = nil
	return nil
}

// Players returns the usernames currently in sight, sorted.
func (m *Module) Players() []string {
	return slices.Sorted(maps.Keys(m.players))
}

// Target returns the entity being attacked, if any.
func (m *Module) Target() (world.Entity, bool) {
	if m.target == nil {
		return world.Entity{}, false
	}
	return *m.target, true
}

func (m *Module) onPlayerJoined(args ...any) {
	var p world.Player
	if err := world.Arg(args, 0, &p); err != nil || p.Username == "" {
		m.host.Logger().Debug("ignoring malformed playerJoined", "err", err)
		return
	}
	m.players[p.Username] = p
}

func (m *Module) onPlayerLeft(args ...any) {
	var p world.Player
	if err := world.Arg(args, 0, &p); err != nil {
		m.host.Logger().Debug("ignoring malformed playerLeft", "err", err)
		return
	}
	delete(m.players, p.Username)
	if m.target != nil && m.target.Username == p.Username {
		m.target = nil
	}
}

// onEntityHurt fights back when the bot itself was hurt. The attacker comes
// with the event when the server knows it, otherwise the nearest visible
// player is blamed.
func (m *Module) onEntityHurt(args ...any) {
	var victim world.Entity
	if err := world.Arg(args, 0, &victim); err != nil || !victim.Self {
		return
	}

	var attacker world.Entity
	if err := world.Arg(args, 1, &attacker); err != nil || !attacker.Hostile() {
		nearest, ok := m.nearest(victim.Position)
		if !ok {
			m.host.Logger().Debug("hurt with nobody around")
			return
		}
		attacker = nearest
	}
	if err := m.attack(attacker); err != nil {
		m.host.Logger().Error("Failed to fight back", "err", err)
	}
}

func (m *Module) nearest(from world.Vec3) (world.Entity, bool) {
	var (
		best  world.Entity
		found bool
		dist  float64
	)
	for _, name := range m.Players() {
		e := m.players[name].Entity
		if e == nil || e.Self {
			continue
		}
		if d := e.Position.DistanceTo(from); !found || d < dist {
			best, dist, found = *e, d, true
		}
	}
	return best, found
}

func (m *Module) attack(target world.Entity) error {
	if err := m.host.Emit(EventAttack, map[string]any{"id": target.ID, "range": AttackRange}); err != nil {
		return fmt.Errorf("request attack: %w", err)
	}
	m.target = &target
	m.notify(fmt.Sprintf("Started attacking %s", target.Name()))
	return nil
}

func (m *Module) notify(message string) {
	mod, err := m.host.Module(notify.Name)
	if err != nil {
		return
	}
	sender, ok := mod.(notify.Sender)
	if !ok {
		return
	}
	if err := sender.Send(message, NotifyColor); err != nil {
		m.host.Logger().Warn("Notification not relayed", "err", err)
	}
}

func (m *Module) attackCommand(w io.Writer, arg string) {
	name := strings.TrimSpace(arg)
	if name == "" {
		fmt.Fprintln(w, "Usage: attack <player>")
		return
	}
	p, ok := m.players[name]
	if !ok || p.Entity == nil {
		fmt.Fprintln(w, "I can't see player")
		return
	}
	if err := m.attack(*p.Entity); err != nil {
		fmt.Fprintf(w, "[ERROR] %v\n", err)
		return
	}
	fmt.Fprintf(w, "Attacking %s\n", name)
}

func (m *Module) stopCommand(w io.Writer, _ string) {
	if err := m.host.Emit(EventStopAttack); err != nil {
		fmt.Fprintf(w, "[ERROR] %v\n", err)
		return
	}
	m.target = nil
	fmt.Fprintln(w, "Stopped attacking")
}
