// Package autoequip equips weapons and shields as soon as the bot picks
// them up.
package autoequip

import (
	"fmt"
	"time"

	"github.com/SlastyonArtyom/BotCore/internal/modules"
	"github.com/SlastyonArtyom/BotCore/plugins/world"
)

// Name is the module name.
const Name = "autoequip"

const (
	// EventCollect is raised when any player picks up an item.
	EventCollect = "playerCollect"
	// EventEquip asks the server to equip the first inventory item whose
	// name contains Match.
	EventEquip = "equip"
)

// Rule equips the first item matching Match into Destination, DelayMS after
// a pickup.
type Rule struct {
	Match       string `json:"match" yaml:"match" toml:"match"`
	Destination string `json:"destination" yaml:"destination" toml:"destination"`
	DelayMS     int    `json:"delay_ms" yaml:"delay_ms" toml:"delay_ms"`
}

// Delay returns the rule's delay as a duration.
func (r Rule) Delay() time.Duration {
	return time.Duration(r.DelayMS) * time.Millisecond
}

// Settings is stored as autoequip/settings.
type Settings struct {
	Rules []Rule `json:"rules" yaml:"rules" toml:"rules"`
}

// Definition returns the catalog entry.
func Definition() modules.Definition {
	return modules.Definition{
		Name:        Name,
		Description: "Equips swords and shields on pickup",
		New:         func() modules.Module { return &Module{} },
	}
}

// Module is the autoequip module.
type Module struct {
	host  *modules.Host
	rules []Rule
}

var _ modules.Configurable = (*Module)(nil)

// DefaultConfig implements modules.Configurable.
func (m *Module) DefaultConfig() any {
	return Settings{Rules: []Rule{
		{Match: "sword", Destination: "hand", DelayMS: 150},
		{Match: "shield", Destination: "off-hand", DelayMS: 250},
	}}
}

// Load subscribes once per rule, so each rule keeps its own timer.
func (m *Module) Load(h *modules.Host) error {
	m.host = h

	settings := m.DefaultConfig().(Settings)
	if err := h.ReadConfig(modules.SettingsName, &settings); err != nil {
		h.Logger().Warn("Using default settings", "err", err)
	}
	m.rules = settings.Rules

	for _, rule := range m.rules {
		if rule.Match == "" || rule.Destination == "" {
			return fmt.Errorf("invalid rule %+v: match and destination are required", rule)
		}
		if _, err := h.On(EventCollect, m.onCollect(rule)); err != nil {
			return err
		}
	}
	return nil
}

// Unload has nothing to release beyond what the host tracks.
func (m *Module) Unload(*modules.Host) error {
	return nil
}

func (m *Module) onCollect(rule Rule) func(...any) {
	return func(args ...any) {
		var collector world.Entity
		if err := world.Arg(args, 0, &collector); err != nil || !collector.Self {
			return
		}
		m.host.AfterFunc(rule.Delay(), func() {
			err := m.host.Emit(EventEquip, map[string]any{
				"match":       rule.Match,
				"destination": rule.Destination,
			})
			if err != nil {
				m.host.Logger().Warn("Equip failed", "item", rule.Match, "err", err)
			}
		})
	}
}
