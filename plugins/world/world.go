// Package world holds the payload shapes the bot server sends with its
// events. Network transports deliver JSON-decoded maps while the local
// client may raise these types directly, so Decode accepts both.
package world

import (
	"encoding/json"
	"fmt"
	"math"
)

// Vec3 is a position in the world.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the euclidean distance between v and o.
func (v Vec3) DistanceTo(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Entity is anything with an id and a position. Self marks the bot's own
// entity.
type Entity struct {
	ID       int    `json:"id"`
	Type     string `json:"type"`
	Kind     string `json:"kind,omitempty"`
	Username string `json:"username,omitempty"`
	Self     bool   `json:"self,omitempty"`
	Position Vec3   `json:"position"`
}

// KindHostile is the kind the server gives hostile mobs.
const KindHostile = "Hostile mobs"

// Hostile reports whether e is worth fighting back against.
func (e Entity) Hostile() bool {
	return e.Kind == KindHostile || e.Type == "player"
}

// Name returns the username for players and the type otherwise.
func (e Entity) Name() string {
	if e.Username != "" {
		return e.Username
	}
	return e.Type
}

// Player is sent with playerJoined and playerLeft. Entity is nil while the
// player is out of sight.
type Player struct {
	Username string  `json:"username"`
	Entity   *Entity `json:"entity,omitempty"`
}

// Item is a dropped or held item stack.
type Item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Decode converts an event argument into out. A plain string decodes into
// a Player or Entity as its username.
func Decode(arg any, out any) error {
	if s, ok := arg.(string); ok {
		switch v := out.(type) {
		case *Player:
			*v = Player{Username: s}
			return nil
		case *Entity:
			*v = Entity{Type: "player", Username: s}
			return nil
		}
	}
	data, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// Arg decodes args[i] into out. It fails when the argument is missing.
func Arg(args []any, i int, out any) error {
	if i >= len(args) || args[i] == nil {
		return fmt.Errorf("missing argument %d", i)
	}
	return Decode(args[i], out)
}
