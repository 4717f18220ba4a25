// Package game speaks the JSON protocol of the mineflayer bridge process:
// observation signals flowing in, action commands flowing out.
package game

import "fmt"

type SignalType string

const (
	SignalHealth     SignalType = "health"
	SignalDeath      SignalType = "death"
	SignalRespawn    SignalType = "respawn"
	SignalChat       SignalType = "chat"
	SignalEntities   SignalType = "entities"
	SignalInventory  SignalType = "inventory"
	SignalConnection SignalType = "connection"
	SignalTick       SignalType = "tick"
	SignalWakeup     SignalType = "wakeup"
)

// Position is a block position in the world.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// ItemStack is one inventory slot.
type ItemStack struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Equipment lists the currently equipped items by slot.
type Equipment struct {
	MainHand string   `json:"mainHand"`
	OffHand  string   `json:"offHand"`
	Armor    []string `json:"armor"`
}

// EntityObs is one nearby entity as reported by the bridge.
type EntityObs struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"` // hostile, passive, player
	Position Position `json:"position"`
	Distance float64  `json:"distance"`
}

func (e EntityObs) IsHostile() bool {
	return e.Kind == "hostile"
}

// HealthObs is the health/food tuple pushed on every change.
type HealthObs struct {
	Health int `json:"health"`
	Food   int `json:"food"`
}

// DeathObs carries where and why the agent died.
type DeathObs struct {
	Position Position `json:"position"`
	Reason   string   `json:"reason"`
}

// ChatObs is a chat line observed in game.
type ChatObs struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// ConnectionObs reports bridge connectivity to the game server.
type ConnectionObs struct {
	Connected bool   `json:"connected"`
	Reason    string `json:"reason"`
}

// TickObs is the periodic world tick (time/weather).
type TickObs struct {
	TimeOfDay float64  `json:"timeOfDay"`
	Weather   string   `json:"weather"`
	Position  Position `json:"position"`
}

// Signal is one observation from the bridge, exactly one payload field is
// set, matching Type.
type Signal struct {
	Type       SignalType     `json:"type"`
	Health     *HealthObs     `json:"health,omitempty"`
	Death      *DeathObs      `json:"death,omitempty"`
	Chat       *ChatObs       `json:"chat,omitempty"`
	Entities   []EntityObs    `json:"entities,omitempty"`
	Inventory  []ItemStack    `json:"inventory,omitempty"`
	Equipment  *Equipment     `json:"equipment,omitempty"`
	Connection *ConnectionObs `json:"connection,omitempty"`
	Tick       *TickObs       `json:"tick,omitempty"`
}

// actionCommand is the outbound action invocation envelope.
type actionCommand struct {
	Type   string         `json:"type"` // always "action"
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// actionResult is the bridge's reply to an actionCommand.
type actionResult struct {
	Type  string         `json:"type"` // always "action_result"
	ID    string         `json:"id"`
	OK    bool           `json:"ok"`
	Data  map[string]any `json:"data,omitempty"`
	Error *wireError     `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ActionError is a failed action execution. Code is stable and usable by the
// error classifier's pattern table (e.g. ECONNREFUSED, ETIMEDOUT, EPATHFAIL).
type ActionError struct {
	Code    string
	Message string
}

func (e *ActionError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result is a successful action execution payload.
type Result struct {
	Data map[string]any
}

// WorldSnapshot is the client's latest view of the observable world, used by
// the plan validator and the emergency reflexes.
type WorldSnapshot struct {
	Position  Position
	Inventory []ItemStack
	Equipment Equipment
	Entities  []EntityObs
	TimeOfDay float64
	Weather   string
}

// CountItem returns how many of the named item the inventory holds.
func (w WorldSnapshot) CountItem(name string) int {
	total := 0
	for _, it := range w.Inventory {
		if it.Name == name {
			total += it.Count
		}
	}
	return total
}

// HostilesWithin returns all hostile entities within radius blocks.
func (w WorldSnapshot) HostilesWithin(radius float64) []EntityObs {
	var out []EntityObs
	for _, e := range w.Entities {
		if e.IsHostile() && e.Distance <= radius {
			out = append(out, e)
		}
	}
	return out
}
