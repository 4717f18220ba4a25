// Package event contains the prioritized event pipeline: message model,
// translator from raw bridge signals, and the strictly-sequential dispatcher.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/itsflipper/PiepsLama/internal/botstate"
)

type Type string

const (
	TypeStatusUpdate   Type = "status_update"
	TypeDamageReceived Type = "damage_received"
	TypeHungerCritical Type = "hunger_critical"
	TypeDeath          Type = "death"
	TypeWakeup         Type = "wakeup"
	TypeConnectionLost Type = "connection_lost"
	TypeConnectionBack Type = "connection_restored"
	TypeChatReceived   Type = "chat_received"
)

// ActionRequired is the recommended queue-manager reaction to an event.
type ActionRequired string

const (
	ActionNone      ActionRequired = "none"
	ActionInterrupt ActionRequired = "interrupt"
	ActionPause     ActionRequired = "pause"
	ActionResume    ActionRequired = "resume"
	ActionReset     ActionRequired = "reset"
)

// Priority bounds; 1 is most urgent.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
	PriorityIdle     = 5
)

// Response is the recommended reaction carried by a message.
type Response struct {
	ActionRequired ActionRequired
	TargetQueue    botstate.QueueType
}

// Payload is the free-form event detail.
type Payload struct {
	Source          string
	Details         map[string]any
	AffectedQueues  []botstate.QueueType
	ImmediateAction bool
}

// Message is one prioritized event. Immutable once created: the translator
// builds it, the dispatcher hands it to the queue manager exactly once.
type Message struct {
	ID        string
	Type      Type
	Priority  int
	Timestamp time.Time
	Data      Payload
	Response  Response
}

// NewMessage creates a timestamped message with a fresh ID.
func NewMessage(t Type, priority int, data Payload, response Response) Message {
	return Message{
		ID:        uuid.New().String(),
		Type:      t,
		Priority:  priority,
		Timestamp: time.Now(),
		Data:      data,
		Response:  response,
	}
}

// StatusUpdate is the periodic idle event that re-seeds the standard queue.
func StatusUpdate() Message {
	return NewMessage(TypeStatusUpdate, PriorityIdle, Payload{Source: "timer"}, Response{ActionRequired: ActionNone})
}
