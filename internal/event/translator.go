package event

import (
	"log/slog"
	"strings"

	"github.com/itsflipper/PiepsLama/internal/botstate"
	"github.com/itsflipper/PiepsLama/internal/config"
	"github.com/itsflipper/PiepsLama/internal/game"
)

// Translator converts raw bridge signals into prioritized event messages,
// suppressing no-change noise (identical health+food tuples, sub-threshold
// damage) and encoding the domain thresholds from config.
type Translator struct {
	cfg    *config.Config
	state  *botstate.Manager
	logger *slog.Logger

	haveHealth bool
	lastHealth int
	lastFood   int

	deathPending  bool
	wasConnected  bool
	everConnected bool
}

func NewTranslator(cfg *config.Config, state *botstate.Manager, logger *slog.Logger) *Translator {
	return &Translator{cfg: cfg, state: state, logger: logger}
}

// Translate returns the event message for a signal, or nil when the signal is
// noise. It also folds ground-truth observations into the bot state.
func (t *Translator) Translate(sig game.Signal) *Message {
	t.state.TouchEvent()

	switch sig.Type {
	case game.SignalHealth:
		return t.translateHealth(sig)
	case game.SignalDeath:
		return t.translateDeath(sig)
	case game.SignalRespawn, game.SignalWakeup:
		return t.translateRespawn()
	case game.SignalChat:
		return t.translateChat(sig)
	case game.SignalConnection:
		return t.translateConnection(sig)
	case game.SignalEntities:
		t.updateCombat(sig.Entities)
		return nil
	case game.SignalInventory, game.SignalTick:
		// Absorbed into the world snapshot by the bridge client.
		return nil
	default:
		t.logger.Debug("Unknown signal type", slog.String("type", string(sig.Type)))
		return nil
	}
}

func (t *Translator) translateHealth(sig game.Signal) *Message {
	if sig.Health == nil {
		return nil
	}
	health, food := sig.Health.Health, sig.Health.Food

	if t.haveHealth && health == t.lastHealth && food == t.lastFood {
		return nil
	}

	prevHealth := t.lastHealth
	first := !t.haveHealth
	t.haveHealth = true
	t.lastHealth = health
	t.lastFood = food
	t.state.SetHealth(health, food)

	if first {
		return nil
	}

	// Hunger outranks slow health regeneration but never a damage spike.
	damage := prevHealth - health
	critical := health <= t.cfg.Health.CriticalHealth

	if damage >= t.cfg.Health.MinDamageDelta {
		payload := Payload{
			Source: "health",
			Details: map[string]any{
				"health":     health,
				"food":       food,
				"damage":     damage,
				"prevHealth": prevHealth,
			},
			AffectedQueues:  []botstate.QueueType{botstate.QueueEmergency},
			ImmediateAction: critical,
		}
		if critical {
			return ptr(NewMessage(TypeDamageReceived, PriorityCritical, payload,
				Response{ActionRequired: ActionInterrupt, TargetQueue: botstate.QueueEmergency}))
		}
		return ptr(NewMessage(TypeDamageReceived, PriorityNormal, payload, Response{ActionRequired: ActionNone}))
	}

	if food < t.cfg.Health.CriticalFood {
		payload := Payload{
			Source:          "health",
			Details:         map[string]any{"health": health, "food": food},
			AffectedQueues:  []botstate.QueueType{botstate.QueueEmergency},
			ImmediateAction: true,
		}
		return ptr(NewMessage(TypeHungerCritical, PriorityHigh, payload,
			Response{ActionRequired: ActionInterrupt, TargetQueue: botstate.QueueEmergency}))
	}

	return nil
}

func (t *Translator) translateDeath(sig game.Signal) *Message {
	pos := botstate.Position{}
	reason := "unknown"
	if sig.Death != nil {
		pos = botstate.Position{X: sig.Death.Position.X, Y: sig.Death.Position.Y, Z: sig.Death.Position.Z}
		reason = sig.Death.Reason
	}
	t.state.RecordDeath(pos, reason)
	t.deathPending = true

	// The respawn interrupt fires once the agent is back in the world; death
	// itself only records context.
	return ptr(NewMessage(TypeDeath, PriorityCritical, Payload{
		Source:          "death",
		Details:         map[string]any{"reason": reason, "x": pos.X, "y": pos.Y, "z": pos.Z},
		AffectedQueues:  []botstate.QueueType{botstate.QueueRespawn},
		ImmediateAction: false,
	}, Response{ActionRequired: ActionNone}))
}

func (t *Translator) translateRespawn() *Message {
	t.state.SetSpawned(true)
	if !t.deathPending {
		return ptr(NewMessage(TypeWakeup, PriorityLow, Payload{Source: "respawn"}, Response{ActionRequired: ActionNone}))
	}
	t.deathPending = false
	return ptr(NewMessage(TypeWakeup, PriorityCritical, Payload{
		Source:          "respawn",
		AffectedQueues:  []botstate.QueueType{botstate.QueueRespawn},
		ImmediateAction: true,
	}, Response{ActionRequired: ActionInterrupt, TargetQueue: botstate.QueueRespawn}))
}

func (t *Translator) translateChat(sig game.Signal) *Message {
	if sig.Chat == nil {
		return nil
	}
	text := strings.TrimSpace(sig.Chat.Message)
	payload := Payload{
		Source:  "chat",
		Details: map[string]any{"username": sig.Chat.Username, "message": text},
	}

	switch strings.ToLower(text) {
	case "!pause":
		return ptr(NewMessage(TypeChatReceived, PriorityHigh, payload, Response{ActionRequired: ActionPause}))
	case "!resume":
		return ptr(NewMessage(TypeChatReceived, PriorityHigh, payload, Response{ActionRequired: ActionResume}))
	case "!reset":
		return ptr(NewMessage(TypeChatReceived, PriorityHigh, payload, Response{ActionRequired: ActionReset}))
	default:
		return ptr(NewMessage(TypeChatReceived, PriorityLow, payload, Response{ActionRequired: ActionNone}))
	}
}

func (t *Translator) translateConnection(sig game.Signal) *Message {
	if sig.Connection == nil {
		return nil
	}
	connected := sig.Connection.Connected
	t.state.SetConnected(connected)

	if connected {
		first := !t.everConnected
		t.everConnected = true
		wasConnected := t.wasConnected
		t.wasConnected = true
		if first || wasConnected {
			return nil
		}
		return ptr(NewMessage(TypeConnectionBack, PriorityNormal, Payload{Source: "connection"},
			Response{ActionRequired: ActionResume}))
	}

	if !t.wasConnected {
		return nil
	}
	t.wasConnected = false
	return ptr(NewMessage(TypeConnectionLost, PriorityCritical, Payload{
		Source:  "connection",
		Details: map[string]any{"reason": sig.Connection.Reason},
	}, Response{ActionRequired: ActionPause}))
}

func (t *Translator) updateCombat(entities []game.EntityObs) {
	inCombat := false
	for _, e := range entities {
		if e.IsHostile() && e.Distance <= 5 {
			inCombat = true
			break
		}
	}
	t.state.SetInCombat(inCombat)
}

func ptr(m Message) *Message {
	return &m
}
