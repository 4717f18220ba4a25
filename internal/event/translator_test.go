package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsflipper/PiepsLama/internal/botstate"
	"github.com/itsflipper/PiepsLama/internal/config"
	"github.com/itsflipper/PiepsLama/internal/game"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Health.CriticalHealth = 6
	cfg.Health.RecoveredHealth = 15
	cfg.Health.CriticalFood = 10
	cfg.Health.MinDamageDelta = 2
	cfg.Health.ThreatRadius = 16
	return cfg
}

func newTestTranslator(t *testing.T) (*Translator, *botstate.Manager) {
	t.Helper()
	state := botstate.NewManager(discardLogger())
	return NewTranslator(testConfig(), state, discardLogger()), state
}

func healthSignal(health, food int) game.Signal {
	return game.Signal{Type: game.SignalHealth, Health: &game.HealthObs{Health: health, Food: food}}
}

func TestTranslatorFirstHealthReadingIsBaseline(t *testing.T) {
	tr, state := newTestTranslator(t)

	msg := tr.Translate(healthSignal(20, 20))
	assert.Nil(t, msg)

	snap := state.Snapshot()
	assert.Equal(t, 20, snap.Health)
}

func TestTranslatorCriticalDamageInterruptsToEmergency(t *testing.T) {
	tr, _ := newTestTranslator(t)
	tr.Translate(healthSignal(20, 20))

	msg := tr.Translate(healthSignal(4, 20))
	require.NotNil(t, msg)
	assert.Equal(t, TypeDamageReceived, msg.Type)
	assert.Equal(t, PriorityCritical, msg.Priority)
	assert.Equal(t, ActionInterrupt, msg.Response.ActionRequired)
	assert.Equal(t, botstate.QueueEmergency, msg.Response.TargetQueue)
	assert.Equal(t, 16, msg.Data.Details["damage"])
}

func TestTranslatorNonCriticalDamageIsInformational(t *testing.T) {
	tr, _ := newTestTranslator(t)
	tr.Translate(healthSignal(20, 20))

	msg := tr.Translate(healthSignal(15, 20))
	require.NotNil(t, msg)
	assert.Equal(t, TypeDamageReceived, msg.Type)
	assert.Equal(t, ActionNone, msg.Response.ActionRequired)
}

func TestTranslatorSubThresholdDamageSuppressed(t *testing.T) {
	tr, _ := newTestTranslator(t)
	tr.Translate(healthSignal(20, 20))

	assert.Nil(t, tr.Translate(healthSignal(19, 20)))
}

func TestTranslatorIdenticalTupleSuppressed(t *testing.T) {
	tr, _ := newTestTranslator(t)
	tr.Translate(healthSignal(20, 20))

	assert.Nil(t, tr.Translate(healthSignal(20, 20)))
}

func TestTranslatorHungerCritical(t *testing.T) {
	tr, _ := newTestTranslator(t)
	tr.Translate(healthSignal(20, 20))

	msg := tr.Translate(healthSignal(20, 8))
	require.NotNil(t, msg)
	assert.Equal(t, TypeHungerCritical, msg.Type)
	assert.Equal(t, ActionInterrupt, msg.Response.ActionRequired)
	assert.Equal(t, botstate.QueueEmergency, msg.Response.TargetQueue)
}

func TestTranslatorDamageOutranksHunger(t *testing.T) {
	tr, _ := newTestTranslator(t)
	tr.Translate(healthSignal(20, 20))

	// Simultaneous damage spike and hunger: the damage event wins.
	msg := tr.Translate(healthSignal(10, 5))
	require.NotNil(t, msg)
	assert.Equal(t, TypeDamageReceived, msg.Type)
}

func TestTranslatorDeathThenRespawn(t *testing.T) {
	tr, state := newTestTranslator(t)

	death := tr.Translate(game.Signal{Type: game.SignalDeath, Death: &game.DeathObs{
		Position: game.Position{X: 10, Y: 64, Z: -5}, Reason: "lava",
	}})
	require.NotNil(t, death)
	assert.Equal(t, TypeDeath, death.Type)
	assert.Equal(t, ActionNone, death.Response.ActionRequired)
	require.NotNil(t, state.Snapshot().LastDeath)
	assert.Equal(t, "lava", state.Snapshot().LastDeath.Reason)

	wakeup := tr.Translate(game.Signal{Type: game.SignalRespawn})
	require.NotNil(t, wakeup)
	assert.Equal(t, TypeWakeup, wakeup.Type)
	assert.Equal(t, ActionInterrupt, wakeup.Response.ActionRequired)
	assert.Equal(t, botstate.QueueRespawn, wakeup.Response.TargetQueue)
}

func TestTranslatorRespawnWithoutDeathIsLowPriority(t *testing.T) {
	tr, _ := newTestTranslator(t)

	msg := tr.Translate(game.Signal{Type: game.SignalRespawn})
	require.NotNil(t, msg)
	assert.Equal(t, TypeWakeup, msg.Type)
	assert.Equal(t, ActionNone, msg.Response.ActionRequired)
}

func TestTranslatorChatCommands(t *testing.T) {
	tr, _ := newTestTranslator(t)

	cases := []struct {
		text string
		want ActionRequired
	}{
		{"!pause", ActionPause},
		{"!Resume", ActionResume},
		{"!reset", ActionReset},
		{"hello there", ActionNone},
	}
	for _, tc := range cases {
		msg := tr.Translate(game.Signal{Type: game.SignalChat, Chat: &game.ChatObs{Username: "op", Message: tc.text}})
		require.NotNil(t, msg, tc.text)
		assert.Equal(t, TypeChatReceived, msg.Type)
		assert.Equal(t, tc.want, msg.Response.ActionRequired, tc.text)
	}
}

func TestTranslatorConnectionLossAndRecovery(t *testing.T) {
	tr, state := newTestTranslator(t)

	connect := func(up bool, reason string) *Message {
		return tr.Translate(game.Signal{Type: game.SignalConnection,
			Connection: &game.ConnectionObs{Connected: up, Reason: reason}})
	}

	// First connect is the baseline, no event.
	assert.Nil(t, connect(true, ""))
	assert.True(t, state.Snapshot().Connected)

	lost := connect(false, "read error")
	require.NotNil(t, lost)
	assert.Equal(t, TypeConnectionLost, lost.Type)
	assert.Equal(t, ActionPause, lost.Response.ActionRequired)
	assert.False(t, state.Snapshot().Connected)

	restored := connect(true, "")
	require.NotNil(t, restored)
	assert.Equal(t, TypeConnectionBack, restored.Type)
	assert.Equal(t, ActionResume, restored.Response.ActionRequired)
}

func TestTranslatorEntitiesUpdateCombat(t *testing.T) {
	tr, state := newTestTranslator(t)

	msg := tr.Translate(game.Signal{Type: game.SignalEntities, Entities: []game.EntityObs{
		{Name: "zombie", Kind: "hostile", Distance: 3},
	}})
	assert.Nil(t, msg)
	assert.True(t, state.Snapshot().InCombat)

	tr.Translate(game.Signal{Type: game.SignalEntities, Entities: []game.EntityObs{
		{Name: "zombie", Kind: "hostile", Distance: 12},
	}})
	assert.False(t, state.Snapshot().InCombat)
}
