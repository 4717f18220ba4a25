package recovery

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itsflipper/PiepsLama/internal/game"
)

func actionErr(code, message string) error {
	return &game.ActionError{Code: code, Message: message}
}

func TestClassifyKnownCodes(t *testing.T) {
	cases := []struct {
		err      error
		category Category
		severity Severity
	}{
		{actionErr("ECONNREFUSED", "connection refused"), CategoryNetwork, SeverityHigh},
		{actionErr("ECONNRESET", "connection reset by peer"), CategoryNetwork, SeverityHigh},
		{actionErr("ECONNLOST", "bridge connection lost"), CategoryNetwork, SeverityCritical},
		{actionErr("ETIMEDOUT", "action timed out"), CategoryTiming, SeverityMedium},
		{actionErr("ECANCELED", "action canceled"), CategoryTiming, SeverityLow},
		{actionErr("EPATHFAIL", "no path to goal"), CategoryLogic, SeverityMedium},
		{actionErr("ENOSPACE", "inventory full"), CategoryResource, SeverityMedium},
		{actionErr("EPERM", "spawn protection"), CategoryPermission, SeverityHigh},
	}

	for _, tc := range cases {
		c := Classify(tc.err)
		assert.Equal(t, tc.category, c.Category, tc.err.Error())
		assert.Equal(t, tc.severity, c.Severity, tc.err.Error())
		assert.NotEmpty(t, c.Pattern, tc.err.Error())
	}
}

func TestClassifyMessageHeuristics(t *testing.T) {
	cases := []struct {
		message  string
		category Category
		severity Severity
	}{
		{"block foo not found nearby", CategoryResource, SeverityLow},
		{"invalid parameters for craft", CategoryValidation, SeverityMedium},
		{"operation timed out waiting for pathfinder", CategoryTiming, SeverityMedium},
		{"permission denied by server plugin", CategoryPermission, SeverityHigh},
		{"something completely novel happened", CategoryUnknown, SeverityMedium},
	}

	for _, tc := range cases {
		c := Classify(errors.New(tc.message))
		assert.Equal(t, tc.category, c.Category, tc.message)
		assert.Equal(t, tc.severity, c.Severity, tc.message)
	}
}

func TestClassifyKnownMessageSubstrings(t *testing.T) {
	c := Classify(errors.New("pathfinder: Goal Unreachable from here"))
	assert.Equal(t, CategoryLogic, c.Category)
	assert.Equal(t, "goal unreachable", c.Pattern)

	c = Classify(errors.New("target entity despawned"))
	assert.Equal(t, CategoryResource, c.Category)
	assert.Equal(t, SeverityLow, c.Severity)
}

func TestClassifyUnknownNetworkCodePrefix(t *testing.T) {
	c := Classify(actionErr("EHOSTUNREACH", "host unreachable"))
	assert.Equal(t, CategoryNetwork, c.Category)
	assert.Equal(t, SeverityHigh, c.Severity)
	assert.Empty(t, c.Pattern)
}

func TestClassifyIsDeterministic(t *testing.T) {
	err := actionErr("ETIMEDOUT", "action moveTo timed out")
	first := Classify(err)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(err))
	}
}

func TestDefaultStrategyByCategory(t *testing.T) {
	cases := []struct {
		classification Classification
		strategy       Strategy
	}{
		{Classification{Category: CategoryNetwork}, StrategyRetryWithBackoff},
		{Classification{Category: CategoryValidation}, StrategyAbortAction},
		{Classification{Category: CategoryResource}, StrategyFallback},
		{Classification{Category: CategoryTiming}, StrategyRetry},
		{Classification{Category: CategoryLogic}, StrategyRequestNewPlan},
		{Classification{Category: CategoryUnknown}, StrategyAbortAction},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.strategy, defaultStrategyFor(tc.classification), fmt.Sprintf("%+v", tc.classification))
	}
}

func TestDefaultStrategyPatternWins(t *testing.T) {
	c := Classify(actionErr("ECONNLOST", "gone"))
	assert.Equal(t, StrategyReconnect, defaultStrategyFor(c))
}
