// Package recovery classifies action and planning errors and selects a
// recovery strategy. Classification is deterministic: a static pattern table
// is consulted first (first match wins), then heuristic fallbacks.
package recovery

import (
	"errors"
	"strings"

	"github.com/itsflipper/PiepsLama/internal/game"
)

type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryLogic      Category = "logic"
	CategoryResource   Category = "resource"
	CategoryTiming     Category = "timing"
	CategoryValidation Category = "validation"
	CategoryPermission Category = "permission"
	CategoryUnknown    Category = "unknown"
)

type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Classification is the per-error verdict, consumed immediately by the
// engine and never persisted.
type Classification struct {
	Category Category
	Severity Severity
	Pattern  string
}

// pattern matches an error by exact code or message substring.
type pattern struct {
	code     string
	contains string
	category Category
	severity Severity
	strategy Strategy
}

// knownPatterns is ordered; the first match wins.
var knownPatterns = []pattern{
	{code: "ECONNREFUSED", category: CategoryNetwork, severity: SeverityHigh, strategy: StrategyRetryWithBackoff},
	{code: "ECONNRESET", category: CategoryNetwork, severity: SeverityHigh, strategy: StrategyRetryWithBackoff},
	{code: "ECONNLOST", category: CategoryNetwork, severity: SeverityCritical, strategy: StrategyReconnect},
	{code: "ENOTFOUND", category: CategoryNetwork, severity: SeverityHigh, strategy: StrategyReconnect},
	{code: "ETIMEDOUT", category: CategoryTiming, severity: SeverityMedium, strategy: StrategyRetry},
	{code: "ECANCELED", category: CategoryTiming, severity: SeverityLow, strategy: StrategyIgnore},
	{code: "EPATHFAIL", category: CategoryLogic, severity: SeverityMedium, strategy: StrategyRequestNewPlan},
	{code: "ENOSPACE", category: CategoryResource, severity: SeverityMedium, strategy: StrategyFallback},
	{code: "EPERM", category: CategoryPermission, severity: SeverityHigh, strategy: StrategyAbortAction},
	{contains: "goal unreachable", category: CategoryLogic, severity: SeverityMedium, strategy: StrategyRequestNewPlan},
	{contains: "despawned", category: CategoryResource, severity: SeverityLow, strategy: StrategyAbortAction},
}

// syscall-style codes the heuristic treats as network errors.
var networkCodePrefixes = []string{"ECONN", "ENET", "EHOST", "EAI_", "EPIPE"}

// Classify derives category and severity for an error. Stable codes from the
// bridge take precedence over message text.
func Classify(err error) Classification {
	code, message := errorCodeAndMessage(err)

	for _, p := range knownPatterns {
		if p.code != "" && p.code == code {
			return Classification{Category: p.category, Severity: p.severity, Pattern: p.code}
		}
		if p.contains != "" && strings.Contains(strings.ToLower(message), p.contains) {
			return Classification{Category: p.category, Severity: p.severity, Pattern: p.contains}
		}
	}

	lower := strings.ToLower(message)
	switch {
	case isNetworkCode(code):
		return Classification{Category: CategoryNetwork, Severity: SeverityHigh}
	case strings.Contains(lower, "validation"), strings.Contains(lower, "invalid"):
		return Classification{Category: CategoryValidation, Severity: SeverityMedium}
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return Classification{Category: CategoryTiming, Severity: SeverityMedium}
	case strings.Contains(lower, "not found"):
		return Classification{Category: CategoryResource, Severity: SeverityLow}
	case strings.Contains(lower, "permission"), strings.Contains(lower, "denied"):
		return Classification{Category: CategoryPermission, Severity: SeverityHigh}
	}

	return Classification{Category: CategoryUnknown, Severity: SeverityMedium}
}

// defaultStrategyFor returns the known pattern's declared strategy when one
// matched, otherwise the category default.
func defaultStrategyFor(c Classification) Strategy {
	if c.Pattern != "" {
		for _, p := range knownPatterns {
			if p.code == c.Pattern || p.contains == c.Pattern {
				return p.strategy
			}
		}
	}

	switch c.Category {
	case CategoryNetwork:
		return StrategyRetryWithBackoff
	case CategoryValidation:
		return StrategyAbortAction
	case CategoryResource:
		return StrategyFallback
	case CategoryTiming:
		return StrategyRetry
	case CategoryLogic:
		return StrategyRequestNewPlan
	default:
		return StrategyAbortAction
	}
}

func errorCodeAndMessage(err error) (code, message string) {
	message = err.Error()
	var actionErr *game.ActionError
	if errors.As(err, &actionErr) {
		return actionErr.Code, actionErr.Message
	}
	return "", message
}

func isNetworkCode(code string) bool {
	if code == "" {
		return false
	}
	for _, prefix := range networkCodePrefixes {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}
