// Package action defines the closed action vocabulary the agent can perform,
// the plan model produced by the planner, and the all-or-nothing plan
// validator.
package action

import "time"

// Action is one plan step. The planner produces it, the validator rewrites
// Parameters into normalized/defaulted form, the execution contexts consume
// it and may replace it in place with its fallback on failure.
type Action struct {
	ActionName      string         `json:"actionName"`
	Parameters      map[string]any `json:"parameters"`
	SuccessCriteria string         `json:"successCriteria"`
	TimeoutMs       int            `json:"timeoutMs"`
	FallbackAction  string         `json:"fallbackAction,omitempty"`
	OriginalIndex   int            `json:"-"`
}

func (a Action) Timeout(fallback time.Duration) time.Duration {
	if a.TimeoutMs <= 0 {
		return fallback
	}
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

// Plan is an ordered, validated action sequence pursuing a goal. Owned by
// exactly one execution context; discarded on completion or abort.
type Plan struct {
	Goal    string   `json:"goal"`
	Actions []Action `json:"actions"`
}

func (p Plan) Empty() bool {
	return len(p.Actions) == 0
}

// Category mirrors the learning taxonomy so failures map directly onto
// anti-action learnings.
type Category string

const (
	CategoryMovement         Category = "movement"
	CategoryBlockInteraction Category = "block-interaction"
	CategoryCrafting         Category = "crafting"
	CategorySurvival         Category = "survival"
	CategoryCombat           Category = "combat"
	CategoryInventory        Category = "inventory"
)
