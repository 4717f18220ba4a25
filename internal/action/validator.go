package action

import (
	"fmt"
	"math"

	"github.com/itsflipper/PiepsLama/internal/botstate"
	"github.com/itsflipper/PiepsLama/internal/game"
)

// UnknownActionError is returned when a plan references an action name
// outside the closed catalog.
type UnknownActionError struct {
	Name string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Name)
}

// ValidationResult reports the outcome for a single action.
type ValidationResult struct {
	IsValid         bool
	Reason          string
	ValidatedParams map[string]any
}

// BatchError rejects an entire action queue, naming the offending index.
type BatchError struct {
	Index  int
	Action string
	Reason string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("action %d (%s) invalid: %s", e.Index, e.Action, e.Reason)
}

// Validator checks proposed actions against the catalog, the current
// inventory and the current bot state.
type Validator struct {
	defaultTimeoutMs int
}

func NewValidator(defaultTimeoutMs int) *Validator {
	return &Validator{defaultTimeoutMs: defaultTimeoutMs}
}

// ValidateQueue validates every action in order. All-or-nothing: the first
// invalid action rejects the whole batch with its index and reason. On
// success the returned actions carry normalized parameters and original
// indices; the caller must use these, not the planner's raw output.
func (v *Validator) ValidateQueue(actions []Action, world game.WorldSnapshot, state botstate.Snapshot, emergency bool) ([]Action, error) {
	validated := make([]Action, 0, len(actions))
	for i, a := range actions {
		res := v.Validate(a, world, state, emergency)
		if !res.IsValid {
			return nil, &BatchError{Index: i, Action: a.ActionName, Reason: res.Reason}
		}
		out := a
		out.Parameters = res.ValidatedParams
		out.OriginalIndex = i
		if out.TimeoutMs <= 0 {
			out.TimeoutMs = v.defaultTimeoutMs
		}
		validated = append(validated, out)
	}
	return validated, nil
}

// Validate checks a single action: catalog membership, parameter type/shape/
// enum conformance with defaulting, resource availability, and bot-state
// compatibility.
func (v *Validator) Validate(a Action, world game.WorldSnapshot, state botstate.Snapshot, emergency bool) ValidationResult {
	spec, ok := Catalog[a.ActionName]
	if !ok {
		return invalid((&UnknownActionError{Name: a.ActionName}).Error())
	}

	if a.FallbackAction != "" {
		if _, ok := Catalog[a.FallbackAction]; !ok {
			return invalid(fmt.Sprintf("unknown fallback action %q", a.FallbackAction))
		}
	}

	if emergency && !spec.EmergencyAllowed {
		return invalid(fmt.Sprintf("action %s is not allowed while the emergency queue is active", a.ActionName))
	}

	params, reason := normalizeParams(spec, a.Parameters)
	if reason != "" {
		return invalid(reason)
	}

	if reason := checkResources(spec, params, world); reason != "" {
		return invalid(reason)
	}

	if reason := checkBotState(spec, a.ActionName, state); reason != "" {
		return invalid(reason)
	}

	return ValidationResult{IsValid: true, ValidatedParams: params}
}

// normalizeParams type-checks and defaults parameters against the spec.
// Unknown parameters are rejected, missing optional ones are filled in.
func normalizeParams(spec Spec, raw map[string]any) (map[string]any, string) {
	out := make(map[string]any, len(spec.Params))

	for name := range raw {
		if _, ok := spec.Params[name]; !ok {
			return nil, fmt.Sprintf("unexpected parameter %q for %s", name, spec.Name)
		}
	}

	for name, ps := range spec.Params {
		val, present := raw[name]
		if !present {
			if ps.Required {
				return nil, fmt.Sprintf("missing required parameter %q for %s", name, spec.Name)
			}
			if ps.Default != nil {
				out[name] = ps.Default
			}
			continue
		}

		coerced, ok := coerce(ps.Type, val)
		if !ok {
			return nil, fmt.Sprintf("parameter %q of %s must be %s, got %T", name, spec.Name, ps.Type, val)
		}

		if len(ps.Enum) > 0 {
			s, _ := coerced.(string)
			if !contains(ps.Enum, s) {
				return nil, fmt.Sprintf("parameter %q of %s must be one of %v", name, spec.Name, ps.Enum)
			}
		}

		out[name] = coerced
	}

	return out, ""
}

// coerce converts JSON-decoded values into the spec's canonical Go type.
// Planner output arrives with all numbers as float64.
func coerce(t ParamType, val any) (any, bool) {
	switch t {
	case ParamString:
		s, ok := val.(string)
		return s, ok
	case ParamBool:
		b, ok := val.(bool)
		return b, ok
	case ParamInt:
		switch n := val.(type) {
		case int:
			return n, true
		case float64:
			if n != math.Trunc(n) {
				return nil, false
			}
			return int(n), true
		}
		return nil, false
	case ParamFloat:
		switch n := val.(type) {
		case int:
			return float64(n), true
		case float64:
			return n, true
		}
		return nil, false
	}
	return nil, false
}

// checkResources verifies inventory counts for item references and recipe
// materials for crafting.
func checkResources(spec Spec, params map[string]any, world game.WorldSnapshot) string {
	for name, ps := range spec.Params {
		if !ps.ItemRef {
			continue
		}
		item, _ := params[name].(string)
		if item == "" {
			continue
		}
		needed := 1
		if cnt, ok := params["count"].(int); ok && name == "item" {
			needed = cnt
		}
		if world.CountItem(item) < needed {
			return fmt.Sprintf("inventory has no %s (need %d)", item, needed)
		}
	}

	if spec.Name == "craftItem" {
		recipe, _ := params["recipe"].(string)
		count, _ := params["count"].(int)
		if count <= 0 {
			count = 1
		}
		materials, ok := Recipes[recipe]
		if !ok {
			return fmt.Sprintf("unknown recipe %q", recipe)
		}
		for _, m := range materials {
			if world.CountItem(m.Name) < m.Count*count {
				return fmt.Sprintf("missing material for %s: need %d %s, have %d",
					recipe, m.Count*count, m.Name, world.CountItem(m.Name))
			}
		}
	}

	return ""
}

// checkBotState rejects actions incompatible with the agent's current state.
func checkBotState(spec Spec, name string, state botstate.Snapshot) string {
	if !state.Spawned && name != "wait" {
		return "agent is not spawned, only wait is allowed"
	}

	if state.IsSleeping && name != "wakeUp" {
		return "agent is sleeping, only wakeUp is allowed"
	}

	if state.ContainerOpen {
		switch name {
		case "depositItems", "closeContainer", "dropItem":
		default:
			return "a container is open, close it before other actions"
		}
	}

	if state.InCombat {
		switch name {
		case "sleep", "openContainer", "craftItem", "smeltItem":
			return fmt.Sprintf("cannot %s while in combat", name)
		}
	}

	if state.IsExecutingAction && spec.LongRunning {
		return fmt.Sprintf("cannot queue long-running %s while %s is in flight", name, state.CurrentAction)
	}

	return ""
}

func invalid(reason string) ValidationResult {
	return ValidationResult{IsValid: false, Reason: reason}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
