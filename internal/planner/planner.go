package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/itsflipper/PiepsLama/internal/action"
	"github.com/itsflipper/PiepsLama/internal/game"
)

// Chatter is the LLM call surface, extracted so tests can fake the model.
type Chatter interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// Strategy is the respawn recovery approach chosen by the planner.
type Strategy string

const (
	StrategyItemRecovery Strategy = "item_recovery"
	StrategyBaseReturn   Strategy = "base_return"
	StrategyFreshStart   Strategy = "fresh_start"
)

// StatusContext is the agent snapshot included in every planning request.
type StatusContext struct {
	Health         int
	Food           int
	Position       game.Position
	TimeOfDay      float64
	Weather        string
	Inventory      []game.ItemStack
	Goal           string
	Learnings      []string
	RecentFailures []string
}

// DeathContext is the respawn-specific request payload.
type DeathContext struct {
	Position    game.Position
	Reason      string
	Distance    float64
	ElapsedSecs int
	KnownBase   *game.Position
}

// Planner builds prompts and parses structured plans out of model output.
type Planner struct {
	llm    Chatter
	logger *slog.Logger
}

func New(llm Chatter, logger *slog.Logger) *Planner {
	return &Planner{llm: llm, logger: logger}
}

const standardSystemPrompt = `You are the planning brain of a Minecraft survival agent.
Decompose the agent's situation into a short ordered action plan.

Rules:
- Use ONLY actions from the provided catalog, with exactly the listed parameters.
- Keep plans short: 3 to 8 actions pursuing one concrete goal.
- Every action may carry "fallbackAction": an alternate catalog action name to try on failure.
- Respect the LEARNINGS block: "AVOID" lines record approaches that failed before.

Output ONLY a JSON array of action objects (no wrapper, no markdown, no prose):
[
  {
    "actionName": "collectBlock",
    "parameters": {"block": "oak_log", "count": 4},
    "successCriteria": "4 oak logs in inventory",
    "timeoutMs": 30000,
    "fallbackAction": "moveTo"
  }
]`

const emergencySystemPrompt = `You are the emergency planner of a Minecraft survival agent.
The agent is in immediate danger and its hardcoded reflex produced too few actions.
Add the minimum extra actions to survive. Only survival, combat, movement and
inventory actions are allowed. Output ONLY a JSON array of action objects.`

const respawnSystemPrompt = `You are the recovery planner of a Minecraft survival agent that just died.
Choose exactly one strategy:
- "item_recovery": return to the death location and collect dropped items. Only viable if the location is reachable before items despawn (5 minutes).
- "base_return": travel to the known base and re-equip from storage.
- "fresh_start": gather basic resources from scratch near the spawn point.

Output ONLY a JSON object (no markdown):
{"strategy": "<one of the three>", "actions": [<action objects from the catalog>]}`

// RequestPlan asks the model for a standard plan. Malformed output is a hard
// failure for this planning round; the caller retries on its own schedule.
func (p *Planner) RequestPlan(ctx context.Context, status StatusContext) (action.Plan, error) {
	raw, err := p.llm.Chat(ctx, standardSystemPrompt, renderStatus(status))
	if err != nil {
		return action.Plan{}, err
	}

	actions, err := ParseActions(raw)
	if err != nil {
		return action.Plan{}, err
	}
	return action.Plan{Goal: status.Goal, Actions: actions}, nil
}

// RequestEmergencyTopUp asks for additional emergency actions when the reflex
// produced fewer than the minimum.
func (p *Planner) RequestEmergencyTopUp(ctx context.Context, status StatusContext, trigger string) (action.Plan, error) {
	user := fmt.Sprintf("EMERGENCY TRIGGER: %s\n\n%s", trigger, renderStatus(status))
	raw, err := p.llm.Chat(ctx, emergencySystemPrompt, user)
	if err != nil {
		return action.Plan{}, err
	}

	actions, err := ParseActions(raw)
	if err != nil {
		return action.Plan{}, err
	}
	return action.Plan{Goal: "resolve emergency: " + trigger, Actions: actions}, nil
}

// RequestRespawnPlan makes the single respawn planning round, returning the
// chosen strategy and its action plan.
func (p *Planner) RequestRespawnPlan(ctx context.Context, status StatusContext, death DeathContext) (Strategy, action.Plan, error) {
	raw, err := p.llm.Chat(ctx, respawnSystemPrompt, renderStatus(status)+"\n"+renderDeath(death))
	if err != nil {
		return "", action.Plan{}, err
	}

	var payload struct {
		Strategy string          `json:"strategy"`
		Actions  json.RawMessage `json:"actions"`
	}
	cleaned := StripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return "", action.Plan{}, fmt.Errorf("planner: malformed respawn response: %w", err)
	}

	strategy := Strategy(payload.Strategy)
	switch strategy {
	case StrategyItemRecovery, StrategyBaseReturn, StrategyFreshStart:
	default:
		return "", action.Plan{}, fmt.Errorf("planner: unknown respawn strategy %q", payload.Strategy)
	}

	actions, err := ParseActions(string(payload.Actions))
	if err != nil {
		return "", action.Plan{}, err
	}
	return strategy, action.Plan{Goal: "respawn recovery: " + payload.Strategy, Actions: actions}, nil
}

// ParseActions decodes model output into actions. A JSON array is the
// contract; a single action object is tolerated and auto-wrapped. Anything
// else is a hard failure for the round.
func ParseActions(raw string) ([]action.Action, error) {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("planner: empty plan output")
	}

	var actions []action.Action
	if err := json.Unmarshal([]byte(cleaned), &actions); err == nil {
		return actions, nil
	}

	var single action.Action
	if err := json.Unmarshal([]byte(cleaned), &single); err == nil && single.ActionName != "" {
		return []action.Action{single}, nil
	}

	return nil, fmt.Errorf("planner: output is neither an action array nor a single action: %.120s", cleaned)
}

// renderStatus builds the user prompt from the status snapshot and the
// action catalog.
func renderStatus(s StatusContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "STATUS:\nhealth=%d/20 food=%d/20 position=(%d,%d,%d) timeOfDay=%.2f weather=%s\n",
		s.Health, s.Food, s.Position.X, s.Position.Y, s.Position.Z, s.TimeOfDay, s.Weather)
	if s.Goal != "" {
		fmt.Fprintf(&b, "current goal: %s\n", s.Goal)
	}

	b.WriteString("\nINVENTORY:\n")
	if len(s.Inventory) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, it := range s.Inventory {
		fmt.Fprintf(&b, "- %s x%d\n", it.Name, it.Count)
	}

	b.WriteString("\nACTION CATALOG:\n")
	b.WriteString(renderCatalog())

	if len(s.Learnings) > 0 {
		b.WriteString("\nLEARNINGS:\n")
		for _, l := range s.Learnings {
			fmt.Fprintf(&b, "- %s\n", l)
		}
	}

	if len(s.RecentFailures) > 0 {
		b.WriteString("\nRECENT FAILURES:\n")
		for _, f := range s.RecentFailures {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	return b.String()
}

func renderDeath(d DeathContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nDEATH CONTEXT:\nposition=(%d,%d,%d) cause=%s distance=%.0f blocks elapsed=%ds\n",
		d.Position.X, d.Position.Y, d.Position.Z, d.Reason, d.Distance, d.ElapsedSecs)
	if d.KnownBase != nil {
		fmt.Fprintf(&b, "known base: (%d,%d,%d)\n", d.KnownBase.X, d.KnownBase.Y, d.KnownBase.Z)
	} else {
		b.WriteString("known base: none\n")
	}
	return b.String()
}

// renderCatalog lists the closed action catalog in a stable order.
func renderCatalog() string {
	names := make([]string, 0, len(action.Catalog))
	for name := range action.Catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		spec := action.Catalog[name]
		params := make([]string, 0, len(spec.Params))
		for pname, ps := range spec.Params {
			suffix := ""
			if !ps.Required {
				suffix = "?"
			}
			params = append(params, fmt.Sprintf("%s:%s%s", pname, ps.Type, suffix))
		}
		sort.Strings(params)
		fmt.Fprintf(&b, "- %s(%s) [%s]\n", name, strings.Join(params, ", "), spec.Category)
	}
	return b.String()
}
