package capability

import (
	"context"
	"encoding/json"

	"github.com/atlasdesk/switchboard/pkg/models"
)

// TurnContext carries the per-turn inputs a provider needs to generate its
// tool specs: the session, the resolved target ids (possibly empty), and the
// conversation history.
type TurnContext struct {
	SessionID string
	TargetIDs []string
	History   []models.Message
}

// Target is a capability-specific addressable entity, selectable by display
// name in the routing prompt (e.g., a ticket type).
type Target struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// ToolSpec describes one callable tool for a single turn. Parameters is a
// JSON-Schema object (type/properties/required/...).
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolResult is the tagged outcome of a tool execution. Providers never
// return Go errors from HandleToolCall; failures travel as Err values so the
// turn can always continue to a grounded natural-language reply.
type ToolResult struct {
	OK      bool
	Payload map[string]any
	Err     *ToolError
}

// ToolError is a structured, code-first tool failure.
type ToolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message,omitempty"`
	Fields  []string       `json:"fields,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// OK builds a successful result.
func OK(payload map[string]any) ToolResult {
	if payload == nil {
		payload = map[string]any{}
	}
	return ToolResult{OK: true, Payload: payload}
}

// Fail builds a failed result with the given error code.
func Fail(code, message string) ToolResult {
	return ToolResult{Err: &ToolError{Code: code, Message: message}}
}

// FailWith builds a failed result from a fully populated error.
func FailWith(err *ToolError) ToolResult {
	if err == nil {
		err = &ToolError{Code: "UNKNOWN"}
	}
	return ToolResult{Err: err}
}

// MarshalJSON renders the wire shape handed back to the model:
// {"ok":true, ...payload} or {"ok":false, "error":{...}}.
func (r ToolResult) MarshalJSON() ([]byte, error) {
	out := map[string]any{"ok": r.OK}
	if r.OK {
		for k, v := range r.Payload {
			if k != "ok" {
				out[k] = v
			}
		}
	} else {
		e := r.Err
		if e == nil {
			e = &ToolError{Code: "UNKNOWN"}
		}
		out["error"] = e
	}
	return json.Marshal(out)
}

// Provider is one pluggable capability: a coarse business ability with its
// own tool namespace, per-turn tool specs, and tool execution.
//
// Implementations must be safe for concurrent use; the registry hands the
// same instance to every turn.
type Provider interface {
	// CapabilityID is the stable registry key (e.g., "tickets.create").
	CapabilityID() string

	// DisplayName is the human label shown inside the routing prompt.
	DisplayName() string

	// ToolNamespace is the prefix of this capability's target-scoped tool
	// names. Discovery tools may live outside the namespace.
	ToolNamespace() string

	// BannerChunk returns a one-line description of the capability for the
	// shared capabilities reference banner. May be empty.
	BannerChunk(ctx context.Context) string

	// ActorAddendum returns extra system-prompt policy injected only when
	// this capability is the turn's chosen one. Empty means none.
	ActorAddendum() string

	// ToolsSpec returns the tool specs for this turn only. Providers must
	// tolerate empty TargetIDs, typically by returning a discovery tool so
	// the turn is never dead-ended.
	ToolsSpec(ctx context.Context, tc TurnContext) ([]ToolSpec, error)

	// HandleToolCall executes exactly one tool invocation and always
	// returns a tagged result.
	HandleToolCall(ctx context.Context, sessionID, name string, args map[string]any) ToolResult
}

// TargetLister is implemented by providers whose capability has addressable
// targets. PickerTargets must be a cheap projection read; it runs every turn.
type TargetLister interface {
	PickerTargets(ctx context.Context) ([]Target, error)
}

// HintProvider is implemented by providers that contribute a routing
// heuristic. PickerHint must be pure and must never block.
type HintProvider interface {
	PickerHint(history []models.Message) Hint
}

// ToolForcer is implemented by providers that require a deterministic tool
// call (the controller forces, or synthesizes, the named tool).
type ToolForcer interface {
	ForceToolName() string
}
