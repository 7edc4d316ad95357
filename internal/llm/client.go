package llm

import "context"

// Client is the single-call completion seam. Implementations wrap one
// vendor's chat API behind a non-streaming request/response pair; the turn
// engine never touches vendor types directly.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Message is one chat message in a completion request.
type Message struct {
	Role    string
	Content string

	// ToolCalls is set on assistant messages that requested tool execution.
	ToolCalls []ToolCall

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string
}

// ToolCall is a model-requested tool invocation. Arguments is the raw JSON
// payload exactly as the vendor returned it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Tool declares one callable function for a completion request. Parameters
// is a JSON-Schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolChoiceMode selects the tool-choice policy for a call.
type ToolChoiceMode string

const (
	// ToolChoiceAuto lets the model decide freely among the offered tools.
	ToolChoiceAuto ToolChoiceMode = "auto"
	// ToolChoiceNone forbids tool calls for this completion.
	ToolChoiceNone ToolChoiceMode = "none"
	// ToolChoiceForced compels the model to call the named tool.
	ToolChoiceForced ToolChoiceMode = "forced"
)

// ToolChoice is the tool-choice directive. The zero value means "no
// directive" and is only valid when no tools are offered.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string // required when Mode == ToolChoiceForced
}

// CompletionRequest is one vendor-neutral chat completion call.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Tools       []Tool
	ToolChoice  ToolChoice
	Temperature float32
	MaxTokens   int
}

// Usage carries the vendor's token counters for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is one assistant response: text, zero or more tool-call
// requests, or both.
type Completion struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}
