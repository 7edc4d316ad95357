package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Client on top of the Anthropic messages API.
//
// Mapping notes relative to the neutral request shape:
//   - system messages are extracted into the request's System field;
//   - tool-role messages become user messages carrying tool_result blocks;
//   - assistant tool calls become tool_use content blocks.
type AnthropicClient struct {
	client    anthropic.Client
	timeout   time.Duration
	maxTokens int
}

// AnthropicOptions configures an Anthropic-backed client.
type AnthropicOptions struct {
	APIKey    string
	Timeout   time.Duration
	MaxTokens int // default for requests that do not set one
}

// NewAnthropicClient builds a client. An empty API key fails fast.
func NewAnthropicClient(opts AnthropicOptions) (*AnthropicClient, error) {
	if opts.APIKey == "" {
		return nil, ErrNotConfigured
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(opts.APIKey)),
		timeout:   opts.Timeout,
		maxTokens: maxTokens,
	}, nil
}

// Complete runs one messages API call.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	system, messages, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	if len(req.Tools) > 0 {
		tools, err := toAnthropicTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic completion: %w", err)
		}
		params.Tools = tools
		if choice, ok := toAnthropicToolChoice(req.ToolChoice); ok {
			params.ToolChoice = choice
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	out := &Completion{
		FinishReason: string(msg.StopReason),
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += b.Text
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: string(b.Input),
			})
		}
	}
	return out, nil
}

func toAnthropicMessages(messages []Message) (string, []anthropic.MessageParam, error) {
	var system string
	var out []anthropic.MessageParam

	for _, m := range messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if m.Role == "tool" {
			content = append(content, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
			out = append(out, anthropic.NewUserMessage(content...))
			continue
		}

		if m.Content != "" {
			content = append(content, anthropic.NewTextBlock(m.Content))
		}
		for _, tc := range m.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
				return "", nil, fmt.Errorf("invalid tool call arguments for %s: %w", tc.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return system, out, nil
}

func toAnthropicTools(tools []Tool) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		out = append(out, param)
	}
	return out, nil
}

func toAnthropicToolChoice(choice ToolChoice) (anthropic.ToolChoiceUnionParam, bool) {
	switch choice.Mode {
	case ToolChoiceAuto:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}, true
	case ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}, true
	case ToolChoiceForced:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name}}, true
	default:
		return anthropic.ToolChoiceUnionParam{}, false
	}
}
