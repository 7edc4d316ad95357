package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/atlasdesk/switchboard/internal/capability"
	"github.com/atlasdesk/switchboard/internal/llm"
	"github.com/atlasdesk/switchboard/internal/notify"
	"github.com/atlasdesk/switchboard/internal/observability"
	"github.com/atlasdesk/switchboard/internal/prompts"
	"github.com/atlasdesk/switchboard/internal/sessions"
	"github.com/atlasdesk/switchboard/pkg/models"
)

// ErrActorModelMissing is returned when the controller is built without an
// actor model; the service refuses to start rather than limp through turns.
var ErrActorModelMissing = errors.New("actor model not configured")

const synthesizedCallID = "forced_1"

// Controller drives one conversational turn end to end: routing pass, tool
// spec collection, actor completion, tool execution, grounded follow-up
// completion, suggestion extraction, persistence.
type Controller struct {
	registry   *capability.Registry
	picker     *Picker
	store      sessions.Store
	client     llm.Client
	actorModel string
	prompts    *prompts.Store
	notifier   notify.Notifier
	events     EventSink
	logger     *observability.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
}

// ControllerOptions wires a Controller.
type ControllerOptions struct {
	Registry   *capability.Registry
	Picker     *Picker
	Store      sessions.Store
	Client     llm.Client
	ActorModel string
	Prompts    *prompts.Store
	Notifier   notify.Notifier
	Events     EventSink
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
}

// NewController validates and assembles the turn controller.
func NewController(opts ControllerOptions) (*Controller, error) {
	if strings.TrimSpace(opts.ActorModel) == "" {
		return nil, ErrActorModelMissing
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Events == nil {
		opts.Events = NopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Controller{
		registry:   opts.Registry,
		picker:     opts.Picker,
		store:      opts.Store,
		client:     opts.Client,
		actorModel: opts.ActorModel,
		prompts:    opts.Prompts,
		notifier:   opts.Notifier,
		events:     opts.Events,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
	}, nil
}

// RunTurn processes one user message and returns the assistant's reply.
// An unknown session id starts a fresh session so a client can always talk.
// LLM transport failures abort the turn and propagate; everything downstream
// of the first completion degrades instead.
func (c *Controller) RunTurn(ctx context.Context, sessionID, userText string) (result *models.TurnResult, err error) {
	ctx, span := c.tracer.Start(ctx, "turn.run", attribute.String("session_id", sessionID))
	start := time.Now()
	defer func() {
		observability.End(span, err)
		if c.metrics != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			c.metrics.TurnCounter.WithLabelValues(outcome).Inc()
			c.metrics.TurnDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			c.notifyAsync(notify.Event{
				Kind:      "turn.error",
				SessionID: sessionID,
				Title:     "Turn failed",
				Text:      err.Error(),
			})
		}
	}()

	session, gerr := c.store.GetSession(ctx, sessionID)
	if gerr != nil {
		if !errors.Is(gerr, sessions.ErrNotFound) {
			return nil, fmt.Errorf("load session: %w", gerr)
		}
		session, gerr = c.store.CreateSession(ctx, "")
		if gerr != nil {
			return nil, fmt.Errorf("create session: %w", gerr)
		}
	}
	sessionID = session.ID
	ctx = context.WithValue(ctx, observability.SessionIDKey, sessionID)

	userMsg := &models.Message{SessionID: sessionID, Role: models.RoleUser, Content: userText}
	if err := c.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	c.publishMessage(userMsg)

	history, herr := c.store.History(ctx, sessionID)
	if herr != nil {
		return nil, fmt.Errorf("load history: %w", herr)
	}
	routable := pickerHistory(history)

	// Routing pass. The heuristic prior only applies when the model abstains.
	suggestion := capability.SuggestCapability(c.registry, routable, c.logger.Slog())
	pick, _, perr := c.picker.Pick(ctx, routable)
	if perr != nil {
		return nil, fmt.Errorf("picker: %w", perr)
	}
	capabilityID := pick.Capability
	if capabilityID == "" && suggestion.CapabilityID != "" {
		capabilityID = suggestion.CapabilityID
		c.logger.Info(ctx, "picker abstained, using heuristic prior",
			"capability", capabilityID, "score", suggestion.Score)
	}

	var (
		provider capability.Provider
		tools    []capability.ToolSpec
		addendum string
		force    string
	)
	if capabilityID != "" {
		provider = c.registry.Get(capabilityID)
	}
	if provider != nil {
		// Ask for tools even with no resolved targets; discovery tools keep
		// the turn from dead-ending.
		tools = c.safeToolsSpec(ctx, provider, capability.TurnContext{
			SessionID: sessionID,
			TargetIDs: pick.TargetIDs,
			History:   routable,
		})
		addendum = provider.ActorAddendum()
		if forcer, ok := provider.(capability.ToolForcer); ok {
			force = forcer.ForceToolName()
		}
		c.logger.Info(ctx, "picker decision",
			"capability", capabilityID, "targets", pick.TargetIDs, "confidence", pick.Confidence)
	} else {
		c.logger.Info(ctx, "picker decision: no capability", "confidence", pick.Confidence)
	}

	fallback := ""
	if len(tools) == 0 {
		fallback = pick.FallbackQuestion
	}
	systemMsg := ComposeSystemMessage(ctx, c.registry, c.prompts, tools, addendum, fallback)
	actorMsgs := actorMessages(systemMsg, history)

	choice := llm.ToolChoice{}
	if len(tools) > 0 {
		choice = llm.ToolChoice{Mode: llm.ToolChoiceAuto}
		if force != "" && hasTool(tools, force) {
			choice = llm.ToolChoice{Mode: llm.ToolChoiceForced, Name: force}
		}
	}

	first, ferr := c.completeActor(ctx, "actor_1", actorMsgs, tools, choice)
	if ferr != nil {
		return nil, fmt.Errorf("actor call 1: %w", ferr)
	}

	// Forced-tool capability, but the model answered in prose anyway: run the
	// tool ourselves so the reply stays grounded.
	if len(first.ToolCalls) == 0 && provider != nil && force != "" && hasTool(tools, force) {
		if res, serr := c.synthesizedTurn(ctx, sessionID, provider, force, userText, actorMsgs, tools); serr == nil {
			return res, nil
		} else {
			c.logger.Error(ctx, "synthesized tool path failed, replying with plain text", "error", serr)
		}
	}

	if len(first.ToolCalls) == 0 {
		return c.finishTurn(ctx, sessionID, first.Text)
	}

	// One tool per turn. Extra calls in the same completion are dropped.
	tc := first.ToolCalls[0]
	args := map[string]any{}
	if tc.Arguments != "" {
		if uerr := json.Unmarshal([]byte(tc.Arguments), &args); uerr != nil {
			c.logger.Warn(ctx, "malformed tool arguments, executing with empty args",
				"tool", tc.Name, "error", uerr)
			args = map[string]any{}
		}
	}

	var toolResult capability.ToolResult
	if provider != nil {
		toolResult = c.executeToolWithOutcome(ctx, provider, sessionID, tc.Name, args, "ok")
	} else {
		toolResult = capability.Fail("UNKNOWN_CAPABILITY", "no provider for this turn")
	}

	argsJSON, _ := json.Marshal(args)
	resultJSON, merr := json.Marshal(toolResult)
	if merr != nil {
		resultJSON = []byte(`{"ok":false,"error":{"code":"RESULT_ENCODING"}}`)
	}
	followMsgs := append(append([]llm.Message{}, actorMsgs...),
		llm.Message{
			Role:      "assistant",
			ToolCalls: []llm.ToolCall{{ID: tc.ID, Name: tc.Name, Arguments: string(argsJSON)}},
		},
		llm.Message{Role: "tool", ToolCallID: tc.ID, Content: string(resultJSON)},
	)

	second, serr := c.completeActor(ctx, "actor_2", followMsgs, tools, llm.ToolChoice{Mode: llm.ToolChoiceNone})
	if serr != nil {
		return nil, fmt.Errorf("actor call 2: %w", serr)
	}

	c.recordBreadcrumb(ctx, sessionID, provider, tc.Name, toolResult)
	return c.finishTurn(ctx, sessionID, second.Text)
}

// synthesizedTurn runs the forced tool with {"query": userText} and completes
// a second pass as if the model had called it.
func (c *Controller) synthesizedTurn(ctx context.Context, sessionID string, provider capability.Provider,
	toolName, userText string, actorMsgs []llm.Message, tools []capability.ToolSpec) (*models.TurnResult, error) {

	args := map[string]any{"query": userText}
	c.logger.Info(ctx, "synthesizing forced tool call", "tool", toolName)

	result := c.executeToolWithOutcome(ctx, provider, sessionID, toolName, args, "synthesized")
	argsJSON, _ := json.Marshal(args)
	resultJSON, merr := json.Marshal(result)
	if merr != nil {
		return nil, fmt.Errorf("encode tool result: %w", merr)
	}

	followMsgs := append(append([]llm.Message{}, actorMsgs...),
		llm.Message{
			Role:      "assistant",
			ToolCalls: []llm.ToolCall{{ID: synthesizedCallID, Name: toolName, Arguments: string(argsJSON)}},
		},
		llm.Message{Role: "tool", ToolCallID: synthesizedCallID, Content: string(resultJSON)},
	)

	second, err := c.completeActor(ctx, "actor_2", followMsgs, tools, llm.ToolChoice{Mode: llm.ToolChoiceNone})
	if err != nil {
		return nil, err
	}
	return c.finishTurn(ctx, sessionID, second.Text)
}

// finishTurn extracts suggestions, persists the assistant reply, and bumps
// session activity.
func (c *Controller) finishTurn(ctx context.Context, sessionID, rawText string) (*models.TurnResult, error) {
	clean, suggestions := ExtractSuggestions(strings.TrimSpace(rawText))

	assistantMsg := &models.Message{SessionID: sessionID, Role: models.RoleAssistant, Content: clean}
	if err := c.store.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}
	if err := c.store.TouchSession(ctx, sessionID); err != nil {
		c.logger.Warn(ctx, "touch session failed", "error", err)
	}
	c.publishMessage(assistantMsg)

	return &models.TurnResult{
		MessageID:   assistantMsg.ID,
		SessionID:   sessionID,
		Text:        clean,
		Suggestions: suggestions,
	}, nil
}

func (c *Controller) executeToolWithOutcome(ctx context.Context, provider capability.Provider,
	sessionID, name string, args map[string]any, okOutcome string) capability.ToolResult {

	ctx, span := c.tracer.Start(ctx, "tool.execute",
		attribute.String("tool", name), attribute.String("capability", provider.CapabilityID()))
	start := time.Now()

	result := safeHandleToolCall(ctx, provider, sessionID, name, args)

	var spanErr error
	outcome := okOutcome
	if !result.OK {
		outcome = "error"
		if result.Err != nil {
			spanErr = fmt.Errorf("tool %s: %s", name, result.Err.Code)
		}
	}
	observability.End(span, spanErr)

	if c.metrics != nil {
		c.metrics.ToolExecutions.WithLabelValues(provider.CapabilityID(), name, outcome).Inc()
		c.metrics.ToolDuration.WithLabelValues(provider.CapabilityID()).Observe(time.Since(start).Seconds())
	}
	if result.OK {
		c.logger.Info(ctx, "tool executed", "tool", name)
	} else if result.Err != nil {
		c.logger.Info(ctx, "tool returned error", "tool", name, "code", result.Err.Code)
	}
	return result
}

func safeHandleToolCall(ctx context.Context, provider capability.Provider,
	sessionID, name string, args map[string]any) (result capability.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = capability.Fail("TOOL_PANIC", fmt.Sprintf("%v", rec))
		}
	}()
	return provider.HandleToolCall(ctx, sessionID, name, args)
}

// recordBreadcrumb appends a system row after a successful tool action that
// produced a trackable artifact; the routing pass reads it on later turns to
// detect an in-progress flow.
func (c *Controller) recordBreadcrumb(ctx context.Context, sessionID string,
	provider capability.Provider, toolName string, result capability.ToolResult) {

	if provider == nil || !result.OK {
		return
	}
	shortID, ok := result.Payload["short_id"]
	if !ok {
		return
	}
	kind := ""
	if v, ok := result.Payload["type"].(string); ok && v != "" {
		kind = v
	} else if targetID, ok := capability.DecodeToolName(provider.ToolNamespace(), toolName); ok {
		kind = targetID
	}
	if kind == "" {
		kind = "unknown"
	}

	ns := strings.TrimSuffix(provider.ToolNamespace(), "__")
	crumb := &models.Message{
		SessionID: sessionID,
		Role:      models.RoleSystem,
		Content:   fmt.Sprintf("%s%s short_id=%v type=%s", models.BreadcrumbPrefix, ns, shortID, kind),
	}
	if err := c.store.AppendMessage(ctx, crumb); err != nil {
		c.logger.Warn(ctx, "breadcrumb append failed", "error", err)
	}

	c.notifyAsync(notify.Event{
		Kind:      "ticket.created",
		SessionID: sessionID,
		Title:     "New ticket",
		Text:      fmt.Sprintf("short_id=%v", shortID),
		Fields:    map[string]string{"type": kind},
	})
}

func (c *Controller) completeActor(ctx context.Context, pass string, msgs []llm.Message,
	tools []capability.ToolSpec, choice llm.ToolChoice) (*llm.Completion, error) {

	req := llm.CompletionRequest{
		Model:      c.actorModel,
		Messages:   msgs,
		Tools:      llmTools(tools),
		ToolChoice: choice,
	}
	c.logger.Info(ctx, "actor call", "pass", pass, "model", c.actorModel,
		"tools", len(req.Tools), "tool_choice", string(choice.Mode))

	start := time.Now()
	completion, err := c.client.Complete(ctx, req)
	if c.metrics != nil {
		c.metrics.LLMCallDuration.WithLabelValues(pass, c.actorModel).Observe(time.Since(start).Seconds())
		if err != nil {
			c.metrics.LLMCallCounter.WithLabelValues(pass, c.actorModel, string(llm.Classify(err))).Inc()
		} else {
			c.metrics.LLMCallCounter.WithLabelValues(pass, c.actorModel, "success").Inc()
			c.metrics.LLMTokens.WithLabelValues(pass, c.actorModel, "prompt").Add(float64(completion.Usage.PromptTokens))
			c.metrics.LLMTokens.WithLabelValues(pass, c.actorModel, "completion").Add(float64(completion.Usage.CompletionTokens))
		}
	}
	if err == nil {
		c.logger.Info(ctx, "actor usage", "pass", pass,
			"prompt_tokens", completion.Usage.PromptTokens,
			"completion_tokens", completion.Usage.CompletionTokens)
	}
	return completion, err
}

func (c *Controller) safeToolsSpec(ctx context.Context, provider capability.Provider,
	tc capability.TurnContext) []capability.ToolSpec {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error(ctx, "tools spec panicked", "capability", provider.CapabilityID(), "panic", rec)
		}
	}()
	tools, err := provider.ToolsSpec(ctx, tc)
	if err != nil {
		c.logger.Error(ctx, "tools spec failed", "capability", provider.CapabilityID(), "error", err)
		return nil
	}
	return tools
}

func (c *Controller) publishMessage(msg *models.Message) {
	c.events.Publish(Event{Type: "message.created", Data: msg})
	c.events.Publish(Event{Type: "conversation.updated", Data: map[string]any{
		"session_id":      msg.SessionID,
		"last_message_at": msg.CreatedAt,
		"last_sender":     string(msg.Role),
	}})
}

func (c *Controller) notifyAsync(event notify.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.notifier.Notify(ctx, event); err != nil {
			c.logger.Warn(ctx, "notification failed", "kind", event.Kind, "error", err)
		}
	}()
}

func llmTools(tools []capability.ToolSpec) []llm.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]llm.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, llm.Tool{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return out
}

func hasTool(tools []capability.ToolSpec, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}
