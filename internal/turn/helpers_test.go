package turn

import (
	"context"
	"io"

	"github.com/atlasdesk/switchboard/internal/capability"
	"github.com/atlasdesk/switchboard/internal/llm"
	"github.com/atlasdesk/switchboard/internal/observability"
	"github.com/atlasdesk/switchboard/internal/sessions"
	"github.com/atlasdesk/switchboard/pkg/models"
)

// fakeClient replays scripted completions and records every request.
type fakeClient struct {
	requests []llm.CompletionRequest
	replies  []fakeReply
}

type fakeReply struct {
	completion *llm.Completion
	err        error
}

func (f *fakeClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		return &llm.Completion{}, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.completion, r.err
}

func textReply(text string) fakeReply {
	return fakeReply{completion: &llm.Completion{Text: text}}
}

func toolReply(id, name, args string) fakeReply {
	return fakeReply{completion: &llm.Completion{
		ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: args}},
	}}
}

// scriptProvider is a configurable capability for pipeline tests.
type scriptProvider struct {
	id       string
	display  string
	ns       string
	banner   string
	addendum string
	force    string
	targets  []capability.Target
	tools    []capability.ToolSpec
	toolsErr error
	hint     capability.Hint
	result   capability.ToolResult

	toolCalls   int
	gotToolName string
	gotArgs     map[string]any
	gotSession  string
}

func (p *scriptProvider) CapabilityID() string                    { return p.id }
func (p *scriptProvider) DisplayName() string                     { return p.display }
func (p *scriptProvider) ToolNamespace() string                   { return p.ns }
func (p *scriptProvider) BannerChunk(context.Context) string      { return p.banner }
func (p *scriptProvider) ActorAddendum() string                   { return p.addendum }
func (p *scriptProvider) PickerHint([]models.Message) capability.Hint { return p.hint }

func (p *scriptProvider) ForceToolName() string { return p.force }

func (p *scriptProvider) PickerTargets(context.Context) ([]capability.Target, error) {
	return p.targets, nil
}

func (p *scriptProvider) ToolsSpec(ctx context.Context, tc capability.TurnContext) ([]capability.ToolSpec, error) {
	return p.tools, p.toolsErr
}

func (p *scriptProvider) HandleToolCall(ctx context.Context, sessionID, name string, args map[string]any) capability.ToolResult {
	p.toolCalls++
	p.gotSession = sessionID
	p.gotToolName = name
	p.gotArgs = args
	if p.result.OK || p.result.Err != nil {
		return p.result
	}
	return capability.OK(map[string]any{"echo": name})
}

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

func newTestPicker(reg *capability.Registry, client llm.Client) *Picker {
	return NewPicker(reg, client, "picker-model", nil, quietLogger(), nil, nil)
}

func newTestController(reg *capability.Registry, client *fakeClient, store sessions.Store) *Controller {
	c, err := NewController(ControllerOptions{
		Registry:   reg,
		Picker:     newTestPicker(reg, client),
		Store:      store,
		Client:     client,
		ActorModel: "actor-model",
		Logger:     quietLogger(),
	})
	if err != nil {
		panic(err)
	}
	return c
}
