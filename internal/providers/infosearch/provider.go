// Package infosearch implements the knowledge-base answering capability.
// It is KB-only: the controller forces its single tool so the actor can
// never answer factual questions from world knowledge.
package infosearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/atlasdesk/switchboard/internal/capability"
	"github.com/atlasdesk/switchboard/internal/kb"
	"github.com/atlasdesk/switchboard/internal/observability"
	"github.com/atlasdesk/switchboard/pkg/models"
)

const (
	// CapabilityID is the registry key for knowledge-base answering.
	CapabilityID = "info.search"

	// ToolNamespace prefixes this capability's tool names.
	ToolNamespace = "info_search__"

	// AnswerToolName is the single, forced lookup tool.
	AnswerToolName = ToolNamespace + "answer"
)

var (
	positiveKeywords = []string{
		"tra cứu", "tìm kiếm", "tìm", "search", "thông tin", "faq",
		"policy", "quy định", "hướng dẫn", "document", "tài liệu", "văn bản",
		"kb", "knowledge", "file", "pdf", "company", "công ty", "dịch vụ",
	}
	negativeKeywords = []string{"tạo phiếu", "tạo vé", "create ticket", "mở ticket"}
)

// answerArgs is the lookup tool's argument shape; its JSON schema is
// reflected from this struct.
type answerArgs struct {
	Query string `json:"query" jsonschema:"description=The user's question needing KB lookup"`
}

// Provider exposes KB search as a forced-tool capability.
type Provider struct {
	searcher kb.Searcher
	logger   *observability.Logger
	params   map[string]any
}

// NewProvider wires the capability over the given searcher.
func NewProvider(searcher kb.Searcher, logger *observability.Logger) *Provider {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Provider{searcher: searcher, logger: logger, params: reflectAnswerParams()}
}

func (p *Provider) CapabilityID() string  { return CapabilityID }
func (p *Provider) DisplayName() string   { return "Tra cứu thông tin" }
func (p *Provider) ToolNamespace() string { return ToolNamespace }

func (p *Provider) BannerChunk(context.Context) string {
	return "info.search (strictly answer from the internal KB, no outside knowledge, with natural citations)"
}

// ActorAddendum injects the KB-only policy whenever this capability is the
// turn's chosen one.
func (p *Provider) ActorAddendum() string {
	return "KB-ONLY POLICY:\n" +
		"- You must NOT use outside knowledge. Do not guess. Do not rely on world knowledge.\n" +
		"- For factual/policy/document/company-info questions, you MUST call the tool `" + AnswerToolName + "` BEFORE attempting any answer.\n" +
		"- If the KB returns no relevant sources, reply: you don't have this info yet and suggest what to upload or where to look.\n"
}

// ForceToolName makes the controller force (or synthesize) the lookup.
func (p *Provider) ForceToolName() string { return AnswerToolName }

func (p *Provider) ToolsSpec(ctx context.Context, tc capability.TurnContext) ([]capability.ToolSpec, error) {
	return []capability.ToolSpec{{
		Name:        AnswerToolName,
		Description: "Search the internal knowledge base and draft an answer with natural citations.",
		Parameters:  p.params,
	}}, nil
}

func (p *Provider) HandleToolCall(ctx context.Context, sessionID, name string, args map[string]any) capability.ToolResult {
	if name != AnswerToolName {
		return capability.Fail("UNKNOWN_TOOL", fmt.Sprintf("no such tool %q", name))
	}
	query, _ := args["query"].(string)

	answer, err := p.searcher.Answer(ctx, query)
	if err != nil {
		var serr *kb.SearchError
		if errors.As(err, &serr) {
			return capability.FailWith(&capability.ToolError{
				Code:    serr.Code,
				Message: serr.Hint,
			})
		}
		p.logger.Error(ctx, "kb lookup failed", "error", err)
		return capability.Fail(kb.CodeSearchFailed, "knowledge base lookup failed")
	}
	return capability.OK(map[string]any{
		"reply_markdown":  answer.ReplyMarkdown,
		"vector_store_id": answer.VectorStoreID,
	})
}

// PickerHint nudges routing toward KB search for factual or document-style
// questions while leaving the ticket flow untouched.
func (p *Provider) PickerHint(history []models.Message) capability.Hint {
	tail := foldedTail(history, 3)
	bump := 0.0
	if containsAnyFolded(tail, positiveKeywords) && !containsAnyFolded(tail, negativeKeywords) {
		bump = 0.85
	}
	return capability.Hint{
		CapabilityID: CapabilityID,
		ScoreBump:    bump,
		KeywordsAny:  positiveKeywords,
		NegativeAny:  negativeKeywords,
		Continuation: capability.ContinuationNeutral,
	}
}

// reflectAnswerParams derives the tool's JSON schema from answerArgs. The
// literal fallback covers the (unreachable in practice) reflection failure.
func reflectAnswerParams() map[string]any {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&answerArgs{})
	raw, err := json.Marshal(schema)
	if err == nil {
		var params map[string]any
		if json.Unmarshal(raw, &params) == nil {
			delete(params, "$schema")
			delete(params, "$id")
			return params
		}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The user's question needing KB lookup",
			},
		},
		"required":             []any{"query"},
		"additionalProperties": false,
	}
}

func foldedTail(history []models.Message, n int) string {
	start := len(history) - n
	if start < 0 {
		start = 0
	}
	var parts []string
	for _, m := range history[start:] {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return capability.Fold(strings.Join(parts, " "))
}

func containsAnyFolded(tail string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(tail, capability.Fold(kw)) {
			return true
		}
	}
	return false
}
