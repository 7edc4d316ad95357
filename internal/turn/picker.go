package turn

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/atlasdesk/switchboard/internal/capability"
	"github.com/atlasdesk/switchboard/internal/llm"
	"github.com/atlasdesk/switchboard/internal/observability"
	"github.com/atlasdesk/switchboard/internal/prompts"
	"github.com/atlasdesk/switchboard/pkg/models"
)

const pickerSystem = "You are a concise tool-picker. Your output must be in English. Output STRICT JSON only."

const pickerBodyTemplate = `{PICKER_HEADER}

You can decide among the following business capabilities (only choose from this list):
{CAPABILITIES_BLOCK}

Each capability may have available specs (by **display name**). If you choose a capability with specs,
select the **one best matching display name** from its list. If no clear task is present, return null.

Specs per capability (by display name):
{TARGETS_BLOCK}

Decision rules:
1) If the LATEST USER message asks to list/show which types are supported, choose a capability but return an EMPTY target_names list.
2) Prefer continuity only if the user is clearly providing fields to complete a ticket.
3) If no ongoing flow and the user asks to create a specific ticket, choose that ticket by its display name.
4) If out-of-scope, return null.
5) At the first user message, return null.

Return STRICT JSON only (no prose/markdown/fences):
{
  "capability": "<capability_id>" | null,
  "target_names": ["<one_display_name_or_empty>"],
  "confidence": 0.0,
  "reason": "<=12 words",
  "fallback_question": "clarifying question"
}

Conversation transcript (oldest -> newest):
{TRANSCRIPT}
`

const defaultFallbackQuestion = "Bạn muốn làm gì? (ví dụ: tạo phiếu, tra cứu)"

// List/enumerate intent patterns, matched against the diacritic-folded
// latest user message. A listing question must never be routed at one
// specific target.
var listIntentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bliet ke\b`),
	regexp.MustCompile(`\bdanh sach\b`),
	regexp.MustCompile(`\b(cac|toan bo) (loai|ve)\b`),
	regexp.MustCompile(`\bnhung ve nao\b`),
	regexp.MustCompile(`\bco (nhung )?(ve|loai) (nao|gi)`),
	regexp.MustCompile(`\b(list|show all|what.*(types|tickets).*(have|support))\b`),
}

// PickResult is the routing decision for one turn.
type PickResult struct {
	Capability       string   `json:"capability"`
	TargetIDs        []string `json:"target_ids"`
	TargetNames      []string `json:"selected_target_names"`
	Confidence       float64  `json:"confidence"`
	Reason           string   `json:"reason"`
	FallbackQuestion string   `json:"fallback_question"`
}

// Picker runs the LLM-backed capability classification: one plain completion
// per turn, grounded exclusively on the live catalog so the model cannot
// invent capabilities or targets.
type Picker struct {
	registry *capability.Registry
	client   llm.Client
	model    string
	prompts  *prompts.Store
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// NewPicker wires the picker's dependencies.
func NewPicker(reg *capability.Registry, client llm.Client, model string, store *prompts.Store,
	logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Picker {
	return &Picker{
		registry: reg,
		client:   client,
		model:    model,
		prompts:  store,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
	}
}

// PickerPrompt is the rendered classification prompt plus the catalog it was
// built from, exposed for the debug endpoint.
type PickerPrompt struct {
	Prompt  string
	Catalog *Catalog
}

// BuildPrompt renders the classification prompt over a fresh catalog.
func (p *Picker) BuildPrompt(ctx context.Context, history []models.Message) *PickerPrompt {
	catalog := BuildCatalog(ctx, p.registry, p.logger.Slog())
	header := ""
	if p.prompts != nil {
		header = p.prompts.PickerHeader()
	}
	prompt := pickerBodyTemplate
	prompt = strings.Replace(prompt, "{PICKER_HEADER}", header, 1)
	prompt = strings.Replace(prompt, "{CAPABILITIES_BLOCK}", catalog.CapabilitiesBlock(), 1)
	prompt = strings.Replace(prompt, "{TARGETS_BLOCK}", catalog.TargetsBlock(), 1)
	prompt = strings.Replace(prompt, "{TRANSCRIPT}", transcript(history), 1)
	return &PickerPrompt{Prompt: prompt, Catalog: catalog}
}

// Pick classifies the conversation into at most one capability and one
// resolved target id. Transport failures propagate; a malformed model reply
// degrades to a neutral result instead.
func (p *Picker) Pick(ctx context.Context, history []models.Message) (PickResult, *Catalog, error) {
	ctx, span := p.tracer.Start(ctx, "picker.pick")
	var spanErr error
	defer func() { observability.End(span, spanErr) }()

	built := p.BuildPrompt(ctx, history)

	start := time.Now()
	completion, err := p.client.Complete(ctx, llm.CompletionRequest{
		Model: p.model,
		Messages: []llm.Message{
			{Role: "system", Content: pickerSystem},
			{Role: "user", Content: built.Prompt},
		},
	})
	p.observeCall("picker", start, completion, err)
	if err != nil {
		spanErr = err
		return PickResult{}, built.Catalog, err
	}

	result := p.parse(completion.Text, history, built.Catalog)
	span.SetAttributes(
		attribute.String("picker.capability", result.Capability),
		attribute.Float64("picker.confidence", result.Confidence),
	)
	if p.metrics != nil {
		p.metrics.RecordPickerOutcome(result.Capability)
	}
	return result, built.Catalog, nil
}

func (p *Picker) parse(raw string, history []models.Message, catalog *Catalog) PickResult {
	var data struct {
		Capability       *string  `json:"capability"`
		TargetNames      []string `json:"target_names"`
		Confidence       *float64 `json:"confidence"`
		Reason           string   `json:"reason"`
		FallbackQuestion string   `json:"fallback_question"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &data); err != nil {
		p.logger.Warn(context.Background(), "picker reply unparseable, neutral pick",
			"error", err, "preview", preview(raw, 120))
		return PickResult{
			Confidence:       0.0,
			Reason:           "parse failed",
			FallbackQuestion: defaultFallbackQuestion,
		}
	}

	capID := ""
	if data.Capability != nil {
		capID = strings.TrimSpace(*data.Capability)
	}
	names := data.TargetNames
	if len(names) > 1 {
		names = names[:1]
	}

	// Listing intent overrides whatever targets the model proposed.
	if isListIntent(history) {
		names = nil
	}

	targetIDs := catalog.Resolve(capID, names)
	if capID == "" {
		targetIDs = nil
	}

	confidence := 0.0
	if data.Confidence != nil {
		confidence = *data.Confidence
	} else if capID != "" {
		confidence = 1.0
	}

	fallback := strings.TrimSpace(data.FallbackQuestion)
	if fallback == "" {
		fallback = defaultFallbackQuestion
	}

	return PickResult{
		Capability:       capID,
		TargetIDs:        targetIDs,
		TargetNames:      names,
		Confidence:       confidence,
		Reason:           data.Reason,
		FallbackQuestion: fallback,
	}
}

func (p *Picker) observeCall(pass string, start time.Time, completion *llm.Completion, err error) {
	if p.metrics == nil {
		return
	}
	p.metrics.LLMCallDuration.WithLabelValues(pass, p.model).Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.LLMCallCounter.WithLabelValues(pass, p.model, string(llm.Classify(err))).Inc()
		return
	}
	p.metrics.LLMCallCounter.WithLabelValues(pass, p.model, "success").Inc()
	p.metrics.LLMTokens.WithLabelValues(pass, p.model, "prompt").Add(float64(completion.Usage.PromptTokens))
	p.metrics.LLMTokens.WithLabelValues(pass, p.model, "completion").Add(float64(completion.Usage.CompletionTokens))
}

// transcript renders history oldest to newest with role labels, coercing
// unexpected roles to user and dropping empty rows.
func transcript(history []models.Message) string {
	var b strings.Builder
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		role := m.Role
		switch role {
		case models.RoleUser, models.RoleAssistant, models.RoleSystem, models.RoleTool:
		default:
			role = models.RoleUser
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.ToUpper(string(role)))
		b.WriteString(": ")
		b.WriteString(content)
	}
	return b.String()
}

func isListIntent(history []models.Message) bool {
	text := capability.Fold(latestUserText(history))
	for _, rx := range listIntentPatterns {
		if rx.MatchString(text) {
			return true
		}
	}
	return false
}

func latestUserText(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n]
	}
	return s
}
