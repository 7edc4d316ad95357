package capability

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/atlasdesk/switchboard/pkg/models"
)

// Continuation expresses a provider's stance on keeping the current flow.
type Continuation string

const (
	ContinuationPrefer  Continuation = "prefer"
	ContinuationNeutral Continuation = "neutral"
	ContinuationForbid  Continuation = "forbid"
)

// Hint is a provider's cheap, deterministic routing signal for the current
// conversation tail. The zero value is a neutral no-signal hint.
type Hint struct {
	CapabilityID string
	ScoreBump    float64
	KeywordsAny  []string
	NegativeAny  []string
	Continuation Continuation
	InProgress   bool
	EndMarkers   []string
}

// Scoring knobs for the heuristic aggregator.
const (
	hintAlpha = 0.25 // positive keyword present in the tail
	hintBeta  = 0.35 // negative keyword present in the tail
	hintGamma = 0.8  // flow in progress and continuation preferred

	hintTailMessages = 4
)

// Suggestion is the aggregator's soft prior: the capability whose heuristic
// scored highest. An empty CapabilityID means no provider expressed interest.
type Suggestion struct {
	CapabilityID string
	Score        float64
	Scored       []ScoredHint
}

// ScoredHint pairs a provider hint with its computed score.
type ScoredHint struct {
	Hint  Hint
	Score float64
}

// SuggestCapability scores every registered provider's hint against the last
// few history messages and returns the best-scoring capability. A provider
// whose hint call panics is excluded; the suggestion is empty when the top
// score is not positive, so a provider that merely failed to lose never
// becomes a prior.
func SuggestCapability(reg *Registry, history []models.Message, logger *slog.Logger) Suggestion {
	if logger == nil {
		logger = slog.Default()
	}
	tail := historyTail(history, hintTailMessages)

	var scored []ScoredHint
	for _, p := range reg.All() {
		hinter, ok := p.(HintProvider)
		if !ok {
			continue
		}
		h, ok := safeHint(hinter, history, logger)
		if !ok {
			continue
		}
		if h.CapabilityID == "" {
			h.CapabilityID = p.CapabilityID()
		}
		scored = append(scored, ScoredHint{Hint: h, Score: scoreHint(h, tail)})
	}
	if len(scored) == 0 {
		return Suggestion{}
	}

	// Stable sort: exact ties keep registry enumeration order.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	top := scored[0]
	if top.Score <= 0 {
		return Suggestion{Scored: scored}
	}
	return Suggestion{CapabilityID: top.Hint.CapabilityID, Score: top.Score, Scored: scored}
}

func safeHint(hinter HintProvider, history []models.Message, logger *slog.Logger) (h Hint, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("picker hint panicked, provider excluded from scoring", "panic", rec)
			ok = false
		}
	}()
	return hinter.PickerHint(history), true
}

func scoreHint(h Hint, tail string) float64 {
	score := h.ScoreBump
	if anyFoldedSubstring(tail, h.KeywordsAny) {
		score += hintAlpha
	}
	if anyFoldedSubstring(tail, h.NegativeAny) {
		score -= hintBeta
	}
	if h.InProgress && h.Continuation == ContinuationPrefer {
		score += hintGamma
	}
	return score
}

func anyFoldedSubstring(tail string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(tail, Fold(kw)) {
			return true
		}
	}
	return false
}

func historyTail(history []models.Message, n int) string {
	start := len(history) - n
	if start < 0 {
		start = 0
	}
	parts := make([]string, 0, n)
	for _, m := range history[start:] {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return Fold(strings.Join(parts, " "))
}
