package kb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/atlasdesk/switchboard/internal/observability"
)

const (
	searchInstruction = "Use the internal knowledge base via file_search ONLY. " +
		"Do not use outside knowledge. If no relevant sources, say you don't have this info yet " +
		"and suggest what to upload. When you do answer, weave source titles naturally and end with 'Sources:'."

	assistantInstructions = "You answer using the file_search tool against the provided knowledge base. " +
		"Write concise, confident prose and weave source titles naturally into sentences. " +
		"End with a brief 'Sources:' list."

	emptyAnswerFallback = "Mình chưa có thông tin này trong tài liệu nội bộ. " +
		"Bạn có thể tải lên tài liệu liên quan để mình tra cứu giúp nhé."

	runPollInterval = time.Second
)

// OpenAIOptions configures the assistants-based searcher.
type OpenAIOptions struct {
	APIKey        string
	VectorStoreID string
	Model         string
	Timeout       time.Duration
}

// OpenAISearcher grounds answers on an OpenAI vector store through the
// assistants file-search tool. The assistant is created lazily on first use
// and reused for the process lifetime.
type OpenAISearcher struct {
	client        *openai.Client
	vectorStoreID string
	model         string
	timeout       time.Duration
	logger        *observability.Logger

	mu          sync.Mutex
	assistantID string
}

// NewOpenAISearcher wires the searcher. An empty vector store id is allowed
// at construction; lookups then fail with NO_VECTOR_STORE.
func NewOpenAISearcher(opts OpenAIOptions, logger *observability.Logger) *OpenAISearcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &OpenAISearcher{
		client:        openai.NewClient(opts.APIKey),
		vectorStoreID: opts.VectorStoreID,
		model:         opts.Model,
		timeout:       opts.Timeout,
		logger:        logger,
	}
}

// Answer runs one file-search lookup: guard the store, post the query to a
// fresh thread, poll the run, read the reply.
func (s *OpenAISearcher) Answer(ctx context.Context, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &SearchError{Code: CodeEmptyQuery}
	}
	if s.vectorStoreID == "" {
		return nil, &SearchError{
			Code: CodeNoVectorStore,
			Hint: "Create/link a vector store and upload docs first.",
		}
	}

	// An empty store would let the model answer from world knowledge.
	files, err := s.client.ListVectorStoreFiles(ctx, s.vectorStoreID, openai.Pagination{})
	if err != nil {
		return nil, &SearchError{Code: CodeSearchFailed, Err: fmt.Errorf("list store files: %w", err)}
	}
	if len(files.VectorStoreFiles) == 0 {
		return nil, &SearchError{Code: CodeEmptyStore, Hint: "The linked vector store has no files."}
	}

	assistantID, err := s.ensureAssistant(ctx)
	if err != nil {
		return nil, &SearchError{Code: CodeSearchFailed, Err: err}
	}

	thread, err := s.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return nil, &SearchError{Code: CodeSearchFailed, Err: fmt.Errorf("create thread: %w", err)}
	}
	_, err = s.client.CreateMessage(ctx, thread.ID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: searchInstruction + "\n\nQuestion: " + query,
	})
	if err != nil {
		return nil, &SearchError{Code: CodeSearchFailed, Err: fmt.Errorf("post query: %w", err)}
	}

	run, err := s.client.CreateRun(ctx, thread.ID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return nil, &SearchError{Code: CodeSearchFailed, Err: fmt.Errorf("start run: %w", err)}
	}
	if err := s.waitForRun(ctx, thread.ID, run.ID); err != nil {
		return nil, &SearchError{Code: CodeSearchFailed, Err: err}
	}

	text, err := s.latestAssistantText(ctx, thread.ID)
	if err != nil {
		return nil, &SearchError{Code: CodeSearchFailed, Err: err}
	}
	if text == "" {
		text = emptyAnswerFallback
	}
	return &Answer{ReplyMarkdown: text, VectorStoreID: s.vectorStoreID}, nil
}

func (s *OpenAISearcher) ensureAssistant(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assistantID != "" {
		return s.assistantID, nil
	}

	name := "info.search"
	instructions := assistantInstructions
	assistant, err := s.client.CreateAssistant(ctx, openai.AssistantRequest{
		Name:         &name,
		Instructions: &instructions,
		Model:        s.model,
		Tools:        []openai.AssistantTool{{Type: openai.AssistantToolTypeFileSearch}},
		ToolResources: &openai.AssistantToolResource{
			FileSearch: &openai.AssistantToolFileSearch{VectorStoreIDs: []string{s.vectorStoreID}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	s.assistantID = assistant.ID
	s.logger.Info(ctx, "kb assistant created", "assistant_id", assistant.ID)
	return assistant.ID, nil
}

func (s *OpenAISearcher) waitForRun(ctx context.Context, threadID, runID string) error {
	deadline := time.Now().Add(s.timeout)
	for {
		run, err := s.client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return fmt.Errorf("poll run: %w", err)
		}
		switch run.Status {
		case openai.RunStatusCompleted:
			return nil
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired:
			return fmt.Errorf("run ended with status %s", run.Status)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("run timed out after %s", s.timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(runPollInterval):
		}
	}
}

func (s *OpenAISearcher) latestAssistantText(ctx context.Context, threadID string) (string, error) {
	limit := 1
	order := "desc"
	msgs, err := s.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	if len(msgs.Messages) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, part := range msgs.Messages[0].Content {
		if part.Text != nil {
			b.WriteString(part.Text.Value)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
