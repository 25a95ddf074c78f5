// Package completion wraps an Assistants-style conversational engine:
// threads hold conversation context, answers are produced asynchronously
// and observed by polling run status.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

var (
	// ErrProviderUnavailable reports that the engine was unreachable or a
	// run ended in a non-answer terminal state.
	ErrProviderUnavailable = errors.New("completion provider unavailable")
	// ErrTimedOut reports that polling exhausted its attempt bound before
	// the run completed.
	ErrTimedOut = errors.New("completion timed out")
)

// Engine is the slice of the Assistants API this service consumes.
type Engine interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order, after, before, runID *string) (openai.MessagesList, error)
}

// Service submits queries to the engine and awaits their answers.
type Service struct {
	engine       Engine
	assistantID  string
	pollInterval time.Duration
	maxAttempts  int
	logger       *slog.Logger
}

// NewService builds a completion service for one assistant persona.
func NewService(log *slog.Logger, engine Engine, assistantID string, pollInterval time.Duration, maxAttempts int) *Service {
	if log == nil {
		log = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 4 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 30
	}
	return &Service{
		engine:       engine,
		assistantID:  assistantID,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		logger:       log.With(slog.String("service", "completion")),
	}
}

// NewOpenAIEngine builds the production engine client. baseURL may be empty
// for the provider's public endpoint.
func NewOpenAIEngine(apiKey, baseURL string) Engine {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
	return openai.NewClientWithConfig(cfg)
}

// NewThread creates a fresh conversation thread and returns its handle.
func (s *Service) NewThread(ctx context.Context) (string, error) {
	thread, err := s.engine.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("%w: create thread: %v", ErrProviderUnavailable, err)
	}
	return thread.ID, nil
}

// Ask submits query under threadID and polls until the run completes,
// returning the newest assistant message. Polling is bounded: exceeding the
// attempt budget surfaces ErrTimedOut, and ctx cancellation stops the loop
// promptly.
func (s *Service) Ask(ctx context.Context, threadID, query string) (string, error) {
	if _, err := s.engine.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: query,
	}); err != nil {
		return "", fmt.Errorf("%w: create message: %v", ErrProviderUnavailable, err)
	}

	run, err := s.engine.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: s.assistantID})
	if err != nil {
		return "", fmt.Errorf("%w: create run: %v", ErrProviderUnavailable, err)
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		run, err = s.engine.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			return "", fmt.Errorf("%w: retrieve run: %v", ErrProviderUnavailable, err)
		}
		switch run.Status {
		case openai.RunStatusCompleted:
			return s.latestAnswer(ctx, threadID)
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired, openai.RunStatusIncomplete:
			return "", fmt.Errorf("%w: run ended with status %s", ErrProviderUnavailable, run.Status)
		}
		s.logger.Debug("run still pending",
			slog.String("thread_id", threadID),
			slog.String("run_id", run.ID),
			slog.String("status", string(run.Status)),
			slog.Int("attempt", attempt+1),
		)
	}
	return "", fmt.Errorf("%w: run %s after %d polls", ErrTimedOut, run.ID, s.maxAttempts)
}

// latestAnswer extracts the newest assistant message. Message history is
// ordered most-recent-first.
func (s *Service) latestAnswer(ctx context.Context, threadID string) (string, error) {
	limit := 10
	list, err := s.engine.ListMessage(ctx, threadID, &limit, nil, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("%w: list messages: %v", ErrProviderUnavailable, err)
	}
	for _, msg := range list.Messages {
		if msg.Role != string(openai.ThreadMessageRoleAssistant) {
			continue
		}
		for _, part := range msg.Content {
			if part.Text != nil && strings.TrimSpace(part.Text.Value) != "" {
				return part.Text.Value, nil
			}
		}
	}
	return "", fmt.Errorf("%w: completed run produced no assistant message", ErrProviderUnavailable)
}
