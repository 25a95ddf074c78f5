// Package analytics emits per-turn events to an external collaborator. The
// orchestrator depends only on the Emitter interface; emission failures are
// logged and never abort a turn.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Event is the structured record of one conversation turn. ID is assigned
// on emission so collectors can deduplicate retried posts.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	UserKnown    bool      `json:"user_known"`
	UserHandle   string    `json:"user_handle"`
	ThreadHandle string    `json:"thread_handle"`
	CacheHit     bool      `json:"cache_hit"`
	Query        string    `json:"query"`
}

// Emitter publishes turn events.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// NopEmitter discards events.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) error { return nil }

// HTTPEmitter posts events as JSON to a collector endpoint.
type HTTPEmitter struct {
	client   *http.Client
	endpoint string
	logger   *slog.Logger
}

func NewHTTPEmitter(log *slog.Logger, endpoint string, timeout time.Duration) *HTTPEmitter {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPEmitter{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		logger:   log.With(slog.String("service", "analytics")),
	}
}

func (e *HTTPEmitter) Emit(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}
	return nil
}
