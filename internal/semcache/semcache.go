// Package semcache is a meaning-based response cache. Lookups do not match
// on exact text: each stored query is embedded and compared against the
// incoming query by cosine similarity, and the first entry over the
// threshold wins.
package semcache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/semrelayhq/semrelay/internal/embeddings"
	"github.com/semrelayhq/semrelay/internal/similarity"
)

// Entry is a stored (query, response) pair.
type Entry struct {
	ID           int64
	QueryText    string
	ResponseText string
	CreatedAt    time.Time
}

// Store persists cache entries. List must return entries in insertion
// order; Append must never overwrite or deduplicate.
type Store interface {
	List(ctx context.Context) ([]Entry, error)
	Append(ctx context.Context, queryText, responseText string) (Entry, error)
	Count(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
}

// LookupResult reports the outcome of a cache scan.
type LookupResult struct {
	Hit      bool
	Response string
}

// Service scans stored queries for a semantic match.
type Service struct {
	store     Store
	embedder  embeddings.Embedder
	evaluator *similarity.Evaluator
	logger    *slog.Logger
}

func NewService(log *slog.Logger, store Store, embedder embeddings.Embedder, evaluator *similarity.Evaluator) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     store,
		embedder:  embedder,
		evaluator: evaluator,
		logger:    log.With(slog.String("service", "semcache")),
	}
}

// Lookup embeds the query once and compares it against every stored entry
// in insertion order, returning the first equivalent entry's response.
// A provider failure mid-scan fails the whole lookup; the caller must treat
// that as "unknown", not as a miss.
func (s *Service) Lookup(ctx context.Context, query string) (LookupResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return LookupResult{}, fmt.Errorf("query is required")
	}

	entries, err := s.store.List(ctx)
	if err != nil {
		return LookupResult{}, fmt.Errorf("list cache entries: %w", err)
	}
	if len(entries) == 0 {
		return LookupResult{}, nil
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return LookupResult{}, fmt.Errorf("embed query: %w", err)
	}

	for _, entry := range entries {
		entryVec, err := s.embedder.Embed(ctx, entry.QueryText)
		if err != nil {
			return LookupResult{}, fmt.Errorf("embed cached query %d: %w", entry.ID, err)
		}
		if s.evaluator.Similar(queryVec, entryVec) {
			s.logger.Debug("cache hit",
				slog.Int64("entry_id", entry.ID),
				slog.Float64("threshold", s.evaluator.Threshold()),
			)
			return LookupResult{Hit: true, Response: entry.ResponseText}, nil
		}
	}
	return LookupResult{}, nil
}

// Store appends a completed (query, response) pair. Near-duplicate entries
// are tolerated: first-match-wins scanning makes them harmless.
func (s *Service) Store(ctx context.Context, query, response string) error {
	query = strings.TrimSpace(query)
	if query == "" || response == "" {
		return fmt.Errorf("query and response are required")
	}
	entry, err := s.store.Append(ctx, query, response)
	if err != nil {
		return fmt.Errorf("append cache entry: %w", err)
	}
	s.logger.Debug("cache entry stored", slog.Int64("entry_id", entry.ID))
	return nil
}

// Count reports the number of stored entries.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// Reset wipes every cache entry. Destructive; operator use only.
func (s *Service) Reset(ctx context.Context) error {
	s.logger.Warn("wiping ALL cache entries")
	return s.store.Reset(ctx)
}
