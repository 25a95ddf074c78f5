package semcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/semrelayhq/semrelay/internal/embeddings"
	"github.com/semrelayhq/semrelay/internal/similarity"
)

// memStore is an in-memory Store preserving insertion order.
type memStore struct {
	mu      sync.Mutex
	entries []Entry
	nextID  int64
}

func (s *memStore) List(context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *memStore) Append(_ context.Context, queryText, responseText string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e := Entry{ID: s.nextID, QueryText: queryText, ResponseText: responseText, CreatedAt: time.Now()}
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *memStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.entries)), nil
}

func (s *memStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}

// stubEmbedder maps known texts to fixed vectors and counts calls.
type stubEmbedder struct {
	vectors map[string][]float32
	calls   int
	failOn  string
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.failOn != "" && text == e.failOn {
		return nil, fmt.Errorf("%w: stub failure", embeddings.ErrProviderUnavailable)
	}
	v, ok := e.vectors[text]
	if !ok {
		return nil, fmt.Errorf("unexpected text %q", text)
	}
	return v, nil
}

const (
	qCapital    = "What is the capital of France?"
	qCapitalAlt = "What's France's capital city?"
	qPassword   = "How do I reset my password?"
)

func newTestService(store Store, embedder embeddings.Embedder) *Service {
	return NewService(nil, store, embedder, similarity.NewEvaluator(0.81))
}

func stubVectors() map[string][]float32 {
	return map[string][]float32{
		qCapital:    {1, 0},
		qCapitalAlt: {0.95, 0.31}, // cosine vs qCapital well above 0.81
		qPassword:   {0, 1},       // orthogonal to both
	}
}

func TestLookupEquivalentQueryHits(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, &stubEmbedder{vectors: stubVectors()})
	ctx := context.Background()

	if err := svc.Store(ctx, qCapital, "Paris"); err != nil {
		t.Fatalf("store: %v", err)
	}

	res, err := svc.Lookup(ctx, qCapitalAlt)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !res.Hit || res.Response != "Paris" {
		t.Fatalf("expected hit with Paris, got %+v", res)
	}
}

func TestLookupUnrelatedQueryMisses(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, &stubEmbedder{vectors: stubVectors()})
	ctx := context.Background()

	if err := svc.Store(ctx, qCapital, "Paris"); err != nil {
		t.Fatalf("store: %v", err)
	}

	res, err := svc.Lookup(ctx, qPassword)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if res.Hit {
		t.Fatalf("expected miss, got %+v", res)
	}
}

func TestLookupFirstMatchWins(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, &stubEmbedder{vectors: stubVectors()})
	ctx := context.Background()

	// Two near-equivalent entries with different responses; the earlier
	// one must always win.
	if err := svc.Store(ctx, qCapital, "Paris"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := svc.Store(ctx, qCapitalAlt, "Paris, obviously"); err != nil {
		t.Fatalf("store: %v", err)
	}

	res, err := svc.Lookup(ctx, qCapitalAlt)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !res.Hit || res.Response != "Paris" {
		t.Fatalf("first stored entry must win, got %+v", res)
	}
}

func TestLookupEmbedsQueryOnce(t *testing.T) {
	store := &memStore{}
	embedder := &stubEmbedder{vectors: stubVectors()}
	svc := newTestService(store, embedder)
	ctx := context.Background()

	if err := svc.Store(ctx, qCapital, "Paris"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := svc.Store(ctx, qPassword, "Use the reset link."); err != nil {
		t.Fatalf("store: %v", err)
	}

	embedder.calls = 0
	if _, err := svc.Lookup(ctx, qCapitalAlt); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	// One call for the query plus one per scanned entry, never one per
	// (query, entry) pair.
	if want := 2; embedder.calls > 1+want {
		t.Fatalf("expected at most %d embed calls, got %d", 1+want, embedder.calls)
	}
}

func TestLookupProviderFailureIsNotAMiss(t *testing.T) {
	store := &memStore{}
	embedder := &stubEmbedder{vectors: stubVectors(), failOn: qCapital}
	svc := newTestService(store, embedder)
	ctx := context.Background()

	if err := svc.Store(ctx, qCapital, "Paris"); err != nil {
		t.Fatalf("store: %v", err)
	}

	_, err := svc.Lookup(ctx, qCapitalAlt)
	if err == nil {
		t.Fatal("expected lookup to fail when the provider fails mid-scan")
	}
	if !errors.Is(err, embeddings.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestStoreToleratesDuplicates(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, &stubEmbedder{vectors: stubVectors()})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Store(ctx, qCapital, "Paris"); err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
	}
	n, err := svc.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("store must append, not deduplicate: got %d entries", n)
	}

	res, err := svc.Lookup(ctx, qCapitalAlt)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !res.Hit || res.Response != "Paris" {
		t.Fatalf("duplicates must never produce a mismatched response, got %+v", res)
	}
}

func TestLookupEmptyQueryRejected(t *testing.T) {
	svc := newTestService(&memStore{}, &stubEmbedder{vectors: stubVectors()})
	if _, err := svc.Lookup(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestLookupEmptyCacheSkipsEmbedding(t *testing.T) {
	embedder := &stubEmbedder{vectors: stubVectors()}
	svc := newTestService(&memStore{}, embedder)

	res, err := svc.Lookup(context.Background(), qCapital)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if res.Hit {
		t.Fatalf("expected miss on empty cache")
	}
	if embedder.calls != 0 {
		t.Fatalf("empty cache must not call the provider, got %d calls", embedder.calls)
	}
}

func TestReset(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, &stubEmbedder{vectors: stubVectors()})
	ctx := context.Background()

	if err := svc.Store(ctx, qCapital, "Paris"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := svc.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	n, _ := svc.Count(ctx)
	if n != 0 {
		t.Fatalf("expected empty cache after reset, got %d", n)
	}
}
