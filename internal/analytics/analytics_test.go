package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPEmitterPostsEvent(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	e := NewHTTPEmitter(nil, srv.URL, time.Second)
	ev := Event{
		Timestamp:    time.Now().UTC(),
		UserKnown:    true,
		UserHandle:   "handle-1",
		ThreadHandle: "thread-1",
		CacheHit:     true,
		Query:        "what is the capital of France?",
	}
	if err := e.Emit(context.Background(), ev); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if got.ID == "" {
		t.Fatal("expected an assigned event id")
	}
	if got.UserHandle != "handle-1" || !got.CacheHit {
		t.Fatalf("unexpected event on the wire: %+v", got)
	}
}

func TestHTTPEmitterRejectsCollectorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewHTTPEmitter(nil, srv.URL, time.Second)
	if err := e.Emit(context.Background(), Event{Query: "q"}); err == nil {
		t.Fatal("expected error on collector failure")
	}
}
