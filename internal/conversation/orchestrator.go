// Package conversation drives one inbound message through the full turn:
// identity resolution, semantic cache check, completion, delivery, and
// logging.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/semrelayhq/semrelay/internal/analytics"
	"github.com/semrelayhq/semrelay/internal/channel"
	"github.com/semrelayhq/semrelay/internal/completion"
	"github.com/semrelayhq/semrelay/internal/embeddings"
	"github.com/semrelayhq/semrelay/internal/identity"
	"github.com/semrelayhq/semrelay/internal/onboarding"
	"github.com/semrelayhq/semrelay/internal/semcache"
)

const timeoutNotice = "Sorry, the assistant is taking too long to answer. Please try again in a moment."
const failureNotice = "Sorry, something went wrong while answering your question. Please try again."

// Turn is one inbound message to process.
type Turn struct {
	SenderID   string
	Channel    string
	Text       string
	ReceivedAt time.Time
}

// Cache is the semantic cache surface the orchestrator needs.
type Cache interface {
	Lookup(ctx context.Context, query string) (semcache.LookupResult, error)
	Store(ctx context.Context, query, response string) error
}

// Identities resolves senders to opaque handles and thread handles.
type Identities interface {
	EnsureRecord(ctx context.Context, rawID string, newThread func(ctx context.Context) (string, error)) (identity.Resolution, bool, error)
}

// Completions submits queries to the completion engine.
type Completions interface {
	NewThread(ctx context.Context) (string, error)
	Ask(ctx context.Context, threadID, query string) (string, error)
}

// Orchestrator owns the per-turn state machine.
type Orchestrator struct {
	cache       Cache
	identities  Identities
	completions Completions
	sender      channel.Sender
	emitter     analytics.Emitter
	content     onboarding.Content
	logger      *slog.Logger
	inflight    singleflight.Group
}

func NewOrchestrator(log *slog.Logger, cache Cache, identities Identities, completions Completions, sender channel.Sender, emitter analytics.Emitter, content onboarding.Content) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cache:       cache,
		identities:  identities,
		completions: completions,
		sender:      sender,
		emitter:     emitter,
		content:     content,
		logger:      log.With(slog.String("service", "conversation")),
	}
}

// HandleTurn processes one inbound message end to end. It returns an error
// only for conditions the caller must act on; per-turn failures are logged
// here and the turn simply ends without a duplicate user-facing message.
// channel.ErrBadCredentials is always propagated: the process must stop.
func (o *Orchestrator) HandleTurn(ctx context.Context, turn Turn) error {
	query := strings.TrimSpace(turn.Text)
	if query == "" {
		return nil
	}

	// RESOLVING_IDENTITY
	res, created, err := o.identities.EnsureRecord(ctx, turn.SenderID, o.completions.NewThread)
	if err != nil {
		o.logger.Error("identity resolution failed", slog.Any("error", err))
		return nil
	}
	if created {
		if err := o.deliver(ctx, turn, o.content.Terms); err != nil {
			return err
		}
		if err := o.deliver(ctx, turn, o.content.Instructions); err != nil {
			return err
		}
	}

	// CHECKING_CACHE
	lookupUnknown := false
	lookup, err := o.cache.Lookup(ctx, query)
	if err != nil {
		if !errors.Is(err, embeddings.ErrProviderUnavailable) {
			o.logger.Error("cache lookup failed", slog.Any("error", err))
			return nil
		}
		// The scan is inconclusive, not a miss. Proceed as a first-time
		// query but skip the cache write so an outage cannot seed
		// duplicate entries.
		lookupUnknown = true
		o.logger.Warn("cache lookup inconclusive, invoking completion", slog.Any("error", err))
	}

	var response string
	if lookup.Hit {
		// SERVING_CACHED
		response = lookup.Response
	} else {
		// AWAITING_COMPLETION
		response, err = o.complete(ctx, res.ThreadHandle, query, lookupUnknown)
		if err != nil {
			notice := failureNotice
			if errors.Is(err, completion.ErrTimedOut) {
				notice = timeoutNotice
			}
			o.logger.Error("completion failed", slog.Any("error", err))
			// The query was already submitted; tell the user instead of
			// dropping the turn silently.
			return o.deliver(ctx, turn, notice)
		}
	}

	if err := o.deliver(ctx, turn, response); err != nil {
		return err
	}

	// LOGGING
	o.emit(ctx, turn, res, lookup.Hit, query)
	return nil
}

// complete asks the engine for an answer, deduplicating concurrent
// equivalent queries: only one completion call is in flight per normalized
// query text, and the leader stores the finished answer in the cache.
func (o *Orchestrator) complete(ctx context.Context, threadHandle, query string, skipStore bool) (string, error) {
	v, err, shared := o.inflight.Do(normalizeQuery(query), func() (any, error) {
		answer, err := o.completions.Ask(ctx, threadHandle, query)
		if err != nil {
			return "", err
		}
		if skipStore {
			o.logger.Warn("skipping cache write after inconclusive lookup")
		} else if storeErr := o.cache.Store(ctx, query, answer); storeErr != nil {
			// The answer is already in hand; a failed write only costs a
			// future cache miss.
			o.logger.Error("cache store failed", slog.Any("error", storeErr))
		}
		return answer, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		o.logger.Debug("completion shared with concurrent equivalent query")
	}
	return v.(string), nil
}

// deliver sends text to the turn's sender. Transport rejections are logged
// and swallowed; credential failures propagate so the process can stop.
func (o *Orchestrator) deliver(ctx context.Context, turn Turn, text string) error {
	err := o.sender.Send(ctx, channel.OutboundMessage{
		Destination: turn.SenderID,
		Channel:     turn.Channel,
		Text:        text,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, channel.ErrBadCredentials) {
		return err
	}
	o.logger.Error("outbound delivery failed", slog.Any("error", err))
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, turn Turn, res identity.Resolution, cacheHit bool, query string) {
	receivedAt := turn.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	ev := analytics.Event{
		Timestamp:    receivedAt,
		UserKnown:    res.Known,
		UserHandle:   res.OpaqueHandle,
		ThreadHandle: res.ThreadHandle,
		CacheHit:     cacheHit,
		Query:        query,
	}
	if err := o.emitter.Emit(ctx, ev); err != nil {
		o.logger.Warn("analytics emit failed", slog.Any("error", err))
	}
	o.logger.Info("turn complete",
		slog.Bool("user_known", res.Known),
		slog.String("thread_handle", res.ThreadHandle),
		slog.Bool("cache_hit", cacheHit),
		slog.Int("query_len", len(query)),
	)
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
