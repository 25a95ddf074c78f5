// Package identity maps sensitive external sender identifiers to opaque
// stored handles. The derivation is a salted one-way hash: a raw identifier
// exists only in call frames during resolution and is never persisted or
// recoverable from the store.
package identity

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Record is one stored identity. OpaqueHandle is the bcrypt derivation of
// the raw identifier and acts as the primary key.
type Record struct {
	OpaqueHandle string
	ThreadHandle string
	CreatedAt    time.Time
}

// Store persists identity records.
type Store interface {
	List(ctx context.Context) ([]Record, error)
	Create(ctx context.Context, opaqueHandle, threadHandle string) error
	Count(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
}

// Resolution reports whether a raw identifier is already known.
type Resolution struct {
	Known        bool
	OpaqueHandle string
	ThreadHandle string
}

const lockStripes = 64

// Resolver derives opaque handles and answers "has this sender been seen
// before" without ever storing the raw identifier.
//
// bcrypt embeds a fresh salt in every hash, so a fresh derivation of the
// same identifier never equals the stored one. Resolve therefore scans all
// records and runs the constant-time hash-and-compare primitive against
// each stored salt. O(n) in total senders, accepted as the cost of keeping
// the handle non-indexable.
type Resolver struct {
	store  Store
	cost   int
	logger *slog.Logger
	locks  [lockStripes]sync.Mutex
}

func NewResolver(log *slog.Logger, store Store, cost int) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Resolver{
		store:  store,
		cost:   cost,
		logger: log.With(slog.String("service", "identity")),
	}
}

// DeriveHandle produces a one-way opaque handle for rawID. Stable only per
// embedded salt: two calls with the same input yield different handles.
func (r *Resolver) DeriveHandle(rawID string) (string, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return "", fmt.Errorf("raw identifier is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(rawID), r.cost)
	if err != nil {
		return "", fmt.Errorf("derive handle: %w", err)
	}
	return string(hash), nil
}

// Resolve scans all stored records and re-derives-and-compares rawID
// against each one. First match wins.
func (r *Resolver) Resolve(ctx context.Context, rawID string) (Resolution, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return Resolution{}, fmt.Errorf("raw identifier is required")
	}
	records, err := r.store.List(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("list identity records: %w", err)
	}
	for _, rec := range records {
		err := bcrypt.CompareHashAndPassword([]byte(rec.OpaqueHandle), []byte(rawID))
		if err == nil {
			return Resolution{Known: true, OpaqueHandle: rec.OpaqueHandle, ThreadHandle: rec.ThreadHandle}, nil
		}
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			r.logger.Warn("skipping malformed identity record", slog.Any("error", err))
		}
	}
	return Resolution{}, nil
}

// CreateRecord derives a handle for rawID and persists a new record bound
// to threadHandle. The returned handle is for logging, never reversal.
func (r *Resolver) CreateRecord(ctx context.Context, rawID, threadHandle string) (string, error) {
	handle, err := r.DeriveHandle(rawID)
	if err != nil {
		return "", err
	}
	if err := r.store.Create(ctx, handle, threadHandle); err != nil {
		return "", fmt.Errorf("create identity record: %w", err)
	}
	return handle, nil
}

// EnsureRecord resolves rawID and, when unknown, mints a thread handle via
// newThread and persists exactly one record. Concurrent first-contact turns
// for the same identifier serialize on a striped per-identifier lock, so at
// most one record is created. Returns the resolution and whether a record
// was created by this call.
func (r *Resolver) EnsureRecord(ctx context.Context, rawID string, newThread func(ctx context.Context) (string, error)) (Resolution, bool, error) {
	mu := r.lockFor(rawID)
	mu.Lock()
	defer mu.Unlock()

	res, err := r.Resolve(ctx, rawID)
	if err != nil {
		return Resolution{}, false, err
	}
	if res.Known {
		return res, false, nil
	}

	thread, err := newThread(ctx)
	if err != nil {
		return Resolution{}, false, err
	}
	handle, err := r.CreateRecord(ctx, rawID, thread)
	if err != nil {
		return Resolution{}, false, err
	}
	return Resolution{Known: false, OpaqueHandle: handle, ThreadHandle: thread}, true, nil
}

// Count reports the number of stored records.
func (r *Resolver) Count(ctx context.Context) (int64, error) {
	return r.store.Count(ctx)
}

// Reset wipes every identity record. Destructive; operator use only.
func (r *Resolver) Reset(ctx context.Context) error {
	r.logger.Warn("wiping ALL identity records")
	return r.store.Reset(ctx)
}

func (r *Resolver) lockFor(rawID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(rawID))
	return &r.locks[h.Sum32()%lockStripes]
}
