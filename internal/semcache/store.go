package semcache

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists cache entries in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, query_text, response_text, created_at FROM cache_entries ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.QueryText, &e.ResponseText, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PGStore) Append(ctx context.Context, queryText, responseText string) (Entry, error) {
	var e Entry
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cache_entries (query_text, response_text)
		 VALUES ($1, $2)
		 RETURNING id, query_text, response_text, created_at`,
		queryText, responseText,
	).Scan(&e.ID, &e.QueryText, &e.ResponseText, &e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (s *PGStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PGStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE cache_entries`); err != nil {
		return fmt.Errorf("truncate cache_entries: %w", err)
	}
	return nil
}
