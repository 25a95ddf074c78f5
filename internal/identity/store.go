package identity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists identity records in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT opaque_handle, COALESCE(thread_handle, ''), created_at
		 FROM identity_records ORDER BY created_at, opaque_handle`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.OpaqueHandle, &rec.ThreadHandle, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PGStore) Create(ctx context.Context, opaqueHandle, threadHandle string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO identity_records (opaque_handle, thread_handle) VALUES ($1, $2)`,
		opaqueHandle, threadHandle)
	return err
}

func (s *PGStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM identity_records`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PGStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE identity_records`); err != nil {
		return fmt.Errorf("truncate identity_records: %w", err)
	}
	return nil
}
