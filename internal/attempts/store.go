// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package attempts provides a Postgres-backed log of login attempts.
package attempts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/loginflow/internal/models"
)

// DefaultListLimit caps ListByUsername when no limit is given.
const DefaultListLimit = 20

// Record is one logged attempt.
type Record struct {
	ID         int64
	AttemptID  string
	Username   string
	Outcome    string
	ErrorKind  string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	CreatedAt  time.Time
}

// RecordFromEvent converts a finished attempt into a record.
func RecordFromEvent(e models.AttemptEvent) Record {
	return Record{
		AttemptID:  e.AttemptID,
		Username:   e.Username,
		Outcome:    e.Outcome,
		ErrorKind:  e.ErrorKind,
		Error:      e.Error,
		StartedAt:  e.StartedAt,
		FinishedAt: e.FinishedAt,
	}
}

// Duration is how long the attempt ran.
func (r Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store reads and writes attempt records in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an attempt store backed by the given Postgres pool.
// It ensures the login_attempts table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure attempt schema: %w", err)
	}
	slog.Info("attempt store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS login_attempts (
			id          BIGSERIAL PRIMARY KEY,
			attempt_id  TEXT NOT NULL UNIQUE,
			username    TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			error_kind  TEXT DEFAULT '',
			error       TEXT DEFAULT '',
			started_at  TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			created_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_attempts_username ON login_attempts(username, started_at DESC);
	`)
	return err
}

// Insert logs a finished attempt. Re-inserting the same attempt ID is a no-op.
func (s *Store) Insert(ctx context.Context, e models.AttemptEvent) error {
	r := RecordFromEvent(e)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO login_attempts
			(attempt_id, username, outcome, error_kind, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (attempt_id) DO NOTHING
	`, r.AttemptID, r.Username, r.Outcome, r.ErrorKind, r.Error, r.StartedAt, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert attempt %s: %w", r.AttemptID, err)
	}
	return nil
}

// ListByUsername returns the most recent attempts for a user, newest first.
func (s *Store) ListByUsername(ctx context.Context, username string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, attempt_id, username, outcome, error_kind, error,
		       started_at, finished_at, created_at
		FROM login_attempts
		WHERE username = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, username, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// collectRecords scans multiple rows into a slice of Records.
func collectRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.AttemptID, &r.Username, &r.Outcome, &r.ErrorKind, &r.Error,
			&r.StartedAt, &r.FinishedAt, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
