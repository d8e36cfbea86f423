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

package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/loginflow/internal/guard"
	"github.com/bcem/loginflow/internal/loginerr"
	"github.com/bcem/loginflow/internal/models"
	"github.com/bcem/loginflow/internal/taskapi"
)

// --- Mock attempter ---

type mockAttempter struct {
	errs     map[string]error
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (m *mockAttempter) Attempt(_ context.Context, acct models.Account) (*taskapi.Session, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	if err := m.errs[acct.Identifier]; err != nil {
		return nil, err
	}
	return &taskapi.Session{Username: acct.Identifier}, nil
}

// --- Mock guard ---

type mockGuard struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released int
}

func (m *mockGuard) Acquire(_ context.Context, username string) (*guard.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.held[username] {
		return nil, nil
	}
	return &guard.Lock{}, nil
}

func (m *mockGuard) Release(_ context.Context, _ *guard.Lock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released++
	return nil
}

// --- Mock sinks ---

type mockSink struct {
	mu     sync.Mutex
	events []models.AttemptEvent
	err    error
}

func (m *mockSink) Insert(_ context.Context, e models.AttemptEvent) error {
	return m.add(e)
}

func (m *mockSink) PublishOutcome(_ context.Context, e models.AttemptEvent) error {
	return m.add(e)
}

func (m *mockSink) add(e models.AttemptEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func accounts(names ...string) []models.Account {
	out := make([]models.Account, 0, len(names))
	for _, n := range names {
		out = append(out, models.Account{Credentials: models.Credentials{
			Identifier:    n,
			Secret:        "pw",
			RecoveryEmail: n + "@example.com",
		}})
	}
	return out
}

// TestRun_Summary verifies outcomes are tallied per kind and events keep
// account order.
func TestRun_Summary(t *testing.T) {
	att := &mockAttempter{errs: map[string]error{
		"bob":   loginerr.CodeTimeout(time.Minute),
		"carol": fmt.Errorf("login_confirm_email_code: %w", loginerr.CodeTimeout(time.Minute)),
		"dave":  errors.New("connection refused"),
		"erin":  loginerr.Transport("login_password", 403, "denied"),
	}}
	recorder := &mockSink{}
	publisher := &mockSink{}

	r := NewRunner(RunnerConfig{
		Attempter:   att,
		Recorder:    recorder,
		Publisher:   publisher,
		Concurrency: 3,
	})
	result := r.Run(context.Background(), accounts("alice", "bob", "carol", "dave", "erin"))

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 4, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, map[string]int{"code_timeout": 2, "other": 1, "transport": 1}, result.FailedByKind)

	require.Len(t, result.Events, 5)
	for i, name := range []string{"alice", "bob", "carol", "dave", "erin"} {
		assert.Equal(t, name, result.Events[i].Username)
		assert.NotEmpty(t, result.Events[i].AttemptID)
	}
	assert.Equal(t, models.OutcomeSucceeded, result.Events[0].Outcome)
	assert.Equal(t, "transport", result.Events[4].ErrorKind)
	assert.Equal(t, "login_password - 403 - denied", result.Events[4].Error)

	require.Contains(t, result.Sessions, "alice")
	assert.Len(t, result.Sessions, 1)

	assert.Len(t, recorder.events, 5)
	assert.Len(t, publisher.events, 5)
}

// TestRun_ConcurrencyBound verifies no more than the limit run at once.
func TestRun_ConcurrencyBound(t *testing.T) {
	att := &mockAttempter{delay: 20 * time.Millisecond}
	r := NewRunner(RunnerConfig{Attempter: att, Concurrency: 2})

	result := r.Run(context.Background(), accounts("a", "b", "c", "d", "e", "f"))

	assert.Equal(t, 6, result.Succeeded)
	assert.LessOrEqual(t, att.maxSeen.Load(), int32(2))
	assert.GreaterOrEqual(t, att.maxSeen.Load(), int32(1))
}

// TestRun_SkipsLockedAccounts verifies accounts with an attempt in flight
// are skipped and reported, and held locks are released.
func TestRun_SkipsLockedAccounts(t *testing.T) {
	g := &mockGuard{held: map[string]bool{"bob": true}}
	publisher := &mockSink{}
	r := NewRunner(RunnerConfig{
		Attempter:   &mockAttempter{},
		Guard:       g,
		Publisher:   publisher,
		Concurrency: 1,
	})

	result := r.Run(context.Background(), accounts("alice", "bob"))

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, models.OutcomeSkipped, result.Events[1].Outcome)
	assert.Equal(t, 1, g.released)
	assert.Len(t, publisher.events, 2)
}

// TestRun_GuardError verifies a lock failure fails only that attempt.
func TestRun_GuardError(t *testing.T) {
	r := NewRunner(RunnerConfig{
		Attempter: &mockAttempter{},
		Guard:     &mockGuard{err: errors.New("redis down")},
	})

	result := r.Run(context.Background(), accounts("alice"))

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, "redis down", result.Events[0].Error)
	assert.Equal(t, map[string]int{"other": 1}, result.FailedByKind)
}

// TestRun_SinkErrorsNotFatal verifies record and publish failures do not
// change the outcome.
func TestRun_SinkErrorsNotFatal(t *testing.T) {
	sink := &mockSink{err: errors.New("unavailable")}
	r := NewRunner(RunnerConfig{
		Attempter: &mockAttempter{},
		Recorder:  sink,
		Publisher: sink,
	})

	result := r.Run(context.Background(), accounts("alice"))

	assert.Equal(t, 1, result.Succeeded)
	assert.Len(t, sink.events, 2)
}

// TestRun_Timestamps verifies events carry the injected clock in UTC.
func TestRun_Timestamps(t *testing.T) {
	at := time.Date(2023, 8, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	r := NewRunner(RunnerConfig{
		Attempter: &mockAttempter{},
		Now:       func() time.Time { return at },
	})

	result := r.Run(context.Background(), accounts("alice"))

	assert.True(t, result.Events[0].StartedAt.Equal(at))
	assert.Equal(t, time.UTC, result.Events[0].StartedAt.Location())
	assert.Zero(t, result.Elapsed)
}
