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

// Package batch runs login attempts for many accounts concurrently. Attempts
// share nothing: each has its own flow, cookie jar and mailbox connection.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bcem/loginflow/internal/guard"
	"github.com/bcem/loginflow/internal/loginerr"
	"github.com/bcem/loginflow/internal/models"
	"github.com/bcem/loginflow/internal/taskapi"
)

// Attempter performs one login attempt. Implemented by login.Service.
type Attempter interface {
	Attempt(ctx context.Context, acct models.Account) (*taskapi.Session, error)
}

// Guard keeps one attempt in flight per account. Implemented by guard.Guard.
type Guard interface {
	Acquire(ctx context.Context, username string) (*guard.Lock, error)
	Release(ctx context.Context, lock *guard.Lock) error
}

// Recorder persists finished attempts. Implemented by attempts.Store.
type Recorder interface {
	Insert(ctx context.Context, e models.AttemptEvent) error
}

// Publisher announces finished attempts. Implemented by queue.Publisher.
type Publisher interface {
	PublishOutcome(ctx context.Context, e models.AttemptEvent) error
}

// Result summarises a completed batch.
type Result struct {
	// Events are in account order.
	Events    []models.AttemptEvent
	Sessions  map[string]*taskapi.Session
	Succeeded int
	Failed    int
	Skipped   int
	// FailedByKind counts failures by loginerr kind; unclassified failures
	// are counted under "other".
	FailedByKind map[string]int
	Elapsed      time.Duration
}

// Runner performs batches of login attempts.
type Runner struct {
	attempter   Attempter
	guard       Guard
	recorder    Recorder
	publisher   Publisher
	concurrency int
	now         func() time.Time
}

// RunnerConfig holds dependencies for the batch runner. Guard, Recorder and
// Publisher are optional.
type RunnerConfig struct {
	Attempter   Attempter
	Guard       Guard
	Recorder    Recorder
	Publisher   Publisher
	Concurrency int
	Now         func() time.Time
}

// NewRunner creates a batch runner.
func NewRunner(cfg RunnerConfig) *Runner {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		attempter:   cfg.Attempter,
		guard:       cfg.Guard,
		recorder:    cfg.Recorder,
		publisher:   cfg.Publisher,
		concurrency: concurrency,
		now:         now,
	}
}

// Run attempts every account, at most concurrency at a time. A failing
// account never stops the others.
func (r *Runner) Run(ctx context.Context, accounts []models.Account) *Result {
	start := r.now()

	slog.Info("starting login batch",
		"accounts", len(accounts),
		"concurrency", r.concurrency,
	)

	events := make([]models.AttemptEvent, len(accounts))
	var (
		mu       sync.Mutex
		sessions = make(map[string]*taskapi.Session)
	)

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, acct := range accounts {
		g.Go(func() error {
			event, sess := r.runOne(ctx, acct)
			events[i] = event
			if sess != nil {
				mu.Lock()
				sessions[acct.Identifier] = sess
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{
		Events:       events,
		Sessions:     sessions,
		FailedByKind: make(map[string]int),
	}
	for _, e := range events {
		switch e.Outcome {
		case models.OutcomeSucceeded:
			result.Succeeded++
		case models.OutcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
			kind := e.ErrorKind
			if kind == "" {
				kind = "other"
			}
			result.FailedByKind[kind]++
		}
	}
	result.Elapsed = r.now().Sub(start)

	slog.Info("login batch complete",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"elapsed", result.Elapsed,
	)

	return result
}

// runOne locks, attempts, and reports one account.
func (r *Runner) runOne(ctx context.Context, acct models.Account) (models.AttemptEvent, *taskapi.Session) {
	event := models.AttemptEvent{
		AttemptID: uuid.NewString(),
		Username:  acct.Identifier,
		StartedAt: r.now().UTC(),
	}

	var sess *taskapi.Session
	var err error

	lock, held, lockErr := r.acquire(ctx, acct.Identifier)
	switch {
	case lockErr != nil:
		err = lockErr
	case held:
		event.Outcome = models.OutcomeSkipped
		slog.Warn("login attempt already in flight, skipping", "user", acct.Identifier)
	default:
		sess, err = r.attempter.Attempt(ctx, acct)
		r.release(ctx, acct.Identifier, lock)
	}

	event.FinishedAt = r.now().UTC()
	if event.Outcome == "" {
		if err != nil {
			event.Outcome = models.OutcomeFailed
			event.Error = err.Error()
			if kind, ok := loginerr.KindOf(err); ok {
				event.ErrorKind = kind.String()
			}
			slog.Error("login attempt failed",
				"user", acct.Identifier,
				"attempt_id", event.AttemptID,
				"error_kind", event.ErrorKind,
				"error", err,
			)
		} else {
			event.Outcome = models.OutcomeSucceeded
		}
	}

	r.report(ctx, event)
	return event, sess
}

// acquire reports held=true when another attempt owns the account.
func (r *Runner) acquire(ctx context.Context, username string) (*guard.Lock, bool, error) {
	if r.guard == nil {
		return nil, false, nil
	}
	lock, err := r.guard.Acquire(ctx, username)
	if err != nil {
		return nil, false, err
	}
	return lock, lock == nil, nil
}

func (r *Runner) release(ctx context.Context, username string, lock *guard.Lock) {
	if r.guard == nil || lock == nil {
		return
	}
	// The attempt's context may already be cancelled; the lock must still go.
	if err := r.guard.Release(context.WithoutCancel(ctx), lock); err != nil {
		slog.Warn("error releasing account lock", "user", username, "error", err)
	}
}

// report records and publishes an event. Failures are logged, not returned.
func (r *Runner) report(ctx context.Context, event models.AttemptEvent) {
	ctx = context.WithoutCancel(ctx)
	if r.recorder != nil {
		if err := r.recorder.Insert(ctx, event); err != nil {
			slog.Warn("error recording attempt", "attempt_id", event.AttemptID, "error", err)
		}
	}
	if r.publisher != nil {
		if err := r.publisher.PublishOutcome(ctx, event); err != nil {
			slog.Warn("error publishing attempt outcome", "attempt_id", event.AttemptID, "error", err)
		}
	}
}
