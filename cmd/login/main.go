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

// Login batch command
//
// Logs in every configured account. It:
//  1. Loads accounts and settings from config.yaml
//  2. Registers extra email domain routes
//  3. Connects to Redis and PostgreSQL when configured
//  4. Runs the attempts concurrently, one in flight per account
//  5. Records and publishes each outcome
//
// Usage:
//
//	go run ./cmd/login/ [--users alice,bob] [--history alice]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/loginflow/internal/attempts"
	"github.com/bcem/loginflow/internal/batch"
	"github.com/bcem/loginflow/internal/config"
	"github.com/bcem/loginflow/internal/emailcode"
	"github.com/bcem/loginflow/internal/guard"
	"github.com/bcem/loginflow/internal/login"
	"github.com/bcem/loginflow/internal/mailbox"
	"github.com/bcem/loginflow/internal/models"
	"github.com/bcem/loginflow/internal/queue"
	"github.com/bcem/loginflow/internal/taskapi"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	usersFlag := flag.String("users", "", "Comma-separated usernames to log in (optional; empty = all configured accounts)")
	historyFlag := flag.String("history", "", "Print the attempt log for a username and exit")
	limitFlag := flag.Int("limit", attempts.DefaultListLimit, "Number of attempts printed by --history")
	flag.Parse()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Connect to PostgreSQL (optional) ---
	var store *attempts.Store
	if cfg.DatabaseURL != "" {
		pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")

		store, err = attempts.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise attempt store", "error", err)
			os.Exit(1)
		}
	}

	if *historyFlag != "" {
		if store == nil {
			fmt.Fprintf(os.Stderr, "Error: --history needs database_url or DATABASE_URL\n")
			os.Exit(1)
		}
		if err := printHistory(ctx, store, *historyFlag, *limitFlag); err != nil {
			slog.Error("failed to list attempts", "user", *historyFlag, "error", err)
			os.Exit(1)
		}
		return
	}

	accounts := selectAccounts(cfg.Accounts, *usersFlag)
	if len(accounts) == 0 {
		slog.Error("no accounts to log in")
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"accounts", len(accounts),
		"concurrency", cfg.Concurrency,
		"code_timeout", cfg.Mail.CodeTimeout,
		"folders", cfg.Mail.Folders,
	)

	// Routes must be in place before any attempt dials a mailbox.
	for domain, host := range cfg.Mail.Domains {
		mailbox.RegisterDomain(domain, host)
	}

	runnerCfg := batch.RunnerConfig{Concurrency: cfg.Concurrency}
	if store != nil {
		runnerCfg.Recorder = store
	}

	// --- Connect to Redis (optional) ---
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		publisher := queue.NewPublisher(rdb, cfg.OutcomesQueue)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")

		runnerCfg.Publisher = publisher
		runnerCfg.Guard = guard.New(rdb, cfg.LockTTL)
	}

	runnerCfg.Attempter = login.New(login.Config{
		API: taskapi.Config{
			BaseURL:     cfg.API.BaseURL,
			BearerToken: cfg.API.BearerToken,
			UserAgent:   cfg.API.UserAgent,
			Timeout:     cfg.API.Timeout,
		},
		Retriever: emailcode.NewRetriever(emailcode.Config{
			Folders:       cfg.Mail.Folders,
			Timeout:       cfg.Mail.CodeTimeout,
			FolderTimeout: cfg.Mail.FolderTimeout,
			PollInterval:  cfg.Mail.PollInterval,
		}),
		Criteria: emailcode.Criteria{
			SenderContains:  cfg.Mail.Sender,
			SubjectContains: cfg.Mail.Subject,
		},
		Dial: mailbox.DialConfig{Routes: mailbox.DefaultRoutes},
	})

	// --- Run Batch ---
	result := batch.NewRunner(runnerCfg).Run(ctx, accounts)

	// --- Summary ---
	for _, e := range result.Events {
		slog.Info("attempt result",
			"user", e.Username,
			"attempt_id", e.AttemptID,
			"outcome", e.Outcome,
			"error_kind", e.ErrorKind,
			"duration", e.FinishedAt.Sub(e.StartedAt),
		)
	}

	slog.Info("login batch summary",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"sessions", len(result.Sessions),
		"failed_by_kind", result.FailedByKind,
		"elapsed", result.Elapsed,
	)

	if result.Failed > 0 {
		os.Exit(2)
	}
}

// selectAccounts filters by a comma-separated username list; empty keeps all.
func selectAccounts(all []models.Account, users string) []models.Account {
	if strings.TrimSpace(users) == "" {
		return all
	}

	wanted := make(map[string]bool)
	for _, u := range strings.Split(users, ",") {
		if u = strings.TrimSpace(u); u != "" {
			wanted[u] = true
		}
	}

	var out []models.Account
	for _, a := range all {
		if wanted[a.Identifier] {
			out = append(out, a)
		}
	}
	return out
}

func printHistory(ctx context.Context, store *attempts.Store, username string, limit int) error {
	records, err := store.ListByUsername(ctx, username, limit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Printf("no attempts recorded for %s\n", username)
		return nil
	}

	kinds := make(map[string]int)
	for _, r := range records {
		fmt.Printf("%s  %-9s  %-13s  %8s  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Outcome,
			r.ErrorKind,
			r.Duration().Round(100*time.Millisecond),
			r.AttemptID,
		)
		if r.ErrorKind != "" {
			kinds[r.ErrorKind]++
		}
	}

	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Printf("%s: %d\n", k, kinds[k])
	}
	return nil
}

func logLevel(v string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return slog.LevelInfo
	}
	return level
}
