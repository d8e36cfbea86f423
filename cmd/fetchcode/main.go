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

// Confirmation code fetch command
//
// Standalone CLI tool that opens a mailbox over IMAP and prints the newest
// platform confirmation code. Useful for finishing a login by hand or
// checking mailbox access before a batch run.
//
// Usage:
//
//	go run ./cmd/fetchcode/ --email user@example.com --password <app password> [--since 10m]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bcem/loginflow/internal/config"
	"github.com/bcem/loginflow/internal/emailcode"
	"github.com/bcem/loginflow/internal/login"
	"github.com/bcem/loginflow/internal/mailbox"
	"github.com/bcem/loginflow/internal/models"
)

func main() {
	// Structured JSON logging to stderr; stdout carries only the code.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	emailFlag := flag.String("email", "", "Mailbox address (required)")
	passwordFlag := flag.String("password", os.Getenv("EMAIL_PASSWORD"), "Mailbox password (default $EMAIL_PASSWORD)")
	sinceFlag := flag.String("since", "", "Ignore mail older than this (e.g. 10m; empty = no limit)")
	timeoutFlag := flag.Duration("timeout", config.CodeTimeout(0), "How long to wait for the code (default from $TWS_WAIT_EMAIL_CODE or $LOGIN_CODE_TIMEOUT)")
	hostFlag := flag.String("imap-host", "", "IMAP host override for the address's domain")
	flag.Parse()

	if *emailFlag == "" || *passwordFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --email and --password are required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	var since time.Time
	if *sinceFlag != "" {
		d, err := time.ParseDuration(*sinceFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q: %v\n", *sinceFlag, err)
			os.Exit(1)
		}
		since = time.Now().Add(-d)
	}

	access := models.MailboxAccess{Address: *emailFlag, Password: *passwordFlag}

	routes := mailbox.NewRoutes()
	if *hostFlag != "" {
		domain, err := mailbox.DomainOf(access.Address)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		routes.Register(domain, *hostFlag)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc := login.New(login.Config{
		Retriever: emailcode.NewRetriever(emailcode.Config{Timeout: *timeoutFlag}),
		Dial:      mailbox.DialConfig{Routes: routes, Timeout: 30 * time.Second},
	})

	code, err := svc.FetchCode(ctx, access, since)
	if err != nil {
		slog.Error("failed to fetch confirmation code", "email", access.Address, "error", err)
		os.Exit(1)
	}

	fmt.Println(code)
}
