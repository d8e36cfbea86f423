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

// Package emailcode polls a mailbox for the confirmation code the platform
// emails during login. Folders are checked in priority order (spam first,
// since the code mail is often misfiled) under a global and a per-folder
// time budget.
package emailcode

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bcem/loginflow/internal/loginerr"
	"github.com/bcem/loginflow/internal/mailbox"
)

const (
	DefaultTimeout      = 60 * time.Second
	DefaultPollInterval = 3 * time.Second
	DefaultSender       = "info@x.com"
	DefaultSubject      = "confirmation code is"
)

// DefaultFolders is the folder priority order.
var DefaultFolders = []string{"Spam", "INBOX"}

// Mailbox is the part of an IMAP session the retriever uses.
// Implemented by mailbox.Session.
type Mailbox interface {
	Select(folder string, readOnly bool) error
	MessageIDs() ([]uint32, error)
	FetchHeaders(id uint32) (mailbox.Headers, error)
}

// Criteria selects the confirmation message.
type Criteria struct {
	SenderContains  string
	SubjectContains string
	// NotOlderThan is ignored when zero.
	NotOlderThan time.Time
}

// DefaultCriteria returns the platform's sender and subject with the given
// staleness threshold.
func DefaultCriteria(notOlderThan time.Time) Criteria {
	return Criteria{
		SenderContains:  DefaultSender,
		SubjectContains: DefaultSubject,
		NotOlderThan:    notOlderThan,
	}
}

// Message is a header snapshot of one message in the selected folder.
type Message struct {
	Sender    string
	Subject   string
	Timestamp Timestamp
	Index     uint32
}

// Matches reports whether the lower-cased sender and subject contain the
// criteria substrings.
func (c Criteria) Matches(m Message) bool {
	return strings.Contains(strings.ToLower(m.Sender), strings.ToLower(c.SenderContains)) &&
		strings.Contains(strings.ToLower(m.Subject), strings.ToLower(c.SubjectContains))
}

// ExtractCode returns the last whitespace-separated token of a subject line.
// Case is preserved, so alphanumeric codes should be compared case-insensitively.
func ExtractCode(subject string) string {
	fields := strings.Fields(subject)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// Config holds retriever settings. Zero values take the defaults.
type Config struct {
	Folders       []string
	Timeout       time.Duration
	FolderTimeout time.Duration
	PollInterval  time.Duration
	Clock         Clock
}

// Retriever finds confirmation codes in a mailbox.
type Retriever struct {
	folders       []string
	timeout       time.Duration
	folderTimeout time.Duration
	interval      time.Duration
	clock         Clock
}

// NewRetriever creates a retriever. FolderTimeout defaults to Timeout.
func NewRetriever(cfg Config) *Retriever {
	r := &Retriever{
		folders:       cfg.Folders,
		timeout:       cfg.Timeout,
		folderTimeout: cfg.FolderTimeout,
		interval:      cfg.PollInterval,
		clock:         cfg.Clock,
	}
	if len(r.folders) == 0 {
		r.folders = DefaultFolders
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.folderTimeout <= 0 {
		r.folderTimeout = r.timeout
	}
	if r.interval <= 0 {
		r.interval = DefaultPollInterval
	}
	if r.clock == nil {
		r.clock = SystemClock
	}
	return r
}

// Retrieve polls each folder in order until a matching message is found.
// Folders that cannot be selected are skipped. When a folder's budget runs
// out the next folder is tried; when the global budget runs out, or the
// last folder's budget does, the result is a KindCodeTimeout error.
func (r *Retriever) Retrieve(ctx context.Context, mb Mailbox, criteria Criteria) (string, error) {
	start := r.clock.Now()
	selected := 0
	var lastSelectErr error

	slog.Info("waiting for confirmation code",
		"folders", r.folders,
		"timeout", r.timeout,
		"not_older_than", criteria.NotOlderThan,
	)

	for _, folder := range r.folders {
		if r.elapsed(start) > r.timeout {
			return "", loginerr.CodeTimeout(r.timeout)
		}

		if err := mb.Select(folder, true); err != nil {
			slog.Error("error selecting folder", "folder", folder, "error", err)
			lastSelectErr = err
			continue
		}
		selected++

		code, err := r.pollFolder(ctx, mb, folder, criteria, start)
		if err != nil {
			return "", err
		}
		if code != "" {
			return code, nil
		}
	}

	if selected == 0 && lastSelectErr != nil {
		return "", fmt.Errorf("no mailbox folder could be selected: %w", lastSelectErr)
	}
	return "", loginerr.CodeTimeout(r.timeout)
}

// pollFolder rescans the selected folder until a code turns up or a budget
// runs out. An empty code with a nil error means the folder budget is spent.
func (r *Retriever) pollFolder(ctx context.Context, mb Mailbox, folder string, criteria Criteria, start time.Time) (string, error) {
	folderStart := r.clock.Now()

	for {
		if r.elapsed(start) > r.timeout {
			return "", loginerr.CodeTimeout(r.timeout)
		}
		if r.elapsed(folderStart) > r.folderTimeout {
			slog.Warn("no confirmation code in folder, moving on",
				"folder", folder,
				"folder_timeout", r.folderTimeout,
			)
			return "", nil
		}

		code, err := r.scan(mb, folder, criteria)
		if err != nil {
			return "", err
		}
		if code != "" {
			slog.Info("confirmation code found", "folder", folder)
			return code, nil
		}

		if err := r.clock.Sleep(ctx, r.interval); err != nil {
			return "", err
		}
	}
}

// scan walks the folder from the highest sequence number down. It stops at
// the first message older than the threshold: everything below it is older
// still.
func (r *Retriever) scan(mb Mailbox, folder string, criteria Criteria) (string, error) {
	ids, err := mb.MessageIDs()
	if err != nil {
		return "", fmt.Errorf("list messages in %s: %w", folder, err)
	}

	for i := len(ids) - 1; i >= 0; i-- {
		h, err := mb.FetchHeaders(ids[i])
		if err != nil {
			return "", fmt.Errorf("fetch headers in %s: %w", folder, err)
		}

		msg := Message{
			Sender:    h.From,
			Subject:   h.Subject,
			Timestamp: ParseDate(h.Date),
			Index:     ids[i],
		}

		slog.Debug("scanning message",
			"folder", folder,
			"seq", msg.Index,
			"count", len(ids),
			"from", strings.ToLower(msg.Sender),
			"date", msg.Timestamp.String(),
			"subject", strings.ToLower(msg.Subject),
		)

		if !criteria.NotOlderThan.IsZero() {
			if !msg.Timestamp.Parsed {
				continue
			}
			if msg.Timestamp.Time.Before(criteria.NotOlderThan) {
				return "", nil
			}
		}

		if criteria.Matches(msg) {
			if code := ExtractCode(msg.Subject); code != "" {
				return code, nil
			}
		}
	}

	return "", nil
}

func (r *Retriever) elapsed(since time.Time) time.Duration {
	return r.clock.Now().Sub(since)
}
