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

// Package login runs one complete login attempt for an account: guest token,
// flow initiation, step dispatch and, when the server asks for it, the
// emailed confirmation code.
package login

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/loginflow/internal/emailcode"
	"github.com/bcem/loginflow/internal/flow"
	"github.com/bcem/loginflow/internal/loginerr"
	"github.com/bcem/loginflow/internal/mailbox"
	"github.com/bcem/loginflow/internal/models"
	"github.com/bcem/loginflow/internal/taskapi"
)

// MailSession is an open mailbox that the retriever can poll.
type MailSession interface {
	emailcode.Mailbox
	Close() error
}

// MailboxOpener opens the recovery mailbox for an account.
type MailboxOpener func(ctx context.Context, access models.MailboxAccess) (MailSession, error)

// Config holds the collaborators for a Service.
type Config struct {
	API taskapi.Config
	// Retriever defaults to emailcode.NewRetriever with default settings.
	Retriever *emailcode.Retriever
	// Criteria is the message template; NotOlderThan is set per attempt.
	// Empty sender and subject take the emailcode defaults.
	Criteria emailcode.Criteria
	// Dial is used by the default opener.
	Dial mailbox.DialConfig
	// OpenMailbox overrides mailbox.Dial.
	OpenMailbox MailboxOpener
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service performs login attempts. It holds no per-attempt state and is safe
// for concurrent use.
type Service struct {
	api       taskapi.Config
	retriever *emailcode.Retriever
	criteria  emailcode.Criteria
	open      MailboxOpener
	now       func() time.Time
}

// New creates a login service.
func New(cfg Config) *Service {
	s := &Service{
		api:       cfg.API,
		retriever: cfg.Retriever,
		criteria:  cfg.Criteria,
		open:      cfg.OpenMailbox,
		now:       cfg.Now,
	}
	if s.retriever == nil {
		s.retriever = emailcode.NewRetriever(emailcode.Config{})
	}
	if s.criteria.SenderContains == "" {
		s.criteria.SenderContains = emailcode.DefaultSender
	}
	if s.criteria.SubjectContains == "" {
		s.criteria.SubjectContains = emailcode.DefaultSubject
	}
	if s.open == nil {
		dial := cfg.Dial
		s.open = func(ctx context.Context, access models.MailboxAccess) (MailSession, error) {
			sess, err := mailbox.Dial(ctx, access, dial)
			if err != nil {
				return nil, err
			}
			return sess, nil
		}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Attempt logs one account in. Each attempt gets its own HTTP client and
// cookie jar. An attempt that stops at steps it cannot answer fails with a
// KindIndeterminate error naming them.
func (s *Service) Attempt(ctx context.Context, acct models.Account) (*taskapi.Session, error) {
	started := s.now()

	client, err := taskapi.NewClient(s.api)
	if err != nil {
		return nil, fmt.Errorf("create task client: %w", err)
	}

	if err := client.ActivateGuestToken(ctx); err != nil {
		return nil, err
	}

	state, err := client.Initiate(ctx)
	if err != nil {
		return nil, err
	}

	dcfg := flow.DispatcherConfig{Executor: client, Since: started}
	if access, ok := acct.Mailbox(); ok {
		dcfg.Codes = &mailCodes{svc: s, access: access}
	}

	out, err := flow.NewDispatcher(dcfg).Run(ctx, state, acct.Credentials)
	if err != nil {
		return nil, err
	}
	if out.Kind != flow.Terminal {
		return nil, loginerr.Indeterminate(out.PendingIDs)
	}

	sess, err := client.Session(acct.Identifier)
	if err != nil {
		return nil, err
	}

	slog.Info("login succeeded",
		"user", acct.Identifier,
		"duration", s.now().Sub(started),
	)
	return sess, nil
}

// FetchCode opens the mailbox and waits for a confirmation code no older than
// since.
func (s *Service) FetchCode(ctx context.Context, access models.MailboxAccess, since time.Time) (string, error) {
	mb, err := s.open(ctx, access)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := mb.Close(); err != nil {
			slog.Warn("error closing mailbox", "address", access.Address, "error", err)
		}
	}()

	criteria := s.criteria
	criteria.NotOlderThan = since
	return s.retriever.Retrieve(ctx, mb, criteria)
}

// mailCodes adapts FetchCode to flow.CodeSource for one account.
type mailCodes struct {
	svc    *Service
	access models.MailboxAccess
}

func (m *mailCodes) EmailCode(ctx context.Context, notOlderThan time.Time) (string, error) {
	return m.svc.FetchCode(ctx, m.access, notOlderThan)
}
