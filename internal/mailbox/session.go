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

// Package mailbox opens an IMAP session on the recovery mailbox and reads
// message headers without ever changing flags or deleting mail.
package mailbox

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/bcem/loginflow/internal/loginerr"
	"github.com/bcem/loginflow/internal/models"
)

// DefaultPort is the IMAP-over-TLS port.
const DefaultPort = 993

// Headers are the decoded header fields the code retriever looks at. Date
// is kept raw; callers normalise it.
type Headers struct {
	From    string
	Subject string
	Date    string
}

// imapClient is the part of *client.Client a Session needs.
type imapClient interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Search(criteria *imap.SearchCriteria) ([]uint32, error)
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Logout() error
}

// Session is an authenticated IMAP connection.
type Session struct {
	c       imapClient
	address string
	host    string
}

// DialConfig controls how Dial connects.
type DialConfig struct {
	// Routes resolves the IMAP host; DefaultRoutes when nil.
	Routes    *Routes
	Port      int
	TLSConfig *tls.Config
	Timeout   time.Duration
}

// Dial connects over TLS to the host routed for the address and logs in.
// Connection and authentication failures are KindMailLogin errors.
func Dial(ctx context.Context, access models.MailboxAccess, cfg DialConfig) (*Session, error) {
	routes := cfg.Routes
	if routes == nil {
		routes = DefaultRoutes
	}
	host, err := routes.Host(access.Address)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: host}
	}

	c, err := client.DialWithDialerTLS(&net.Dialer{Timeout: cfg.Timeout}, addr, tlsConfig)
	if err != nil {
		slog.Error("failed to connect to mailbox", "email", access.Address, "host", host, "error", err)
		return nil, loginerr.MailLogin(access.Address, host, err)
	}
	c.Timeout = cfg.Timeout

	s, err := login(c, access, host)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// login authenticates an already connected client.
func login(c imapClient, access models.MailboxAccess, host string) (*Session, error) {
	if err := c.Login(access.Address, access.Password); err != nil {
		slog.Error("failed to log into mailbox", "email", access.Address, "host", host, "error", err)
		_ = c.Logout()
		return nil, loginerr.MailLogin(access.Address, host, err)
	}

	slog.Info("mailbox session opened", "email", access.Address, "host", host)
	return &Session{c: c, address: access.Address, host: host}, nil
}

// Select opens a folder. readOnly sessions never change \Seen flags.
func (s *Session) Select(folder string, readOnly bool) error {
	if _, err := s.c.Select(folder, readOnly); err != nil {
		return fmt.Errorf("select %s: %w", folder, err)
	}
	return nil
}

// MessageIDs returns every sequence number in the selected folder.
func (s *Session) MessageIDs() ([]uint32, error) {
	ids, err := s.c.Search(imap.NewSearchCriteria())
	if err != nil {
		return nil, fmt.Errorf("search all: %w", err)
	}
	return ids, nil
}

// FetchHeaders reads the header block of one message with BODY.PEEK.
func (s *Session) FetchHeaders(id uint32) (Headers, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)

	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		if msg == nil {
			msg = m
		}
	}
	if err := <-done; err != nil {
		return Headers{}, fmt.Errorf("fetch message %d: %w", id, err)
	}
	if msg == nil {
		return Headers{}, fmt.Errorf("message %d not found", id)
	}

	lit := msg.GetBody(section)
	if lit == nil {
		return Headers{}, fmt.Errorf("message %d: server returned no header section", id)
	}

	h, err := textproto.ReadHeader(bufio.NewReader(lit))
	if err != nil {
		return Headers{}, fmt.Errorf("parse headers of message %d: %w", id, err)
	}
	return decodeHeaders(h), nil
}

// Close logs out and closes the connection.
func (s *Session) Close() error {
	return s.c.Logout()
}

// decodeHeaders decodes RFC 2047 words in From and Subject, falling back to
// the raw value when the charset is unknown.
func decodeHeaders(h textproto.Header) Headers {
	mh := mail.Header{Header: message.Header{Header: h}}

	subject, err := mh.Subject()
	if err != nil {
		subject = mh.Get("Subject")
	}
	from, err := mh.Text("From")
	if err != nil {
		from = mh.Get("From")
	}

	return Headers{
		From:    from,
		Subject: subject,
		Date:    mh.Get("Date"),
	}
}
