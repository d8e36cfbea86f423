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

package mailbox

import (
	"fmt"
	"strings"
	"sync"
)

// defaultHosts are providers whose IMAP host is not imap.<domain>.
var defaultHosts = map[string]string{
	"yahoo.com":   "imap.mail.yahoo.com",
	"icloud.com":  "imap.mail.me.com",
	"outlook.com": "imap-mail.outlook.com",
	"hotmail.com": "imap-mail.outlook.com",
}

// Routes maps email domains to IMAP hosts. Entries are only ever added;
// domains without an entry route to imap.<domain>.
type Routes struct {
	mu    sync.RWMutex
	hosts map[string]string
}

// NewRoutes returns a routing table seeded with the well-known providers.
func NewRoutes() *Routes {
	r := &Routes{hosts: make(map[string]string, len(defaultHosts))}
	for domain, host := range defaultHosts {
		r.hosts[domain] = host
	}
	return r
}

// Register adds or replaces the IMAP host for an email domain.
func (r *Routes) Register(emailDomain, imapHost string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts[strings.ToLower(strings.TrimSpace(emailDomain))] = strings.TrimSpace(imapHost)
}

// Host returns the IMAP host for an email address.
func (r *Routes) Host(email string) (string, error) {
	domain, err := DomainOf(email)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	host, ok := r.hosts[domain]
	r.mu.RUnlock()
	if ok {
		return host, nil
	}
	return "imap." + domain, nil
}

// DomainOf returns the lower-cased domain part of an email address.
func DomainOf(email string) (string, error) {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return "", fmt.Errorf("invalid email address %q", email)
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:])), nil
}

// DefaultRoutes is the process-wide table used by Dial when no explicit
// table is given. Register domains before the first login attempt starts.
var DefaultRoutes = NewRoutes()

// RegisterDomain adds a route to DefaultRoutes.
func RegisterDomain(emailDomain, imapHost string) {
	DefaultRoutes.Register(emailDomain, imapHost)
}
