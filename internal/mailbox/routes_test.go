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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoutes_DefaultRule verifies unmapped domains route to imap.<domain>.
func TestRoutes_DefaultRule(t *testing.T) {
	r := NewRoutes()

	host, err := r.Host("someone@example.org")
	require.NoError(t, err)
	assert.Equal(t, "imap.example.org", host)

	again, err := r.Host("someone-else@example.org")
	require.NoError(t, err)
	assert.Equal(t, host, again)
}

// TestRoutes_WellKnownProviders verifies the seeded provider hosts.
func TestRoutes_WellKnownProviders(t *testing.T) {
	r := NewRoutes()

	cases := map[string]string{
		"a@yahoo.com":   "imap.mail.yahoo.com",
		"a@icloud.com":  "imap.mail.me.com",
		"a@outlook.com": "imap-mail.outlook.com",
		"a@Hotmail.COM": "imap-mail.outlook.com",
	}
	for email, want := range cases {
		host, err := r.Host(email)
		require.NoError(t, err)
		assert.Equal(t, want, host, email)
	}
}

// TestRoutes_Register verifies registered routes take precedence and are
// matched case-insensitively.
func TestRoutes_Register(t *testing.T) {
	r := NewRoutes()
	r.Register("Rambler.RU", "imap.rambler.ru")
	r.Register("gmx.com", "imap.gmx.net")

	host, err := r.Host("user@rambler.ru")
	require.NoError(t, err)
	assert.Equal(t, "imap.rambler.ru", host)

	host, err = r.Host("user@GMX.com")
	require.NoError(t, err)
	assert.Equal(t, "imap.gmx.net", host)
}

// TestRoutes_RegisterIsolated verifies separate tables do not share entries.
func TestRoutes_RegisterIsolated(t *testing.T) {
	a := NewRoutes()
	b := NewRoutes()
	a.Register("example.net", "mail.example.net")

	host, err := b.Host("x@example.net")
	require.NoError(t, err)
	assert.Equal(t, "imap.example.net", host)
}

// TestRoutes_InvalidAddress verifies addresses without a domain are rejected.
func TestRoutes_InvalidAddress(t *testing.T) {
	r := NewRoutes()

	for _, email := range []string{"", "no-at-sign", "trailing@"} {
		_, err := r.Host(email)
		assert.Error(t, err, email)
	}
}

// TestRegisterDomain_Default verifies the process-wide helper writes to DefaultRoutes.
func TestRegisterDomain_Default(t *testing.T) {
	RegisterDomain("default-routes.test", "mx.default-routes.test")

	host, err := DefaultRoutes.Host("u@default-routes.test")
	require.NoError(t, err)
	assert.Equal(t, "mx.default-routes.test", host)
}
