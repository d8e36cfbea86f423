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

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

// TestAccount_Mailbox verifies mailbox access needs an email password.
func TestAccount_Mailbox(t *testing.T) {
	acct := Account{Credentials: Credentials{Identifier: "alice", RecoveryEmail: "alice@example.com"}}

	_, ok := acct.Mailbox()
	assert.False(t, ok)

	acct.EmailPassword = "mail-pass"
	access, ok := acct.Mailbox()
	assert.True(t, ok)
	assert.Equal(t, MailboxAccess{Address: "alice@example.com", Password: "mail-pass"}, access)
}

// TestAccount_YAML verifies credentials are inlined in the account entry.
func TestAccount_YAML(t *testing.T) {
	var acct Account
	err := yaml.Unmarshal([]byte("username: bob\npassword: pw\nemail: bob@example.com\nemail_password: mp\n"), &acct)

	assert.NoError(t, err)
	assert.Equal(t, "bob", acct.Identifier)
	assert.Equal(t, "pw", acct.Secret)
	assert.Equal(t, "bob@example.com", acct.RecoveryEmail)
	assert.Equal(t, "mp", acct.EmailPassword)
}
