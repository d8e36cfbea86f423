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

// Package models defines the data structures shared across the login service.
package models

import "time"

// Credentials are the platform-side secrets for one flow attempt. They are
// never modified once an attempt starts.
type Credentials struct {
	Identifier    string `yaml:"username" validate:"required"`
	Secret        string `yaml:"password" validate:"required"`
	RecoveryEmail string `yaml:"email" validate:"required,email"`
}

// MailboxAccess holds what is needed to open the recovery mailbox.
type MailboxAccess struct {
	Address  string
	Password string
}

// Account pairs platform credentials with mailbox access. EmailPassword may be
// empty, in which case confirmation codes cannot be fetched for the account.
type Account struct {
	Credentials   `yaml:",inline"`
	EmailPassword string `yaml:"email_password"`
}

// Mailbox returns the mailbox access for the account's recovery address.
func (a Account) Mailbox() (MailboxAccess, bool) {
	if a.EmailPassword == "" {
		return MailboxAccess{}, false
	}
	return MailboxAccess{Address: a.RecoveryEmail, Password: a.EmailPassword}, true
}

// Outcome values recorded for a finished attempt.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// AttemptEvent describes one finished login attempt. Its JSON form is what
// the outcome queue carries.
type AttemptEvent struct {
	AttemptID  string    `json:"attempt_id"`
	Username   string    `json:"username"`
	Outcome    string    `json:"outcome"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
