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

// Package loginerr defines the closed set of failure kinds a login attempt
// can end with. Callers branch on Kind to decide whether to retry the whole
// attempt; nothing below the caller retries on its own.
package loginerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a login attempt failure.
type Kind int

const (
	// KindTransport is a non-2xx response from the onboarding task API.
	KindTransport Kind = iota + 1
	// KindMailLogin is a failure to connect or authenticate to the mailbox.
	KindMailLogin
	// KindCodeTimeout means no confirmation email arrived within the budget.
	KindCodeTimeout
	// KindIndeterminate means the server asked for a step we have no handler for.
	KindIndeterminate
)

// String returns the stable name used in logs, queue events and the attempt log.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindMailLogin:
		return "mail_login"
	case KindCodeTimeout:
		return "code_timeout"
	case KindIndeterminate:
		return "indeterminate"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the single error type for classified login failures. Only the
// fields relevant to Kind are populated.
type Error struct {
	Kind Kind

	// Transport
	Step   string
	Status int
	Body   string

	// MailLogin
	Address string
	Host    string

	// CodeTimeout
	Timeout time.Duration

	// Indeterminate
	StepIDs []string

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTransport:
		return fmt.Sprintf("%s - %d - %s", e.Step, e.Status, e.Body)
	case KindMailLogin:
		if e.Err != nil {
			return fmt.Sprintf("email login failed for %s on %s: %v", e.Address, e.Host, e.Err)
		}
		return fmt.Sprintf("email login failed for %s on %s", e.Address, e.Host)
	case KindCodeTimeout:
		return fmt.Sprintf("email code timeout (%s)", e.Timeout)
	case KindIndeterminate:
		return fmt.Sprintf("login flow stopped at unrecognized steps [%s]", strings.Join(e.StepIDs, ", "))
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Transport builds a KindTransport error for the step with the given label.
func Transport(step string, status int, body string) *Error {
	return &Error{Kind: KindTransport, Step: step, Status: status, Body: body}
}

// MailLogin builds a KindMailLogin error.
func MailLogin(address, host string, err error) *Error {
	return &Error{Kind: KindMailLogin, Address: address, Host: host, Err: err}
}

// CodeTimeout builds a KindCodeTimeout error for the exhausted budget.
func CodeTimeout(timeout time.Duration) *Error {
	return &Error{Kind: KindCodeTimeout, Timeout: timeout}
}

// Indeterminate builds a KindIndeterminate error listing the step ids the
// server offered.
func Indeterminate(stepIDs []string) *Error {
	ids := make([]string, len(stepIDs))
	copy(ids, stepIDs)
	return &Error{Kind: KindIndeterminate, StepIDs: ids}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
