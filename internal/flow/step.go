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

package flow

import "strings"

// StepID is a challenge step the dispatcher knows how to answer.
type StepID int

const (
	// StepUnknown is any server step identifier without a handler.
	StepUnknown StepID = iota
	StepInstrumentation
	StepIdentifySSO
	StepEnterPassword
	StepDuplicationCheck
	StepConfirmEmail
	StepConfirmCode
	StepSuccess
)

// Server-side subtask identifiers.
const (
	SubtaskInstrumentation  = "LoginJsInstrumentationSubtask"
	SubtaskIdentifySSO      = "LoginEnterUserIdentifierSSO"
	SubtaskEnterPassword    = "LoginEnterPassword"
	SubtaskDuplicationCheck = "AccountDuplicationCheck"
	SubtaskAcid             = "LoginAcid"
	SubtaskSuccess          = "LoginSuccessSubtask"
)

// codeHint is the LoginAcid hint text shown when the server wants the
// emailed confirmation code rather than the address itself.
const codeHint = "confirmation code"

// PendingStep is one entry of the server's subtask list.
type PendingStep struct {
	ID       string
	HintText string
}

// Classify maps a pending step to the step the dispatcher would run for it.
func Classify(p PendingStep) StepID {
	switch p.ID {
	case SubtaskInstrumentation:
		return StepInstrumentation
	case SubtaskIdentifySSO:
		return StepIdentifySSO
	case SubtaskEnterPassword:
		return StepEnterPassword
	case SubtaskDuplicationCheck:
		return StepDuplicationCheck
	case SubtaskAcid:
		if strings.EqualFold(strings.TrimSpace(p.HintText), codeHint) {
			return StepConfirmCode
		}
		return StepConfirmEmail
	case SubtaskSuccess:
		return StepSuccess
	default:
		return StepUnknown
	}
}

// SubtaskID returns the wire identifier answered by the step.
func (s StepID) SubtaskID() string {
	switch s {
	case StepInstrumentation:
		return SubtaskInstrumentation
	case StepIdentifySSO:
		return SubtaskIdentifySSO
	case StepEnterPassword:
		return SubtaskEnterPassword
	case StepDuplicationCheck:
		return SubtaskDuplicationCheck
	case StepConfirmEmail, StepConfirmCode:
		return SubtaskAcid
	case StepSuccess:
		return SubtaskSuccess
	default:
		return ""
	}
}

// Label names the step in transport errors and logs.
func (s StepID) Label() string {
	switch s {
	case StepInstrumentation:
		return "login_instrumentation"
	case StepIdentifySSO:
		return "login_username"
	case StepEnterPassword:
		return "login_password"
	case StepDuplicationCheck:
		return "login_duplication_check"
	case StepConfirmEmail:
		return "login_confirm_email"
	case StepConfirmCode:
		return "login_confirm_email_code"
	case StepSuccess:
		return "login_success"
	default:
		return "unknown"
	}
}

func (s StepID) String() string { return s.Label() }
