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

// Package flow drives the server-directed login challenge. Each server
// response carries a flow token and a list of pending subtasks; the
// dispatcher answers the first subtask it recognises and forwards the new
// token into the next request until the server reports success or asks for
// something we cannot answer.
//
// The expected path is
//
//	Initiated → Instrumentation → IdentifySSO → EnterPassword →
//	DuplicationCheck → ConfirmEmail → Success
//
// but the order is never enforced: the server may skip, reorder or repeat
// any of these steps.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/loginflow/internal/models"
)

// FlowState is the server's latest answer: the token to send with the next
// request and the subtasks it is waiting for, in server order.
type FlowState struct {
	Token   string
	Pending []PendingStep
}

// PendingIDs returns the pending subtask identifiers in server order.
func (s FlowState) PendingIDs() []string {
	ids := make([]string, 0, len(s.Pending))
	for _, p := range s.Pending {
		ids = append(ids, p.ID)
	}
	return ids
}

// Input is the step-specific value sent for one step. Value is empty for
// steps that need no input.
type Input struct {
	Step  StepID
	Value string
}

// Executor sends one challenge response and returns the next flow state.
// Implemented by taskapi.Client.
type Executor interface {
	Execute(ctx context.Context, token string, in Input) (FlowState, error)
}

// CodeSource supplies an emailed confirmation code no older than the given
// instant.
type CodeSource interface {
	EmailCode(ctx context.Context, notOlderThan time.Time) (string, error)
}

// OutcomeKind tags the result of one Advance call.
type OutcomeKind int

const (
	// Continue carries the next FlowState.
	Continue OutcomeKind = iota + 1
	// Terminal means the success step was answered; the flow is over.
	Terminal
	// Unrecognized means no pending step had a handler. No request was made.
	Unrecognized
)

func (k OutcomeKind) String() string {
	switch k {
	case Continue:
		return "continue"
	case Terminal:
		return "terminal"
	case Unrecognized:
		return "unrecognized"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the tagged result of Advance.
type Outcome struct {
	Kind OutcomeKind
	// Step is the step that was answered (zero for Unrecognized).
	Step StepID
	// State is set for Continue.
	State FlowState
	// PendingIDs is set for Unrecognized.
	PendingIDs []string
}

// Dispatcher answers one pending step per Advance call.
type Dispatcher struct {
	exec  Executor
	codes CodeSource
	since time.Time
}

// DispatcherConfig holds the collaborators for a dispatcher.
type DispatcherConfig struct {
	Executor Executor
	// Codes is optional. Without it the emailed-code step is treated as
	// unrecognized.
	Codes CodeSource
	// Since is the staleness threshold passed to Codes, normally the time
	// the attempt started.
	Since time.Time
}

// NewDispatcher creates a dispatcher for one flow attempt.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		exec:  cfg.Executor,
		codes: cfg.Codes,
		since: cfg.Since,
	}
}

// Advance answers the first pending step with a handler, in server order.
// Later siblings in the same response are ignored.
func (d *Dispatcher) Advance(ctx context.Context, state FlowState, creds models.Credentials) (Outcome, error) {
	for _, p := range state.Pending {
		step := Classify(p)
		if !d.handles(step) {
			continue
		}

		in, err := d.input(ctx, step, creds)
		if err != nil {
			return Outcome{}, err
		}

		next, err := d.exec.Execute(ctx, state.Token, in)
		if err != nil {
			return Outcome{}, err
		}

		if step == StepSuccess {
			return Outcome{Kind: Terminal, Step: step}, nil
		}
		return Outcome{Kind: Continue, Step: step, State: next}, nil
	}

	return Outcome{Kind: Unrecognized, PendingIDs: state.PendingIDs()}, nil
}

// Run calls Advance until the flow ends. The returned outcome is Terminal or
// Unrecognized; any error is fatal to the attempt.
func (d *Dispatcher) Run(ctx context.Context, state FlowState, creds models.Credentials) (Outcome, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		out, err := d.Advance(ctx, state, creds)
		if err != nil {
			return Outcome{}, err
		}

		switch out.Kind {
		case Continue:
			slog.Debug("login step answered",
				"user", creds.Identifier,
				"step", out.Step.Label(),
				"next", out.State.PendingIDs(),
			)
			state = out.State
		case Terminal:
			slog.Info("login flow completed", "user", creds.Identifier)
			return out, nil
		case Unrecognized:
			slog.Warn("login flow stopped at unrecognized steps",
				"user", creds.Identifier,
				"pending", out.PendingIDs,
			)
			return out, nil
		default:
			return Outcome{}, fmt.Errorf("unexpected outcome %s", out.Kind)
		}
	}
}

func (d *Dispatcher) handles(step StepID) bool {
	switch step {
	case StepUnknown:
		return false
	case StepConfirmCode:
		return d.codes != nil
	default:
		return true
	}
}

// input builds the value each step sends.
func (d *Dispatcher) input(ctx context.Context, step StepID, creds models.Credentials) (Input, error) {
	switch step {
	case StepIdentifySSO:
		return Input{Step: step, Value: creds.Identifier}, nil
	case StepEnterPassword:
		return Input{Step: step, Value: creds.Secret}, nil
	case StepConfirmEmail:
		return Input{Step: step, Value: creds.RecoveryEmail}, nil
	case StepConfirmCode:
		code, err := d.codes.EmailCode(ctx, d.since)
		if err != nil {
			return Input{}, fmt.Errorf("%s: %w", step.Label(), err)
		}
		return Input{Step: step, Value: code}, nil
	case StepInstrumentation, StepDuplicationCheck, StepSuccess:
		return Input{Step: step}, nil
	default:
		return Input{}, fmt.Errorf("no input for step %s", step.Label())
	}
}
