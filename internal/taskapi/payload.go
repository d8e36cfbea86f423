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

package taskapi

import (
	"fmt"

	"github.com/bcem/loginflow/internal/flow"
)

const nextLink = "next_link"

// taskRequest is the body of every onboarding task call after initiation.
type taskRequest struct {
	FlowToken     string         `json:"flow_token"`
	SubtaskInputs []subtaskInput `json:"subtask_inputs"`
}

// subtaskInput carries exactly one of the step-specific records.
type subtaskInput struct {
	SubtaskID            string             `json:"subtask_id"`
	JSInstrumentation    *jsInstrumentation `json:"js_instrumentation,omitempty"`
	SettingsList         *settingsList      `json:"settings_list,omitempty"`
	EnterPassword        *enterPassword     `json:"enter_password,omitempty"`
	CheckLoggedInAccount *linkOnly          `json:"check_logged_in_account,omitempty"`
	EnterText            *enterText         `json:"enter_text,omitempty"`
}

type jsInstrumentation struct {
	Response string `json:"response"`
	Link     string `json:"link"`
}

type settingsList struct {
	SettingResponses []settingResponse `json:"setting_responses"`
	Link             string            `json:"link"`
}

type settingResponse struct {
	Key          string       `json:"key"`
	ResponseData responseData `json:"response_data"`
}

type responseData struct {
	TextData textData `json:"text_data"`
}

type textData struct {
	Result string `json:"result"`
}

type enterPassword struct {
	Password string `json:"password"`
	Link     string `json:"link"`
}

type linkOnly struct {
	Link string `json:"link"`
}

type enterText struct {
	Text string `json:"text"`
	Link string `json:"link"`
}

// taskResponse holds the fields we read from any onboarding task response.
type taskResponse struct {
	FlowToken string `json:"flow_token"`
	Subtasks  []struct {
		SubtaskID string `json:"subtask_id"`
		EnterText *struct {
			HintText string `json:"hint_text"`
		} `json:"enter_text,omitempty"`
	} `json:"subtasks"`
}

func (r *taskResponse) flowState() flow.FlowState {
	state := flow.FlowState{Token: r.FlowToken}
	for _, st := range r.Subtasks {
		p := flow.PendingStep{ID: st.SubtaskID}
		if st.EnterText != nil {
			p.HintText = st.EnterText.HintText
		}
		state.Pending = append(state.Pending, p)
	}
	return state
}

// initiatePayload starts a login flow.
func initiatePayload() map[string]interface{} {
	return map[string]interface{}{
		"input_flow_data": map[string]interface{}{
			"flow_context": map[string]interface{}{
				"debug_overrides": map[string]interface{}{},
				"start_location":  map[string]string{"location": "unknown"},
			},
		},
		"subtask_versions": map[string]interface{}{},
	}
}

// buildRequest renders the wire body for one step.
func buildRequest(token string, in flow.Input) (taskRequest, error) {
	req := taskRequest{FlowToken: token, SubtaskInputs: []subtaskInput{}}
	st := subtaskInput{SubtaskID: in.Step.SubtaskID()}

	switch in.Step {
	case flow.StepInstrumentation:
		st.JSInstrumentation = &jsInstrumentation{Response: "{}", Link: nextLink}
	case flow.StepIdentifySSO:
		st.SettingsList = &settingsList{
			SettingResponses: []settingResponse{{
				Key:          "user_identifier",
				ResponseData: responseData{TextData: textData{Result: in.Value}},
			}},
			Link: nextLink,
		}
	case flow.StepEnterPassword:
		st.EnterPassword = &enterPassword{Password: in.Value, Link: nextLink}
	case flow.StepDuplicationCheck:
		st.CheckLoggedInAccount = &linkOnly{Link: "AccountDuplicationCheck_false"}
	case flow.StepConfirmEmail, flow.StepConfirmCode:
		st.EnterText = &enterText{Text: in.Value, Link: nextLink}
	case flow.StepSuccess:
		return req, nil
	default:
		return taskRequest{}, fmt.Errorf("no payload for step %s", in.Step.Label())
	}

	req.SubtaskInputs = append(req.SubtaskInputs, st)
	return req, nil
}
