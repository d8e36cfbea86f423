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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/loginflow/internal/flow"
	"github.com/bcem/loginflow/internal/loginerr"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: serverURL, BearerToken: "test-bearer"})
	require.NoError(t, err)
	return c
}

// TestNewClient_RequiresBearer verifies the bearer token is mandatory.
func TestNewClient_RequiresBearer(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

// TestActivateGuestToken verifies the guest token is fetched and then sent
// on later requests alongside the bearer authorization.
func TestActivateGuestToken(t *testing.T) {
	var taskHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case guestTokenPath:
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Empty(t, r.Header.Get("X-Guest-Token"))
			w.Write([]byte(`{"guest_token":"gt-123"}`))
		case taskPath:
			taskHeaders = r.Header.Clone()
			w.Write([]byte(`{"flow_token":"f1","subtasks":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	require.NoError(t, c.ActivateGuestToken(context.Background()))

	_, err := c.Initiate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-bearer", taskHeaders.Get("Authorization"))
	assert.Equal(t, "gt-123", taskHeaders.Get("X-Guest-Token"))
	assert.Equal(t, "yes", taskHeaders.Get("X-Twitter-Active-User"))
	assert.Equal(t, "en", taskHeaders.Get("X-Twitter-Client-Language"))
	assert.Equal(t, "application/json", taskHeaders.Get("Content-Type"))
	assert.Equal(t, DefaultUserAgent, taskHeaders.Get("User-Agent"))
}

// TestInitiate_ParsesFlowState verifies flow_name=login and subtask parsing,
// including the LoginAcid hint text.
func TestInitiate_ParsesFlowState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "login", r.URL.Query().Get("flow_name"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "input_flow_data")
		assert.Contains(t, body, "subtask_versions")

		w.Write([]byte(`{
			"flow_token": "flow-1",
			"subtasks": [
				{"subtask_id": "LoginJsInstrumentationSubtask"},
				{"subtask_id": "LoginAcid", "enter_text": {"hint_text": "Confirmation code"}}
			]
		}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	state, err := c.Initiate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "flow-1", state.Token)
	assert.Equal(t, []flow.PendingStep{
		{ID: flow.SubtaskInstrumentation},
		{ID: flow.SubtaskAcid, HintText: "Confirmation code"},
	}, state.Pending)
}

// TestExecute_Payloads verifies the wire body for each step.
func TestExecute_Payloads(t *testing.T) {
	cases := []struct {
		name string
		in   flow.Input
		want string
	}{
		{
			name: "instrumentation",
			in:   flow.Input{Step: flow.StepInstrumentation},
			want: `{"flow_token":"tok","subtask_inputs":[{"subtask_id":"LoginJsInstrumentationSubtask","js_instrumentation":{"response":"{}","link":"next_link"}}]}`,
		},
		{
			name: "username",
			in:   flow.Input{Step: flow.StepIdentifySSO, Value: "alice"},
			want: `{"flow_token":"tok","subtask_inputs":[{"subtask_id":"LoginEnterUserIdentifierSSO","settings_list":{"setting_responses":[{"key":"user_identifier","response_data":{"text_data":{"result":"alice"}}}],"link":"next_link"}}]}`,
		},
		{
			name: "password",
			in:   flow.Input{Step: flow.StepEnterPassword, Value: "hunter2"},
			want: `{"flow_token":"tok","subtask_inputs":[{"subtask_id":"LoginEnterPassword","enter_password":{"password":"hunter2","link":"next_link"}}]}`,
		},
		{
			name: "duplication check",
			in:   flow.Input{Step: flow.StepDuplicationCheck},
			want: `{"flow_token":"tok","subtask_inputs":[{"subtask_id":"AccountDuplicationCheck","check_logged_in_account":{"link":"AccountDuplicationCheck_false"}}]}`,
		},
		{
			name: "confirm email",
			in:   flow.Input{Step: flow.StepConfirmEmail, Value: "alice@example.com"},
			want: `{"flow_token":"tok","subtask_inputs":[{"subtask_id":"LoginAcid","enter_text":{"text":"alice@example.com","link":"next_link"}}]}`,
		},
		{
			name: "confirm code",
			in:   flow.Input{Step: flow.StepConfirmCode, Value: "739201"},
			want: `{"flow_token":"tok","subtask_inputs":[{"subtask_id":"LoginAcid","enter_text":{"text":"739201","link":"next_link"}}]}`,
		},
		{
			name: "success",
			in:   flow.Input{Step: flow.StepSuccess},
			want: `{"flow_token":"tok","subtask_inputs":[]}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got []byte
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, taskPath, r.URL.Path)
				got, _ = io.ReadAll(r.Body)
				w.Write([]byte(`{"flow_token":"tok-2","subtasks":[{"subtask_id":"LoginSuccessSubtask"}]}`))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL)
			state, err := c.Execute(context.Background(), "tok", tc.in)
			require.NoError(t, err)

			assert.JSONEq(t, tc.want, string(got))
			assert.Equal(t, "tok-2", state.Token)
			assert.Equal(t, []string{flow.SubtaskSuccess}, state.PendingIDs())
		})
	}
}

// TestExecute_UnknownStep verifies no request is sent for a step without a payload.
func TestExecute_UnknownStep(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Execute(context.Background(), "tok", flow.Input{Step: flow.StepUnknown})

	assert.Error(t, err)
	assert.False(t, called)
}

// TestExecute_NonSuccessStatus verifies non-2xx responses become transport
// errors carrying the step label, status and raw body.
func TestExecute_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"code":399,"message":"Incorrect. Please try again."}]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Execute(context.Background(), "tok", flow.Input{Step: flow.StepEnterPassword, Value: "wrong"})
	require.Error(t, err)

	var le *loginerr.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, loginerr.KindTransport, le.Kind)
	assert.Equal(t, "login_password", le.Step)
	assert.Equal(t, http.StatusBadRequest, le.Status)
	assert.Contains(t, le.Body, "Incorrect. Please try again.")
}

// TestActivateGuestToken_Failure verifies the guest token label on failure.
func TestActivateGuestToken_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	err := c.ActivateGuestToken(context.Background())

	var le *loginerr.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "guest_token", le.Step)
	assert.Equal(t, http.StatusTooManyRequests, le.Status)
}

// TestSession_CSRFFromCookie verifies the session picks up ct0 as the CSRF token.
func TestSession_CSRFFromCookie(t *testing.T) {
	var authedHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case taskPath:
			http.SetCookie(w, &http.Cookie{Name: "ct0", Value: "csrf-abc", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: "auth_token", Value: "auth-xyz", Path: "/"})
			w.Write([]byte(`{"flow_token":"done","subtasks":[]}`))
		default:
			authedHeaders = r.Header.Clone()
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Execute(context.Background(), "tok", flow.Input{Step: flow.StepSuccess})
	require.NoError(t, err)

	sess, err := c.Session("alice")
	require.NoError(t, err)
	assert.Equal(t, "csrf-abc", sess.Header.Get("X-Csrf-Token"))
	assert.Equal(t, "OAuth2Session", sess.Header.Get("X-Twitter-Auth-Type"))
	assert.Len(t, sess.Cookies, 2)

	req, err := sess.NewRequest(context.Background(), http.MethodGet, server.URL+"/account/settings.json", nil)
	require.NoError(t, err)
	resp, err := sess.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "csrf-abc", authedHeaders.Get("X-Csrf-Token"))
	assert.Equal(t, "Bearer test-bearer", authedHeaders.Get("Authorization"))
	assert.Contains(t, authedHeaders.Get("Cookie"), "auth_token=auth-xyz")
}

// TestSession_MissingCookie verifies a missing ct0 cookie is an error.
func TestSession_MissingCookie(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.Session("alice")
	assert.Error(t, err)
}
