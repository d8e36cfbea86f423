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

// Package taskapi implements a client for the platform's onboarding task
// endpoint. One Client owns one cookie jar and one guest token, so it must
// only be used for a single login attempt.
package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/bcem/loginflow/internal/flow"
	"github.com/bcem/loginflow/internal/loginerr"
)

const (
	// DefaultBaseURL is the root of the REST API.
	DefaultBaseURL = "https://api.twitter.com/1.1"
	// DefaultUserAgent is a desktop Safari user agent.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"

	guestTokenPath = "/guest/activate.json"
	taskPath       = "/onboarding/task.json"

	maxErrorBody = 64 << 10
)

// Config holds the settings for a task API client.
type Config struct {
	BaseURL     string
	BearerToken string
	UserAgent   string
	Timeout     time.Duration
	// Transport is the base round tripper; http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// Client talks to the onboarding task API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	guestToken string
}

// NewClient creates a task API client. The bearer token is attached to every
// request by an oauth2 transport.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BearerToken == "" {
		return nil, fmt.Errorf("bearer token is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Client{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: cfg.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{
					AccessToken: cfg.BearerToken,
					TokenType:   "Bearer",
				}),
				Base: base,
			},
		},
		baseURL:   baseURL,
		userAgent: userAgent,
	}, nil
}

// ActivateGuestToken obtains the guest token sent with every later request.
func (c *Client) ActivateGuestToken(ctx context.Context) error {
	var out struct {
		GuestToken string `json:"guest_token"`
	}
	if err := c.post(ctx, "guest_token", c.baseURL+guestTokenPath, nil, &out); err != nil {
		return err
	}
	if out.GuestToken == "" {
		return fmt.Errorf("guest token response carried no guest_token")
	}

	c.guestToken = out.GuestToken
	return nil
}

// Initiate starts a login flow and returns its first state.
func (c *Client) Initiate(ctx context.Context) (flow.FlowState, error) {
	u := c.baseURL + taskPath + "?" + url.Values{"flow_name": {"login"}}.Encode()

	var resp taskResponse
	if err := c.post(ctx, "login_initiate", u, initiatePayload(), &resp); err != nil {
		return flow.FlowState{}, err
	}
	return resp.flowState(), nil
}

// Execute answers one step with the given flow token.
func (c *Client) Execute(ctx context.Context, token string, in flow.Input) (flow.FlowState, error) {
	body, err := buildRequest(token, in)
	if err != nil {
		return flow.FlowState{}, err
	}

	var resp taskResponse
	if err := c.post(ctx, in.Step.Label(), c.baseURL+taskPath, body, &resp); err != nil {
		return flow.FlowState{}, err
	}
	return resp.flowState(), nil
}

// post sends a JSON POST and decodes the response into out. Non-2xx
// responses become transport errors carrying label, status and body.
func (c *Client) post(ctx context.Context, label, u string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", label, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return loginerr.Transport(label, resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", label, err)
	}
	return nil
}

func (c *Client) setHeaders(h http.Header) {
	h.Set("User-Agent", c.userAgent)
	h.Set("X-Twitter-Active-User", "yes")
	h.Set("X-Twitter-Client-Language", "en")
	h.Set("Content-Type", "application/json")
	if c.guestToken != "" {
		h.Set("X-Guest-Token", c.guestToken)
	}
}
