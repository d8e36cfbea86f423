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
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// csrfCookie is set by the server once the login flow succeeds.
const csrfCookie = "ct0"

// Session is an authenticated client produced by a completed login flow.
type Session struct {
	Username string
	// Header holds the headers every authenticated request must carry.
	Header  http.Header
	Cookies []*http.Cookie

	httpClient *http.Client
}

// Session builds the authenticated session after the flow reached its
// terminal step. It fails if the server never issued the CSRF cookie.
func (c *Client) Session(username string) (*Session, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	cookies := c.httpClient.Jar.Cookies(u)
	var csrf string
	for _, ck := range cookies {
		if ck.Name == csrfCookie {
			csrf = ck.Value
			break
		}
	}
	if csrf == "" {
		return nil, fmt.Errorf("login for %s completed without %s cookie", username, csrfCookie)
	}

	h := make(http.Header)
	c.setHeaders(h)
	h.Set("X-Csrf-Token", csrf)
	h.Set("X-Twitter-Auth-Type", "OAuth2Session")

	return &Session{
		Username:   username,
		Header:     h,
		Cookies:    cookies,
		httpClient: c.httpClient,
	}, nil
}

// NewRequest builds a request carrying the session headers.
func (s *Session) NewRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range s.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// Do sends a request with the session's cookies and bearer authorization.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	return s.httpClient.Do(req)
}
