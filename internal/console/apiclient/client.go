// Package apiclient talks to the console API on behalf of one session. Every
// failure comes back as *Error; a 401 ends the session through
// session.Store.Expire so concurrent requests log out once.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"notifycsc/internal/console/session"
)

const defaultTimeout = 30 * time.Second

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

type Client struct {
	base    *url.URL
	http    *http.Client
	session *session.Store
}

// New returns a client for the API mounted at baseURL + "/api/v1".
func New(baseURL string, store *session.Store, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("server url %q must include scheme and host", baseURL)
	}
	c := &Client{base: base, http: &http.Client{Timeout: defaultTimeout}, session: store}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Session() *session.Store {
	return c.session
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	header http.Header
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1" + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends req and decodes the envelope's data into out when out is non-nil.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return &Error{Kind: KindValidation, Message: "could not encode request", Err: err}
		}
		body = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path, req.query), body)
	if err != nil {
		return &Error{Kind: KindTransport, Message: MessageNoResponse, Err: err}
	}
	for key, values := range req.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	token, generation := "", uint64(0)
	if c.session != nil {
		token, generation = c.session.Current()
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &Error{Kind: KindTransport, Message: MessageNoResponse, Err: err}
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 400 {
		apiErr := &Error{Status: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Fields = fieldIssues(env.Error.Details)
		}
		apiErr.Kind = kindForStatus(resp.StatusCode, apiErr.Code)
		if apiErr.Kind == KindAuthentication && token != "" && c.session != nil {
			if c.session.Expire(generation) {
				slog.Info("session expired by server", "path", req.path)
			}
		}
		return apiErr
	}
	if decodeErr != nil {
		return &Error{Kind: KindBusiness, Status: resp.StatusCode, Message: "unreadable server response", Err: decodeErr}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: KindBusiness, Status: resp.StatusCode, Message: "unreadable server response", Err: err}
	}
	return nil
}

// fieldIssues flattens details.fields ([{field, reason}]) into a map.
func fieldIssues(details map[string]any) map[string]string {
	raw, ok := details["fields"].([]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for _, item := range raw {
		issue, ok := item.(map[string]any)
		if !ok {
			continue
		}
		field, _ := issue["field"].(string)
		reason, _ := issue["reason"].(string)
		if field != "" {
			out[field] = reason
		}
	}
	return out
}
