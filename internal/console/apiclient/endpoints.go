package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"notifycsc/internal/console/session"
	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/documents"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/domain/policy"
)

const minVehicleChars = 4

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode,omitempty"`
}

// Login authenticates and stores the credentials in the session.
func (c *Client) Login(ctx context.Context, in LoginInput) (session.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" {
		return session.User{}, Invalid("email", "is required")
	}
	if in.Password == "" {
		return session.User{}, Invalid("password", "is required")
	}

	var result auth.LoginResult
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: in}, &result); err != nil {
		return session.User{}, err
	}
	user := session.User{
		ID:    result.User.ID,
		Email: result.User.Email,
		Name:  result.User.Name,
		Role:  result.User.Role,
	}
	c.session.SetCredentials(result.Token, user)
	return user, nil
}

// Logout revokes the server session and always clears the local one.
func (c *Client) Logout(ctx context.Context) error {
	if !c.session.Authenticated() {
		return nil
	}
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/logout"}, nil)
	c.session.Clear()
	if KindOf(err) == KindAuthentication {
		return nil
	}
	return err
}

type LookupResult struct {
	Type    listquery.LookupType `json:"type"`
	Results []policy.Summary     `json:"results"`
}

// Lookup runs the public insurance-status search. Malformed values are
// rejected before any request is made.
func (c *Client) Lookup(ctx context.Context, kind listquery.LookupType, value string) (LookupResult, error) {
	value = strings.TrimSpace(value)
	switch kind {
	case listquery.LookupMobile:
		value = policy.NormalizeMobile(value)
		if !policy.ValidMobile(value) {
			return LookupResult{}, Invalid("value", "must be a 10 digit mobile number")
		}
	case listquery.LookupVehicle:
		if len(policy.NormalizeVehicleNumber(value)) < minVehicleChars {
			return LookupResult{}, Invalid("value", "must contain at least 4 characters")
		}
	default:
		return LookupResult{}, Invalid("type", "must be vehicle or mobile")
	}

	query := url.Values{"type": {string(kind)}, "value": {value}}
	var out LookupResult
	if err := c.do(ctx, request{method: http.MethodGet, path: "/public/lookup", query: query}, &out); err != nil {
		return LookupResult{}, err
	}
	return out, nil
}

func (c *Client) ListPolicies(ctx context.Context, q listquery.Query) (listquery.Result[policy.View], error) {
	if err := q.Validate(); err != nil {
		return listquery.Result[policy.View]{}, Invalid("expiryTo", "must not be before expiryFrom")
	}
	var out listquery.Result[policy.View]
	err := c.do(ctx, request{method: http.MethodGet, path: "/policies", query: q.Values()}, &out)
	return out, err
}

// SendReminder posts a reminder for one policy. Retries with the same key are
// answered from the server's stored response.
func (c *Client) SendReminder(ctx context.Context, policyID, idempotencyKey string) (policy.ReminderResult, error) {
	header := http.Header{}
	if idempotencyKey != "" {
		header.Set("Idempotency-Key", idempotencyKey)
	}
	var out policy.ReminderResult
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/policies/" + url.PathEscape(policyID) + "/reminders",
		header: header,
	}, &out)
	return out, err
}

func (c *Client) ListDocuments(ctx context.Context, q listquery.Query, categoryID string) (listquery.Result[documents.Document], error) {
	values := q.Values()
	if categoryID != "" {
		values.Set("categoryId", categoryID)
	}
	var out listquery.Result[documents.Document]
	err := c.do(ctx, request{method: http.MethodGet, path: "/documents", query: values}, &out)
	return out, err
}

func (c *Client) ApproveDocument(ctx context.Context, id string) (documents.Document, error) {
	var out documents.Document
	err := c.do(ctx, request{method: http.MethodPost, path: "/documents/" + url.PathEscape(id) + "/approve"}, &out)
	return out, err
}

func (c *Client) RejectDocument(ctx context.Context, id, reason string) (documents.Document, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return documents.Document{}, Invalid("reason", "is required")
	}
	var out documents.Document
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/documents/" + url.PathEscape(id) + "/reject",
		body:   map[string]string{"reason": reason},
	}, &out)
	return out, err
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/documents/" + url.PathEscape(id)}, nil)
}
