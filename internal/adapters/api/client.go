// Package api is the HTTP boundary to the platform auth endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/SchemaBio/schema-platform-sub003/internal/domain"
	"github.com/SchemaBio/schema-platform-sub003/pkg/httpapi"
)

// Client talks to the auth REST endpoints. Transient transport failures are
// retried with exponential backoff; any non-2xx response is permanent and is
// surfaced as a domain.AuthError carrying the server's error code when the
// body has one.
type Client interface {
	Login(ctx context.Context, email, password string) (*domain.User, *domain.AuthToken, error)
	Logout(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthToken, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient returns a Client for the auth API at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) Client {
	return &httpClient{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    string       `json:"expiresAt"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (c *httpClient) Login(ctx context.Context, email, password string) (*domain.User, *domain.AuthToken, error) {
	var resp loginResponse
	err := c.post(ctx, "/auth/login", "", loginRequest{Email: email, Password: password}, &resp, domain.CodeInvalidCredentials)
	if err != nil {
		return nil, nil, err
	}
	if resp.User == nil {
		return nil, nil, domain.NewAuthError(domain.CodeInvalidCredentials, "login response missing user")
	}
	tokens := &domain.AuthToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt,
	}
	return resp.User, tokens, nil
}

// Logout asks the server to invalidate the session. Local sign-out does not
// depend on it succeeding.
func (c *httpClient) Logout(ctx context.Context, accessToken string) error {
	return c.post(ctx, "/auth/logout", accessToken, struct{}{}, nil, domain.CodeInvalidCredentials)
}

func (c *httpClient) Refresh(ctx context.Context, refreshToken string) (*domain.AuthToken, error) {
	tokens := &domain.AuthToken{}
	err := c.post(ctx, "/auth/refresh", "", refreshRequest{RefreshToken: refreshToken}, tokens, domain.CodeRefreshFailed)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func (c *httpClient) post(ctx context.Context, path, bearer string, payload interface{}, out interface{}, defaultCode string) error {
	op := func() error {
		body, err := json.Marshal(payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", c.baseURL, path), bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		res, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode >= 300 {
			return backoff.Permanent(authErrorFromBody(res.Body, defaultCode))
		}
		if out != nil {
			if err := json.NewDecoder(res.Body).Decode(out); err != nil {
				return backoff.Permanent(err)
			}
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 3 * time.Second
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// authErrorFromBody decodes the platform error envelope, falling back to
// defaultCode when the body is empty or not an envelope.
func authErrorFromBody(body io.Reader, defaultCode string) *domain.AuthError {
	var envelope httpapi.ErrorResponse
	if err := json.NewDecoder(body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
		return domain.NewAuthError(defaultCode, "")
	}
	return domain.NewAuthError(envelope.Error.Code, envelope.Error.Message)
}
