// Package auth talks to the backend's register and login endpoints and keeps
// the resulting access token.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"Chatdesk/internal/backend"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ErrMissingCredentials is returned before any request when email or
// password is empty.
var ErrMissingCredentials = errors.New("email and password are required")

// APIError is a non-2xx reply from the auth endpoints
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP error! status: %d", e.Status)
}

// Client calls the register and login endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewClient creates an auth client for baseURL. Nil dependencies get
// defaults.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, tracer trace.Tracer) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("chatdesk")
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		tracer:     tracer,
	}
}

// Register creates an account
func (c *Client) Register(ctx context.Context, email, password string) (err error) {
	ctx, span := c.tracer.Start(ctx, "auth_register")
	defer endSpan(span, &err)

	if email == "" || password == "" {
		return ErrMissingCredentials
	}

	jsonData, err := json.Marshal(backend.RegisterRequest{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/register", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(req); err != nil {
		return err
	}

	c.logger.Info("registered account", "email", email)
	return nil
}

// Login exchanges email and password for an access token
func (c *Client) Login(ctx context.Context, email, password string) (token string, err error) {
	ctx, span := c.tracer.Start(ctx, "auth_login")
	defer endSpan(span, &err)

	if email == "" || password == "" {
		return "", ErrMissingCredentials
	}

	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var loginResp backend.LoginResponse
	if err := json.Unmarshal(body, &loginResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if loginResp.AccessToken == "" {
		return "", fmt.Errorf("login response carried no access token")
	}

	c.logger.Info("logged in", "email", email)
	return loginResp.AccessToken, nil
}

// Me returns the account the token belongs to
func (c *Client) Me(ctx context.Context, token string) (user *backend.UserResponse, err error) {
	ctx, span := c.tracer.Start(ctx, "auth_me")
	defer endSpan(span, &err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	user = &backend.UserResponse{}
	if err := json.Unmarshal(body, user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return user, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errResp backend.ErrorResponse
		if json.Unmarshal(body, &errResp) == nil {
			apiErr.Detail, _ = errResp.DetailString()
		}
		return nil, apiErr
	}
	return body, nil
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
		var apiErr *APIError
		if errors.As(*err, &apiErr) {
			span.SetAttributes(attribute.Int("http.response.status_code", apiErr.Status))
		}
	}
	span.End()
}
