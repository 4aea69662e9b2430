// Package gotrue talks to a hosted identity service that exposes the GoTrue
// auth API and a PostgREST data API (the layout used by Supabase projects).
package gotrue

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

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/DukeRupert/uplink/internal/domain"
)

const (
	// DefaultProfilesTable is the PostgREST table that holds profiles.
	DefaultProfilesTable = "profiles"

	// DefaultTimeout bounds a single request to the identity service.
	DefaultTimeout = 15 * time.Second

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 * 1024
)

// Config contains configuration for the client.
type Config struct {
	BaseURL       string // Project URL, e.g. https://xyz.supabase.co
	AnonKey       string // Public API key sent with every request
	ServiceKey    string // Optional key used for profile writes instead of AnonKey
	ProfilesTable string
	Timeout       time.Duration
}

// Client implements the identity service over HTTP.
type Client struct {
	config  Config
	baseURL *url.URL
	client  *http.Client
	logger  *slog.Logger
}

// New creates a new client.
func New(config Config, logger *slog.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("gotrue base URL is required")
	}
	if config.AnonKey == "" {
		return nil, fmt.Errorf("gotrue anon key is required")
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gotrue base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("gotrue base URL must be http or https, got %q", config.BaseURL)
	}

	// Set defaults
	if config.ProfilesTable == "" {
		config.ProfilesTable = DefaultProfilesTable
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		config:  config,
		baseURL: base,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}, nil
}

// =============================================================================
// Wire types
// =============================================================================

type credentialsRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// sessionResponse covers both shapes returned by the auth API: a session
// with a nested user, and a bare user when email confirmation is pending.
type sessionResponse struct {
	AccessToken string        `json:"access_token"`
	ExpiresAt   int64         `json:"expires_at"`
	User        *userResponse `json:"user"`

	ID    string `json:"id"`
	Email string `json:"email"`
}

type profileRow struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	TotalScore int    `json:"total_score"`
}

type apiErrorResponse struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
}

// message returns the most specific human-readable text in the body.
func (e apiErrorResponse) message() string {
	for _, m := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

// =============================================================================
// Identity operations
// =============================================================================

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	const op = "gotrue.sign_in"

	var resp sessionResponse
	err := c.do(ctx, op, http.MethodPost, "/auth/v1/token", url.Values{"grant_type": {"password"}},
		credentialsRequest{Email: email, Password: password}, c.config.AnonKey, nil, &resp)
	if err != nil {
		return nil, err
	}
	return c.sessionFrom(resp), nil
}

// SignUp registers a new identity with the username stored as metadata.
func (c *Client) SignUp(ctx context.Context, params domain.SignUpParams) (*domain.Session, error) {
	const op = "gotrue.sign_up"

	var resp sessionResponse
	err := c.do(ctx, op, http.MethodPost, "/auth/v1/signup", nil, credentialsRequest{
		Email:    params.Email,
		Password: params.Password,
		Data:     map[string]any{"username": params.Username},
	}, c.config.AnonKey, nil, &resp)
	if err != nil {
		return nil, err
	}
	return c.sessionFrom(resp), nil
}

// UpsertProfile writes the profile row, merging with an existing row that
// has the same id.
func (c *Client) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	const op = "gotrue.upsert_profile"

	key := c.config.ServiceKey
	if key == "" {
		key = c.config.AnonKey
	}
	headers := http.Header{}
	headers.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	return c.do(ctx, op, http.MethodPost, "/rest/v1/"+url.PathEscape(c.config.ProfilesTable), nil, profileRow{
		ID:         profile.ID,
		Username:   profile.Username,
		Wins:       profile.Wins,
		Losses:     profile.Losses,
		TotalScore: profile.TotalScore,
	}, key, headers, nil)
}

// sessionFrom converts an auth API response into a session. When the user
// object is missing, the identity comes from the access token's subject.
func (c *Client) sessionFrom(resp sessionResponse) *domain.Session {
	session := &domain.Session{
		IdentityID:  resp.ID,
		Email:       resp.Email,
		AccessToken: resp.AccessToken,
	}
	if resp.User != nil {
		session.IdentityID = resp.User.ID
		session.Email = resp.User.Email
	}
	if resp.ExpiresAt > 0 {
		t := time.Unix(resp.ExpiresAt, 0)
		session.ExpiresAt = &t
	}

	if resp.AccessToken != "" && (session.IdentityID == "" || session.ExpiresAt == nil) {
		sub, exp, err := tokenClaims(resp.AccessToken)
		if err != nil {
			c.logger.Debug("access token not readable", "error", err)
		}
		if session.IdentityID == "" {
			session.IdentityID = sub
		}
		if session.ExpiresAt == nil && exp != nil {
			session.ExpiresAt = exp
		}
	}
	return session
}

// tokenClaims reads the subject and expiry from an access token without
// verifying its signature. The token came straight from the identity service
// over the same connection, and nothing here makes trust decisions with it.
func tokenClaims(token string) (string, *time.Time, error) {
	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(token, claims); err != nil {
		return "", nil, err
	}

	sub, _ := claims.GetSubject()
	exp, _ := claims.GetExpirationTime()
	if exp == nil {
		return sub, nil, nil
	}
	return sub, &exp.Time, nil
}

// =============================================================================
// Transport
// =============================================================================

// do sends a JSON request and decodes a JSON response into out (if non-nil).
// Every failure is returned as a *domain.Error.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, key string, headers http.Header, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.Internal(err, op, "")
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
	if err != nil {
		return domain.Internal(err, op, "")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.config.AnonKey)
	req.Header.Set("Authorization", "Bearer "+key)
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		// No answer from the service: leave the message empty.
		c.logger.Warn("identity service unreachable", "op", op, "error", err)
		return domain.Unavailable(err, op, "")
	}
	defer resp.Body.Close()

	c.logger.Debug("identity service call",
		"op", op,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return mapHTTPError(op, resp.StatusCode, bodyBytes)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Unavailable(fmt.Errorf("decode response: %w", err), op, "")
	}
	return nil
}

// mapHTTPError maps an error response to a domain error carrying the
// service's own message.
func mapHTTPError(op string, statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)
	msg := errResp.message()

	code := domain.EINTERNAL
	switch {
	case errResp.ErrorCode == "user_already_exists" || errResp.ErrorCode == "email_exists":
		code = domain.ECONFLICT
	case statusCode == http.StatusConflict:
		code = domain.ECONFLICT
	case statusCode == http.StatusBadRequest && op == "gotrue.sign_in",
		statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		code = domain.EUNAUTHORIZED
	case statusCode == http.StatusBadRequest, statusCode == http.StatusUnprocessableEntity:
		code = domain.EINVALID
	case statusCode == http.StatusTooManyRequests, statusCode >= 500:
		code = domain.EUNAVAILABLE
	}

	return &domain.Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Err:     fmt.Errorf("identity service returned status %d", statusCode),
	}
}
