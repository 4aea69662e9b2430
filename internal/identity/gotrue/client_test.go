package gotrue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/uplink/internal/authform"
	"github.com/DukeRupert/uplink/internal/domain"
)

// =============================================================================
// Test Helpers
// =============================================================================

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   map[string]any
}

// requestLog collects requests seen by a test server.
type requestLog struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (l *requestLog) all() []recordedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedRequest(nil), l.requests...)
}

// newTestServer serves handler and records every request it receives.
func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *requestLog) {
	t.Helper()
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		log.mu.Lock()
		log.requests = append(log.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		log.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL, AnonKey: "anon-key"}, nil)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

// =============================================================================
// Configuration
// =============================================================================

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"missing url", Config{AnonKey: "k"}},
		{"missing key", Config{BaseURL: "https://example.supabase.co"}},
		{"bad scheme", Config{BaseURL: "ftp://example.com", AnonKey: "k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config, nil)
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// SignIn
// =============================================================================

func TestClient_SignIn_Success(t *testing.T) {
	srv, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "opaque",
			"expires_at":   1900000000,
			"user":         map[string]any{"id": "u-123", "email": "neo@matrix.io"},
		})
	})

	session, err := newTestClient(t, srv.URL).SignIn(context.Background(), "neo@matrix.io", "trinity")

	require.NoError(t, err)
	assert.Equal(t, "u-123", session.IdentityID)
	assert.Equal(t, "neo@matrix.io", session.Email)
	require.NotNil(t, session.ExpiresAt)
	assert.Equal(t, int64(1900000000), session.ExpiresAt.Unix())

	require.Len(t, requests.all(), 1)
	req := requests.all()[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/auth/v1/token", req.Path)
	assert.Equal(t, "grant_type=password", req.Query)
	assert.Equal(t, "anon-key", req.Header.Get("apikey"))
	assert.Equal(t, "Bearer anon-key", req.Header.Get("Authorization"))
	assert.Equal(t, "neo@matrix.io", req.Body["email"])
	assert.Equal(t, "trinity", req.Body["password"])
}

func TestClient_SignIn_IdentityFromAccessToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, "sub-from-token", exp)
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": token})
	})

	session, err := newTestClient(t, srv.URL).SignIn(context.Background(), "neo@matrix.io", "trinity")

	require.NoError(t, err)
	assert.Equal(t, "sub-from-token", session.IdentityID)
	require.NotNil(t, session.ExpiresAt)
	assert.True(t, exp.Equal(*session.ExpiresAt))
}

func TestClient_SignIn_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     map[string]any
		wantCode string
		wantMsg  string
	}{
		{
			name:     "invalid credentials (msg)",
			status:   http.StatusBadRequest,
			body:     map[string]any{"code": 400, "error_code": "invalid_credentials", "msg": "Invalid login credentials"},
			wantCode: domain.EUNAUTHORIZED,
			wantMsg:  "Invalid login credentials",
		},
		{
			name:     "invalid credentials (error_description)",
			status:   http.StatusBadRequest,
			body:     map[string]any{"error": "invalid_grant", "error_description": "Invalid login credentials"},
			wantCode: domain.EUNAUTHORIZED,
			wantMsg:  "Invalid login credentials",
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     map[string]any{"msg": "Request rate limit reached"},
			wantCode: domain.EUNAVAILABLE,
			wantMsg:  "Request rate limit reached",
		},
		{
			name:     "server error without body",
			status:   http.StatusBadGateway,
			wantCode: domain.EUNAVAILABLE,
			wantMsg:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.body == nil {
					w.WriteHeader(tt.status)
					return
				}
				writeJSON(w, tt.status, tt.body)
			})

			_, err := newTestClient(t, srv.URL).SignIn(context.Background(), "neo@matrix.io", "wrong")

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, domain.ErrorCode(err))
			assert.Equal(t, tt.wantMsg, domain.ErrorMessage(err))
		})
	}
}

func TestClient_SignIn_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).SignIn(context.Background(), "neo@matrix.io", "trinity")

	require.Error(t, err)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.Empty(t, domain.ErrorMessage(err))
}

// =============================================================================
// SignUp
// =============================================================================

func TestClient_SignUp(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]any
		wantID string
	}{
		{
			name:   "session returned",
			status: http.StatusOK,
			body: map[string]any{
				"access_token": "opaque",
				"user":         map[string]any{"id": "u-1", "email": "neo@matrix.io"},
			},
			wantID: "u-1",
		},
		{
			name:   "confirmation pending returns bare user",
			status: http.StatusOK,
			body:   map[string]any{"id": "u-2", "email": "neo@matrix.io"},
			wantID: "u-2",
		},
		{
			name:   "obfuscated user",
			status: http.StatusOK,
			body:   map[string]any{},
			wantID: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			session, err := newTestClient(t, srv.URL).SignUp(context.Background(), domain.SignUpParams{
				Email:    "neo@matrix.io",
				Password: "trinity",
				Username: "neo",
			})

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, session.IdentityID)

			require.Len(t, requests.all(), 1)
			req := requests.all()[0]
			assert.Equal(t, "/auth/v1/signup", req.Path)
			assert.Equal(t, map[string]any{"username": "neo"}, req.Body["data"])
		})
	}
}

func TestClient_SignUp_AlreadyRegistered(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"code":       422,
			"error_code": "user_already_exists",
			"msg":        "User already registered",
		})
	})

	_, err := newTestClient(t, srv.URL).SignUp(context.Background(), domain.SignUpParams{Email: "neo@matrix.io", Password: "trinity"})

	require.Error(t, err)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
	assert.Equal(t, "User already registered", domain.ErrorMessage(err))
}

// =============================================================================
// UpsertProfile
// =============================================================================

func TestClient_UpsertProfile(t *testing.T) {
	srv, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	c, err := New(Config{BaseURL: srv.URL, AnonKey: "anon-key", ServiceKey: "service-key", ProfilesTable: "players"}, nil)
	require.NoError(t, err)

	err = c.UpsertProfile(context.Background(), domain.NewProfile("u-1", "neo"))

	require.NoError(t, err)
	require.Len(t, requests.all(), 1)
	req := requests.all()[0]
	assert.Equal(t, "/rest/v1/players", req.Path)
	assert.Equal(t, "Bearer service-key", req.Header.Get("Authorization"))
	assert.Equal(t, "anon-key", req.Header.Get("apikey"))
	assert.Contains(t, req.Header.Get("Prefer"), "resolution=merge-duplicates")
	assert.Equal(t, map[string]any{
		"id":          "u-1",
		"username":    "neo",
		"wins":        float64(0),
		"losses":      float64(0),
		"total_score": float64(0),
	}, req.Body)
}

func TestClient_UpsertProfile_Failure(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"code":    "42P01",
			"message": `relation "public.profiles" does not exist`,
		})
	})

	err := newTestClient(t, srv.URL).UpsertProfile(context.Background(), domain.NewProfile("u-1", "neo"))

	require.Error(t, err)
	assert.Equal(t, `relation "public.profiles" does not exist`, domain.ErrorMessage(err))
}

// =============================================================================
// Through the auth form
// =============================================================================

func TestClient_WithAuthForm(t *testing.T) {
	srv, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/signup":
			writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": "u-9"}})
		case "/rest/v1/profiles":
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "new row violates row-level security policy"})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "Invalid login credentials"})
		}
	})
	orch := authform.NewOrchestrator(newTestClient(t, srv.URL), nil)

	fired := 0
	signup := orch.NewFormInMode(authform.ModeSignup, func() { fired++ })
	out := signup.Submit(context.Background(), authform.Fields{Email: "neo@matrix.io", Password: "trinity"})
	assert.True(t, out.OK(), "profile write rejection does not fail sign-up")
	assert.Equal(t, 1, fired)
	assert.Len(t, requests.all(), 2)

	login := orch.NewForm(nil)
	out = login.Submit(context.Background(), authform.Fields{Email: "neo@matrix.io", Password: "nottrinity"})
	assert.Equal(t, "INVALID_LOGIN_CREDENTIALS", out.Code)
}

func TestClient_Unreachable_WithAuthForm(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	form := authform.NewOrchestrator(newTestClient(t, url), nil).NewForm(nil)
	out := form.Submit(context.Background(), authform.Fields{Email: "neo@matrix.io", Password: "trinity"})

	assert.Equal(t, authform.CodeLinkFailure, out.Code)
}
