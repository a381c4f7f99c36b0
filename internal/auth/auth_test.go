package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testSecret = "test-secret-key-that-is-long-enough-for-testing"

func TestSessionIssueAndParse(t *testing.T) {
	m, err := NewSessionManager(testSecret, time.Hour)
	require.NoError(t, err)

	token, err := m.Issue("user-1", "farmer@example.com", "Farmer")
	require.NoError(t, err)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "farmer@example.com", claims.Email)
	assert.Equal(t, "Farmer", claims.Name)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestSessionRejectsBadTokens(t *testing.T) {
	m, err := NewSessionManager(testSecret, time.Hour)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		past := time.Now().Add(-2 * time.Hour)
		m.now = func() time.Time { return past }
		token, err := m.Issue("user-1", "a@b.c", "")
		require.NoError(t, err)
		m.now = time.Now

		_, err = m.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewSessionManager("another-secret", time.Hour)
		require.NoError(t, err)
		token, err := other.Issue("user-1", "a@b.c", "")
		require.NoError(t, err)

		_, err = m.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("unsigned", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "user-1"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Parse("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})
}

func TestNewSessionManagerRequiresSecret(t *testing.T) {
	_, err := NewSessionManager("", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func newGoogleServer(t *testing.T, profile map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server) *GoogleProvider {
	return NewGoogleProvider("client-id", "client-secret", "http://localhost:8080/auth/google/callback",
		WithEndpoint(oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}),
		WithUserInfoURL(srv.URL+"/userinfo"),
	)
}

func TestAuthCodeURL(t *testing.T) {
	p := NewGoogleProvider("client-id", "secret", "http://localhost:8080/auth/google/callback")

	u, err := url.Parse(p.AuthCodeURL("state-xyz"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-xyz", q.Get("state"))
	assert.Equal(t, "profile email", q.Get("scope"))
	assert.Equal(t, "http://localhost:8080/auth/google/callback", q.Get("redirect_uri"))
}

func TestIdentify(t *testing.T) {
	srv := newGoogleServer(t, map[string]any{
		"sub":            "google-42",
		"email":          "farmer@example.com",
		"email_verified": true,
		"name":           "Farmer",
	})
	p := testProvider(srv)

	profile, err := p.Identify(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "google-42", profile.Subject)
	assert.Equal(t, "farmer@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "Farmer", profile.Name)
}

func TestIdentifyFailures(t *testing.T) {
	t.Run("bad code", func(t *testing.T) {
		p := testProvider(newGoogleServer(t, map[string]any{"sub": "x", "email": "x@y.z"}))
		_, err := p.Identify(context.Background(), "bad-code")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exchange code")
	})

	t.Run("empty profile", func(t *testing.T) {
		p := testProvider(newGoogleServer(t, map[string]any{}))
		_, err := p.Identify(context.Background(), "good-code")
		assert.ErrorIs(t, err, ErrNoProfile)
	})
}

func TestNewStateIsRandom(t *testing.T) {
	assert.NotEqual(t, NewState(), NewState())
	assert.NotEmpty(t, NewState())
}
