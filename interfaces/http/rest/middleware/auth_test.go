package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/pkg/auth"
)

func authHarness(t *testing.T, limiter *auth.TokenBucketLimiter) (*auth.TokenManager, http.Handler, *auth.UserContext) {
	t.Helper()

	tokens := auth.NewTokenManager("test-secret", "heirloom-test", time.Hour)
	if limiter == nil {
		limiter = auth.NewTokenBucketLimiter(100, time.Hour)
	}

	captured := &auth.UserContext{}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := auth.GetUserFromContext(r.Context())
		require.NoError(t, err)
		*captured = *user
		w.WriteHeader(http.StatusOK)
	})

	return tokens, Authenticate(tokens, limiter, zap.NewNop())(inner), captured
}

func TestAuthenticatePassesValidToken(t *testing.T) {
	tokens, handler, captured := authHarness(t, nil)

	token, err := tokens.Issue("ana", "space-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/tree", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana", captured.Username)
	assert.Equal(t, "space-1", captured.SpaceID)
}

func TestAuthenticateRejectsMissingAndBadTokens(t *testing.T) {
	_, handler, _ := authHarness(t, nil)

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"malformed token", "Bearer not-a-token"},
		{"wrong signature", "Bearer eyJhbGciOiJIUzI1NiJ9.e30.bad"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/tree", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthenticateReportsExpiredToken(t *testing.T) {
	_, handler, _ := authHarness(t, nil)

	shortLived := auth.NewTokenManager("test-secret", "heirloom-test", time.Millisecond)
	token, err := shortLived.Issue("ana", "space-1")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/tree", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token has expired")
}

func TestAuthenticateRateLimitsPerIP(t *testing.T) {
	tokens, handler, _ := authHarness(t, auth.NewTokenBucketLimiter(2, time.Hour))

	token, err := tokens.Issue("ana", "space-1")
	require.NoError(t, err)

	status := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/tree", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, status("10.0.0.1"))
	assert.Equal(t, http.StatusOK, status("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, status("10.0.0.1"))
	assert.Equal(t, http.StatusOK, status("10.0.0.2"))
}
