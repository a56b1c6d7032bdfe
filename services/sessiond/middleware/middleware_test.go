package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	subject, _ := r.Context().Value(ContextKeySubject).(string)
	_, _ = w.Write([]byte(subject))
})

func TestAuthenticatorDisabledPassesThrough(t *testing.T) {
	auth := NewAuthenticator("", nil)
	require.False(t, auth.Enabled())
	rec := httptest.NewRecorder()
	auth.Middleware(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tally", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticatorChecksTokens(t *testing.T) {
	auth := NewAuthenticator("s3cret", nil)
	handler := auth.Middleware(ok)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tally", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := Sign("other", "ops", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/tally", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := Sign("s3cret", "ops", -time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/v1/tally", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	valid, err := Sign("s3cret", "ops", time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/v1/tally", nil)
	req.Header.Set("Authorization", "bearer "+valid)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ops", rec.Body.String())
}

func TestRateLimiterPerClient(t *testing.T) {
	limiter := NewRateLimiter(60, 2)
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return frozen }
	handler := limiter.Middleware(ok)

	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/votes", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusOK, hit("10.0.0.1:4000"))
	require.Equal(t, http.StatusOK, hit("10.0.0.1:4001"))
	require.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1:4002"))
	require.Equal(t, http.StatusOK, hit("10.0.0.2:4000"))

	frozen = frozen.Add(time.Second)
	require.Equal(t, http.StatusOK, hit("10.0.0.1:4003"))
}
