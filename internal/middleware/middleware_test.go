package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluefermion/reviews/internal/logger"
	"github.com/bluefermion/reviews/internal/model"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestIDGenerated(t *testing.T) {
	var ctxID string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctxID = logger.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	respID := rec.Header().Get("X-Request-ID")
	_, err := uuid.Parse(respID)
	assert.NoError(t, err)
	assert.Equal(t, respID, ctxID)
}

func TestRequestIDPropagated(t *testing.T) {
	var ctxID string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctxID = logger.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("X-Request-ID", "edge-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "edge-123", ctxID)
	assert.Equal(t, "edge-123", rec.Header().Get("X-Request-ID"))
}

func TestRequestIDRejectsGarbage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("X-Request-ID", "has spaces\n"+strings.Repeat("x", 200))
	rec := httptest.NewRecorder()
	RequestID(okHandler).ServeHTTP(rec, req)

	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(Logging(base)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/missing", http.NoBody)
	req.Header.Set("X-Request-ID", "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "/missing", entry["path"])
	assert.EqualValues(t, 404, entry["status"])
	assert.EqualValues(t, 4, entry["bytes"])
	assert.Equal(t, "req-42", entry["request_id"])
}

func newLimiter(rps float64, burst int) *RateLimiter {
	rl := NewRateLimiter(rps, burst)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	return rl
}

func hit(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/reviews", http.NoBody)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterBurstThenReject(t *testing.T) {
	rl := newLimiter(1, 3)
	h := rl.Handler(okHandler)

	for i := range 3 {
		assert.Equal(t, http.StatusOK, hit(h, "198.51.100.7").Code, "request %d", i+1)
	}
	rec := hit(h, "198.51.100.7")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var body model.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "rate_limited", body.Code)
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := newLimiter(1, 1)
	h := rl.Handler(okHandler)

	assert.Equal(t, http.StatusOK, hit(h, "198.51.100.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "198.51.100.1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "198.51.100.2").Code)

	// Forwarded headers do not buy a fresh bucket.
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	req.RemoteAddr = "198.51.100.1:1"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }
	h := rl.Handler(okHandler)

	hit(h, "198.51.100.1")
	current = current.Add(10 * time.Minute)
	hit(h, "198.51.100.2")
	require.Equal(t, 2, rl.Len())

	rl.cleanup(5 * time.Minute)
	assert.Equal(t, 1, rl.Len())
}

func TestRateLimiterFullTableAdmitsNewVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.maxVisitor = 3
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }
	h := rl.Handler(okHandler)

	for _, ip := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		require.Equal(t, http.StatusOK, hit(h, ip).Code)
		current = current.Add(time.Millisecond)
	}
	require.Equal(t, 3, rl.Len())

	assert.Equal(t, http.StatusOK, hit(h, "203.0.113.9").Code)
	assert.Equal(t, 3, rl.Len())

	// The stalest visitor made room, so it starts over with a full bucket
	// while the recent ones are still limited.
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "198.51.100.3").Code)
	assert.Equal(t, http.StatusOK, hit(h, "198.51.100.1").Code)
}

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()

	tok, err := IssueToken(secret, "user-1", model.PlanPro, time.Hour, now)
	require.NoError(t, err)

	c, err := ParseToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, &Caller{UserID: "user-1", Plan: model.PlanPro}, c)

	_, err = ParseToken([]byte("other"), tok)
	assert.Error(t, err)

	expired, err := IssueToken(secret, "user-1", "", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = ParseToken(secret, expired)
	assert.Error(t, err)

	_, err = IssueToken(nil, "user-1", "", time.Hour, now)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestAuthMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	var got *Caller
	h := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tok, err := IssueToken(secret, "user-9", "", time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + tok, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/portals/x", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	require.NotNil(t, got)
	assert.Equal(t, "user-9", got.UserID)
	assert.Equal(t, model.PlanFree, got.Plan)
}
