package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/metrics"
	"github.com/pribylovaa/bytebot-auth/internal/pkg/log"
	"github.com/pribylovaa/bytebot-auth/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// fakeAuth отображает токен в заранее заданный результат.
type fakeAuth struct {
	mu      sync.Mutex
	claims  map[string]*service.AccessClaims
	errs    map[string]error
	touched []uuid.UUID
	timeout time.Duration
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{claims: map[string]*service.AccessClaims{}, errs: map[string]error{}}
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*service.AccessClaims, error) {
	if err, ok := f.errs[token]; ok {
		return nil, err
	}
	if c, ok := f.claims[token]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("service.token.Authenticate: %w", service.ErrInvalidSession)
}

func (f *fakeAuth) TouchPresence(_ context.Context, userID uuid.UUID, timeout time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, userID)
	f.timeout = timeout
}

func gate(t *testing.T, auth Authenticator) (http.Handler, *prometheus.Registry, *Principal) {
	t.Helper()

	reg := prometheus.NewRegistry()
	seen := &Principal{}

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		require.True(t, ok)
		*seen = p
		w.WriteHeader(http.StatusOK)
	})

	return Chain(final, Session(auth, metrics.New(reg), 2*time.Second)), reg, seen
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) errEnvelope {
	t.Helper()

	var env errEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestSession_BearerOK_SetsPrincipalAndTouchesPresence(t *testing.T) {
	auth := newFakeAuth()
	uid := uuid.New()
	auth.claims["good"] = &service.AccessClaims{UserID: uid, Email: "a@x.com", TokenID: "jti-1"}

	h, _, seen := gate(t, auth)

	rr := httptest.NewRecorder()
	req := makeReq("/api/user/me")
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, uid, seen.UserID)
	require.Equal(t, "a@x.com", seen.Email)
	require.Equal(t, "jti-1", seen.TokenID)
	require.Equal(t, []uuid.UUID{uid}, auth.touched)
	require.Equal(t, 2*time.Second, auth.timeout)
}

func TestSession_QueryTokenFallback(t *testing.T) {
	auth := newFakeAuth()
	auth.claims["q"] = &service.AccessClaims{UserID: uuid.New(), TokenID: "jti-q"}

	h, _, seen := gate(t, auth)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, makeReq("/ws?token=q"))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "jti-q", seen.TokenID)
}

func TestSession_Rejections(t *testing.T) {
	auth := newFakeAuth()
	auth.errs["expired"] = fmt.Errorf("op: %w", service.ErrTokenExpired)
	auth.errs["revoked"] = fmt.Errorf("op: %w", service.ErrTokenRevoked)
	auth.errs["down"] = fmt.Errorf("op: %w: %w", service.ErrStoreUnavailable, errors.New("redis: connection refused"))

	tcs := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"missing", "", http.StatusUnauthorized, "unauthorized"},
		{"wrong_scheme", "Basic abc", http.StatusUnauthorized, "unauthorized"},
		{"invalid", "Bearer garbage", http.StatusUnauthorized, "unauthorized"},
		{"expired", "Bearer expired", http.StatusUnauthorized, "unauthorized"},
		{"revoked", "Bearer revoked", http.StatusUnauthorized, "unauthorized"},
		{"registry_down", "Bearer down", http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			h, _, _ := gate(t, auth)

			rr := httptest.NewRecorder()
			req := makeReq("/api/user/me")
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			h.ServeHTTP(rr, req)

			require.Equal(t, tc.wantStatus, rr.Code)
			env := decodeEnvelope(t, rr)
			require.Equal(t, tc.wantCode, env.Error.Code)
			require.NotContains(t, rr.Body.String(), "redis")
		})
	}

	require.Empty(t, auth.touched)
}

func TestSession_CountsRejectionReasons(t *testing.T) {
	auth := newFakeAuth()
	auth.errs["expired"] = service.ErrTokenExpired
	auth.errs["revoked"] = service.ErrTokenRevoked

	h, reg, _ := gate(t, auth)

	for _, header := range []string{"", "Bearer garbage", "Bearer expired", "Bearer revoked"} {
		rr := httptest.NewRecorder()
		req := makeReq("/api/user/me")
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	// missing, invalid, expired, revoked: четыре отдельные серии.
	n, err := testutil.GatherAndCount(reg, "bytebot_auth_session_gate_rejections_total")
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestSession_AddsUserIDToRequestLogger(t *testing.T) {
	auth := newFakeAuth()
	uid := uuid.New()
	auth.claims["good"] = &service.AccessClaims{UserID: uid, TokenID: "jti"}

	ch := &capHandler{}
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.From(r.Context()).Info("probe")
		w.WriteHeader(http.StatusOK)
	})

	h := Chain(final, Session(auth, nil, time.Second))

	req := makeReq("/x")
	req.Header.Set("Authorization", "Bearer good")
	req = req.WithContext(log.Into(req.Context(), slog.New(ch)))
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "probe", ch.lastMsg)
	require.Equal(t, uid.String(), ch.attrs["user_id"])
}

func TestTokenFromRequest(t *testing.T) {
	req := makeReq("/x?token=from-query")
	require.Equal(t, "from-query", TokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer from-header")
	require.Equal(t, "from-header", TokenFromRequest(req))

	req.Header.Set("Authorization", "bearer lower")
	require.Equal(t, "lower", TokenFromRequest(req))

	req = makeReq("/x")
	req.Header.Set("Authorization", "Bearer    ")
	require.Empty(t, TokenFromRequest(req))
}
