package authsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventostec/eventostec/pkg/observability"
	"github.com/eventostec/eventostec/pkg/orgassign"
)

func newTestHandler(t *testing.T, limiter *LoginRateLimiter) *mux.Router {
	t.Helper()

	svc := newTestService(&stubStore{}, &stubAssigner{result: &orgassign.AssignmentResult{
		Success:      true,
		Organization: &orgassign.Organization{ID: "org-1", Acronym: "ITP"},
	}})
	logger := observability.NewLogger(observability.ErrorLevel, nil)
	handler := NewHandler(svc, limiter, nil, logger, "development", "unverified")

	router := mux.NewRouter()
	router.Use(RequestIDMiddleware)
	handler.Register(router)
	return router
}

func TestHandleLogin_BodyRequest(t *testing.T) {
	router := newTestHandler(t, nil)

	body := fmt.Sprintf(`{"idToken":%q,"clientType":"ANDROID_STUDENT"}`,
		testToken(t, "ana@itp.edu.mx", "google-1"))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var result AuthResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Message)
	assert.Equal(t, "ana@itp.edu.mx", result.User.Email)
	assert.Equal(t, "ITP", result.Organization.Acronym)
	assert.True(t, result.IsNewUser)
}

func TestHandleLogin_HeaderFallbacks(t *testing.T) {
	router := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, "ana@itp.edu.mx", "google-1"))
	req.Header.Set("X-Client-Type", "ANDROID_STUDENT")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleLogin_MissingToken(t *testing.T) {
	router := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLogin_InvalidTokenReturns401(t *testing.T) {
	router := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"idToken":"garbage","clientType":"ANDROID_STUDENT"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleLogin_UnauthorizedDomainReturns401(t *testing.T) {
	router := newTestHandler(t, nil)

	body := fmt.Sprintf(`{"idToken":%q,"clientType":"WEB_ADMIN"}`,
		testToken(t, "intruder@gmail.com", "google-2"))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "not authorized")
}

func TestHandleLogin_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, nil)
	limiter := NewLoginRateLimiter(client, 2, time.Minute, logger)
	router := newTestHandler(t, limiter)

	body := fmt.Sprintf(`{"idToken":%q,"clientType":"ANDROID_STUDENT"}`,
		testToken(t, "ana@itp.edu.mx", "google-1"))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different client IP still gets through.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.RemoteAddr = "10.0.0.2:5000"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_FailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	logger := observability.NewLogger(observability.ErrorLevel, nil)
	limiter := NewLoginRateLimiter(client, 1, time.Minute, logger)

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow(context.Background(), "10.0.0.1"))
	}
}

func TestHandleStatus(t *testing.T) {
	router := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		OIDCInitialized  bool     `json:"oidc_initialized"`
		Environment      string   `json:"environment"`
		AuthFlow         string   `json:"auth_flow"`
		ClientTypes      []string `json:"client_types"`
		VerificationMode string   `json:"verification_mode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.OIDCInitialized)
	assert.Equal(t, "development", resp.Environment)
	assert.Equal(t, "authorization_code", resp.AuthFlow)
	assert.Contains(t, resp.ClientTypes, "ANDROID_STUDENT")
	assert.Equal(t, "unverified", resp.VerificationMode)
}

func TestHandleLogin_FirstLoginIncrementsUsersCreated(t *testing.T) {
	svc := newTestService(&stubStore{}, &stubAssigner{result: &orgassign.AssignmentResult{Success: true}})
	logger := observability.NewLogger(observability.ErrorLevel, nil)
	metrics := observability.NewMetrics(nil)
	handler := NewHandler(svc, nil, metrics, logger, "development", "unverified")

	router := mux.NewRouter()
	handler.Register(router)

	body := fmt.Sprintf(`{"idToken":%q,"clientType":"ANDROID_STUDENT"}`,
		testToken(t, "ana@itp.edu.mx", "google-1"))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.UsersCreatedTotal))
}

func TestHandleLogin_LogCarriesUserID(t *testing.T) {
	var logs bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &logs)

	svc := newTestService(&stubStore{}, &stubAssigner{result: &orgassign.AssignmentResult{Success: true}})
	handler := NewHandler(svc, nil, nil, logger, "development", "unverified")

	router := mux.NewRouter()
	router.Use(LoggingMiddleware(logger))
	handler.Register(router)

	body := fmt.Sprintf(`{"idToken":%q,"clientType":"ANDROID_STUDENT"}`,
		testToken(t, "ana@itp.edu.mx", "google-1"))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, logs.String(), `"user_id":"u-1"`)
	assert.Contains(t, logs.String(), "login succeeded")
}

func TestHandleClientInfo(t *testing.T) {
	router := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/client-info", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Platforms    []string                   `json:"platforms"`
		Capabilities map[string]json.RawMessage `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Platforms, "ANDROID_STUDENT")
	assert.Len(t, resp.Capabilities, 3)
}
