package authflow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventostec/eventostec/pkg/config"
)

type funcOpener func(authURL string) error

func (f funcOpener) Open(authURL string) error { return f(authURL) }

func makeIDToken(t *testing.T, email string) string {
	t.Helper()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]interface{}{
		"iss":   "https://accounts.google.com",
		"sub":   "google-1",
		"email": email,
	})
	require.NoError(t, err)

	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

// fakeTokenServer serves the provider's token endpoint and counts
// exchanges.
func fakeTokenServer(t *testing.T, idToken string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at-123",
			"token_type":    "Bearer",
			"refresh_token": "rt-123",
			"expires_in":    3600,
			"id_token":      idToken,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &exchanges
}

func testFlowConfig(tokenURL string) config.LoopbackConfig {
	return config.LoopbackConfig{
		ClientID:        "client-123",
		ClientSecret:    "secret",
		AuthURL:         "https://example.test/auth",
		TokenURL:        tokenURL,
		Scopes:          []string{"openid", "email"},
		ListenAddr:      "127.0.0.1:0",
		CallbackPath:    "/oauth/callback",
		Timeout:         5 * time.Second,
		ExchangeTimeout: 2 * time.Second,
	}
}

// callbackOpener parses the consent URL and immediately performs the
// provider redirect with the given query values.
func callbackOpener(t *testing.T, values func(state string) url.Values) funcOpener {
	return func(authURL string) error {
		parsed, err := url.Parse(authURL)
		require.NoError(t, err)

		redirect, err := url.Parse(parsed.Query().Get("redirect_uri"))
		require.NoError(t, err)
		redirect.RawQuery = values(parsed.Query().Get("state")).Encode()

		resp, err := http.Get(redirect.String())
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}

func TestFlow_Run_Success(t *testing.T) {
	idToken := makeIDToken(t, "ana@itp.edu.mx")
	tokenSrv, exchanges := fakeTokenServer(t, idToken)

	opener := callbackOpener(t, func(state string) url.Values {
		return url.Values{"state": {state}, "code": {"auth-code-1"}}
	})

	flow := NewFlow(testFlowConfig(tokenSrv.URL), opener, nil)
	outcome, err := flow.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, idToken, outcome.IDToken)
	assert.Equal(t, "at-123", outcome.AccessToken)
	assert.Equal(t, "rt-123", outcome.RefreshToken)
	assert.Equal(t, "ana@itp.edu.mx", outcome.Email)
	assert.Equal(t, int32(1), exchanges.Load())
}

func TestFlow_Run_ProviderDenied(t *testing.T) {
	tokenSrv, exchanges := fakeTokenServer(t, "unused")

	opener := callbackOpener(t, func(state string) url.Values {
		return url.Values{"state": {state}, "error": {"access_denied"}}
	})

	flow := NewFlow(testFlowConfig(tokenSrv.URL), opener, nil)
	_, err := flow.Run(context.Background())

	assert.ErrorIs(t, err, ErrProviderDenied)
	assert.Zero(t, exchanges.Load())
}

func TestFlow_Run_StateMismatchKeepsWaiting(t *testing.T) {
	idToken := makeIDToken(t, "ana@itp.edu.mx")
	tokenSrv, exchanges := fakeTokenServer(t, idToken)

	opener := funcOpener(func(authURL string) error {
		parsed, err := url.Parse(authURL)
		require.NoError(t, err)
		state := parsed.Query().Get("state")

		redirect, err := url.Parse(parsed.Query().Get("redirect_uri"))
		require.NoError(t, err)

		// A forged hit with the wrong state must not end the flow.
		redirect.RawQuery = url.Values{"state": {"forged"}, "code": {"evil"}}.Encode()
		resp, err := http.Get(redirect.String())
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		redirect.RawQuery = url.Values{"state": {state}, "code": {"auth-code-1"}}.Encode()
		resp, err = http.Get(redirect.String())
		require.NoError(t, err)
		resp.Body.Close()
		return nil
	})

	flow := NewFlow(testFlowConfig(tokenSrv.URL), opener, nil)
	outcome, err := flow.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ana@itp.edu.mx", outcome.Email)
	assert.Equal(t, int32(1), exchanges.Load())
}

func TestFlow_Run_DuplicateCallbackDeliversOnce(t *testing.T) {
	idToken := makeIDToken(t, "ana@itp.edu.mx")
	tokenSrv, _ := fakeTokenServer(t, idToken)

	opener := funcOpener(func(authURL string) error {
		parsed, _ := url.Parse(authURL)
		state := parsed.Query().Get("state")
		redirect, _ := url.Parse(parsed.Query().Get("redirect_uri"))
		redirect.RawQuery = url.Values{"state": {state}, "code": {"auth-code-1"}}.Encode()

		for i := 0; i < 2; i++ {
			resp, err := http.Get(redirect.String())
			if err == nil {
				resp.Body.Close()
			}
		}
		return nil
	})

	flow := NewFlow(testFlowConfig(tokenSrv.URL), opener, nil)
	outcome, err := flow.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ana@itp.edu.mx", outcome.Email)
}

func TestFlow_Run_ErrorCallbackDuringExchangeCannotStealOutcome(t *testing.T) {
	idToken := makeIDToken(t, "ana@itp.edu.mx")

	// The token endpoint stalls until released, keeping the code
	// handler parked mid-exchange while the stray error callback lands.
	exchangeStarted := make(chan struct{})
	releaseExchange := make(chan struct{})
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(exchangeStarted)
		<-releaseExchange
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "at-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	t.Cleanup(tokenSrv.Close)

	opener := funcOpener(func(authURL string) error {
		parsed, err := url.Parse(authURL)
		require.NoError(t, err)
		state := parsed.Query().Get("state")
		redirect, err := url.Parse(parsed.Query().Get("redirect_uri"))
		require.NoError(t, err)

		codeURL := *redirect
		codeURL.RawQuery = url.Values{"state": {state}, "code": {"auth-code-1"}}.Encode()
		go func() {
			resp, err := http.Get(codeURL.String())
			if err == nil {
				resp.Body.Close()
			}
		}()

		<-exchangeStarted

		errorURL := *redirect
		errorURL.RawQuery = url.Values{"state": {state}, "error": {"access_denied"}}.Encode()
		resp, err := http.Get(errorURL.String())
		require.NoError(t, err)
		resp.Body.Close()

		close(releaseExchange)
		return nil
	})

	flow := NewFlow(testFlowConfig(tokenSrv.URL), opener, nil)
	outcome, err := flow.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ana@itp.edu.mx", outcome.Email)
	assert.Equal(t, "at-123", outcome.AccessToken)
}

func TestFlow_Run_TimeoutReleasesFlow(t *testing.T) {
	tokenSrv, _ := fakeTokenServer(t, makeIDToken(t, "ana@itp.edu.mx"))

	cfg := testFlowConfig(tokenSrv.URL)
	cfg.Timeout = 100 * time.Millisecond

	flow := NewFlow(cfg, funcOpener(func(string) error { return nil }), nil)

	_, err := flow.Run(context.Background())
	assert.ErrorIs(t, err, ErrFlowTimeout)

	// The flow is reusable after a timeout.
	opener := callbackOpener(t, func(state string) url.Values {
		return url.Values{"state": {state}, "code": {"auth-code-2"}}
	})
	flow.opener = opener
	flow.timeout = 5 * time.Second

	outcome, err := flow.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ana@itp.edu.mx", outcome.Email)
}

func TestFlow_Run_SecondConcurrentCallRejected(t *testing.T) {
	tokenSrv, _ := fakeTokenServer(t, makeIDToken(t, "ana@itp.edu.mx"))

	cfg := testFlowConfig(tokenSrv.URL)
	started := make(chan struct{})
	release := make(chan struct{})

	flow := NewFlow(cfg, funcOpener(func(string) error {
		close(started)
		<-release
		return fmt.Errorf("browser unavailable")
	}), nil)

	errs := make(chan error, 1)
	go func() {
		_, err := flow.Run(context.Background())
		errs <- err
	}()

	<-started
	_, err := flow.Run(context.Background())
	assert.ErrorIs(t, err, ErrFlowInProgress)

	close(release)
	assert.Error(t, <-errs)
}

func TestFlow_Run_ContextCancelled(t *testing.T) {
	tokenSrv, _ := fakeTokenServer(t, makeIDToken(t, "ana@itp.edu.mx"))

	ctx, cancel := context.WithCancel(context.Background())
	flow := NewFlow(testFlowConfig(tokenSrv.URL), funcOpener(func(string) error {
		cancel()
		return nil
	}), nil)

	_, err := flow.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
