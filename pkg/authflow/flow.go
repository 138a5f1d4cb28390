package authflow

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/eventostec/eventostec/pkg/config"
	"github.com/eventostec/eventostec/pkg/identity"
	"github.com/eventostec/eventostec/pkg/observability"
)

var (
	// ErrFlowInProgress is returned when a login attempt starts while a
	// previous one still owns the loopback port.
	ErrFlowInProgress = errors.New("a login flow is already in progress")

	// ErrFlowTimeout is returned when the user never completes the
	// browser consent within the flow budget.
	ErrFlowTimeout = errors.New("login flow timed out waiting for the browser callback")

	// ErrProviderDenied is returned when the provider redirects back
	// with an error, e.g. the user cancelled the consent screen.
	ErrProviderDenied = errors.New("authorization was denied by the provider")
)

// Outcome is the result of a completed loopback login.
type Outcome struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time

	// Email is decoded from the ID token payload for display only. The
	// server re-verifies the token before trusting any claim.
	Email string
}

// Flow runs the authorization-code flow for a desktop client: it opens
// the system browser at the provider's consent page and collects the
// redirect on a loopback HTTP listener.
type Flow struct {
	oauth     *oauth2.Config
	exchanger *TokenExchanger
	opener    Opener
	decoder   *identity.Decoder
	logger    *observability.Logger

	listenAddr   string
	callbackPath string
	timeout      time.Duration

	mu       sync.Mutex
	inFlight bool
}

// NewFlow builds a flow from the loopback configuration.
func NewFlow(cfg config.LoopbackConfig, opener Opener, logger *observability.Logger) *Flow {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}
	if opener == nil {
		opener = SystemBrowser{}
	}

	return &Flow{
		oauth:        oauthCfg,
		exchanger:    NewTokenExchanger(oauthCfg, cfg.ExchangeTimeout),
		opener:       opener,
		decoder:      identity.NewDecoder(),
		logger:       logger,
		listenAddr:   cfg.ListenAddr,
		callbackPath: cfg.CallbackPath,
		timeout:      cfg.Timeout,
	}
}

// resultSlot delivers exactly one outcome. A callback must claim the
// slot before it may resolve the flow; the claim happens on receipt of
// a code or error, so a stray hit arriving while the winner is still
// exchanging its code cannot steal the resolution. Duplicate hits after
// the claim are ignored.
type resultSlot struct {
	ch      chan flowResult
	claimed atomic.Bool
	once    sync.Once
}

// claim reserves the slot for the calling handler. Only the first
// caller wins.
func (s *resultSlot) claim() bool {
	return s.claimed.CompareAndSwap(false, true)
}

type flowResult struct {
	outcome *Outcome
	err     error
}

func newResultSlot() *resultSlot {
	return &resultSlot{ch: make(chan flowResult, 1)}
}

func (s *resultSlot) deliver(outcome *Outcome, err error) {
	s.once.Do(func() {
		s.ch <- flowResult{outcome: outcome, err: err}
	})
}

// Run executes the flow and blocks until tokens arrive, the flow times
// out, or ctx is cancelled. The loopback port is released before Run
// returns in every case.
func (f *Flow) Run(ctx context.Context) (*Outcome, error) {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return nil, ErrFlowInProgress
	}
	f.inFlight = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight = false
		f.mu.Unlock()
	}()

	listener, err := net.Listen("tcp", f.listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind loopback listener on %s: %w", f.listenAddr, err)
	}

	// The configured address may use port 0; the redirect URI must carry
	// the port the kernel actually assigned.
	redirectURL := (&url.URL{
		Scheme: "http",
		Host:   listener.Addr().String(),
		Path:   f.callbackPath,
	}).String()
	f.oauth.RedirectURL = redirectURL

	state, err := randomState()
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	slot := newResultSlot()
	mux := http.NewServeMux()
	mux.HandleFunc(f.callbackPath, f.callbackHandler(ctx, state, slot))

	server := &http.Server{Handler: mux}
	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		})
	}
	defer stop()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slot.deliver(nil, fmt.Errorf("loopback server failed: %w", err))
		}
	}()

	authURL := f.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	if f.logger != nil {
		f.logger.WithField("redirect_url", redirectURL).Info("opening browser for login")
	}
	if err := f.opener.Open(authURL); err != nil {
		return nil, err
	}

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case result := <-slot.ch:
		return result.outcome, result.err
	case <-timer.C:
		return nil, ErrFlowTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AuthCodeURL exposes the consent URL for callers that want to print it
// as a fallback when the browser cannot be opened.
func (f *Flow) AuthCodeURL(state string) string {
	return f.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (f *Flow) callbackHandler(ctx context.Context, state string, slot *resultSlot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		if errCode := query.Get("error"); errCode != "" {
			writePage(w, http.StatusOK, fmt.Sprintf(errorPage, errCode))
			if slot.claim() {
				slot.deliver(nil, fmt.Errorf("%w: %s", ErrProviderDenied, errCode))
			}
			return
		}

		if subtle.ConstantTimeCompare([]byte(query.Get("state")), []byte(state)) != 1 {
			writePage(w, http.StatusBadRequest, fmt.Sprintf(errorPage, "solicitud no reconocida"))
			// A mismatched state is a stray or forged request. The flow
			// keeps waiting for the real callback.
			return
		}

		code := query.Get("code")
		if code == "" {
			writePage(w, http.StatusBadRequest, fmt.Sprintf(errorPage, "falta el código de autorización"))
			return
		}

		// Claiming before the exchange means a later callback, even one
		// landing while the exchange is still on the wire, is a no-op.
		if !slot.claim() {
			writePage(w, http.StatusOK, successPage)
			return
		}

		tokens, err := f.exchanger.Exchange(ctx, code)
		if err != nil {
			writePage(w, http.StatusBadGateway, fmt.Sprintf(errorPage, "no se pudo canjear el código"))
			slot.deliver(nil, err)
			return
		}

		outcome := &Outcome{
			IDToken:      tokens.IDToken,
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			Expiry:       tokens.Expiry,
		}
		if claims, err := f.decoder.Decode(tokens.IDToken); err == nil {
			outcome.Email = claims.Email
		}

		writePage(w, http.StatusOK, successPage)
		slot.deliver(outcome, nil)
	}
}

func writePage(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
