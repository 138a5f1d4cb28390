package authsvc

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/eventostec/eventostec/pkg/authz"
	"github.com/eventostec/eventostec/pkg/contextkeys"
	"github.com/eventostec/eventostec/pkg/httputil"
	"github.com/eventostec/eventostec/pkg/observability"
)

// Handler exposes the authentication API over HTTP.
type Handler struct {
	service *Service
	limiter *LoginRateLimiter
	metrics *observability.Metrics
	logger  *observability.Logger

	// environment and verificationMode are reported by the status
	// endpoint so operators can spot a development wiring in the wrong
	// environment.
	environment      string
	verificationMode string
}

// NewHandler creates the HTTP handler for the auth API.
func NewHandler(service *Service, limiter *LoginRateLimiter, metrics *observability.Metrics, logger *observability.Logger, environment, verificationMode string) *Handler {
	return &Handler{
		service:          service,
		limiter:          limiter,
		metrics:          metrics,
		logger:           logger,
		environment:      environment,
		verificationMode: verificationMode,
	}
}

// Register mounts the auth routes on the router.
func (h *Handler) Register(router *mux.Router) {
	login := http.Handler(http.HandlerFunc(h.handleLogin))
	if h.limiter != nil {
		login = h.limiter.Middleware(login)
	}

	router.Handle("/api/auth/login", login).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/status", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/client-info", h.handleClientInfo).Methods(http.MethodGet)
}

type loginRequest struct {
	IDToken    string `json:"idToken"`
	ClientType string `json:"clientType"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req loginRequest
	if r.Body != nil && r.ContentLength != 0 {
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
	}

	// Header fallbacks let thin clients skip the JSON body.
	if req.IDToken == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			req.IDToken = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if req.ClientType == "" {
		req.ClientType = r.Header.Get("X-Client-Type")
	}

	if req.IDToken == "" {
		httputil.WriteBadRequest(w, "idToken is required")
		return
	}

	platform := authz.ParseClientPlatform(req.ClientType)

	result, err := h.service.Login(r.Context(), req.IDToken, platform)
	if err != nil {
		h.writeLoginError(w, r, platform, err, start)
		return
	}

	h.observeLogin(platform, observability.OutcomeSuccess, start)
	if h.metrics != nil && result.IsNewUser {
		h.metrics.UsersCreatedTotal.Inc()
	}

	ctx := context.WithValue(r.Context(), contextkeys.UserIDKey, result.User.ID)
	observability.FromContext(ctx).
		WithField("role", string(result.User.Role)).
		WithField("is_new", result.IsNewUser).
		Info("login succeeded")

	httputil.WriteSuccess(w, result)
}

func (h *Handler) writeLoginError(w http.ResponseWriter, r *http.Request, platform authz.ClientPlatform, err error, start time.Time) {
	logger := observability.FromContext(r.Context()).WithError(err)

	switch {
	case errors.Is(err, authz.ErrUnauthorizedDomain):
		h.observeLogin(platform, observability.OutcomeUnauthorizedDomain, start)
		logger.Warn("login rejected: unauthorized admin domain")
		httputil.WriteUnauthorized(w, "email domain is not authorized for admin access")
	case errors.Is(err, ErrInvalidToken):
		h.observeLogin(platform, observability.OutcomeInvalidToken, start)
		logger.Warn("login rejected: invalid token")
		httputil.WriteUnauthorized(w, "identity token is invalid or expired")
	default:
		h.observeLogin(platform, observability.OutcomeInternalError, start)
		logger.Error("login failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "login could not be completed")
	}
}

func (h *Handler) observeLogin(platform authz.ClientPlatform, outcome string, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveLogin(string(platform), outcome, time.Since(start))
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"oidc_initialized":  h.verificationMode == "oidc",
		"environment":       h.environment,
		"auth_flow":         "authorization_code",
		"client_types":      authz.KnownPlatforms(),
		"verification_mode": h.verificationMode,
	})
}

// handleClientInfo publishes the platform identifiers and the role
// capability matrix so clients can render permissions without
// hardcoding them.
func (h *Handler) handleClientInfo(w http.ResponseWriter, r *http.Request) {
	capabilities := map[string]authz.CapabilitySet{}
	for _, role := range []authz.Role{authz.RoleStudent, authz.RoleAdmin, authz.RoleSuperAdmin} {
		capabilities[string(role)] = authz.Capabilities(role)
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"platforms":    authz.KnownPlatforms(),
		"capabilities": capabilities,
	})
}
