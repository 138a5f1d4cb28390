package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eventostec/eventostec/pkg/authflow"
	"github.com/eventostec/eventostec/pkg/config"
)

var (
	clientID     = flag.String("client-id", os.Getenv("EVENTOSTEC_OAUTH_CLIENT_ID"), "OAuth client ID")
	clientSecret = flag.String("client-secret", os.Getenv("EVENTOSTEC_OAUTH_CLIENT_SECRET"), "OAuth client secret")
	authURL      = flag.String("auth-url", "https://accounts.google.com/o/oauth2/v2/auth", "Authorization endpoint")
	tokenURL     = flag.String("token-url", "https://oauth2.googleapis.com/token", "Token endpoint")
	listenAddr   = flag.String("listen", "127.0.0.1:53682", "Loopback listen address (port 0 picks a free port)")
	callbackPath = flag.String("callback-path", "/oauth/callback", "Loopback callback path")
	scopes       = flag.String("scopes", "openid,email,profile", "Comma-separated OAuth scopes")
	timeout      = flag.Duration("timeout", 3*time.Minute, "How long to wait for the browser login")
	serverURL    = flag.String("server", "", "EventosTec API base URL; when set, the ID token is submitted to /api/auth/login")
	jsonOutput   = flag.Bool("json", false, "Print the result as JSON")
	verbose      = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *clientID == "" {
		log.Fatal("a client ID is required (-client-id or EVENTOSTEC_OAUTH_CLIENT_ID)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoopbackConfig{
		ClientID:        *clientID,
		ClientSecret:    *clientSecret,
		AuthURL:         *authURL,
		TokenURL:        *tokenURL,
		Scopes:          splitScopes(*scopes),
		ListenAddr:      *listenAddr,
		CallbackPath:    *callbackPath,
		Timeout:         *timeout,
		ExchangeTimeout: 30 * time.Second,
	}

	flow := authflow.NewFlow(cfg, nil, nil)

	log.Info("Opening your browser to sign in...")
	outcome, err := flow.Run(ctx)
	if err != nil {
		log.WithError(err).Fatal("Login failed")
	}
	log.WithField("email", outcome.Email).Info("Tokens received")

	if *serverURL != "" {
		result, err := submitLogin(ctx, *serverURL, outcome.IDToken)
		if err != nil {
			log.WithError(err).Fatal("Server login failed")
		}
		printResult(result, *jsonOutput)
		return
	}

	printTokens(outcome, *jsonOutput)
}

func splitScopes(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// submitLogin completes the server-side half of the login with the
// freshly obtained ID token.
func submitLogin(ctx context.Context, baseURL, idToken string) (map[string]interface{}, error) {
	body, err := json.Marshal(map[string]string{
		"idToken":    idToken,
		"clientType": "DESKTOP_ADMIN",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(baseURL, "/")+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode server response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if msg, ok := result["error"].(string); ok {
			return nil, fmt.Errorf("server rejected login: %s", msg)
		}
		return nil, fmt.Errorf("server rejected login with status %d", resp.StatusCode)
	}
	return result, nil
}

func printResult(result map[string]interface{}, asJSON bool) {
	if asJSON {
		json.NewEncoder(os.Stdout).Encode(result)
		return
	}

	if user, ok := result["user"].(map[string]interface{}); ok {
		fmt.Printf("Signed in as %v (%v)\n", user["email"], user["role"])
	}
	if org, ok := result["organization"].(map[string]interface{}); ok {
		fmt.Printf("Organization: %v\n", org["acronym"])
	}
	if required, ok := result["requiresOrganizationSetup"].(bool); ok && required {
		fmt.Println("Organization setup is pending; finish it in the admin panel.")
	}
}

func printTokens(outcome *authflow.Outcome, asJSON bool) {
	if asJSON {
		json.NewEncoder(os.Stdout).Encode(map[string]string{
			"idToken":      outcome.IDToken,
			"accessToken":  outcome.AccessToken,
			"refreshToken": outcome.RefreshToken,
			"email":        outcome.Email,
		})
		return
	}

	fmt.Printf("Signed in as %s\n", outcome.Email)
	fmt.Printf("ID token:\n%s\n", outcome.IDToken)
}
