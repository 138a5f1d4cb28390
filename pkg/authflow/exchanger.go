package authflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// TokenExchangeError reports a failed code-for-token exchange with the
// provider's HTTP status and response body preserved for diagnostics.
type TokenExchangeError struct {
	Status int
	Body   string
	Err    error
}

func (e *TokenExchangeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("token exchange failed with status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// Tokens holds the credentials returned by the provider.
type Tokens struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// TokenExchanger swaps an authorization code for tokens. The exchange
// runs under its own timeout so a slow provider cannot consume the
// whole flow budget.
type TokenExchanger struct {
	config  *oauth2.Config
	timeout time.Duration
}

// NewTokenExchanger wraps an OAuth2 client configuration.
func NewTokenExchanger(config *oauth2.Config, timeout time.Duration) *TokenExchanger {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TokenExchanger{config: config, timeout: timeout}
}

// Exchange redeems the authorization code.
func (e *TokenExchanger) Exchange(ctx context.Context, code string) (*Tokens, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	token, err := e.config.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return nil, &TokenExchangeError{
				Status: status,
				Body:   string(retrieveErr.Body),
				Err:    err,
			}
		}
		return nil, &TokenExchangeError{Err: err}
	}

	tokens := &Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		tokens.IDToken = idToken
	}
	if tokens.IDToken == "" {
		return nil, &TokenExchangeError{Err: errors.New("provider response is missing id_token")}
	}
	return tokens, nil
}
