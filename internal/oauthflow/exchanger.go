package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TokenSet is the result of an upstream token exchange.
type TokenSet struct {
	AccessToken  string     // Bearer token for upstream calls.
	RefreshToken string     // Refresh token; may be empty on refresh responses.
	ExpiresAt    *time.Time // Access token expiry.
	Scopes       []string   // Granted scopes.
}

// ErrTokenRejected marks an upstream refusal of the presented grant, as
// opposed to a transport failure. Exchangers wrap rejections with it.
var ErrTokenRejected = errors.New("oauthflow: token rejected by upstream")

// Exchanger performs upstream OAuth token exchanges.
type Exchanger interface {
	// ExchangeCode trades an authorization code for a token set.
	ExchangeCode(ctx context.Context, code string) (TokenSet, error)
	// ExchangeRefreshToken trades a refresh token for a fresh token set.
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (TokenSet, error)
}

// EndpointConfig describes the upstream OAuth endpoints and client identity.
type EndpointConfig struct {
	ClientID     string   `yaml:"client-id"`
	ClientSecret string   `yaml:"client-secret"`
	AuthURL      string   `yaml:"auth-url"`
	TokenURL     string   `yaml:"token-url"`
	RedirectURL  string   `yaml:"redirect-url"`
	Scopes       []string `yaml:"scopes"`
}

// OAuth2Exchanger exchanges tokens through golang.org/x/oauth2.
type OAuth2Exchanger struct {
	cfg oauth2.Config
}

// NewOAuth2Exchanger constructs an exchanger for the configured endpoints.
func NewOAuth2Exchanger(cfg EndpointConfig) *OAuth2Exchanger {
	return &OAuth2Exchanger{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
	}
}

// ExchangeCode trades an authorization code for a token set.
func (e *OAuth2Exchanger) ExchangeCode(ctx context.Context, code string) (TokenSet, error) {
	token, errExchange := e.cfg.Exchange(ctx, code)
	if errExchange != nil {
		return TokenSet{}, mapExchangeError("exchange code", errExchange)
	}
	return tokenSetFromOAuth2(token), nil
}

// ExchangeRefreshToken trades a refresh token for a fresh token set.
func (e *OAuth2Exchanger) ExchangeRefreshToken(ctx context.Context, refreshToken string) (TokenSet, error) {
	source := e.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, errRefresh := source.Token()
	if errRefresh != nil {
		return TokenSet{}, mapExchangeError("refresh token", errRefresh)
	}
	return tokenSetFromOAuth2(token), nil
}

// tokenSetFromOAuth2 converts an oauth2 token into a TokenSet.
func tokenSetFromOAuth2(token *oauth2.Token) TokenSet {
	out := TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		out.ExpiresAt = &expiry
	}
	if scope, ok := token.Extra("scope").(string); ok && strings.TrimSpace(scope) != "" {
		out.Scopes = strings.Fields(scope)
	}
	return out
}

// mapExchangeError distinguishes upstream grant rejections from transport
// failures so callers can decide whether to revoke.
func mapExchangeError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
			return fmt.Errorf("oauthflow: %s: %w: %v", op, ErrTokenRejected, err)
		}
	}
	return fmt.Errorf("oauthflow: %s: %w", op, err)
}
