package models

import (
	"testing"
	"time"
)

func TestOAuthState(t *testing.T) {
	now := time.Now()
	soon := now.Add(2 * time.Minute)
	later := now.Add(time.Hour)

	cases := []struct {
		name     string
		provider Provider
		want     string
	}{
		{"api key has no oauth state", Provider{AuthType: AuthTypeAPIKey, Token: "sk"}, ""},
		{"revoked wins", Provider{AuthType: AuthTypeOAuth, OAuthAccessToken: "at", OAuthExpiresAt: &later, OAuthRevoked: true}, OAuthStateRevoked},
		{"no token is unauthorized", Provider{AuthType: AuthTypeOAuth}, OAuthStateUnauthorized},
		{"inside expiry window is expired", Provider{AuthType: AuthTypeOAuth, OAuthAccessToken: "at", OAuthExpiresAt: &soon}, OAuthStateExpired},
		{"future expiry is authorized", Provider{AuthType: AuthTypeOAuth, OAuthAccessToken: "at", OAuthExpiresAt: &later}, OAuthStateAuthorized},
		{"no expiry is authorized", Provider{AuthType: AuthTypeOAuth, OAuthAccessToken: "at"}, OAuthStateAuthorized},
	}
	for _, tc := range cases {
		if got := tc.provider.OAuthState(now); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestUsable(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)

	enabledKey := Provider{AuthType: AuthTypeAPIKey, Token: "sk", Enabled: true}
	if !enabledKey.Usable(now) {
		t.Fatalf("enabled api_key provider must be usable")
	}

	disabledKey := Provider{AuthType: AuthTypeAPIKey, Token: "sk", Enabled: false}
	if disabledKey.Usable(now) {
		t.Fatalf("disabled provider must not be usable")
	}

	authorizedOAuth := Provider{AuthType: AuthTypeOAuth, OAuthAccessToken: "at", OAuthExpiresAt: &later, Enabled: true}
	if !authorizedOAuth.Usable(now) {
		t.Fatalf("authorized oauth provider must be usable")
	}

	revokedOAuth := Provider{AuthType: AuthTypeOAuth, OAuthAccessToken: "at", OAuthRevoked: true, Enabled: true}
	if revokedOAuth.Usable(now) {
		t.Fatalf("revoked oauth provider must not be usable")
	}
}

func TestAccessToken(t *testing.T) {
	key := Provider{AuthType: AuthTypeAPIKey, Token: "sk-key", OAuthAccessToken: "at-ignored"}
	if got := key.AccessToken(); got != "sk-key" {
		t.Fatalf("expected api key, got %q", got)
	}

	oauth := Provider{AuthType: AuthTypeOAuth, Token: "sk-ignored", OAuthAccessToken: "at-live"}
	if got := oauth.AccessToken(); got != "at-live" {
		t.Fatalf("expected oauth access token, got %q", got)
	}
}

func TestNormalizeAPIStyle(t *testing.T) {
	cases := map[string]string{
		"":          APIStyleOpenAI,
		"openai":    APIStyleOpenAI,
		" OpenAI ":  APIStyleOpenAI,
		"anthropic": APIStyleAnthropic,
		"claude":    APIStyleAnthropic,
		"custom":    "custom",
	}
	for in, want := range cases {
		if got := NormalizeAPIStyle(in); got != want {
			t.Fatalf("NormalizeAPIStyle(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestRuleMatches(t *testing.T) {
	wildcard := Rule{MatchModel: RuleMatchAny}
	if !wildcard.Matches("anything") || !wildcard.Matches("") {
		t.Fatalf("wildcard must match any model")
	}

	exact := Rule{MatchModel: "gpt-4o"}
	if !exact.Matches("gpt-4o") {
		t.Fatalf("exact rule must match its model")
	}
	if exact.Matches("gpt-4o-mini") {
		t.Fatalf("exact rule must not match other models")
	}
}
