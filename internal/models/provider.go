package models

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Auth types supported by providers.
const (
	// AuthTypeAPIKey marks providers authenticated with a static API key.
	AuthTypeAPIKey = "api_key"
	// AuthTypeOAuth marks providers authenticated with OAuth-issued tokens.
	AuthTypeOAuth = "oauth"
)

// API styles governing how requests are translated upstream.
const (
	// APIStyleOpenAI is the OpenAI chat-completions wire style.
	APIStyleOpenAI = "openai"
	// APIStyleAnthropic is the Anthropic messages wire style.
	APIStyleAnthropic = "anthropic"
)

// OAuth lifecycle states derived from stored credential fields.
const (
	OAuthStateUnauthorized = "unauthorized"
	OAuthStateAuthorized   = "authorized"
	OAuthStateExpired      = "expired"
	OAuthStateRevoked      = "revoked"
)

// oauthExpiryWindow treats tokens expiring within this window as already expired.
const oauthExpiryWindow = 5 * time.Minute

// Provider stores an upstream credential configuration.
type Provider struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UUID     string `gorm:"type:varchar(64);not null;uniqueIndex"` // Opaque identifier, immutable after creation.
	Name     string `gorm:"type:text;not null"`                    // Display name, unique case-insensitively.
	AuthType string `gorm:"type:varchar(16);not null;index"`       // api_key or oauth.
	APIBase  string `gorm:"type:text"`                             // Upstream base URL.
	APIStyle string `gorm:"type:varchar(16);not null"`             // openai or anthropic.

	Token         string `gorm:"type:text"`              // API key for api_key providers.
	NoKeyRequired bool   `gorm:"not null;default:false"` // Permits an empty token.

	OAuthAccessToken  string         `gorm:"type:text"` // OAuth access token.
	OAuthRefreshToken string         `gorm:"type:text"` // OAuth refresh token.
	OAuthExpiresAt    *time.Time     // Access token expiry.
	OAuthScopes       datatypes.JSON `gorm:"type:jsonb"`             // Granted scopes list.
	OAuthRevoked      bool           `gorm:"not null;default:false"` // Upstream rejected the refresh token.

	Enabled  bool   `gorm:"not null;default:true"` // Disabled providers are excluded from routing.
	ProxyURL string `gorm:"type:text"`             // Optional proxy used at probe time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// AccessToken returns the credential used for upstream calls based on auth type.
func (p *Provider) AccessToken() string {
	switch p.AuthType {
	case AuthTypeOAuth:
		return p.OAuthAccessToken
	default:
		return p.Token
	}
}

// OAuthExpired reports whether the OAuth access token is expired or about to expire.
func (p *Provider) OAuthExpired(now time.Time) bool {
	if p.AuthType != AuthTypeOAuth {
		return false
	}
	if p.OAuthExpiresAt == nil {
		return false
	}
	return now.Add(oauthExpiryWindow).After(*p.OAuthExpiresAt)
}

// OAuthState derives the lifecycle state for an oauth provider.
func (p *Provider) OAuthState(now time.Time) string {
	if p.AuthType != AuthTypeOAuth {
		return ""
	}
	switch {
	case p.OAuthRevoked:
		return OAuthStateRevoked
	case strings.TrimSpace(p.OAuthAccessToken) == "":
		return OAuthStateUnauthorized
	case p.OAuthExpired(now):
		return OAuthStateExpired
	default:
		return OAuthStateAuthorized
	}
}

// Usable reports whether the provider may serve routed traffic.
func (p *Provider) Usable(now time.Time) bool {
	if !p.Enabled {
		return false
	}
	if p.AuthType == AuthTypeOAuth {
		return p.OAuthState(now) == OAuthStateAuthorized
	}
	return true
}

// Scopes decodes the granted OAuth scopes list.
func (p *Provider) Scopes() []string {
	if len(p.OAuthScopes) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(p.OAuthScopes, &out); err != nil {
		return nil
	}
	return out
}

// NormalizeAPIStyle maps empty or aliased style inputs to canonical values.
func NormalizeAPIStyle(value string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	switch trimmed {
	case "", APIStyleOpenAI:
		return APIStyleOpenAI
	case APIStyleAnthropic, "claude":
		return APIStyleAnthropic
	}
	return trimmed
}
