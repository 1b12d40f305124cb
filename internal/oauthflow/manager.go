// Package oauthflow manages the OAuth credential lifecycle for oauth-type
// providers: authorization code exchange, refresh, and lazy expiry detection.
package oauthflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tingly-box/relayadmin/internal/activity"
	"github.com/tingly-box/relayadmin/internal/models"
	"github.com/tingly-box/relayadmin/internal/store"
	"golang.org/x/sync/singleflight"
)

// Sentinel errors surfaced by lifecycle operations.
var (
	// ErrRefreshDenied indicates the upstream rejected the refresh; the
	// operator must re-authorize. Not retryable automatically.
	ErrRefreshDenied = errors.New("oauthflow: refresh denied")
	// ErrNotOAuth indicates the provider is not an oauth provider.
	ErrNotOAuth = errors.New("oauthflow: provider is not oauth")
	// ErrNoRefreshToken indicates no refresh token is stored.
	ErrNoRefreshToken = errors.New("oauthflow: no refresh token")
)

// defaultExchangeTimeout bounds upstream token exchanges.
const defaultExchangeTimeout = 30 * time.Second

// Manager drives the oauth provider lifecycle against the credential store.
// Refreshes for the same provider are collapsed to a single upstream exchange
// because refresh tokens are typically single-use upstream.
type Manager struct {
	store     *store.Store
	exchanger Exchanger
	recorder  *activity.Recorder
	timeout   time.Duration

	group singleflight.Group
}

// NewManager constructs a Manager. exchangeTimeout bounds each upstream call.
func NewManager(st *store.Store, exchanger Exchanger, recorder *activity.Recorder, exchangeTimeout time.Duration) *Manager {
	if exchangeTimeout <= 0 {
		exchangeTimeout = defaultExchangeTimeout
	}
	return &Manager{
		store:     st,
		exchanger: exchanger,
		recorder:  recorder,
		timeout:   exchangeTimeout,
	}
}

// ProviderDraft describes the provider an authorization is issued for.
type ProviderDraft struct {
	Name     string // Display name; unique case-insensitively.
	APIBase  string // Upstream base URL.
	APIStyle string // openai or anthropic.
	ProxyURL string // Optional probe-time proxy.
	Enabled  bool   // Whether the provider participates in routing.
}

// Authorize exchanges an authorization code and creates or updates the named
// provider in the authorized state.
func (m *Manager) Authorize(ctx context.Context, draft ProviderDraft, authCode string) (*models.Provider, error) {
	draft.Name = strings.TrimSpace(draft.Name)
	if draft.Name == "" {
		errName := fmt.Errorf("oauthflow: provider name is required")
		m.record(ctx, models.ActionAuthorizeProvider, false, errName.Error(), nil)
		return nil, errName
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	tokens, errExchange := m.exchanger.ExchangeCode(exchangeCtx, strings.TrimSpace(authCode))
	cancel()
	if errExchange != nil {
		m.record(ctx, models.ActionAuthorizeProvider, false, errExchange.Error(), map[string]any{"name": draft.Name})
		return nil, errExchange
	}

	existing, errGet := m.store.GetProviderByName(ctx, draft.Name)
	switch {
	case errGet == nil:
		if existing.AuthType != models.AuthTypeOAuth {
			errType := fmt.Errorf("%w: %s", ErrNotOAuth, existing.Name)
			m.record(ctx, models.ActionAuthorizeProvider, false, errType.Error(), map[string]any{"name": draft.Name})
			return nil, errType
		}
		updated, errMutate := m.store.MutateProvider(ctx, existing.UUID, func(provider *models.Provider) error {
			if provider.AuthType != models.AuthTypeOAuth {
				return fmt.Errorf("%w: %s", ErrNotOAuth, provider.Name)
			}
			applyTokens(provider, tokens)
			provider.OAuthRevoked = false
			return nil
		})
		if errMutate != nil {
			m.record(ctx, models.ActionAuthorizeProvider, false, errMutate.Error(), map[string]any{"name": draft.Name})
			return nil, errMutate
		}
		m.record(ctx, models.ActionAuthorizeProvider, true,
			fmt.Sprintf("Provider %s re-authorized successfully", updated.Name), map[string]any{"name": updated.Name})
		return updated, nil

	case errors.Is(errGet, store.ErrNotFound):
		provider := &models.Provider{
			UUID:     uuid.NewString(),
			Name:     draft.Name,
			AuthType: models.AuthTypeOAuth,
			APIBase:  strings.TrimSpace(draft.APIBase),
			APIStyle: models.NormalizeAPIStyle(draft.APIStyle),
			Enabled:  draft.Enabled,
			ProxyURL: strings.TrimSpace(draft.ProxyURL),
		}
		applyTokens(provider, tokens)
		if errCreate := m.store.CreateProvider(ctx, provider); errCreate != nil {
			m.record(ctx, models.ActionAuthorizeProvider, false, errCreate.Error(), map[string]any{"name": draft.Name})
			return nil, errCreate
		}
		m.record(ctx, models.ActionAuthorizeProvider, true,
			fmt.Sprintf("Provider %s authorized successfully", provider.Name), map[string]any{"name": provider.Name})
		return provider, nil

	default:
		return nil, errGet
	}
}

// Refresh exchanges the stored refresh token for fresh credentials.
// Concurrent calls for the same provider collapse to one upstream exchange
// and every caller receives the refreshed state, never a mix of old and new
// fields. On upstream rejection the provider transitions to revoked.
func (m *Manager) Refresh(ctx context.Context, providerUUID string) (*models.Provider, error) {
	providerUUID = strings.TrimSpace(providerUUID)

	result, errDo, _ := m.group.Do(providerUUID, func() (any, error) {
		return m.refreshOnce(ctx, providerUUID)
	})
	if errDo != nil {
		return nil, errDo
	}

	refreshed, ok := result.(*models.Provider)
	if !ok || refreshed == nil {
		return nil, fmt.Errorf("oauthflow: unexpected refresh result")
	}
	// Hand each caller its own copy so shared results cannot be mutated.
	out := *refreshed
	return &out, nil
}

// refreshOnce performs the actual exchange for a single collapsed refresh.
func (m *Manager) refreshOnce(ctx context.Context, providerUUID string) (*models.Provider, error) {
	provider, errGet := m.store.GetProviderByUUID(ctx, providerUUID)
	if errGet != nil {
		return nil, errGet
	}
	if provider.AuthType != models.AuthTypeOAuth {
		return nil, fmt.Errorf("%w: %s", ErrNotOAuth, provider.Name)
	}
	if provider.OAuthRevoked {
		errRevoked := fmt.Errorf("%w: provider %s is revoked, re-authorization required", ErrRefreshDenied, provider.Name)
		m.record(ctx, models.ActionRefreshToken, false, errRevoked.Error(), map[string]any{"uuid": providerUUID})
		return nil, errRevoked
	}
	if strings.TrimSpace(provider.OAuthRefreshToken) == "" {
		return nil, fmt.Errorf("%w: provider %s", ErrNoRefreshToken, provider.Name)
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	tokens, errExchange := m.exchanger.ExchangeRefreshToken(exchangeCtx, provider.OAuthRefreshToken)
	cancel()
	if errExchange != nil {
		if errors.Is(errExchange, ErrTokenRejected) {
			// The grant itself was refused; the stored refresh token is dead.
			if _, errMark := m.store.MutateProvider(ctx, providerUUID, func(provider *models.Provider) error {
				provider.OAuthRevoked = true
				return nil
			}); errMark != nil {
				m.record(ctx, models.ActionRefreshToken, false, errMark.Error(), map[string]any{"uuid": providerUUID})
				return nil, errMark
			}
			errDenied := fmt.Errorf("%w: %v", ErrRefreshDenied, errExchange)
			m.record(ctx, models.ActionRefreshToken, false, errDenied.Error(), map[string]any{"uuid": providerUUID})
			return nil, errDenied
		}
		errDenied := fmt.Errorf("%w: %v", ErrRefreshDenied, errExchange)
		m.record(ctx, models.ActionRefreshToken, false, errDenied.Error(), map[string]any{"uuid": providerUUID})
		return nil, errDenied
	}

	// The exchange ran without the lock; commit onto the freshly loaded row so
	// fields touched concurrently are not reverted.
	refreshed, errMutate := m.store.MutateProvider(ctx, providerUUID, func(provider *models.Provider) error {
		applyTokens(provider, tokens)
		return nil
	})
	if errMutate != nil {
		m.record(ctx, models.ActionRefreshToken, false, errMutate.Error(), map[string]any{"uuid": providerUUID})
		return nil, errMutate
	}

	m.record(ctx, models.ActionRefreshToken, true,
		fmt.Sprintf("Provider %s token refreshed successfully", refreshed.Name), map[string]any{"uuid": providerUUID})
	return refreshed, nil
}

// applyTokens writes a token set onto a provider, keeping the prior refresh
// token when the upstream response omits one.
func applyTokens(provider *models.Provider, tokens TokenSet) {
	provider.OAuthAccessToken = strings.TrimSpace(tokens.AccessToken)
	if refresh := strings.TrimSpace(tokens.RefreshToken); refresh != "" {
		provider.OAuthRefreshToken = refresh
	}
	provider.OAuthExpiresAt = tokens.ExpiresAt
	if len(tokens.Scopes) > 0 {
		if encoded, errMarshal := json.Marshal(tokens.Scopes); errMarshal == nil {
			provider.OAuthScopes = encoded
		}
	}
}

// record appends an activity entry when a recorder is attached.
func (m *Manager) record(ctx context.Context, action string, success bool, message string, details map[string]any) {
	if m.recorder == nil {
		return
	}
	m.recorder.Record(ctx, action, success, message, details)
}
