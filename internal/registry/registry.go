// Package registry implements provider CRUD with pre-commit validation.
// Connectivity probing follows a validate, probe, re-check, commit sequence so
// the store lock is never held across a network round trip.
package registry

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
	"github.com/tingly-box/relayadmin/internal/probe"
	"github.com/tingly-box/relayadmin/internal/store"
)

// Registry manages provider records in the credential store.
type Registry struct {
	store    *store.Store
	prober   probe.Prober
	recorder *activity.Recorder
	timeout  time.Duration
}

// NewRegistry constructs a Registry. probeTimeout bounds each probe attempt.
func NewRegistry(st *store.Store, prober probe.Prober, recorder *activity.Recorder, probeTimeout time.Duration) *Registry {
	if probeTimeout <= 0 {
		probeTimeout = probe.DefaultTimeout
	}
	return &Registry{
		store:    st,
		prober:   prober,
		recorder: recorder,
		timeout:  probeTimeout,
	}
}

// OAuthSpec carries OAuth credential fields for oauth providers.
type OAuthSpec struct {
	AccessToken  string     // Current access token.
	RefreshToken string     // Refresh token.
	ExpiresAt    *time.Time // Access token expiry.
	Scopes       []string   // Granted scopes.
}

// ProviderSpec is the input for creating a provider.
type ProviderSpec struct {
	Name          string     // Display name; unique case-insensitively.
	AuthType      string     // api_key (default) or oauth.
	APIBase       string     // Upstream base URL.
	APIStyle      string     // openai (default) or anthropic.
	Token         string     // API key for api_key providers.
	NoKeyRequired bool       // Permits an empty token.
	Enabled       bool       // Whether the provider participates in routing.
	ProxyURL      string     // Optional probe-time proxy.
	OAuth         *OAuthSpec // Required for oauth providers.
}

// ProviderPatch is a partial update; nil fields keep prior values. A nil or
// empty Token keeps the existing secret.
type ProviderPatch struct {
	Name          *string
	APIBase       *string
	APIStyle      *string
	Token         *string
	NoKeyRequired *bool
	Enabled       *bool
	ProxyURL      *string
}

// Add validates the spec, optionally probes connectivity, and commits the
// provider with a fresh uuid. force skips the probe but never skips
// validation or uniqueness checks.
func (r *Registry) Add(ctx context.Context, spec ProviderSpec, force bool) (*models.Provider, error) {
	normalizeSpec(&spec)
	if errValidate := validateSpec(spec); errValidate != nil {
		r.record(ctx, models.ActionAddProvider, false, errValidate.Error(), specDetails(spec))
		return nil, errValidate
	}

	// Uniqueness is checked up front so a duplicate fails fast, before any
	// network round trip, and regardless of force.
	if errName := r.store.CheckProviderName(ctx, spec.Name, ""); errName != nil {
		r.record(ctx, models.ActionAddProvider, false, errName.Error(), specDetails(spec))
		return nil, errName
	}

	// OAuth providers carry their credential in the oauth block, not Token.
	credential := spec.Token
	if spec.AuthType == models.AuthTypeOAuth && spec.OAuth != nil {
		credential = strings.TrimSpace(spec.OAuth.AccessToken)
	}

	probed := false
	if !force && !spec.NoKeyRequired && credential != "" {
		probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
		errProbe := r.prober.Probe(probeCtx, probe.Target{
			APIBase:  spec.APIBase,
			APIStyle: spec.APIStyle,
			Token:    credential,
			ProxyURL: spec.ProxyURL,
		})
		cancel()
		if errProbe != nil {
			wrapped := &ProbeError{Cause: errProbe}
			r.record(ctx, models.ActionAddProvider, false, wrapped.Error(), specDetails(spec))
			return nil, wrapped
		}
		probed = true
	}

	provider := providerFromSpec(spec)
	provider.UUID = uuid.NewString()

	if errCreate := r.store.CreateProvider(ctx, provider); errCreate != nil {
		// A name collision after a successful probe means a concurrent
		// writer won the race while the lock was released.
		if probed && errors.Is(errCreate, ErrDuplicateName) {
			errCreate = ErrConflictDuringProbe
		}
		r.record(ctx, models.ActionAddProvider, false, errCreate.Error(), specDetails(spec))
		return nil, errCreate
	}

	r.record(ctx, models.ActionAddProvider, true,
		fmt.Sprintf("Provider %s added successfully", provider.Name), specDetails(spec))
	return provider, nil
}

// Update applies a partial update to an existing provider. The patch is
// applied to the freshly loaded record inside the store lock so a concurrent
// mutation is never reverted by a stale save.
func (r *Registry) Update(ctx context.Context, providerUUID string, patch ProviderPatch) (*models.Provider, error) {
	provider, errMutate := r.store.MutateProvider(ctx, providerUUID, func(provider *models.Provider) error {
		if patch.Name != nil {
			provider.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.APIBase != nil {
			provider.APIBase = strings.TrimSpace(*patch.APIBase)
		}
		if patch.APIStyle != nil {
			provider.APIStyle = models.NormalizeAPIStyle(*patch.APIStyle)
		}
		// An omitted or empty token keeps the existing secret.
		if patch.Token != nil && strings.TrimSpace(*patch.Token) != "" {
			provider.Token = strings.TrimSpace(*patch.Token)
		}
		if patch.NoKeyRequired != nil {
			provider.NoKeyRequired = *patch.NoKeyRequired
		}
		if patch.Enabled != nil {
			provider.Enabled = *patch.Enabled
		}
		if patch.ProxyURL != nil {
			provider.ProxyURL = strings.TrimSpace(*patch.ProxyURL)
		}
		return validateProvider(provider)
	})
	if errMutate != nil {
		r.record(ctx, models.ActionUpdateProvider, false, errMutate.Error(), map[string]any{"uuid": providerUUID})
		return nil, errMutate
	}

	r.record(ctx, models.ActionUpdateProvider, true,
		fmt.Sprintf("Provider %s updated successfully", provider.Name), map[string]any{"uuid": providerUUID})
	return provider, nil
}

// Delete removes a provider and cascades rules targeting it. Each cascaded
// rule removal is logged as its own activity entry.
func (r *Registry) Delete(ctx context.Context, providerUUID string) error {
	removed, cascaded, errDelete := r.store.DeleteProvider(ctx, providerUUID)
	if errDelete != nil {
		r.record(ctx, models.ActionDeleteProvider, false, errDelete.Error(), map[string]any{"uuid": providerUUID})
		return errDelete
	}

	r.record(ctx, models.ActionDeleteProvider, true,
		fmt.Sprintf("Provider %s deleted successfully", removed.Name), map[string]any{
			"uuid": removed.UUID,
			"name": removed.Name,
		})
	for _, rule := range cascaded {
		r.record(ctx, models.ActionDeleteRule, true,
			fmt.Sprintf("Rule %s removed with provider %s", rule.UUID, removed.Name), map[string]any{
				"uuid":            rule.UUID,
				"scenario":        rule.Scenario,
				"target_provider": rule.TargetProvider,
			})
	}
	return nil
}

// Toggle flips the enabled flag. Rules targeting the provider are retained so
// re-enabling restores prior routing behavior.
func (r *Registry) Toggle(ctx context.Context, providerUUID string) (*models.Provider, error) {
	provider, errMutate := r.store.MutateProvider(ctx, providerUUID, func(provider *models.Provider) error {
		provider.Enabled = !provider.Enabled
		return nil
	})
	if errMutate != nil {
		r.record(ctx, models.ActionToggleProvider, false, errMutate.Error(), map[string]any{"uuid": providerUUID})
		return nil, errMutate
	}

	action := "disabled"
	if provider.Enabled {
		action = "enabled"
	}
	r.record(ctx, models.ActionToggleProvider, true,
		fmt.Sprintf("Provider %s %s successfully", provider.Name, action), map[string]any{
			"uuid":    provider.UUID,
			"enabled": provider.Enabled,
		})
	return provider, nil
}

// Get loads a provider by uuid.
func (r *Registry) Get(ctx context.Context, providerUUID string) (*models.Provider, error) {
	return r.store.GetProviderByUUID(ctx, providerUUID)
}

// GetByName loads a provider by name, case-insensitively.
func (r *Registry) GetByName(ctx context.Context, name string) (*models.Provider, error) {
	return r.store.GetProviderByName(ctx, name)
}

// List returns all providers in creation order.
func (r *Registry) List(ctx context.Context) ([]models.Provider, error) {
	return r.store.ListProviders(ctx)
}

// record appends an activity entry when a recorder is attached.
func (r *Registry) record(ctx context.Context, action string, success bool, message string, details map[string]any) {
	if r.recorder == nil {
		return
	}
	r.recorder.Record(ctx, action, success, message, details)
}

// normalizeSpec trims inputs and applies defaults.
func normalizeSpec(spec *ProviderSpec) {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.APIBase = strings.TrimSpace(spec.APIBase)
	spec.Token = strings.TrimSpace(spec.Token)
	spec.ProxyURL = strings.TrimSpace(spec.ProxyURL)
	spec.APIStyle = models.NormalizeAPIStyle(spec.APIStyle)
	spec.AuthType = strings.ToLower(strings.TrimSpace(spec.AuthType))
	if spec.AuthType == "" {
		spec.AuthType = models.AuthTypeAPIKey
	}
}

// validateSpec enforces field completeness for the declared auth type.
func validateSpec(spec ProviderSpec) error {
	if spec.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if spec.APIStyle != models.APIStyleOpenAI && spec.APIStyle != models.APIStyleAnthropic {
		return &ValidationError{Field: "api_style", Reason: "must be openai or anthropic"}
	}
	if spec.APIBase == "" && spec.ProxyURL == "" {
		return &ValidationError{Field: "api_base", Reason: "is required unless proxy_url is set"}
	}

	switch spec.AuthType {
	case models.AuthTypeAPIKey:
		if spec.Token == "" && !spec.NoKeyRequired {
			return &ValidationError{Field: "token", Reason: "is required when no_key_required is false"}
		}
		if spec.OAuth != nil {
			return &ValidationError{Field: "oauth", Reason: "must be empty for api_key providers"}
		}
	case models.AuthTypeOAuth:
		if spec.Token != "" {
			return &ValidationError{Field: "token", Reason: "must be empty for oauth providers"}
		}
		if spec.OAuth == nil || strings.TrimSpace(spec.OAuth.AccessToken) == "" {
			return &ValidationError{Field: "oauth", Reason: "access_token is required for oauth providers"}
		}
		if strings.TrimSpace(spec.OAuth.RefreshToken) == "" {
			return &ValidationError{Field: "oauth", Reason: "refresh_token is required for oauth providers"}
		}
	default:
		return &ValidationError{Field: "auth_type", Reason: "must be api_key or oauth"}
	}
	return nil
}

// validateProvider re-validates a stored record after a partial update.
func validateProvider(provider *models.Provider) error {
	spec := ProviderSpec{
		Name:          provider.Name,
		AuthType:      provider.AuthType,
		APIBase:       provider.APIBase,
		APIStyle:      provider.APIStyle,
		Token:         provider.Token,
		NoKeyRequired: provider.NoKeyRequired,
		ProxyURL:      provider.ProxyURL,
	}
	if provider.AuthType == models.AuthTypeOAuth {
		spec.OAuth = &OAuthSpec{
			AccessToken:  provider.OAuthAccessToken,
			RefreshToken: provider.OAuthRefreshToken,
		}
	}
	return validateSpec(spec)
}

// providerFromSpec builds the persisted record from a validated spec.
func providerFromSpec(spec ProviderSpec) *models.Provider {
	provider := &models.Provider{
		Name:          spec.Name,
		AuthType:      spec.AuthType,
		APIBase:       spec.APIBase,
		APIStyle:      spec.APIStyle,
		Token:         spec.Token,
		NoKeyRequired: spec.NoKeyRequired,
		Enabled:       spec.Enabled,
		ProxyURL:      spec.ProxyURL,
	}
	if spec.AuthType == models.AuthTypeOAuth && spec.OAuth != nil {
		provider.OAuthAccessToken = strings.TrimSpace(spec.OAuth.AccessToken)
		provider.OAuthRefreshToken = strings.TrimSpace(spec.OAuth.RefreshToken)
		provider.OAuthExpiresAt = spec.OAuth.ExpiresAt
		if len(spec.OAuth.Scopes) > 0 {
			if encoded, errMarshal := json.Marshal(spec.OAuth.Scopes); errMarshal == nil {
				provider.OAuthScopes = encoded
			}
		}
	}
	return provider
}

// specDetails builds audit details for provider-spec actions.
func specDetails(spec ProviderSpec) map[string]any {
	return map[string]any{
		"name":      spec.Name,
		"api_base":  spec.APIBase,
		"api_style": spec.APIStyle,
		"auth_type": spec.AuthType,
	}
}
