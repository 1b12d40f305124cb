// Package routing computes the effective provider and model for a scenario by
// cascading explicit rules over process-wide defaults.
package routing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tingly-box/relayadmin/internal/models"
	"github.com/tingly-box/relayadmin/internal/store"
)

// ErrNoRouteAvailable indicates neither a rule nor the defaults yield a
// usable provider. Requests must never silently route to a disabled or
// deleted provider.
var ErrNoRouteAvailable = errors.New("routing: no route available")

// Scenario names understood by the resolver.
const (
	ScenarioOpenAI     = "openai"
	ScenarioAnthropic  = "anthropic"
	ScenarioClaudeCode = "claude_code"
)

// Route is the resolved target for a request.
type Route struct {
	Provider string `json:"provider"` // Provider name to forward through.
	Model    string `json:"model"`    // Model name sent upstream.
}

// Resolver answers routing queries over consistent store snapshots. It holds
// no state of its own.
type Resolver struct {
	store *store.Store
}

// NewResolver constructs a Resolver reading from the credential store.
func NewResolver(st *store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve returns the provider and model for the scenario and requested
// model. Rules are evaluated oldest-first and only the first match is
// considered; a matched rule whose target is unusable falls back to the
// defaults rather than to later rules.
func (r *Resolver) Resolve(ctx context.Context, scenario, requestedModel string) (Route, error) {
	snap, errSnap := r.store.Snapshot(ctx)
	if errSnap != nil {
		return Route{}, errSnap
	}
	return ResolveSnapshot(snap, scenario, requestedModel, time.Now())
}

// ResolveSnapshot applies the resolution algorithm to a snapshot.
func ResolveSnapshot(snap *store.Snapshot, scenario, requestedModel string, now time.Time) (Route, error) {
	scenario = strings.TrimSpace(scenario)
	requestedModel = strings.TrimSpace(requestedModel)

	if matched := firstMatch(snap.RulesForScenario(scenario), requestedModel); matched != nil {
		if target := snap.ProviderByName(matched.TargetProvider); target != nil && target.Usable(now) {
			model := matched.TargetModel
			if model == "" {
				model = requestedModel
			}
			return Route{Provider: target.Name, Model: model}, nil
		}
	}

	defaults := snap.Defaults
	if defaults.DefaultProvider == "" {
		return Route{}, ErrNoRouteAvailable
	}
	fallback := snap.ProviderByName(defaults.DefaultProvider)
	if fallback == nil || !fallback.Usable(now) {
		return Route{}, ErrNoRouteAvailable
	}
	if !supportsScenario(fallback, scenario) {
		return Route{}, ErrNoRouteAvailable
	}

	model := defaults.DefaultModel
	if model == "" {
		model = requestedModel
	}
	return Route{Provider: fallback.Name, Model: model}, nil
}

// firstMatch returns the oldest rule matching the requested model.
func firstMatch(rules []models.Rule, requestedModel string) *models.Rule {
	for i := range rules {
		if rules[i].Matches(requestedModel) {
			return &rules[i]
		}
	}
	return nil
}

// supportsScenario reports whether the provider's API style can serve the
// scenario. claude_code speaks the anthropic wire style natively; other
// scenarios are translated, so any style serves them.
func supportsScenario(provider *models.Provider, scenario string) bool {
	switch scenario {
	case ScenarioClaudeCode:
		return provider.APIStyle == models.APIStyleAnthropic
	default:
		return true
	}
}
