package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/tingly-box/relayadmin/internal/models"
	"github.com/tingly-box/relayadmin/internal/store"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.Provider{}, &models.Rule{}, &models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return store.NewStore(db)
}

func seedProvider(t *testing.T, st *store.Store, name, style string, enabled bool) {
	t.Helper()
	provider := &models.Provider{
		UUID:     "uuid-" + name,
		Name:     name,
		AuthType: models.AuthTypeAPIKey,
		APIBase:  "https://" + name + ".example.com",
		APIStyle: style,
		Token:    "sk-" + name,
		Enabled:  enabled,
	}
	if errCreate := st.CreateProvider(context.Background(), provider); errCreate != nil {
		t.Fatalf("seed provider %s: %v", name, errCreate)
	}
}

func seedRule(t *testing.T, st *store.Store, uuid, scenario, matchModel, targetProvider, targetModel string) {
	t.Helper()
	rule := &models.Rule{
		UUID:           uuid,
		Scenario:       scenario,
		MatchModel:     matchModel,
		TargetProvider: targetProvider,
		TargetModel:    targetModel,
	}
	if errAdd := st.AddRule(context.Background(), rule); errAdd != nil {
		t.Fatalf("seed rule %s: %v", uuid, errAdd)
	}
	// Rules order by created_at; keep insertions strictly ordered.
	time.Sleep(2 * time.Millisecond)
}

func TestResolve_RuleOverridesDefaults(t *testing.T) {
	st := newTestStore(t)
	resolver := NewResolver(st)
	ctx := context.Background()

	seedProvider(t, st, "openai-1", models.APIStyleOpenAI, true)
	seedProvider(t, st, "openai-2", models.APIStyleOpenAI, true)
	if errSet := st.SetDefaults(ctx, models.RoutingDefaults{DefaultProvider: "openai-1", DefaultModel: "gpt-4o"}); errSet != nil {
		t.Fatalf("set defaults: %v", errSet)
	}
	seedRule(t, st, "r-1", ScenarioOpenAI, "gpt-4o", "openai-2", "gpt-4o-mini")

	route, errResolve := resolver.Resolve(ctx, ScenarioOpenAI, "gpt-4o")
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if route.Provider != "openai-2" || route.Model != "gpt-4o-mini" {
		t.Fatalf("expected rule route, got %+v", route)
	}

	// A model no rule matches falls through to the defaults.
	route, errResolve = resolver.Resolve(ctx, ScenarioOpenAI, "o3-mini")
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if route.Provider != "openai-1" || route.Model != "gpt-4o" {
		t.Fatalf("expected default route, got %+v", route)
	}
}

func TestResolve_OldestMatchingRuleWins(t *testing.T) {
	st := newTestStore(t)
	resolver := NewResolver(st)
	ctx := context.Background()

	seedProvider(t, st, "first", models.APIStyleOpenAI, true)
	seedProvider(t, st, "second", models.APIStyleOpenAI, true)
	seedRule(t, st, "r-old", ScenarioOpenAI, "*", "first", "m-first")
	seedRule(t, st, "r-new", ScenarioOpenAI, "gpt-4o", "second", "m-second")

	route, errResolve := resolver.Resolve(ctx, ScenarioOpenAI, "gpt-4o")
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if route.Provider != "first" {
		t.Fatalf("expected oldest rule to win, got %+v", route)
	}
}

func TestResolve_UnusableRuleTargetFallsToDefaults(t *testing.T) {
	st := newTestStore(t)
	resolver := NewResolver(st)
	ctx := context.Background()

	seedProvider(t, st, "disabled-target", models.APIStyleOpenAI, false)
	seedProvider(t, st, "fallback", models.APIStyleOpenAI, true)
	if errSet := st.SetDefaults(ctx, models.RoutingDefaults{DefaultProvider: "fallback", DefaultModel: "gpt-4o"}); errSet != nil {
		t.Fatalf("set defaults: %v", errSet)
	}
	// Only the first match is considered; a later rule with a usable target
	// must not rescue the resolution.
	seedRule(t, st, "r-1", ScenarioOpenAI, "*", "disabled-target", "m-1")
	seedRule(t, st, "r-2", ScenarioOpenAI, "*", "fallback", "m-2")

	route, errResolve := resolver.Resolve(ctx, ScenarioOpenAI, "any-model")
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if route.Provider != "fallback" || route.Model != "gpt-4o" {
		t.Fatalf("expected defaults route, got %+v", route)
	}
}

func TestResolve_NoRouteAvailable(t *testing.T) {
	st := newTestStore(t)
	resolver := NewResolver(st)
	ctx := context.Background()

	// No providers, no defaults.
	if _, errResolve := resolver.Resolve(ctx, ScenarioOpenAI, "gpt-4o"); !errors.Is(errResolve, ErrNoRouteAvailable) {
		t.Fatalf("expected ErrNoRouteAvailable, got %v", errResolve)
	}

	// A default pointing at a disabled provider is not a route.
	seedProvider(t, st, "dead", models.APIStyleOpenAI, false)
	if errSet := st.SetDefaults(ctx, models.RoutingDefaults{DefaultProvider: "dead"}); errSet != nil {
		t.Fatalf("set defaults: %v", errSet)
	}
	if _, errResolve := resolver.Resolve(ctx, ScenarioOpenAI, "gpt-4o"); !errors.Is(errResolve, ErrNoRouteAvailable) {
		t.Fatalf("expected ErrNoRouteAvailable, got %v", errResolve)
	}
}

func TestResolve_ClaudeCodeRequiresAnthropicStyleDefault(t *testing.T) {
	st := newTestStore(t)
	resolver := NewResolver(st)
	ctx := context.Background()

	seedProvider(t, st, "openai-style", models.APIStyleOpenAI, true)
	if errSet := st.SetDefaults(ctx, models.RoutingDefaults{DefaultProvider: "openai-style", DefaultModel: "gpt-4o"}); errSet != nil {
		t.Fatalf("set defaults: %v", errSet)
	}

	if _, errResolve := resolver.Resolve(ctx, ScenarioClaudeCode, "claude-sonnet-4"); !errors.Is(errResolve, ErrNoRouteAvailable) {
		t.Fatalf("expected ErrNoRouteAvailable for style mismatch, got %v", errResolve)
	}

	// An explicit rule may still target any style.
	seedRule(t, st, "r-1", ScenarioClaudeCode, "*", "openai-style", "gpt-4o")
	route, errResolve := resolver.Resolve(ctx, ScenarioClaudeCode, "claude-sonnet-4")
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if route.Provider != "openai-style" {
		t.Fatalf("expected rule route, got %+v", route)
	}
}

func TestResolve_ModelFallsBackToRequested(t *testing.T) {
	st := newTestStore(t)
	resolver := NewResolver(st)
	ctx := context.Background()

	seedProvider(t, st, "passthrough", models.APIStyleOpenAI, true)
	if errSet := st.SetDefaults(ctx, models.RoutingDefaults{DefaultProvider: "passthrough"}); errSet != nil {
		t.Fatalf("set defaults: %v", errSet)
	}

	route, errResolve := resolver.Resolve(ctx, ScenarioOpenAI, "gpt-4o")
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if route.Model != "gpt-4o" {
		t.Fatalf("expected requested model passthrough, got %+v", route)
	}
}

func TestResolveSnapshot_ExpiredOAuthDefaultIsUnusable(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour).UTC()
	provider := &models.Provider{
		UUID:              "uuid-oauth",
		Name:              "oauth-default",
		AuthType:          models.AuthTypeOAuth,
		APIBase:           "https://oauth.example.com",
		APIStyle:          models.APIStyleAnthropic,
		OAuthAccessToken:  "at",
		OAuthRefreshToken: "rt",
		OAuthExpiresAt:    &expired,
		Enabled:           true,
	}
	if errCreate := st.CreateProvider(ctx, provider); errCreate != nil {
		t.Fatalf("seed provider: %v", errCreate)
	}
	if errSet := st.SetDefaults(ctx, models.RoutingDefaults{DefaultProvider: "oauth-default"}); errSet != nil {
		t.Fatalf("set defaults: %v", errSet)
	}

	snap, errSnap := st.Snapshot(ctx)
	if errSnap != nil {
		t.Fatalf("snapshot: %v", errSnap)
	}
	if _, errResolve := ResolveSnapshot(snap, ScenarioAnthropic, "claude-sonnet-4", time.Now()); !errors.Is(errResolve, ErrNoRouteAvailable) {
		t.Fatalf("expected ErrNoRouteAvailable for expired oauth default, got %v", errResolve)
	}
}
