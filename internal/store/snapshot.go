package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tingly-box/relayadmin/internal/models"
	"gorm.io/gorm"
)

// Snapshot is a consistent read of routing state. Resolvers work over a
// snapshot so they never observe a half-applied mutation.
type Snapshot struct {
	Providers []models.Provider      // All providers in creation order.
	Rules     []models.Rule          // All rules in creation order.
	Defaults  models.RoutingDefaults // Process-wide defaults.

	byName map[string]*models.Provider
}

// Snapshot loads providers, rules, and defaults inside one transaction.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Order("id ASC").Find(&snap.Providers).Error; errFind != nil {
			return fmt.Errorf("store: snapshot providers: %w", errFind)
		}
		if errFind := tx.Order("created_at ASC, id ASC").Find(&snap.Rules).Error; errFind != nil {
			return fmt.Errorf("store: snapshot rules: %w", errFind)
		}

		var row models.Setting
		errFind := tx.Where("key = ?", models.SettingKeyRoutingDefaults).First(&row).Error
		if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("store: snapshot defaults: %w", errFind)
		}
		if len(row.Value) > 0 {
			if errUnmarshal := json.Unmarshal(row.Value, &snap.Defaults); errUnmarshal != nil {
				return fmt.Errorf("store: snapshot defaults decode: %w", errUnmarshal)
			}
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	snap.byName = make(map[string]*models.Provider, len(snap.Providers))
	for i := range snap.Providers {
		snap.byName[strings.ToLower(snap.Providers[i].Name)] = &snap.Providers[i]
	}
	return snap, nil
}

// ProviderByName resolves a provider from the snapshot, case-insensitively.
func (sn *Snapshot) ProviderByName(name string) *models.Provider {
	if sn == nil {
		return nil
	}
	return sn.byName[strings.ToLower(strings.TrimSpace(name))]
}

// RulesForScenario returns the scenario's rules in creation order.
func (sn *Snapshot) RulesForScenario(scenario string) []models.Rule {
	if sn == nil {
		return nil
	}
	out := make([]models.Rule, 0, 4)
	for _, rule := range sn.Rules {
		if rule.Scenario == scenario {
			out = append(out, rule)
		}
	}
	return out
}
