package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tingly-box/relayadmin/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sentinel errors surfaced by the credential store.
var (
	// ErrNotFound indicates the referenced provider or rule does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateName indicates a provider name collision (case-insensitive).
	ErrDuplicateName = errors.New("store: duplicate provider name")
)

// Store owns Provider, Defaults, and Rule state. All mutations are serialized
// behind a single mutex so concurrent callers never interleave writes; partial
// provider updates go through MutateProvider so the read-modify-write cycle
// itself holds the lock. Reads load consistent snapshots inside one
// transaction.
type Store struct {
	db *gorm.DB

	mu sync.Mutex
}

// NewStore constructs a Store backed by GORM.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateProvider inserts a provider after enforcing name uniqueness.
func (s *Store) CreateProvider(ctx context.Context, provider *models.Provider) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store: not initialized")
	}
	if provider == nil {
		return fmt.Errorf("store: provider is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, errCheck := nameTaken(tx, provider.Name, "")
		if errCheck != nil {
			return errCheck
		}
		if taken {
			return ErrDuplicateName
		}

		now := time.Now().UTC()
		provider.CreatedAt = now
		provider.UpdatedAt = now
		if errCreate := tx.Create(provider).Error; errCreate != nil {
			return fmt.Errorf("store: create provider: %w", errCreate)
		}
		return nil
	})
}

// CheckProviderName reports ErrDuplicateName when the name is already taken by
// a provider other than excludeUUID. Used for pre-probe validation.
func (s *Store) CheckProviderName(ctx context.Context, name, excludeUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	taken, errCheck := nameTaken(s.db.WithContext(ctx), name, excludeUUID)
	if errCheck != nil {
		return errCheck
	}
	if taken {
		return ErrDuplicateName
	}
	return nil
}

// MutateProvider loads a provider, applies fn to the freshly loaded row, and
// persists the result. The load, the mutation, and the save all run under the
// write lock inside one transaction, so concurrent mutations of the same
// provider serialize instead of overwriting each other. Name uniqueness is
// re-checked after fn runs. An error returned by fn aborts the transaction
// and is returned unchanged.
func (s *Store) MutateProvider(ctx context.Context, uuid string, fn func(*models.Provider) error) (*models.Provider, error) {
	if fn == nil {
		return nil, fmt.Errorf("store: mutation is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var row models.Provider
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("uuid = ?", strings.TrimSpace(uuid)).First(&row).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("store: load provider: %w", errFind)
		}

		id, createdAt := row.ID, row.CreatedAt
		if errApply := fn(&row); errApply != nil {
			return errApply
		}

		taken, errCheck := nameTaken(tx, row.Name, row.UUID)
		if errCheck != nil {
			return errCheck
		}
		if taken {
			return ErrDuplicateName
		}

		row.ID = id
		row.CreatedAt = createdAt
		row.UpdatedAt = time.Now().UTC()
		if errSave := tx.Save(&row).Error; errSave != nil {
			return fmt.Errorf("store: save provider: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &row, nil
}

// GetProviderByUUID loads a provider by its opaque identifier.
func (s *Store) GetProviderByUUID(ctx context.Context, uuid string) (*models.Provider, error) {
	var row models.Provider
	errFind := s.db.WithContext(ctx).Where("uuid = ?", strings.TrimSpace(uuid)).First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load provider: %w", errFind)
	}
	return &row, nil
}

// GetProviderByName loads a provider by name, case-insensitively.
func (s *Store) GetProviderByName(ctx context.Context, name string) (*models.Provider, error) {
	var row models.Provider
	errFind := s.db.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load provider by name: %w", errFind)
	}
	return &row, nil
}

// ListProviders returns all providers in creation order.
func (s *Store) ListProviders(ctx context.Context) ([]models.Provider, error) {
	var rows []models.Provider
	if errFind := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list providers: %w", errFind)
	}
	return rows, nil
}

// DeleteProvider removes a provider and cascades rules targeting its name.
// The removed provider and rules are returned so callers can audit the cascade.
func (s *Store) DeleteProvider(ctx context.Context, uuid string) (*models.Provider, []models.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed models.Provider
	var cascaded []models.Rule

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("uuid = ?", strings.TrimSpace(uuid)).First(&removed).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("store: load provider: %w", errFind)
		}

		if errRules := tx.Where("LOWER(target_provider) = ?", strings.ToLower(removed.Name)).
			Order("created_at ASC, id ASC").
			Find(&cascaded).Error; errRules != nil {
			return fmt.Errorf("store: load cascade rules: %w", errRules)
		}

		if len(cascaded) > 0 {
			ids := make([]uint64, 0, len(cascaded))
			for _, rule := range cascaded {
				ids = append(ids, rule.ID)
			}
			if errDelete := tx.Delete(&models.Rule{}, "id IN ?", ids).Error; errDelete != nil {
				return fmt.Errorf("store: cascade delete rules: %w", errDelete)
			}
		}

		if errDelete := tx.Delete(&models.Provider{}, "id = ?", removed.ID).Error; errDelete != nil {
			return fmt.Errorf("store: delete provider: %w", errDelete)
		}
		return nil
	})
	if errTx != nil {
		return nil, nil, errTx
	}
	return &removed, cascaded, nil
}

// GetDefaults loads the process-wide routing defaults.
func (s *Store) GetDefaults(ctx context.Context) (models.RoutingDefaults, error) {
	var row models.Setting
	errFind := s.db.WithContext(ctx).Where("key = ?", models.SettingKeyRoutingDefaults).First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.RoutingDefaults{}, nil
		}
		return models.RoutingDefaults{}, fmt.Errorf("store: load defaults: %w", errFind)
	}

	var defaults models.RoutingDefaults
	if len(row.Value) > 0 {
		if errUnmarshal := json.Unmarshal(row.Value, &defaults); errUnmarshal != nil {
			return models.RoutingDefaults{}, fmt.Errorf("store: decode defaults: %w", errUnmarshal)
		}
	}
	return defaults, nil
}

// SetDefaults replaces the process-wide routing defaults.
func (s *Store) SetDefaults(ctx context.Context, defaults models.RoutingDefaults) error {
	payload, errMarshal := json.Marshal(defaults)
	if errMarshal != nil {
		return fmt.Errorf("store: encode defaults: %w", errMarshal)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := models.Setting{
		Key:   models.SettingKeyRoutingDefaults,
		Value: payload,
	}
	if errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error; errUpsert != nil {
		return fmt.Errorf("store: save defaults: %w", errUpsert)
	}
	return nil
}

// AddRule appends a routing rule.
func (s *Store) AddRule(ctx context.Context, rule *models.Rule) error {
	if rule == nil {
		return fmt.Errorf("store: rule is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rule.CreatedAt = time.Now().UTC()
	if errCreate := s.db.WithContext(ctx).Create(rule).Error; errCreate != nil {
		return fmt.Errorf("store: create rule: %w", errCreate)
	}
	return nil
}

// GetRuleByUUID loads a rule by its identifier.
func (s *Store) GetRuleByUUID(ctx context.Context, uuid string) (*models.Rule, error) {
	var row models.Rule
	errFind := s.db.WithContext(ctx).Where("uuid = ?", strings.TrimSpace(uuid)).First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load rule: %w", errFind)
	}
	return &row, nil
}

// ListRules returns all rules in creation order.
func (s *Store) ListRules(ctx context.Context) ([]models.Rule, error) {
	var rows []models.Rule
	if errFind := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list rules: %w", errFind)
	}
	return rows, nil
}

// DeleteRule removes a rule by its identifier.
func (s *Store) DeleteRule(ctx context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Where("uuid = ?", strings.TrimSpace(uuid)).Delete(&models.Rule{})
	if res.Error != nil {
		return fmt.Errorf("store: delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// nameTaken reports whether another provider already uses the name.
func nameTaken(tx *gorm.DB, name, excludeUUID string) (bool, error) {
	q := tx.Model(&models.Provider{}).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name)))
	if strings.TrimSpace(excludeUUID) != "" {
		q = q.Where("uuid <> ?", strings.TrimSpace(excludeUUID))
	}
	var count int64
	if errCount := q.Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("store: check provider name: %w", errCount)
	}
	return count > 0, nil
}
