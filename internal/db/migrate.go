package db

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tingly-box/relayadmin/internal/models"
	"gorm.io/gorm"
)

// Migrate runs schema migrations and seeds required settings rows.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Provider{},
		&models.Rule{},
		&models.Setting{},
		&models.ActivityEntry{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errSeed := ensureRoutingDefaultsSetting(conn); errSeed != nil {
		return errSeed
	}
	return nil
}

// ensureRoutingDefaultsSetting seeds an empty routing defaults row when absent.
func ensureRoutingDefaultsSetting(conn *gorm.DB) error {
	var existing models.Setting
	errFind := conn.Where("key = ?", models.SettingKeyRoutingDefaults).First(&existing).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: load routing defaults setting: %w", errFind)
	}

	payload, errMarshal := json.Marshal(models.RoutingDefaults{})
	if errMarshal != nil {
		return fmt.Errorf("db: marshal routing defaults: %w", errMarshal)
	}
	row := models.Setting{
		Key:   models.SettingKeyRoutingDefaults,
		Value: payload,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		if IsDuplicateKey(errCreate) {
			return nil
		}
		return fmt.Errorf("db: seed routing defaults: %w", errCreate)
	}
	return nil
}
