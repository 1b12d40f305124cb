package config

import (
	"crypto/subtle"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tingly-box/relayadmin/internal/oauthflow"
	"github.com/tingly-box/relayadmin/internal/security"
	"gopkg.in/yaml.v3"
)

// Environment variable overrides.
const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvAdminUser    = "ADMIN_USERNAME"
	EnvAdminPass    = "ADMIN_PASSWORD"
)

// defaultPort is the listen port when the config omits one.
const defaultPort = 8789

// defaultDatabaseDSN is a local sqlite file used when no DSN is configured.
const defaultDatabaseDSN = "relayadmin.db"

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = Duration(30 * 24 * time.Hour)

// defaultProbeTimeout bounds connectivity probes when unset.
const defaultProbeTimeout = Duration(10 * time.Second)

// defaultExchangeTimeout bounds OAuth token exchanges when unset.
const defaultExchangeTimeout = Duration(30 * time.Second)

// Duration decodes YAML duration values given either as Go duration strings
// ("30s", "1h") or as bare integers interpreted as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if parsed, errParse := time.ParseDuration(raw); errParse == nil {
		*d = Duration(parsed)
		return nil
	}
	var seconds int64
	if errDecode := value.Decode(&seconds); errDecode == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}
	return fmt.Errorf("config: invalid duration %q", raw)
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string   `yaml:"secret"`
	Expiry Duration `yaml:"expiry"`
}

// AdminConfig holds the management API credential.
type AdminConfig struct {
	Username string `yaml:"username"`
	// PasswordHash is a bcrypt hash; Password is accepted as a plaintext
	// fallback for local setups.
	PasswordHash string `yaml:"password-hash"`
	Password     string `yaml:"password"`
}

// CheckPassword verifies a candidate against the configured credential. The
// bcrypt hash wins when both are set.
func (a AdminConfig) CheckPassword(candidate string) bool {
	if strings.TrimSpace(a.PasswordHash) != "" {
		return security.CheckPassword(a.PasswordHash, candidate)
	}
	if a.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.Password), []byte(candidate)) == 1
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// Config is the resolved application configuration.
type Config struct {
	Port        int                      `yaml:"port"`
	DatabaseDSN string                   `yaml:"database-dsn"`
	JWT         JWTConfig                `yaml:"jwt"`
	Admin       AdminConfig              `yaml:"admin"`
	Logging     LoggingConfig            `yaml:"logging"`
	OAuth       oauthflow.EndpointConfig `yaml:"oauth"`

	ProbeTimeout         Duration `yaml:"probe-timeout"`
	OAuthExchangeTimeout Duration `yaml:"oauth-exchange-timeout"`
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the YAML config file and applies env overrides and defaults.
// A missing file is not an error; env and defaults still apply.
func Load(configPath string) (Config, error) {
	var cfg Config

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", configPath, errUnmarshal)
		}
	} else if !os.IsNotExist(errRead) {
		return Config{}, fmt.Errorf("config: read %s: %w", configPath, errRead)
	}

	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}
	if username := strings.TrimSpace(os.Getenv(EnvAdminUser)); username != "" {
		cfg.Admin.Username = username
	}
	if password := strings.TrimSpace(os.Getenv(EnvAdminPass)); password != "" {
		cfg.Admin.Password = password
	}

	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		cfg.DatabaseDSN = defaultDatabaseDSN
	}
	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = defaultJWTExpiry
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.OAuthExchangeTimeout <= 0 {
		cfg.OAuthExchangeTimeout = defaultExchangeTimeout
	}
	return cfg, nil
}
