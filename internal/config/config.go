// Package config loads the operator's connection settings from
// ~/.eavsctl/config.yaml (or the file named by EAVSCTL_CONFIG), with
// environment variable overrides and an OS keyring fallback for the
// warehouse password.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"eavsctl/internal/common"
	apperrors "eavsctl/pkg/errors"
)

const (
	envConfigFile  = "EAVSCTL_CONFIG"
	keyringService = "eavsctl"
)

// Config is the operator-level configuration: where the warehouse and the
// mapping document live. Field mappings themselves stay in the mapping
// document, not here.
type Config struct {
	Account   string        `mapstructure:"account"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	Database  string        `mapstructure:"database"`
	Warehouse string        `mapstructure:"warehouse"`
	Role      string        `mapstructure:"role"`
	Timeout   time.Duration `mapstructure:"timeout"`

	MappingFile string `mapstructure:"mapping_file"`
	OutputDir   string `mapstructure:"output_dir"`
}

// Dir returns the config directory, honoring EAVSCTL_CONFIG.
func Dir() string {
	if path := os.Getenv(envConfigFile); path != "" {
		return filepath.Dir(path)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".eavsctl")
}

// File returns the config file path, honoring EAVSCTL_CONFIG.
func File() string {
	if path := os.Getenv(envConfigFile); path != "" {
		if cleaned, err := common.CleanPath(path); err == nil {
			return cleaned
		}
	}
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads the config file, applies EAVSCTL_* environment overrides, and
// fills the password from the OS keyring when the file leaves it blank. A
// missing file yields defaults rather than an error so read-only commands
// can still run.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(File())
	v.SetConfigType("yaml")

	v.SetDefault("output_dir", "generated")
	v.SetDefault("mapping_file", "config/field_mappings.yaml")
	v.SetDefault("timeout", 5*time.Minute)
	for _, key := range []string{"account", "username", "password", "database", "warehouse", "role"} {
		v.SetDefault(key, "")
	}

	v.SetEnvPrefix("EAVSCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid,
				fmt.Sprintf("failed to read config file %s", File()))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "failed to parse config")
	}

	if cfg.Password == "" && cfg.Username != "" {
		if secret, err := keyring.Get(keyringService, cfg.Username); err == nil {
			cfg.Password = secret
		}
	}

	return &cfg, nil
}

// Save writes the config file with owner-only permissions. The password is
// stored in the OS keyring, never on disk.
func Save(cfg *Config) error {
	if err := os.MkdirAll(Dir(), 0o700); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "failed to create config directory")
	}

	if cfg.Password != "" && cfg.Username != "" {
		if err := keyring.Set(keyringService, cfg.Username, cfg.Password); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid,
				"failed to store password in the OS keyring").
				WithSuggestions("Set EAVSCTL_PASSWORD in the environment instead")
		}
	}

	v := viper.New()
	v.Set("account", cfg.Account)
	v.Set("username", cfg.Username)
	v.Set("database", cfg.Database)
	v.Set("warehouse", cfg.Warehouse)
	v.Set("role", cfg.Role)
	v.Set("mapping_file", cfg.MappingFile)
	v.Set("output_dir", cfg.OutputDir)

	if err := v.WriteConfigAs(File()); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "failed to write config file")
	}
	return os.Chmod(File(), 0o600)
}

// ValidateForWarehouse checks the fields a warehouse-touching command
// needs, failing before any external service is contacted.
func (c *Config) ValidateForWarehouse() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"account", c.Account},
		{"username", c.Username},
		{"password", c.Password},
		{"database", c.Database},
		{"warehouse", c.Warehouse},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperrors.New(apperrors.ErrCodeConfigNotFound,
			fmt.Sprintf("missing connection settings: %s", strings.Join(missing, ", "))).
			WithSuggestions(
				fmt.Sprintf("Run 'eavsctl configure' or edit %s", File()),
				"Settings can also come from EAVSCTL_* environment variables",
			)
	}
	return nil
}
