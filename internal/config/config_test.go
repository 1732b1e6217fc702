package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("EAVSCTL_CONFIG", path)
	return path
}

func TestLoadFromFile(t *testing.T) {
	withConfigFile(t, `
account: xy12345.us-east-1
username: loader
password: hunter2
database: eavs-prod
warehouse: compute_wh
role: loader_role
mapping_file: /etc/eavs/field_mappings.yaml
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "xy12345.us-east-1", cfg.Account)
	assert.Equal(t, "loader", cfg.Username)
	assert.Equal(t, "hunter2", cfg.Password)
	assert.Equal(t, "eavs-prod", cfg.Database)
	assert.Equal(t, "/etc/eavs/field_mappings.yaml", cfg.MappingFile)
	// Defaults fill the gaps.
	assert.Equal(t, "generated", cfg.OutputDir)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("EAVSCTL_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "config/field_mappings.yaml", cfg.MappingFile)
	assert.Empty(t, cfg.Account)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	withConfigFile(t, "account: from-file\nusername: u\n")
	t.Setenv("EAVSCTL_ACCOUNT", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Account)
}

func TestValidateForWarehouse(t *testing.T) {
	cfg := &Config{
		Account:   "acct",
		Username:  "u",
		Password:  "p",
		Database:  "db",
		Warehouse: "wh",
	}
	assert.NoError(t, cfg.ValidateForWarehouse())

	cfg.Password = ""
	err := cfg.ValidateForWarehouse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}

func TestFileHonorsEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	t.Setenv("EAVSCTL_CONFIG", path)
	assert.Equal(t, path, File())
	assert.Equal(t, filepath.Dir(path), Dir())
}
