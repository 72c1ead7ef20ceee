package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Defaults(t *testing.T) {
	settings, err := LoadSettings("")

	require.NoError(t, err)
	assert.Equal(t, "main", settings.DefaultCatalog)
	assert.Equal(t, "terraform", settings.TerraformBin)
	assert.Equal(t, "2X-Small", settings.WarehouseSize)
	assert.Equal(t, 30*time.Second, settings.MetastoreDeadline)
	assert.Equal(t, 60*time.Second, settings.WorkspaceDeadline)
}

func TestLoadSettings_Environment(t *testing.T) {
	t.Setenv("DINO_DEFAULT_CATALOG", "analytics")
	t.Setenv("DINO_WORKSPACE_DEADLINE", "2m")
	t.Setenv("DINO_NOTIFICATION_EMAILS", "a@example.com,b@example.com")

	settings, err := LoadSettings("")

	require.NoError(t, err)
	assert.Equal(t, "analytics", settings.DefaultCatalog)
	assert.Equal(t, 2*time.Minute, settings.WorkspaceDeadline)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, settings.NotificationEmails)
}

func TestLoadSettings_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dino.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
terraform_dir: ./infra
warehouse_size: Small
notification_emails:
  - data@example.com
`), 0o600))

	settings, err := LoadSettings(path)

	require.NoError(t, err)
	assert.Equal(t, "./infra", settings.TerraformDir)
	assert.Equal(t, "Small", settings.WarehouseSize)
	assert.Equal(t, []string{"data@example.com"}, settings.NotificationEmails)
	assert.Equal(t, "main", settings.DefaultCatalog)
}

func TestLoadSettings_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dino.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_catalog: from_file\n"), 0o600))
	t.Setenv("DINO_DEFAULT_CATALOG", "from_env")

	settings, err := LoadSettings(path)

	require.NoError(t, err)
	assert.Equal(t, "from_env", settings.DefaultCatalog)
}

func TestLoadSettings_MissingFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Error(t, err)
}
