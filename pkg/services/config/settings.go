package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "DINO"

// Settings holds defaults shared by both binaries. Every key can be set in
// the config file or as DINO_<KEY>, e.g. DINO_DEFAULT_CATALOG.
type Settings struct {
	TerraformDir       string        `mapstructure:"terraform_dir"`
	TerraformBin       string        `mapstructure:"terraform_bin"`
	CheckpointDB       string        `mapstructure:"checkpoint_db"`
	DefaultCatalog     string        `mapstructure:"default_catalog"`
	WarehouseSize      string        `mapstructure:"warehouse_size"`
	MetastoreDeadline  time.Duration `mapstructure:"metastore_deadline"`
	WorkspaceDeadline  time.Duration `mapstructure:"workspace_deadline"`
	NotificationEmails []string      `mapstructure:"notification_emails"`
	OutputDir          string        `mapstructure:"output_dir"`
	ServerAddr         string        `mapstructure:"server_addr"`
}

var defaults = map[string]any{
	"terraform_dir":       "terraform",
	"terraform_bin":       "terraform",
	"checkpoint_db":       "dino-checkpoints.db",
	"default_catalog":     "main",
	"warehouse_size":      "2X-Small",
	"metastore_deadline":  30 * time.Second,
	"workspace_deadline":  60 * time.Second,
	"notification_emails": []string{},
	"output_dir":          ".",
	"server_addr":         "127.0.0.1:8080",
}

// LoadSettings reads .env (when present), then the optional config file, then
// DINO_* environment variables, later sources winning.
func LoadSettings(configFile string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return &settings, nil
}
