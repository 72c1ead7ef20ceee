package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/databricks/databricks-sdk-go/config"
	"gopkg.in/ini.v1"
)

const databricksCfgFile = ".databrickscfg"

// Profile is one section of a .databrickscfg file.
type Profile struct {
	Name     string
	Host     string
	Token    string
	HTTPPath string
}

func (p Profile) Config() *config.Config {
	return &config.Config{
		Host:     p.Host,
		Token:    p.Token,
		AuthType: "pat",
	}
}

type Registry interface {
	GetProfiles(ctx context.Context) ([]string, error)
	GetProfile(ctx context.Context, name string) (Profile, error)
}

type cfgRegistry struct {
	cfg *ini.File
}

func DefaultDatabricksCfgPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return databricksCfgFile
	}
	return filepath.Join(home, databricksCfgFile)
}

func NewRegistry(path string) (Registry, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return &cfgRegistry{cfg: cfg}, nil
}

func (cr *cfgRegistry) GetProfiles(_ context.Context) ([]string, error) {
	var profiles []string
	for _, section := range cr.cfg.Sections() {
		if len(section.Keys()) > 0 {
			profiles = append(profiles, section.Name())
		}
	}
	return profiles, nil
}

func (cr *cfgRegistry) GetProfile(_ context.Context, name string) (Profile, error) {
	section, err := cr.cfg.GetSection(name)
	if err != nil || len(section.Keys()) == 0 {
		return Profile{}, fmt.Errorf("profile %s not found", name)
	}

	profile := Profile{
		Name:     name,
		Host:     section.Key("host").String(),
		Token:    section.Key("token").String(),
		HTTPPath: section.Key("http_path").String(),
	}
	if profile.Host == "" || profile.Token == "" {
		return Profile{}, fmt.Errorf("profile %s needs host and token", name)
	}
	return profile, nil
}
