package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds mailidxctl's configuration options.
type Config struct {
	MailboxDir   string `json:"mailbox_dir"` //nolint:tagliatelle // snake_case for config file
	UpdateRecent bool   `json:"update_recent,omitempty"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string
	Project string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		MailboxDir:   ".",
		UpdateRecent: true,
	}
}

// ConfigFileName is the default project-local config file name.
const ConfigFileName = ".mailidxctl.json"

var errConfigFileNotFound = errors.New("config file not found")

func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "mailidxctl", "config.json")
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mailidxctl", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "mailidxctl", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with precedence (highest wins):
// defaults < global config < project config < CLI flag overrides.
func LoadConfig(workDir, configPath string, cliOverrides Config, hasMailboxDirOverride, hasUpdateRecentOverride bool, env []string) (Config, ConfigSources, error) {
	cfg := DefaultConfig()

	var sources ConfigSources

	globalPath := getGlobalConfigPath(env)
	if globalPath != "" {
		globalCfg, loaded, err := loadConfigFile(globalPath, false)
		if err != nil {
			return Config{}, ConfigSources{}, err
		}
		if loaded {
			sources.Global = globalPath
			cfg = mergeConfig(cfg, globalCfg)
		}
	}

	var projectFile string

	mustExist := configPath != ""
	if mustExist {
		projectFile = configPath
		if !filepath.IsAbs(projectFile) {
			projectFile = filepath.Join(workDir, projectFile)
		}
	} else {
		projectFile = filepath.Join(workDir, ConfigFileName)
	}

	projectCfg, loaded, err := loadConfigFile(projectFile, mustExist)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}
	if loaded {
		sources.Project = projectFile
		cfg = mergeConfig(cfg, projectCfg)
	}

	if hasMailboxDirOverride {
		cfg.MailboxDir = cliOverrides.MailboxDir
	}
	if hasUpdateRecentOverride {
		cfg.UpdateRecent = cliOverrides.UpdateRecent
	}

	return cfg, sources, nil
}

func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
			}
			return Config{}, false, nil
		}
		return Config{}, false, err
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("invalid JWCC in %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("invalid config JSON in %s: %w", path, err)
	}

	return cfg, true, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.MailboxDir != "" {
		base.MailboxDir = overlay.MailboxDir
	}
	base.UpdateRecent = overlay.UpdateRecent
	return base
}
