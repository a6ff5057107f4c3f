package config

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"sigs.k8s.io/yaml"
)

// EnvCredentialFiles overrides the credential-file search path, analogous
// to KUBECONFIG: a platform-separator-delimited list of files, merged in
// listed order with the last-listed file winning on name conflicts.
const EnvCredentialFiles = "CTXGUARD_CREDENTIALS"

// LoadConfig reads the ctxguard configuration from a YAML file.
// An empty path triggers the standard search locations; if no file exists
// anywhere, the built-in defaults are used so the tool works out of the
// box. An explicitly named file that cannot be read is still an error.
func LoadConfig(configPath string) (*Config, error) {
	explicit := configPath != ""
	if configPath == "" {
		configPath = findDefaultConfigPath()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			cfg := &Config{}
			setDefaults(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	setDefaults(&cfg)
	return &cfg, nil
}

// findDefaultConfigPath looks for the config file in standard locations,
// following the XDG specification and common practice: current directory
// first, then the user's home, then XDG_CONFIG_HOME.
func findDefaultConfigPath() string {
	if _, err := os.Stat("./ctxguard.yaml"); err == nil {
		return "./ctxguard.yaml"
	}

	homeDir, err := homedir.Dir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".ctxguard", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" && homeDir != "" {
		configDir = filepath.Join(homeDir, ".config")
	}
	if configDir != "" {
		configPath := filepath.Join(configDir, "ctxguard", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	if homeDir != "" {
		return filepath.Join(homeDir, ".ctxguard", "config.yaml")
	}
	return "./ctxguard.yaml"
}

// validateConfig rejects settings that would misbehave at runtime rather
// than letting them fail mysteriously later.
func validateConfig(cfg *Config) error {
	if cfg.ConfirmTimeout < 0 {
		return fmt.Errorf("confirmTimeout must not be negative, got %d", cfg.ConfirmTimeout)
	}
	if cfg.ExecTimeout < 0 {
		return fmt.Errorf("execTimeout must not be negative, got %d", cfg.ExecTimeout)
	}
	for i, path := range cfg.CredentialFiles {
		if path == "" {
			return fmt.Errorf("credentialFiles[%d] is empty", i)
		}
	}
	return nil
}

// setDefaults fills in reasonable default values for missing settings.
func setDefaults(cfg *Config) {
	if len(cfg.CredentialFiles) == 0 {
		cfg.CredentialFiles = []string{defaultUserPath("credentials.yaml")}
	}
	if cfg.AuditLog == "" {
		cfg.AuditLog = defaultUserPath("audit.log")
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 60
	}
	if cfg.ExecTimeout == 0 {
		cfg.ExecTimeout = 30
	}
}

// CredentialPaths resolves which credential files to load: the
// CTXGUARD_CREDENTIALS environment variable wins over the config file, and
// within either list the merge order is the listed order (last wins).
func (c *Config) CredentialPaths() []string {
	if env := os.Getenv(EnvCredentialFiles); env != "" {
		var paths []string
		for _, p := range filepath.SplitList(env) {
			if p != "" {
				paths = append(paths, p)
			}
		}
		if len(paths) > 0 {
			return paths
		}
	}
	return c.CredentialFiles
}

// PrimaryCredentialPath is where writes land: the last path in the list,
// consistent with last-source-wins merge semantics (what you save is what
// you will read back).
func (c *Config) PrimaryCredentialPath() string {
	paths := c.CredentialPaths()
	return paths[len(paths)-1]
}

func defaultUserPath(name string) string {
	homeDir, err := homedir.Dir()
	if err != nil {
		return filepath.Join(".", ".ctxguard", name)
	}
	return filepath.Join(homeDir, ".ctxguard", name)
}
