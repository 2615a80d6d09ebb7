// internal/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMappingsFile      = "secrets/anonymized-names.jsonl"
	DefaultMappingsDB        = "secrets/anonymized-names.db"
	DefaultInventoryFile     = "inventory.yaml"
	DefaultStopWordsFile     = "additional-stop-words.txt"
	DefaultSecurityWordsFile = "security-stop-words.txt"
	DefaultRefreshInterval   = 10 * time.Minute
	DefaultRefreshCron       = "0 */10 * * * *"
	DefaultWatchDebounce     = time.Second
	DefaultMCPListenAddress  = "127.0.0.1:9877"
	defaultLogMaxSizeMB      = 50
	defaultLogMaxBackups     = 5
	defaultDataRootDirName   = "supportanon"
	storageBackendFile       = "file"
	storageBackendSQLite     = "sqlite"
)

// EnvConfigPath overrides the configuration file location.
const EnvConfigPath = "SUPPORTANON_CONFIG"

// DefaultConfigPath is used when neither a flag nor EnvConfigPath names a file.
const DefaultConfigPath = "/etc/supportanon/config.yaml"

// Path returns the configuration file to use: explicit, then the
// environment, then DefaultConfigPath.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultConfigPath
}

// LoadGlobal loads the global configuration from a YAML file
func LoadGlobal(path string) (*Global, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Global
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyGlobalDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, rooted at dataRoot.
func Default(dataRoot string) *Global {
	cfg := &Global{DataRoot: dataRoot}
	applyGlobalDefaults(cfg)
	return cfg
}

// Validate checks a loaded configuration for values the service cannot work with.
func Validate(cfg *Global) error {
	if cfg.DataRoot == "" {
		return fmt.Errorf("data_root is required")
	}
	switch cfg.Storage.Backend {
	case storageBackendFile, storageBackendSQLite:
	default:
		return fmt.Errorf("invalid storage backend: %s (must be %s or %s)", cfg.Storage.Backend, storageBackendFile, storageBackendSQLite)
	}
	if cfg.Refresh.MinInterval < 0 {
		return fmt.Errorf("refresh min_interval must not be negative")
	}
	for _, w := range cfg.Anonymization.ExcludedWords {
		if w == "" {
			return fmt.Errorf("excluded_words must not contain empty entries")
		}
	}
	return nil
}

// Resolve returns p unchanged when absolute, otherwise joined with the data root.
func (g *Global) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(g.DataRoot, p)
}

func applyGlobalDefaults(cfg *Global) {
	if cfg.DataRoot == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			cfg.DataRoot = filepath.Join(homeDir, ".local", "share", defaultDataRootDirName)
		}
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = storageBackendFile
	}
	if cfg.Storage.Path == "" {
		if cfg.Storage.Backend == storageBackendSQLite {
			cfg.Storage.Path = DefaultMappingsDB
		} else {
			cfg.Storage.Path = DefaultMappingsFile
		}
	}
	if cfg.Inventory.Path == "" {
		cfg.Inventory.Path = DefaultInventoryFile
	}
	if cfg.Anonymization.AdditionalStopWordsFile == "" {
		cfg.Anonymization.AdditionalStopWordsFile = DefaultStopWordsFile
	}
	if cfg.Anonymization.SecurityWordsFile == "" {
		cfg.Anonymization.SecurityWordsFile = DefaultSecurityWordsFile
	}
	if cfg.Refresh.MinInterval == 0 {
		cfg.Refresh.MinInterval = DefaultRefreshInterval
	}
	if cfg.Refresh.CronExpression == "" {
		cfg.Refresh.CronExpression = DefaultRefreshCron
	}
	if cfg.Refresh.WatchDebounce <= 0 {
		cfg.Refresh.WatchDebounce = DefaultWatchDebounce
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = defaultLogMaxBackups
	}
	if cfg.MCP.ListenAddress == "" {
		cfg.MCP.ListenAddress = DefaultMCPListenAddress
	}
}
