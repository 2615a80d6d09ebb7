// internal/config/types.go
package config

import "time"

// Global configuration loaded from config.yaml
type Global struct {
	DataRoot      string              `yaml:"data_root"`
	Identity      Identity            `yaml:"identity"`
	Anonymization AnonymizationConfig `yaml:"anonymization"`
	Inventory     InventoryConfig     `yaml:"inventory"`
	Storage       StorageConfig       `yaml:"storage"`
	Refresh       RefreshConfig       `yaml:"refresh"`
	Logging       LoggingConfig       `yaml:"logging"`
	MCP           MCPConfig           `yaml:"mcp"`
	HTTP          HTTPConfig          `yaml:"http"`
}

// Identity describes the controller whose content is being anonymized.
// Changing it invalidates every recorded mapping.
type Identity struct {
	Version string `yaml:"version"`
	OSName  string `yaml:"os_name"`
}

type AnonymizationConfig struct {
	Enabled            bool     `yaml:"enabled"`
	AnonymizeLabels    *bool    `yaml:"anonymize_labels"` // nil = true
	AnonymizeItems     *bool    `yaml:"anonymize_items"`
	AnonymizeViews     *bool    `yaml:"anonymize_views"`
	AnonymizeNodes     *bool    `yaml:"anonymize_nodes"`
	AnonymizeComputers *bool    `yaml:"anonymize_computers"`
	AnonymizeUsers     *bool    `yaml:"anonymize_users"`
	ExcludedWords      []string `yaml:"excluded_words"`
	// nil = use security_words_file or the built-in dictionary, empty = disabled
	PasswordKeyPatterns     []string `yaml:"password_key_patterns"`
	AdditionalStopWordsFile string   `yaml:"additional_stop_words_file"`
	SecurityWordsFile       string   `yaml:"security_words_file"`
	CaseSensitiveNames      bool     `yaml:"case_sensitive_names"`
}

type InventoryConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"` // file or sqlite
	Path    string `yaml:"path"`
}

type RefreshConfig struct {
	MinInterval    time.Duration `yaml:"min_interval"`
	CronExpression string        `yaml:"cron_expression"`
	WatchDebounce  time.Duration `yaml:"watch_debounce"`
}

type LoggingConfig struct {
	Format     string `yaml:"format"`
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type MCPConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// HTTPConfig enables the daemon's status API. Empty address = disabled.
type HTTPConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// Categories reports the per-category switches with defaults applied.
func (a AnonymizationConfig) Categories() map[string]bool {
	return map[string]bool{
		"label":    enabled(a.AnonymizeLabels),
		"item":     enabled(a.AnonymizeItems),
		"view":     enabled(a.AnonymizeViews),
		"node":     enabled(a.AnonymizeNodes),
		"computer": enabled(a.AnonymizeComputers),
		"user":     enabled(a.AnonymizeUsers),
	}
}

func enabled(b *bool) bool {
	return b == nil || *b
}
