// Package config manages OVC configuration and the .ovc directory structure.
// It handles loading, saving, and initializing the repository configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	OVCDir     = ".ovc"
	ConfigFile = "config"
	// DatabaseFile is the bbolt database holding merge audit records.
	DatabaseFile = "ovc.db"
	// LedgerFile is the SQLite database holding the resolution ledger.
	LedgerFile = "ledger.db"
)

// Policy holds the merge-policy knobs consumed by the business rule
// overlay and the ancestry resolver.
type Policy struct {
	// ConfidenceThreshold is the minimum resolution confidence required
	// for a conflict to count toward an automatic merge.
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	// AutoMergeMaxConflicts caps how many conflicts an automatic merge
	// may carry.
	AutoMergeMaxConflicts int `toml:"auto_merge_max_conflicts"`
	// DeferConflictCeiling is the conflict count above which a merge is
	// deferred rather than routed to manual resolution.
	DeferConflictCeiling int `toml:"defer_conflict_ceiling"`
	// CriticalPatterns are substrings that mark an entity as critical.
	CriticalPatterns []string `toml:"critical_patterns"`
	// MaxAncestorDepth bounds the common-ancestor BFS per side.
	MaxAncestorDepth int `toml:"max_ancestor_depth"`
	// AncestorTimeoutSeconds bounds the common-ancestor search wall clock.
	AncestorTimeoutSeconds int `toml:"ancestor_timeout_seconds"`
}

// AncestorTimeout returns the ancestor search timeout as a duration.
func (p Policy) AncestorTimeout() time.Duration {
	return time.Duration(p.AncestorTimeoutSeconds) * time.Second
}

// DefaultPolicy returns the default merge policy.
func DefaultPolicy() Policy {
	return Policy{
		ConfidenceThreshold:    0.8,
		AutoMergeMaxConflicts:  5,
		DeferConflictCeiling:   20,
		CriticalPatterns:       []string{"billing", "payment", "invoice", "customer", "account", "ledger", "transaction"},
		MaxAncestorDepth:       10000,
		AncestorTimeoutSeconds: 30,
	}
}

// Config represents the OVC configuration.
type Config struct {
	StoreURL string `toml:"store_url"`
	Database string `toml:"database"`
	NATSURL  string `toml:"nats_url"`
	Author   string `toml:"author"`
	Policy   Policy `toml:"policy"`

	path string // path to .ovc directory
}

// FindOVCRoot finds the .ovc directory by walking up from current directory.
func FindOVCRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		ovcPath := filepath.Join(dir, OVCDir)
		if info, err := os.Stat(ovcPath); err == nil && info.IsDir() {
			return ovcPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not an ovc repository (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration from the .ovc directory.
func Load() (*Config, error) {
	ovcPath, err := FindOVCRoot()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(ovcPath, ConfigFile)
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{Policy: DefaultPolicy()}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.path = ovcPath
	return cfg, nil
}

// Save saves the configuration to disk.
func (c *Config) Save() error {
	configPath := filepath.Join(c.path, ConfigFile)
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// OVCPath returns the path to the .ovc directory.
func (c *Config) OVCPath() string {
	return c.path
}

// DatabasePath returns the path to the bbolt database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.path, DatabaseFile)
}

// LedgerPath returns the path to the resolution ledger database.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.path, LedgerFile)
}

// Initialize creates a new .ovc directory with initial configuration.
func Initialize(storeURL, database string) (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	ovcPath := filepath.Join(cwd, OVCDir)

	if _, err := os.Stat(ovcPath); err == nil {
		return nil, fmt.Errorf("ovc repository already exists")
	}

	if err := os.MkdirAll(ovcPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .ovc directory: %w", err)
	}

	cfg := &Config{
		StoreURL: storeURL,
		Database: database,
		Policy:   DefaultPolicy(),
		path:     ovcPath,
	}

	if err := cfg.Save(); err != nil {
		return nil, err
	}

	return cfg, nil
}
