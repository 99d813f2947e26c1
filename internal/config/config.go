package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/banksync/internal/model"
)

// FileName is the default configuration file name.
const FileName = "banksync.yaml"

// Config represents the top-level banksync.yaml configuration.
type Config struct {
	Bank            string                 `yaml:"bank"`
	Accounts        []model.AccountMapping `yaml:"accounts,omitempty"`
	Categorize      bool                   `yaml:"categorize"`
	CategoryMapping map[string]string      `yaml:"category_mapping,omitempty"` // bank category -> ledger category
	Ledger          LedgerConfig           `yaml:"ledger"`
	Up              UpConfig               `yaml:"up,omitempty"`
	Akahu           AkahuConfig            `yaml:"akahu,omitempty"`
	Bnz             BnzConfig              `yaml:"bnz,omitempty"`
	CSVFile         CSVFileConfig          `yaml:"csvfile,omitempty"`
	Log             LogConfig              `yaml:"log"`
	Report          ReportConfig           `yaml:"report,omitempty"`
}

// LedgerConfig locates the budget server and the budget to sync into.
type LedgerConfig struct {
	ServerURL          string `yaml:"server_url"`
	SyncID             string `yaml:"sync_id"`
	DataDir            string `yaml:"data_dir"`
	Password           string `yaml:"-"` // ACTUAL_PASSWORD only
	EncryptionPassword string `yaml:"-"` // ACTUAL_ENCRYPTION_PASSWORD only
}

// UpConfig holds the Up personal access token.
type UpConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	UserToken string `yaml:"-"`
}

// AkahuConfig holds Akahu app and user tokens.
type AkahuConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	AppToken  string `yaml:"-"`
	UserToken string `yaml:"-"`
}

// BnzConfig holds internet banking credentials.
type BnzConfig struct {
	Headless     bool   `yaml:"headless"`
	AccessNumber string `yaml:"-"`
	Password     string `yaml:"-"`
}

// CSVFileConfig points at a directory of exported statements.
type CSVFileConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// LogConfig controls logger output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ReportConfig enables the per-run CSV report.
type ReportConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Load reads a banksync.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file. Secrets are never written.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	return &Config{
		Bank: "up",
		Ledger: LedgerConfig{
			ServerURL: "http://localhost:5007",
			DataDir:   "data",
		},
		Bnz: BnzConfig{
			Headless: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
