// Package config loads the harvester settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/FranksOps/slsharvest/internal/partition"
	"github.com/spf13/viper"
)

var (
	// ErrMissingToken means no credential was configured.
	ErrMissingToken = errors.New("config: GITHUB_AUTH_TOKEN is not set")
	// ErrMissingTool means a required executable is not on PATH.
	ErrMissingTool = errors.New("config: required tool not found")
)

// Ledger backends accepted by HARVEST_LEDGER.
const (
	LedgerJSONL    = "jsonl"
	LedgerCSV      = "csv"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
	LedgerNone     = "none"
)

// Config stores all configuration for the harvester.
type Config struct {
	Token                string        `mapstructure:"GITHUB_AUTH_TOKEN"`
	Filenames            []string      `mapstructure:"HARVEST_FILENAMES"`
	LowerBound           int64         `mapstructure:"HARVEST_LOWER_BOUND"`
	UpperBound           int64         `mapstructure:"HARVEST_UPPER_BOUND"`
	MinInterval          int64         `mapstructure:"HARVEST_MIN_INTERVAL"`
	MaxInterval          int64         `mapstructure:"HARVEST_MAX_INTERVAL"`
	LowResults           int           `mapstructure:"HARVEST_LOW_RESULTS_THRESHOLD"`
	PageCeiling          int           `mapstructure:"HARVEST_PAGE_CEILING"`
	PageSize             int           `mapstructure:"HARVEST_PAGE_SIZE"`
	RequestDelay         time.Duration `mapstructure:"HARVEST_REQUEST_DELAY"`
	Jitter               float64       `mapstructure:"HARVEST_JITTER"`
	Concurrency          int           `mapstructure:"HARVEST_CONCURRENCY"`
	APIURL               string        `mapstructure:"HARVEST_API_URL"`
	RunRoot              string        `mapstructure:"HARVEST_RUN_ROOT"`
	Ledger               string        `mapstructure:"HARVEST_LEDGER"`
	LedgerDSN            string        `mapstructure:"HARVEST_LEDGER_DSN"`
	MetricsPort          int           `mapstructure:"HARVEST_METRICS_PORT"`
	TLSProfile           string        `mapstructure:"HARVEST_TLS_PROFILE"`
	Timeout              time.Duration `mapstructure:"HARVEST_TIMEOUT"`
	TolerateInvalidToken bool          `mapstructure:"HARVEST_TOLERATE_INVALID_TOKEN"`
	RequiredTools        []string      `mapstructure:"HARVEST_REQUIRED_TOOLS"`
	LogLevel             string        `mapstructure:"HARVEST_LOG_LEVEL"`
	LogFormat            string        `mapstructure:"HARVEST_LOG_FORMAT"`
	CloneDir             string        `mapstructure:"HARVEST_CLONE_DIR"`
	ConfigDir            string        `mapstructure:"HARVEST_CONFIG_DIR"`
}

var defaults = map[string]any{
	"GITHUB_AUTH_TOKEN":              "",
	"HARVEST_FILENAMES":              []string{"serverless.yml", "serverless.yaml", "serverless.json", "serverless.ts", "serverless.js"},
	"HARVEST_LOWER_BOUND":            0,
	"HARVEST_UPPER_BOUND":            384000,
	"HARVEST_MIN_INTERVAL":           10,
	"HARVEST_MAX_INTERVAL":           50000,
	"HARVEST_LOW_RESULTS_THRESHOLD":  100,
	"HARVEST_PAGE_CEILING":           10,
	"HARVEST_PAGE_SIZE":              100,
	"HARVEST_REQUEST_DELAY":          "6s",
	"HARVEST_JITTER":                 0.0,
	"HARVEST_CONCURRENCY":            1,
	"HARVEST_API_URL":                "https://api.github.com",
	"HARVEST_RUN_ROOT":               "",
	"HARVEST_LEDGER":                 LedgerJSONL,
	"HARVEST_LEDGER_DSN":             "",
	"HARVEST_METRICS_PORT":           0,
	"HARVEST_TLS_PROFILE":            "go",
	"HARVEST_TIMEOUT":                "30s",
	"HARVEST_TOLERATE_INVALID_TOKEN": false,
	"HARVEST_REQUIRED_TOOLS":         []string{},
	"HARVEST_LOG_LEVEL":              "info",
	"HARVEST_LOG_FORMAT":             "text",
	"HARVEST_CLONE_DIR":              "",
	"HARVEST_CONFIG_DIR":             "",
}

// Load reads configuration from envFile (if it exists) and the environment.
// The environment wins over the file. An empty envFile means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present
	if _, err := os.Stat(envFile); err == nil {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.Filenames = cleanList(cfg.Filenames)
	cfg.RequiredTools = cleanList(cfg.RequiredTools)
	cfg.Ledger = strings.ToLower(strings.TrimSpace(cfg.Ledger))
	return &cfg, nil
}

// Validate checks the settings. A missing credential yields ErrMissingToken.
func (c *Config) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	switch {
	case len(c.Filenames) == 0:
		return errors.New("config: HARVEST_FILENAMES is empty")
	case c.LowerBound < 0 || c.UpperBound < c.LowerBound || c.UpperBound > partition.MaxBound:
		return fmt.Errorf("config: invalid size domain %d..%d", c.LowerBound, c.UpperBound)
	case c.MinInterval < 1 || c.MaxInterval < c.MinInterval || c.MaxInterval > partition.MaxBound:
		return fmt.Errorf("config: invalid interval bounds %d..%d", c.MinInterval, c.MaxInterval)
	case c.LowResults < 0:
		return fmt.Errorf("config: HARVEST_LOW_RESULTS_THRESHOLD %d is negative", c.LowResults)
	case c.PageCeiling < 1:
		return fmt.Errorf("config: HARVEST_PAGE_CEILING %d must be at least 1", c.PageCeiling)
	case c.PageSize < 1 || c.PageSize > 100:
		return fmt.Errorf("config: HARVEST_PAGE_SIZE %d outside 1..100", c.PageSize)
	case c.RequestDelay < 0:
		return fmt.Errorf("config: HARVEST_REQUEST_DELAY %v is negative", c.RequestDelay)
	case c.Jitter < 0 || c.Jitter > 1:
		return fmt.Errorf("config: HARVEST_JITTER %v outside 0..1", c.Jitter)
	case c.Concurrency < 1:
		return fmt.Errorf("config: HARVEST_CONCURRENCY %d must be at least 1", c.Concurrency)
	case c.Timeout < 0:
		return fmt.Errorf("config: HARVEST_TIMEOUT %v is negative", c.Timeout)
	case c.MetricsPort < 0 || c.MetricsPort > 65535:
		return fmt.Errorf("config: HARVEST_METRICS_PORT %d out of range", c.MetricsPort)
	}

	switch c.Ledger {
	case LedgerJSONL, LedgerCSV, LedgerSQLite, LedgerNone:
	case LedgerPostgres:
		if c.LedgerDSN == "" {
			return errors.New("config: HARVEST_LEDGER=postgres requires HARVEST_LEDGER_DSN")
		}
	default:
		return fmt.Errorf("config: unknown HARVEST_LEDGER %q", c.Ledger)
	}
	return nil
}

// CheckTools verifies that every required tool is on PATH.
func (c *Config) CheckTools() error {
	for _, tool := range c.RequiredTools {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%w: %s", ErrMissingTool, tool)
		}
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		// A single env value may still hold a comma list.
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
