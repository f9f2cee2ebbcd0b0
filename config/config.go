package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`
	DatabasePath string `json:"database_path"`
	LogLevel     string `json:"log_level"`

	// Extraction delegate (OpenAI-compatible endpoint).
	ExtractionBaseURL string `json:"extraction_base_url"`
	ExtractionAPIKey  string `json:"extraction_api_key"`
	ExtractionModel   string `json:"extraction_model"`

	// Source endpoints.
	FilingIndexURL  string `json:"filing_index_url"`
	FilingUserAgent string `json:"filing_user_agent"`
	AggregatorURL   string `json:"aggregator_url"`
	ExplorerURL     string `json:"explorer_url"`
	SearchAPIURL    string `json:"search_api_url"`
	SearchAPIKey    string `json:"search_api_key"`

	// Notification webhook. Empty means log-only delivery.
	NotifyWebhookURL string `json:"notify_webhook_url"`

	CacheEnabled   bool `json:"cache_enabled"`
	StaleAfterDays int  `json:"stale_after_days"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	cfg := &Config{
		DataDir:      filepath.Join(currentDir, "data"),
		DataCacheDir: filepath.Join(currentDir, "data", "cache"),
		DatabasePath: filepath.Join(currentDir, "data", "treasurywatch.db"),
		LogLevel:     "info",

		ExtractionBaseURL: "https://api.openai.com/v1",
		ExtractionModel:   "gpt-4o-mini",

		FilingIndexURL:  "https://data.sec.gov",
		FilingUserAgent: "treasurywatch/1.0 (monitoring@treasurywatch.dev)",
		AggregatorURL:   "https://api.bitcointreasuries.net",
		ExplorerURL:     "https://blockstream.info/api",

		CacheEnabled:   true,
		StaleAfterDays: 7,
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.ApplyEnv()

	return cfg
}

// DefaultConfigWithRoot builds defaults anchored at an explicit directory
// instead of the working directory. Used when recreating a config file the
// manager watches.
func DefaultConfigWithRoot(root string) *Config {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.DataCacheDir = filepath.Join(root, "data", "cache")
	cfg.DatabasePath = filepath.Join(root, "data", "treasurywatch.db")
	return cfg
}

// ApplyEnv layers environment variables over the current values, so the
// environment wins over whatever a config file said.
func (c *Config) ApplyEnv() {
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("DATA_CACHE_DIR"); val != "" {
		c.DataCacheDir = val
	}
	if val := os.Getenv("DATABASE_PATH"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv("EXTRACTION_BASE_URL"); val != "" {
		c.ExtractionBaseURL = val
	}
	if val := os.Getenv("EXTRACTION_API_KEY"); val != "" {
		c.ExtractionAPIKey = val
	}
	if val := os.Getenv("EXTRACTION_MODEL"); val != "" {
		c.ExtractionModel = val
	}

	if val := os.Getenv("FILING_INDEX_URL"); val != "" {
		c.FilingIndexURL = val
	}
	if val := os.Getenv("FILING_USER_AGENT"); val != "" {
		c.FilingUserAgent = val
	}
	if val := os.Getenv("AGGREGATOR_URL"); val != "" {
		c.AggregatorURL = val
	}
	if val := os.Getenv("EXPLORER_URL"); val != "" {
		c.ExplorerURL = val
	}
	if val := os.Getenv("SEARCH_API_URL"); val != "" {
		c.SearchAPIURL = val
	}
	if val := os.Getenv("SEARCH_API_KEY"); val != "" {
		c.SearchAPIKey = val
	}

	if val := os.Getenv("NOTIFY_WEBHOOK_URL"); val != "" {
		c.NotifyWebhookURL = val
	}

	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = enabled
		}
	}
	if val := os.Getenv("STALE_AFTER_DAYS"); val != "" {
		if days, err := strconv.Atoi(val); err == nil {
			c.StaleAfterDays = days
		}
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.StaleAfterDays <= 0 {
		return fmt.Errorf("stale_after_days must be positive, got %d", c.StaleAfterDays)
	}
	if strings.TrimSpace(c.FilingUserAgent) == "" {
		// The filing index requires an identifying client tag; refusing to
		// start beats getting the whole IP range throttled.
		return fmt.Errorf("filing_user_agent is required")
	}
	return nil
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.DataCacheDir, filepath.Dir(c.DatabasePath)}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
