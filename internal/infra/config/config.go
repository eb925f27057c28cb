// Package config loads configuration from JSON file defaults overridden
// by environment variables: TGARCHIVE_LOG_LEVEL and TGARCHIVE_STORE_PATH,
// plus the unprefixed API_ID, API_HASH, MAX_CONCURRENT_DOWNLOADS,
// DOWNLOAD_BATCH_SIZE, DOWNLOAD_BATCH_SIZE_BYTES, MAX_DOWNLOAD_RETRIES,
// RETRY_DELAY and MAX_FILE_SIZE.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string `json:"log_level"`
	StorePath string `json:"store_path"`

	// Telegram session bootstrap. Required, non-empty.
	APIID   int    `json:"api_id"`
	APIHash string `json:"api_hash"`

	Download DownloadConfig `json:"download"`
}

// DownloadConfig holds the download executor's tunables.
type DownloadConfig struct {
	MaxConcurrentDownloads int           `json:"max_concurrent_downloads"`
	BatchSize              int           `json:"download_batch_size"`
	BatchSizeBytes         int64         `json:"download_batch_size_bytes"`
	MaxRetries             int           `json:"max_download_retries"`
	RetryDelay             time.Duration `json:"-"`
	RetryDelaySeconds      float64       `json:"retry_delay"`
	MaxFileSize            int64         `json:"max_file_size"`

	// HashAlgorithm is recorded in backup_metadata on first run; mixing
	// algorithms within one index would break (hash,size) uniqueness.
	HashAlgorithm string `json:"hash_algorithm"`
}

const (
	defaultMaxConcurrentDownloads = 5
	defaultBatchSize              = 5
	defaultBatchSizeBytes         = 100 * 1024 * 1024
	defaultMaxRetries             = 3
	defaultRetryDelaySeconds      = 2.0
	defaultMaxFileSize            = 2 * 1024 * 1024 * 1024
)

// Default returns a Config with built-in defaults.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultStore := filepath.Join(homeDir, ".telegram-archive", "store")

	return &Config{
		LogLevel:  "INFO",
		StorePath: defaultStore,
		Download: DownloadConfig{
			MaxConcurrentDownloads: defaultMaxConcurrentDownloads,
			BatchSize:              defaultBatchSize,
			BatchSizeBytes:         defaultBatchSizeBytes,
			MaxRetries:             defaultMaxRetries,
			RetryDelay:             time.Duration(defaultRetryDelaySeconds * float64(time.Second)),
			RetryDelaySeconds:      defaultRetryDelaySeconds,
			MaxFileSize:            defaultMaxFileSize,
			HashAlgorithm:          "xxh3-128",
		},
	}
}

// LoadFromFile loads configuration from a JSON file, falling back to
// defaults for any field the file omits.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.Download.RetryDelaySeconds > 0 {
		cfg.Download.RetryDelay = time.Duration(cfg.Download.RetryDelaySeconds * float64(time.Second))
	}

	return cfg, nil
}

// Load loads configuration from a file (if configPath is non-empty) and
// then applies the environment variable overrides listed in the package
// comment.
func Load(configPath string) (*Config, error) {
	var cfg *Config
	var err error

	if configPath != "" {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		cfg = Default()
	}

	applyEnv(cfg)

	if cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, fmt.Errorf("API_ID and API_HASH are required")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TGARCHIVE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TGARCHIVE_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("API_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.APIID = id
		}
	}
	if v := os.Getenv("API_HASH"); v != "" {
		cfg.APIHash = v
	}
	if v := os.Getenv("MAX_CONCURRENT_DOWNLOADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Download.MaxConcurrentDownloads = n
		}
	}
	if v := os.Getenv("DOWNLOAD_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Download.BatchSize = n
		}
	}
	if v := os.Getenv("DOWNLOAD_BATCH_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Download.BatchSizeBytes = n
		}
	}
	if v := os.Getenv("MAX_DOWNLOAD_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Download.MaxRetries = n
		}
	}
	if v := os.Getenv("RETRY_DELAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Download.RetryDelay = time.Duration(f * float64(time.Second))
			cfg.Download.RetryDelaySeconds = f
		}
	}
	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Download.MaxFileSize = n
		}
	}
}

// EnsureStorePath creates the store directory if it doesn't exist.
func (c *Config) EnsureStorePath() error {
	return os.MkdirAll(c.StorePath, 0755)
}

// EntityDir returns the per-entity backup directory:
// <store_path>/<sanitized_entity>.
func (c *Config) EntityDir(sanitizedEntity string) string {
	return filepath.Join(c.StorePath, sanitizedEntity)
}
