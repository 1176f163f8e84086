package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/gdfetch/internal/types"
	"github.com/dl-alexandre/gdfetch/internal/utils"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// KeyFileName is the default service account key file name
	KeyFileName = "google-api-key.json"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "GDFETCH_"
)

// Config holds application configuration
type Config struct {
	// KeyFile is the service account key used for Google Drive
	KeyFile string `json:"keyFile"`

	// InputDir is the directory remote files land in when no download dir is given
	InputDir string `json:"inputDir"`

	// ChunkSize is the media download chunk size in bytes
	ChunkSize int64 `json:"chunkSize"`

	// ChunkRetries is the retry budget for each chunk
	ChunkRetries int `json:"chunkRetries"`

	// MaxRetries is the retry budget for metadata calls
	MaxRetries int `json:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay"`

	// Jobs is the number of files fetched concurrently
	Jobs int `json:"jobs"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel"`

	// LogFile receives JSON log lines when set
	LogFile string `json:"logFile"`

	// OutputFormat is the default output format (json, table)
	OutputFormat types.OutputFormat `json:"outputFormat"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	keyFile := KeyFileName
	if dir, err := GetConfigDir(); err == nil {
		keyFile = filepath.Join(dir, KeyFileName)
	}
	return &Config{
		KeyFile:        keyFile,
		InputDir:       "input",
		ChunkSize:      utils.DownloadChunkSize,
		ChunkRetries:   utils.DownloadChunkRetries,
		MaxRetries:     utils.DefaultMaxRetries,
		RetryBaseDelay: utils.DefaultRetryDelayMs,
		Jobs:           4,
		LogLevel:       "normal",
		OutputFormat:   types.OutputFormatJSON,
	}
}

// Load loads configuration with precedence: env vars > config file > defaults.
// An empty path selects the default config file location.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return nil, err
		}
	}

	// Config file not existing is not an error
	if err := cfg.loadFromFile(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv(EnvPrefix + "KEY_FILE"); v != "" {
		c.KeyFile = v
	}
	if v := os.Getenv(EnvPrefix + "INPUT_DIR"); v != "" {
		c.InputDir = v
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ChunkSize = size
		}
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_RETRIES"); v != "" {
		if retries, err := strconv.Atoi(v); err == nil {
			c.ChunkRetries = retries
		}
	}
	if v := os.Getenv(EnvPrefix + "MAX_RETRIES"); v != "" {
		if retries, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = retries
		}
	}
	if v := os.Getenv(EnvPrefix + "RETRY_BASE_DELAY"); v != "" {
		if delay, err := strconv.Atoi(v); err == nil {
			c.RetryBaseDelay = delay
		}
	}
	if v := os.Getenv(EnvPrefix + "JOBS"); v != "" {
		if jobs, err := strconv.Atoi(v); err == nil {
			c.Jobs = jobs
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.OutputFormat = types.OutputFormat(v)
	}
}

// Save writes the configuration to path, or to the default location when path is empty
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file with restricted permissions
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OutputFormat != types.OutputFormatJSON && c.OutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.OutputFormat)
	}

	if !strings.HasSuffix(c.KeyFile, ".json") {
		return fmt.Errorf("key file must be a .json service account key, got: %q", c.KeyFile)
	}

	if c.InputDir == "" {
		return fmt.Errorf("input dir must not be empty")
	}

	if c.ChunkSize < 256*1024 {
		return fmt.Errorf("chunk size must be at least 256 KiB, got: %d", c.ChunkSize)
	}

	if c.ChunkRetries < 0 || c.ChunkRetries > 20 {
		return fmt.Errorf("chunk retries must be between 0 and 20, got: %d", c.ChunkRetries)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}

	if c.Jobs < 1 || c.Jobs > 64 {
		return fmt.Errorf("jobs must be between 1 and 64, got: %d", c.Jobs)
	}

	validLogLevels := []string{"quiet", "normal", "verbose", "debug"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "gdfetch"), nil
}
