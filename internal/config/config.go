package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"

	"github.com/MimeLyc/caption-sync/internal/llm"
	"github.com/MimeLyc/caption-sync/pkg/icron"
	"github.com/MimeLyc/caption-sync/pkg/log"
)

// Config holds all application configuration
// Values come from environment variables with sensible defaults, optionally
// overridden by a TOML file named by CAPTION_SYNC_CONFIG.
//
// Environment Variables:
// Server:
// - HTTP_ADDR: listen address (default: :8080)
//
// Storage:
// - DATA_DIR: data directory (default: ./data)
// - DB_PATH: SQLite file (default: $DATA_DIR/caption-sync.db)
//
// Editor:
// - WAVEFORM_RESOLUTION: number of waveform peaks (default: 1000)
// - PLAYBACK_SAMPLE_RATE: output sample rate in Hz (default: 44100)
// - PLAYBACK_TICK_MS: time update interval (default: 50)
// - PLAYBACK_HEADLESS: use the software clock instead of the sound card (default: false)
// - LOCALE: default UI language (default: en)
//
// LLM (prompt generation, optional):
// - LLM_API_KEY, LLM_API_URL, LLM_MODEL, LLM_MAX_TOKENS, LLM_TEMPERATURE,
//   LLM_TIMEOUT, LLM_SITE_URL, LLM_APP_NAME
//
// Cloud storage (optional):
// - GOOGLE_DRIVE_TOKEN, DROPBOX_TOKEN, ONEDRIVE_TOKEN: OAuth bearer tokens
// - UPLOAD_WORKERS: concurrent uploads per job (default: 3)
//
// Misc:
// - AUTOSAVE_CRON: autosave schedule (default: @every 30s)
// - LOG_LEVEL: debug, info, warn or error (default: info)
// - SETTINGS_FILE: runtime settings JSON (default: $DATA_DIR/settings.json)
type Config struct {
	Server   ServerConfig   `json:"server" toml:"server"`
	Storage  StorageConfig  `json:"storage" toml:"storage"`
	Waveform WaveformConfig `json:"waveform" toml:"waveform"`
	Playback PlaybackConfig `json:"playback" toml:"playback"`
	Locale   LocaleConfig   `json:"locale" toml:"locale"`
	LLM      llm.Config     `json:"llm" toml:"llm"`
	Cloud    CloudConfig    `json:"cloud" toml:"cloud"`
	Autosave AutosaveConfig `json:"autosave" toml:"autosave"`
	Log      LogConfig      `json:"log" toml:"log"`
}

type ServerConfig struct {
	Addr string `json:"addr" toml:"addr"`
}

type StorageConfig struct {
	DataDir      string `json:"data_dir" toml:"data_dir"`
	DBPath       string `json:"db_path" toml:"db_path"`
	SettingsFile string `json:"settings_file" toml:"settings_file"`
}

type WaveformConfig struct {
	Resolution int `json:"resolution" toml:"resolution"`
}

type PlaybackConfig struct {
	SampleRate     int  `json:"sample_rate" toml:"sample_rate"`
	TickIntervalMS int  `json:"tick_interval_ms" toml:"tick_interval_ms"`
	Headless       bool `json:"headless" toml:"headless"`
}

// TickInterval is the time update period.
func (c PlaybackConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

type LocaleConfig struct {
	Default string `json:"default" toml:"default"`
}

// CloudConfig carries one bearer token per storage provider. Providers
// without a token are not registered.
type CloudConfig struct {
	GoogleToken   string `json:"-" toml:"google_token"`
	DropboxToken  string `json:"-" toml:"dropbox_token"`
	OneDriveToken string `json:"-" toml:"onedrive_token"`
	UploadWorkers int    `json:"upload_workers" toml:"upload_workers"`
}

type AutosaveConfig struct {
	CronExpr string `json:"cron_expr" toml:"cron_expr"`
}

type LogConfig struct {
	Level string `json:"level" toml:"level"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// WithDataDir overrides the data directory and the paths derived from it.
func WithDataDir(dir string) Option {
	return func(c *Config) {
		c.Storage.DataDir = dir
		c.Storage.DBPath = filepath.Join(dir, "caption-sync.db")
		c.Storage.SettingsFile = filepath.Join(dir, "settings.json")
	}
}

// WithHeadless forces the software playback clock.
func WithHeadless(headless bool) Option {
	return func(c *Config) {
		c.Playback.Headless = headless
	}
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	return build(fromEnv(), opts)
}

// Load reads envFiles (default ".env") into the environment without
// overriding variables that are already set, builds the config from the
// environment and overlays the TOML file named by CAPTION_SYNC_CONFIG.
// Missing env files are ignored; a missing TOML file is an error.
func Load(envFiles []string, opts ...Option) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	config := fromEnv()
	if path := os.Getenv("CAPTION_SYNC_CONFIG"); path != "" {
		if err := decodeFile(path, config); err != nil {
			return nil, err
		}
	}
	return build(config, opts)
}

func build(config *Config, opts []Option) (*Config, error) {
	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: addr=%s data=%s locale=%s headless=%t", config.Server.Addr, config.Storage.DataDir, config.Locale.Default, config.Playback.Headless)
	return config, nil
}

func fromEnv() *Config {
	dataDir := getEnvString("DATA_DIR", "./data")
	return &Config{
		Server: ServerConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		Storage: StorageConfig{
			DataDir:      dataDir,
			DBPath:       getEnvString("DB_PATH", filepath.Join(dataDir, "caption-sync.db")),
			SettingsFile: getEnvString("SETTINGS_FILE", filepath.Join(dataDir, "settings.json")),
		},
		Waveform: WaveformConfig{
			Resolution: getEnvInt("WAVEFORM_RESOLUTION", 1000),
		},
		Playback: PlaybackConfig{
			SampleRate:     getEnvInt("PLAYBACK_SAMPLE_RATE", 44100),
			TickIntervalMS: getEnvInt("PLAYBACK_TICK_MS", 50),
			Headless:       getEnvBool("PLAYBACK_HEADLESS", false),
		},
		Locale: LocaleConfig{
			Default: getEnvString("LOCALE", "en"),
		},
		LLM: llm.Config{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			Timeout:     getEnvInt("LLM_TIMEOUT", 60),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", "caption-sync"),
		},
		Cloud: CloudConfig{
			GoogleToken:   getEnvString("GOOGLE_DRIVE_TOKEN", ""),
			DropboxToken:  getEnvString("DROPBOX_TOKEN", ""),
			OneDriveToken: getEnvString("ONEDRIVE_TOKEN", ""),
			UploadWorkers: getEnvInt("UPLOAD_WORKERS", 3),
		},
		Autosave: AutosaveConfig{
			CronExpr: getEnvString("AUTOSAVE_CRON", "@every 30s"),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
		},
	}
}

func decodeFile(path string, c *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// LocaleTag returns the parsed default locale.
func (c *Config) LocaleTag() language.Tag {
	tag, err := language.Parse(c.Locale.Default)
	if err != nil {
		return language.English
	}
	return tag
}

// LLMEnabled reports whether prompt generation has credentials.
func (c *Config) LLMEnabled() bool {
	return strings.TrimSpace(c.LLM.APIKey) != ""
}

// LockPath is the single-instance lock file inside the data directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Storage.DataDir, "caption-sync.lock")
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.Waveform.Resolution <= 0 {
		return fmt.Errorf("WAVEFORM_RESOLUTION must be greater than 0")
	}
	if c.Playback.SampleRate <= 0 {
		return fmt.Errorf("PLAYBACK_SAMPLE_RATE must be greater than 0")
	}
	if c.Playback.TickIntervalMS <= 0 {
		return fmt.Errorf("PLAYBACK_TICK_MS must be greater than 0")
	}
	if _, err := language.Parse(c.Locale.Default); err != nil {
		return fmt.Errorf("invalid LOCALE: %w", err)
	}
	if err := icron.Validate(c.Autosave.CronExpr); err != nil {
		return fmt.Errorf("invalid AUTOSAVE_CRON: %w", err)
	}
	if c.Cloud.UploadWorkers <= 0 {
		return fmt.Errorf("UPLOAD_WORKERS must be greater than 0")
	}
	if c.LLMEnabled() {
		if err := c.LLM.Validate(); err != nil {
			return fmt.Errorf("invalid LLM config: %w", err)
		}
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
