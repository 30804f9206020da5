package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI   = "openai"
	ProviderGemini   = "gemini"
	ProviderDeepSeek = "deepseek"
)

const envPrefix = "CHATDESK_"

// Config holds application configuration
type Config struct {
	BaseURL     string        `toml:"base_url"`
	APIKey      string        `toml:"api_key"`
	Provider    string        `toml:"provider"`
	HTTPTimeout time.Duration `toml:"-"`
	Debug       bool          `toml:"debug"`

	LogDir string `toml:"log_dir"`
	DBPath string `toml:"db_path"` // durable token storage

	Voice VoiceConfig `toml:"voice"`
	Feeds FeedsConfig `toml:"feeds"`

	// Raw string values for TOML decoding
	HTTPTimeoutRaw string `toml:"http_timeout"`
}

// VoiceConfig configures the speech recognition capability.
// An empty Endpoint means recognition is unsupported.
type VoiceConfig struct {
	Endpoint    string `toml:"endpoint"`     // ws:// or wss:// recognition endpoint
	Locale      string `toml:"locale"`       // fixed recognition locale
	AudioSource string `toml:"audio_source"` // file or device path streamed to the recognizer
}

// FeedsConfig configures the news, stocks and weather panels.
type FeedsConfig struct {
	PollInterval time.Duration `toml:"-"`
	CacheTTL     time.Duration `toml:"-"`
	Country      string        `toml:"country"`
	Category     string        `toml:"category"`
	Query        string        `toml:"query"`
	StockLimit   int           `toml:"stock_limit"`
	City         string        `toml:"city"`
	Units        string        `toml:"units"`

	PollIntervalRaw string `toml:"poll_interval"`
	CacheTTLRaw     string `toml:"cache_ttl"`
}

// Default returns the configuration used when nothing else is provided.
func Default() Config {
	return Config{
		BaseURL:     "http://localhost:8000",
		Provider:    ProviderOpenAI,
		HTTPTimeout: 60 * time.Second,
		LogDir:      "logs",
		DBPath:      "chatdesk.db",
		Voice: VoiceConfig{
			Locale: "en-US",
		},
		Feeds: FeedsConfig{
			PollInterval: 5 * time.Minute,
			CacheTTL:     time.Minute,
			Country:      "us",
			Category:     "general",
			StockLimit:   15,
			City:         "London",
			Units:        "metric",
		},
	}
}

// Load builds a Config from defaults, the optional TOML file at path, a .env
// file in the working directory, CHATDESK_* environment variables and then
// overrides (command-line flags), in that order of increasing precedence.
// The result is validated once, after every source has been applied.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadTOML(&cfg, path); err != nil {
			return cfg, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	for _, override := range overrides {
		override(&cfg)
	}

	return cfg, cfg.Validate()
}

// LoadTOML decodes the TOML file at path over cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return parseDurations(cfg)
}

func parseDurations(cfg *Config) error {
	var err error
	if cfg.HTTPTimeoutRaw != "" {
		if cfg.HTTPTimeout, err = time.ParseDuration(cfg.HTTPTimeoutRaw); err != nil {
			return fmt.Errorf("invalid http_timeout %q: %w", cfg.HTTPTimeoutRaw, err)
		}
	}
	if cfg.Feeds.PollIntervalRaw != "" {
		if cfg.Feeds.PollInterval, err = time.ParseDuration(cfg.Feeds.PollIntervalRaw); err != nil {
			return fmt.Errorf("invalid feeds.poll_interval %q: %w", cfg.Feeds.PollIntervalRaw, err)
		}
	}
	if cfg.Feeds.CacheTTLRaw != "" {
		if cfg.Feeds.CacheTTL, err = time.ParseDuration(cfg.Feeds.CacheTTLRaw); err != nil {
			return fmt.Errorf("invalid feeds.cache_ttl %q: %w", cfg.Feeds.CacheTTLRaw, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	setString("BASE_URL", &cfg.BaseURL)
	setString("API_KEY", &cfg.APIKey)
	setString("PROVIDER", &cfg.Provider)
	setString("LOG_DIR", &cfg.LogDir)
	setString("DB_PATH", &cfg.DBPath)
	setString("VOICE_ENDPOINT", &cfg.Voice.Endpoint)
	setString("VOICE_LOCALE", &cfg.Voice.Locale)
	setString("VOICE_AUDIO_SOURCE", &cfg.Voice.AudioSource)
	setString("NEWS_COUNTRY", &cfg.Feeds.Country)
	setString("NEWS_CATEGORY", &cfg.Feeds.Category)
	setString("WEATHER_CITY", &cfg.Feeds.City)
	setString("WEATHER_UNITS", &cfg.Feeds.Units)

	if v, ok := os.LookupEnv(envPrefix + "DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sDEBUG value %q: %w", envPrefix, v, err)
		}
		cfg.Debug = b
	}
	if v, ok := os.LookupEnv(envPrefix + "HTTP_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sHTTP_TIMEOUT value %q: %w", envPrefix, v, err)
		}
		cfg.HTTPTimeout = d
	}
	if v, ok := os.LookupEnv(envPrefix + "POLL_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sPOLL_INTERVAL value %q: %w", envPrefix, v, err)
		}
		cfg.Feeds.PollInterval = d
	}
	if v, ok := os.LookupEnv(envPrefix + "STOCK_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sSTOCK_LIMIT value %q: %w", envPrefix, v, err)
		}
		cfg.Feeds.StockLimit = n
	}
	return nil
}

// Validate reports configuration that cannot work at all.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base URL is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL must be http or https: %q", c.BaseURL)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http timeout must not be negative: %s", c.HTTPTimeout)
	}
	if c.Feeds.PollInterval <= 0 {
		return fmt.Errorf("feeds poll interval must be positive: %s", c.Feeds.PollInterval)
	}
	if c.Voice.Endpoint != "" &&
		!strings.HasPrefix(c.Voice.Endpoint, "ws://") && !strings.HasPrefix(c.Voice.Endpoint, "wss://") {
		return fmt.Errorf("voice endpoint must be ws or wss: %q", c.Voice.Endpoint)
	}
	return nil
}
