// Package config loads the bot configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/valuesreport/internal/utils"
)

// Config is the root configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	HTTP      HTTPConfig      `yaml:"http"`
	Store     StoreConfig     `yaml:"store"`
	Narrative NarrativeConfig `yaml:"narrative"`
	Access    AccessConfig    `yaml:"access"`
	Report    ReportConfig    `yaml:"report"`
	Admin     AdminConfig     `yaml:"admin"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TelegramConfig holds transport credentials. A non-empty WebhookURL switches
// update delivery from long polling to webhook.
type TelegramConfig struct {
	Token       string `yaml:"token"`
	WebhookURL  string `yaml:"webhook_url"`
	PollTimeout int    `yaml:"poll_timeout"`
	Debug       bool   `yaml:"debug"`

	// DrainTimeout bounds how long in-flight updates may keep running after
	// a shutdown signal before their context is cancelled.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// PublicURL is the externally reachable base used for report share links.
	PublicURL string `yaml:"public_url"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver"` // memory | sqlite
	Path          string `yaml:"path"`
	MigrationsDir string `yaml:"migrations_dir"`
}

type NarrativeConfig struct {
	Provider     string        `yaml:"provider"` // gemini | openai
	Model        string        `yaml:"model"` // empty picks the provider default
	GeminiAPIKey string        `yaml:"gemini_api_key"`
	OpenAIAPIKey string        `yaml:"openai_api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// AccessConfig controls the access gate policy when the store is unreachable.
type AccessConfig struct {
	FailOpen       bool           `yaml:"fail_open"`
	BootstrapCodes map[string]int `yaml:"bootstrap_codes"`
}

type ReportConfig struct {
	ArtifactDir string        `yaml:"artifact_dir"`
	ShareSecret string        `yaml:"share_secret"`
	ShareTTL    time.Duration `yaml:"share_ttl"`
	// FallbackFont is an optional TrueType file used for characters the
	// bundled DejaVu face lacks, e.g. a Noto CJK build.
	FallbackFont string `yaml:"fallback_font"`
}

type AdminConfig struct {
	// PasswordHash is a bcrypt hash; empty disables the admin endpoints.
	PasswordHash string `yaml:"password_hash"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// BootstrapCodes are the codes seeded by `codes add --bootstrap`.
func BootstrapCodes() map[string]int {
	return map[string]int{
		"TEST123": 10,
		"DEMO456": 5,
		"TESTALT": 15,
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: 60, DrainTimeout: 60 * time.Second},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.FromSlash("data/values.db"),
		},
		Narrative: NarrativeConfig{
			Provider:    "gemini",
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
		},
		Access: AccessConfig{FailOpen: false},
		Report: ReportConfig{
			ArtifactDir: os.TempDir(),
			ShareTTL:    30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Telegram.Token = utils.SafeEnv("TELEGRAM_TOKEN", c.Telegram.Token)
	c.Telegram.WebhookURL = utils.SafeEnv("WEBHOOK_URL", c.Telegram.WebhookURL)
	c.Telegram.DrainTimeout = utils.SafeEnvDuration("TELEGRAM_DRAIN_TIMEOUT", c.Telegram.DrainTimeout)
	c.HTTP.Addr = utils.SafeEnv("VALUES_ADDR", c.HTTP.Addr)
	c.HTTP.PublicURL = utils.SafeEnv("VALUES_PUBLIC_URL", c.HTTP.PublicURL)
	c.Store.Driver = utils.SafeEnv("VALUES_STORE", c.Store.Driver)
	c.Store.Path = utils.SafeEnv("VALUES_DB_PATH", c.Store.Path)
	c.Narrative.Provider = utils.SafeEnv("NARRATIVE_PROVIDER", c.Narrative.Provider)
	c.Narrative.Model = utils.SafeEnv("NARRATIVE_MODEL", c.Narrative.Model)
	c.Narrative.GeminiAPIKey = utils.SafeEnv("GEMINI_API_KEY", c.Narrative.GeminiAPIKey)
	c.Narrative.OpenAIAPIKey = utils.SafeEnv("OPENAI_API_KEY", c.Narrative.OpenAIAPIKey)
	c.Narrative.Timeout = utils.SafeEnvDuration("NARRATIVE_TIMEOUT", c.Narrative.Timeout)
	c.Narrative.MaxAttempts = utils.SafeEnvInt("NARRATIVE_MAX_ATTEMPTS", c.Narrative.MaxAttempts)
	c.Access.FailOpen = utils.SafeEnvBool("ACCESS_FAIL_OPEN", c.Access.FailOpen)
	c.Report.ShareSecret = utils.SafeEnv("VALUES_SHARE_SECRET", c.Report.ShareSecret)
	c.Report.ArtifactDir = utils.SafeEnv("VALUES_ARTIFACT_DIR", c.Report.ArtifactDir)
	c.Report.FallbackFont = utils.SafeEnv("VALUES_FALLBACK_FONT", c.Report.FallbackFont)
	c.Admin.PasswordHash = utils.SafeEnv("VALUES_ADMIN_PASSWORD_HASH", c.Admin.PasswordHash)
	c.Logging.Level = utils.SafeEnv("VALUES_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = utils.SafeEnv("VALUES_LOG_FORMAT", c.Logging.Format)

	if c.Access.FailOpen && len(c.Access.BootstrapCodes) == 0 {
		c.Access.BootstrapCodes = BootstrapCodes()
	}
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path required for sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Narrative.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown narrative provider %q", c.Narrative.Provider)
	}
	if c.Narrative.Timeout <= 0 {
		return errors.New("narrative.timeout must be > 0")
	}
	if c.Narrative.MaxAttempts <= 0 {
		return errors.New("narrative.max_attempts must be > 0")
	}
	if c.Access.FailOpen && len(c.Access.BootstrapCodes) == 0 {
		return errors.New("access.fail_open requires access.bootstrap_codes")
	}
	for code, uses := range c.Access.BootstrapCodes {
		if uses < 0 {
			return fmt.Errorf("bootstrap code %q has negative uses", code)
		}
	}
	return nil
}

// ValidateServe additionally requires the credentials needed to run the bot.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("missing TELEGRAM_TOKEN")
	}
	switch c.Narrative.Provider {
	case "gemini":
		if c.Narrative.GeminiAPIKey == "" {
			return errors.New("missing GEMINI_API_KEY")
		}
	case "openai":
		if c.Narrative.OpenAIAPIKey == "" {
			return errors.New("missing OPENAI_API_KEY")
		}
	}
	if c.Report.ShareSecret == "" && c.HTTP.PublicURL != "" {
		return errors.New("report.share_secret required when http.public_url is set")
	}
	return nil
}
