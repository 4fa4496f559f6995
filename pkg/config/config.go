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

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.daydigest/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 3001
// storage:
//   data_dir: /home/me/.daydigest/data
//   history_retention_days: 90
// schedule:
//   cron: "0 8 * * *"
//   reconcile_on_start: true
// summarizer:
//   provider: openai
//   base_url: https://api.openai.com/v1
//   api_key: sk-...
//   model: gpt-4
//   min_report_length: 100
// notify:
//   redis:
//     addr: 127.0.0.1:6379
//     channel: daydigest.events
// logging:
//   level: info
//   format: text
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Environment variables override the file (see applyEnv).
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Notify     NotifyConfig     `yaml:"notify"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type StorageConfig struct {
	DataDir *string `yaml:"data_dir"`
	// HistoryRetentionDays bounds the analysis run history; 0 keeps everything.
	HistoryRetentionDays *int `yaml:"history_retention_days"`
}

type ScheduleConfig struct {
	Cron             *string `yaml:"cron"`
	ReconcileOnStart *bool   `yaml:"reconcile_on_start"`
}

// SummarizerConfig selects the remote model. An empty APIKey (for providers
// that need one) leaves the engine in heuristic-only mode.
type SummarizerConfig struct {
	Provider        string            `yaml:"provider"`
	BaseURL         string            `yaml:"base_url"`
	APIKey          string            `yaml:"api_key"`
	Model           string            `yaml:"model"`
	MinReportLength *int              `yaml:"min_report_length"`
	Extra           map[string]string `yaml:"extra"`
}

type NotifyConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 3001
	DefaultCron            = "0 8 * * *"
	DefaultProvider        = "openai"
	DefaultModel           = "gpt-4"
	DefaultMinReportLength = 100
	DefaultRedisChannel    = "daydigest.events"
	DefaultRetentionDays   = 90
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".daydigest")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.daydigest/config.yaml and applies environment overrides.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}
	cfg, err := LoadFile(configFile)
	if err != nil {
		return nil, "", err
	}
	return cfg, configFile, nil
}

// LoadFile reads a config from an explicit path.
func LoadFile(configFile string) (*AppConfig, error) {
	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config file %s: %w", configFile, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config %s: %w", configFile, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w in %s", err, configFile)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Host()) == "" {
		return errors.New("invalid server.host (empty)")
	}
	port := c.Port()
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid server.port %d", port)
	}
	if _, err := cron.ParseStandard(c.CronSpec()); err != nil {
		return fmt.Errorf("invalid schedule.cron %q: %w", c.CronSpec(), err)
	}
	if c.MinReportLength() < 0 {
		return fmt.Errorf("invalid summarizer.min_report_length %d", c.MinReportLength())
	}
	return nil
}

// applyEnv lets the environment override the file, using the variable names
// editor tooling already sets for OpenAI-compatible clients.
func (c *AppConfig) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("DAYDIGEST_PORT")); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = ptr(p)
		}
	}
	if v := strings.TrimSpace(os.Getenv("DAYDIGEST_DATA_DIR")); v != "" {
		c.Storage.DataDir = ptr(v)
	}
	if v := firstEnv("OPENAI_API_KEY", "AI_API_KEY"); v != "" {
		c.Summarizer.APIKey = v
	}
	if v := firstEnv("OPENAI_BASE_URL", "AI_BASE_URL"); v != "" {
		c.Summarizer.BaseURL = v
	}
	if v := firstEnv("AI_MODEL"); v != "" {
		c.Summarizer.Model = v
	}
	if v := firstEnv("AI_PROVIDER"); v != "" {
		c.Summarizer.Provider = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Server:   ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)},
		Schedule: ScheduleConfig{Cron: ptr(DefaultCron), ReconcileOnStart: ptr(true)},
		Summarizer: SummarizerConfig{
			Provider:        DefaultProvider,
			Model:           DefaultModel,
			MinReportLength: ptr(DefaultMinReportLength),
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// The file may later hold an API key.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

// DataDir defaults to ~/.daydigest/data.
func (c *AppConfig) DataDir() string {
	if c != nil && c.Storage.DataDir != nil && strings.TrimSpace(*c.Storage.DataDir) != "" {
		return strings.TrimSpace(*c.Storage.DataDir)
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return filepath.Join(".daydigest", "data")
	}
	return filepath.Join(configDir, "data")
}

// HistoryRetention is how long analysis runs are kept; 0 disables pruning.
func (c *AppConfig) HistoryRetention() time.Duration {
	days := DefaultRetentionDays
	if c != nil && c.Storage.HistoryRetentionDays != nil {
		days = *c.Storage.HistoryRetentionDays
	}
	if days <= 0 {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}

func (c *AppConfig) CronSpec() string {
	if c == nil || c.Schedule.Cron == nil || strings.TrimSpace(*c.Schedule.Cron) == "" {
		return DefaultCron
	}
	return strings.TrimSpace(*c.Schedule.Cron)
}

func (c *AppConfig) ReconcileOnStart() bool {
	if c == nil || c.Schedule.ReconcileOnStart == nil {
		return true
	}
	return *c.Schedule.ReconcileOnStart
}

func (c *AppConfig) MinReportLength() int {
	if c == nil || c.Summarizer.MinReportLength == nil {
		return DefaultMinReportLength
	}
	return *c.Summarizer.MinReportLength
}

// SummarizerProvider returns the normalized provider name.
func (c *AppConfig) SummarizerProvider() string {
	if c == nil || strings.TrimSpace(c.Summarizer.Provider) == "" {
		return DefaultProvider
	}
	return strings.ToLower(strings.TrimSpace(c.Summarizer.Provider))
}

func (c *AppConfig) SummarizerModel() string {
	if c == nil || strings.TrimSpace(c.Summarizer.Model) == "" {
		return DefaultModel
	}
	return strings.TrimSpace(c.Summarizer.Model)
}

// RemoteConfigured reports whether a remote model should be used at all.
// Ollama runs locally without a key; every other provider needs one.
func (c *AppConfig) RemoteConfigured() bool {
	if c == nil {
		return false
	}
	if c.SummarizerProvider() == "ollama" {
		return strings.TrimSpace(c.Summarizer.BaseURL) != ""
	}
	return strings.TrimSpace(c.Summarizer.APIKey) != ""
}

func (c *AppConfig) RedisChannel() string {
	if c == nil || strings.TrimSpace(c.Notify.Redis.Channel) == "" {
		return DefaultRedisChannel
	}
	return strings.TrimSpace(c.Notify.Redis.Channel)
}

func ptr[T any](v T) *T { return &v }
