package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Error-handling modes.
const (
	ModeReport  = "report"
	ModeHold    = "hold"
	ModeSwallow = "swallow"
)

// Config holds application configuration
type Config struct {
	// Operator console connection
	ServerAddr string `mapstructure:"server_addr"`
	Token      string `mapstructure:"token"`
	ClientName string `mapstructure:"client_name"`

	// Escalation behavior
	Mode       string        `mapstructure:"mode"` // report|hold|swallow
	Cooldown   time.Duration `mapstructure:"cooldown"`
	RedactURLs bool          `mapstructure:"redact_urls"`

	Hold       HoldConfig       `mapstructure:"hold"`
	ResumeHTTP ResumeHTTPConfig `mapstructure:"resume_http"`
	Connect    ConnectConfig    `mapstructure:"connect"`
}

// HoldConfig controls the blocking hold loop.
type HoldConfig struct {
	// Timeout bounds a hold; zero means wait forever.
	Timeout    time.Duration `mapstructure:"timeout"`
	ResumeFile string        `mapstructure:"resume_file"`
}

// ResumeHTTPConfig controls the optional local resume endpoint.
type ResumeHTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Token   string `mapstructure:"token"`
}

// ConnectConfig holds transport timeouts and backoff bounds.
type ConnectConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	AckTimeout     time.Duration `mapstructure:"ack_timeout"`
	BackoffFloor   time.Duration `mapstructure:"backoff_floor"`
	BackoffCeiling time.Duration `mapstructure:"backoff_ceiling"`
	Keepalive      time.Duration `mapstructure:"keepalive"`
	AckAttempts    int           `mapstructure:"ack_attempts"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		ServerAddr: "127.0.0.1:8777",
		ClientName: "miniagent-go",
		Mode:       ModeReport,
		Cooldown:   0,
		RedactURLs: false,
		Hold: HoldConfig{
			Timeout:    0,
			ResumeFile: "/tmp/miniagent_resume",
		},
		ResumeHTTP: ResumeHTTPConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8787,
		},
		Connect: ConnectConfig{
			ConnectTimeout: 5 * time.Second,
			AckTimeout:     5 * time.Second,
			BackoffFloor:   500 * time.Millisecond,
			BackoffCeiling: 8 * time.Second,
			Keepalive:      25 * time.Second,
			AckAttempts:    2,
		},
	}
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeReport, ModeHold, ModeSwallow:
	default:
		return fmt.Errorf("invalid mode %q (want report, hold, or swallow)", c.Mode)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative")
	}
	if c.Connect.AckAttempts < 1 {
		return fmt.Errorf("connect.ack_attempts must be at least 1")
	}
	return nil
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	v := newViper()

	// Add config paths (in order of precedence, lowest first)
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "miniagent"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(".")

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found; use defaults
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(".miniagent")
	v.SetConfigType("yaml")

	// Environment variables
	v.SetEnvPrefix("MINIAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Bind specific environment variables (names match the original env
	// surface: MINIAGENT_ON_ERROR, MINIAGENT_RESUME_FILE, ...)
	v.BindEnv("server_addr", "MINIAGENT_SERVER_ADDR")
	v.BindEnv("token", "MINIAGENT_TOKEN")
	v.BindEnv("client_name", "MINIAGENT_CLIENT")
	v.BindEnv("mode", "MINIAGENT_ON_ERROR")
	v.BindEnv("cooldown", "MINIAGENT_COOLDOWN")
	v.BindEnv("redact_urls", "MINIAGENT_REDACT_URLS")
	v.BindEnv("hold.timeout", "MINIAGENT_HOLD_TIMEOUT")
	v.BindEnv("hold.resume_file", "MINIAGENT_RESUME_FILE")
	v.BindEnv("resume_http.enabled", "MINIAGENT_RESUME_HTTP")
	v.BindEnv("resume_http.host", "MINIAGENT_RESUME_HTTP_HOST")
	v.BindEnv("resume_http.port", "MINIAGENT_RESUME_HTTP_PORT")
	v.BindEnv("resume_http.token", "MINIAGENT_RESUME_HTTP_TOKEN")
	v.BindEnv("connect.connect_timeout", "MINIAGENT_CONNECT_TIMEOUT")
	v.BindEnv("connect.ack_timeout", "MINIAGENT_ACK_TIMEOUT")

	// Set defaults
	cfg := Default()
	v.SetDefault("server_addr", cfg.ServerAddr)
	v.SetDefault("client_name", cfg.ClientName)
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("cooldown", cfg.Cooldown)
	v.SetDefault("redact_urls", cfg.RedactURLs)
	v.SetDefault("hold.timeout", cfg.Hold.Timeout)
	v.SetDefault("hold.resume_file", cfg.Hold.ResumeFile)
	v.SetDefault("resume_http.enabled", cfg.ResumeHTTP.Enabled)
	v.SetDefault("resume_http.host", cfg.ResumeHTTP.Host)
	v.SetDefault("resume_http.port", cfg.ResumeHTTP.Port)
	v.SetDefault("connect.connect_timeout", cfg.Connect.ConnectTimeout)
	v.SetDefault("connect.ack_timeout", cfg.Connect.AckTimeout)
	v.SetDefault("connect.backoff_floor", cfg.Connect.BackoffFloor)
	v.SetDefault("connect.backoff_ceiling", cfg.Connect.BackoffCeiling)
	v.SetDefault("connect.keepalive", cfg.Connect.Keepalive)
	v.SetDefault("connect.ack_attempts", cfg.Connect.AckAttempts)

	return v
}
