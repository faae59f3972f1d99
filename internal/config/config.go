// Package config loads runtime configuration for the sippyctl tools.
// Precedence: CLI flags > env vars > defaults.
package config

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration shared by the sippyctl binaries.
type Config struct {
	Host        string // switch address; normalized to an HTTPS endpoint by the client
	Username    string
	Password    string
	InsecureTLS bool // tolerate the self-signed certificates legacy switches run

	DashboardTimeout time.Duration // deadline for dashboard operations
	APITimeout       time.Duration // deadline for payment and call operations
	RateLimit        float64       // max operations per second; 0 disables the limiter
	RateBurst        int

	AccountID int // default account for account-scoped operations

	ListenPort   int           // exporter HTTP listen port
	PollInterval time.Duration // exporter switch-poll cadence

	LogLevel  string
	LogFormat string // "text" or "json"

	// Args holds the positional arguments left after flag parsing.
	Args []string
}

// defaults
const (
	defaultDashboardTimeout = 10 * time.Second
	defaultAPITimeout       = 30 * time.Second
	defaultRateBurst        = 5
	defaultListenPort       = 9477
	defaultPollInterval     = 30 * time.Second
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
)

// envPrefix is the prefix for all sippyctl environment variables.
const envPrefix = "SIPPYCTL_"

// Load parses configuration from the given CLI args and the environment.
// Precedence: CLI flags > env vars > defaults.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("sippyctl", flag.ContinueOnError)

	fs.StringVar(&cfg.Host, "host", "", "switch address (host[:port], https:// is implied)")
	fs.StringVar(&cfg.Username, "username", "", "API username")
	fs.StringVar(&cfg.Password, "password", "", "API password")
	fs.BoolVar(&cfg.InsecureTLS, "insecure-tls", false, "skip TLS certificate verification (self-signed switch certificates)")
	fs.DurationVar(&cfg.DashboardTimeout, "dashboard-timeout", defaultDashboardTimeout, "deadline for dashboard operations")
	fs.DurationVar(&cfg.APITimeout, "api-timeout", defaultAPITimeout, "deadline for payment and call operations")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", 0, "max API operations per second (0 disables rate limiting)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", defaultRateBurst, "rate limiter burst size")
	fs.IntVar(&cfg.AccountID, "account", 0, "default account id for account-scoped operations")
	fs.IntVar(&cfg.ListenPort, "listen-port", defaultListenPort, "exporter HTTP listen port")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", defaultPollInterval, "exporter switch-poll interval")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	cfg.Args = fs.Args()

	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line, preserving the precedence
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"host":              envPrefix + "HOST",
		"username":          envPrefix + "USERNAME",
		"password":          envPrefix + "PASSWORD",
		"insecure-tls":      envPrefix + "INSECURE_TLS",
		"dashboard-timeout": envPrefix + "DASHBOARD_TIMEOUT",
		"api-timeout":       envPrefix + "API_TIMEOUT",
		"rate-limit":        envPrefix + "RATE_LIMIT",
		"rate-burst":        envPrefix + "RATE_BURST",
		"account":           envPrefix + "ACCOUNT",
		"listen-port":       envPrefix + "LISTEN_PORT",
		"poll-interval":     envPrefix + "POLL_INTERVAL",
		"log-level":         envPrefix + "LOG_LEVEL",
		"log-format":        envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "host":
			cfg.Host = val
		case "username":
			cfg.Username = val
		case "password":
			cfg.Password = val
		case "insecure-tls":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.InsecureTLS = v
			}
		case "dashboard-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.DashboardTimeout = v
			}
		case "api-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.APITimeout = v
			}
		case "rate-limit":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				cfg.RateLimit = v
			}
		case "rate-burst":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RateBurst = v
			}
		case "account":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.AccountID = v
			}
		case "listen-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.ListenPort = v
			}
		case "poll-interval":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.PollInterval = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("username and password are required")
	}
	if c.DashboardTimeout <= 0 || c.APITimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate-limit must not be negative, got %v", c.RateLimit)
	}
	if c.RateBurst < 1 {
		return fmt.Errorf("rate-burst must be at least 1, got %d", c.RateBurst)
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("listen-port must be between 1 and 65535, got %d", c.ListenPort)
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("poll-interval must be at least 1s, got %v", c.PollInterval)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// LogHandler builds the slog handler matching the configured format and
// level.
func (c *Config) LogHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
