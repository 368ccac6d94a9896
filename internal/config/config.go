package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultEnvFile is loaded before reading the environment; a missing file is ignored.
const DefaultEnvFile = "configs/.env"

// Config holds the application configuration loaded from env files, environment variables and flags.
type Config struct {
	AppName   string `mapstructure:"app_name"`
	Env       string `mapstructure:"app_env"`
	LogLevel  string `mapstructure:"log_level"`
	LogFile   string `mapstructure:"log_file"`
	LogStdout bool   `mapstructure:"log_stdout"`

	ServerAddr               string        `mapstructure:"server_addr"`
	ReadHeaderTimeoutSeconds int64         `mapstructure:"read_header_timeout_seconds"`
	IdleTimeoutSeconds       int64         `mapstructure:"idle_timeout_seconds"`
	ShutdownTimeoutSeconds   int64         `mapstructure:"shutdown_timeout_seconds"`
	ReadHeaderTimeout        time.Duration `mapstructure:"-"`
	IdleTimeout              time.Duration `mapstructure:"-"`
	ShutdownTimeout          time.Duration `mapstructure:"-"`

	// UpstreamTimeoutSeconds bounds each relay call; zero leaves it unbounded.
	UpstreamTimeoutSeconds int64         `mapstructure:"upstream_timeout_seconds"`
	UpstreamTimeout        time.Duration `mapstructure:"-"`
	// UpstreamInsecureSkipVerify disables TLS certificate verification on relay calls.
	UpstreamInsecureSkipVerify bool `mapstructure:"upstream_insecure_skip_verify"`

	UpstreamsFile  string `mapstructure:"upstreams_file"`
	PublishersFile string `mapstructure:"publishers_file"`
	// PublishTimeoutSeconds bounds the delivery of one relay event to all publishers.
	PublishTimeoutSeconds int64         `mapstructure:"publish_timeout_seconds"`
	PublishTimeout        time.Duration `mapstructure:"-"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":                 "server_addr",
	"log-file":             "log_file",
	"log-level":            "log_level",
	"insecure-skip-verify": "upstream_insecure_skip_verify",
	"upstreams-file":       "upstreams_file",
	"publishers-file":      "publishers_file",
}

// RegisterFlags declares the flags Load understands on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("env-file", DefaultEnvFile, "path to a .env file loaded before reading the environment")
	fs.String("addr", "", "address the HTTP server listens on (default :8000)")
	fs.String("log-file", "", "append-only activity log file (default api_activity.log)")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.Bool("insecure-skip-verify", true, "skip TLS certificate verification on relay calls")
	fs.String("upstreams-file", "", "YAML/JSON file overriding the fixed relay endpoints")
	fs.String("publishers-file", "", "YAML/JSON file enabling relay event publishers")
}

// Load reads configuration from the env file, environment variables and, when fs is
// non-nil, explicitly set flags. Flags win over the environment.
func Load(fs *pflag.FlagSet) (*Config, error) {
	envFile := DefaultEnvFile
	if fs != nil {
		if f := fs.Lookup("env-file"); f != nil && strings.TrimSpace(f.Value.String()) != "" {
			envFile = f.Value.String()
		}
	}
	_ = godotenv.Load(envFile)

	v := viper.New()

	v.SetDefault("app_name", "samvad-relay")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "debug")
	v.SetDefault("log_file", "api_activity.log")
	v.SetDefault("log_stdout", true)
	v.SetDefault("server_addr", ":8000")
	v.SetDefault("read_header_timeout_seconds", 20)
	v.SetDefault("idle_timeout_seconds", 60)
	v.SetDefault("shutdown_timeout_seconds", 5)
	v.SetDefault("upstream_timeout_seconds", 0)
	v.SetDefault("upstream_insecure_skip_verify", true)
	v.SetDefault("upstreams_file", "")
	v.SetDefault("publishers_file", "")
	v.SetDefault("publish_timeout_seconds", 10)

	v.AutomaticEnv()

	if fs != nil {
		if err := bindChangedFlags(v, fs); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.ServerAddr) == "" {
		return nil, fmt.Errorf("invalid server_addr (must not be empty)")
	}
	if strings.TrimSpace(cfg.LogFile) == "" {
		return nil, fmt.Errorf("invalid log_file (must not be empty)")
	}
	if cfg.ReadHeaderTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid read_header_timeout_seconds (must be positive seconds)")
	}
	if cfg.IdleTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid idle_timeout_seconds (must be positive seconds)")
	}
	if cfg.ShutdownTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid shutdown_timeout_seconds (must be positive seconds)")
	}
	if cfg.PublishTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid publish_timeout_seconds (must be positive seconds)")
	}
	if cfg.UpstreamTimeoutSeconds < 0 {
		return nil, fmt.Errorf("invalid upstream_timeout_seconds (must be zero or positive seconds)")
	}

	cfg.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	cfg.IdleTimeout = time.Duration(cfg.IdleTimeoutSeconds) * time.Second
	cfg.ShutdownTimeout = time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	cfg.UpstreamTimeout = time.Duration(cfg.UpstreamTimeoutSeconds) * time.Second
	cfg.PublishTimeout = time.Duration(cfg.PublishTimeoutSeconds) * time.Second

	return &cfg, nil
}

// bindChangedFlags binds only flags the user set, so unset flags never mask the environment.
func bindChangedFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}
