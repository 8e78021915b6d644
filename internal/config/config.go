// Package config loads runtime settings: built-in defaults, then an optional YAML
// file, then environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of both binaries.
type Config struct {
	Port         string        `yaml:"port"`
	StorePort    string        `yaml:"store_port"`
	StoreURL     string        `yaml:"store_url"`
	StoreTimeout time.Duration `yaml:"store_timeout"`

	DataFile  string `yaml:"data_file"`
	RedisAddr string `yaml:"redis_addr"`

	SMTP SMTPConfig `yaml:"smtp"`
	TLS  TLSConfig  `yaml:"tls"`

	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	TracingEnabled     bool          `yaml:"tracing_enabled"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	GinMode   string `yaml:"gin_mode"`
}

// SMTPConfig, receipt mail settings. Mail is off while Host or User is empty.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// TLSConfig, optional HTTPS listener. A self-signed pair is generated when the files are missing.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	Port     string `yaml:"port"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:               "8080",
		StorePort:          "3001",
		StoreURL:           "http://localhost:3001",
		StoreTimeout:       5 * time.Second,
		DataFile:           "data/db.json",
		SMTP:               SMTPConfig{Port: 587},
		TLS:                TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem", Port: "8443"},
		SessionIdleTimeout: 30 * time.Minute,
		LogLevel:           "info",
		LogFormat:          "text",
		GinMode:            "release",
	}
}

// Load builds the configuration. path may be empty; CONFIG_FILE is used then.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.StorePort, "STORE_PORT")
	setString(&c.StoreURL, "STORE_URL")
	setString(&c.DataFile, "DATA_FILE")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.SMTP.Host, "SMTP_HOST")
	setString(&c.SMTP.User, "SMTP_USER")
	setString(&c.SMTP.Password, "SMTP_PASS")
	setString(&c.SMTP.From, "MAIL_FROM")
	setString(&c.TLS.CertFile, "TLS_CERT_FILE")
	setString(&c.TLS.KeyFile, "TLS_KEY_FILE")
	setString(&c.TLS.Port, "HTTPS_PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.GinMode, "GIN_MODE")

	if err := setDuration(&c.StoreTimeout, "STORE_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.SessionIdleTimeout, "SESSION_IDLE_TIMEOUT"); err != nil {
		return err
	}
	if err := setInt(&c.SMTP.Port, "SMTP_PORT"); err != nil {
		return err
	}
	if err := setBool(&c.TLS.Enabled, "TLS_ENABLED"); err != nil {
		return err
	}
	return setBool(&c.TracingEnabled, "TRACING_ENABLED")
}

// Validate rejects settings the binaries cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.StoreURL) == "" {
		return errors.New("config: store_url is required")
	}
	if c.StoreTimeout <= 0 {
		return errors.Errorf("config: store_timeout must be positive, got %s", c.StoreTimeout)
	}
	if c.SessionIdleTimeout <= 0 {
		return errors.Errorf("config: session_idle_timeout must be positive, got %s", c.SessionIdleTimeout)
	}
	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return errors.New("config: tls requires cert_file and key_file")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return errors.Wrapf(err, "config: %s", key)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(err, "config: %s", key)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return errors.Wrapf(err, "config: %s", key)
	}
	*dst = b
	return nil
}
