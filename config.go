package minidrive

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/minidrive/internal/audit"
	"github.com/MrEthical07/minidrive/internal/logging"
	"github.com/MrEthical07/minidrive/tokenstore"
)

// DefaultBaseURL is used when neither config nor environment names an API.
const DefaultBaseURL = "http://localhost:5000"

// EnvBaseURL overrides API.BaseURL when set.
const EnvBaseURL = "MINIDRIVE_API_BASE_URL"

// Config is the complete client configuration.
type Config struct {
	API        APIConfig         `yaml:"api"`
	HTTP       HTTPConfig        `yaml:"http"`
	TokenStore tokenstore.Config `yaml:"token_store"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Audit      AuditConfig       `yaml:"audit"`
	Log        LogConfig         `yaml:"log"`
}

type APIConfig struct {
	BaseURL string `yaml:"base_url"`
}

type HTTPConfig struct {
	// Timeout bounds each request end to end. Zero means no limit.
	Timeout time.Duration `yaml:"timeout"`
	// Tracing wraps the transport with otelhttp.
	Tracing   bool   `yaml:"tracing"`
	UserAgent string `yaml:"user_agent"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"latency_histograms"`
}

type AuditConfig = audit.Config

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a configuration that talks to a local API and keeps
// the token in memory.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{BaseURL: DefaultBaseURL},
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "minidrive-go",
		},
		TokenStore: tokenstore.Config{Backend: tokenstore.BackendMemory},
		Metrics:    MetricsConfig{Enabled: true},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a YAML file over DefaultConfig and applies the
// environment override. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// ApplyEnv overlays environment variables onto c.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		c.API.BaseURL = v
	}
}

// Validate checks every section and returns ozzo validation.Errors keyed by
// field name.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.API),
		validation.Field(&c.HTTP),
		validation.Field(&c.TokenStore, validation.By(validateTokenStore)),
		validation.Field(&c.Audit, validation.By(validateAudit)),
		validation.Field(&c.Log),
	)
}

// Validate requires an absolute http or https BaseURL.
func (c APIConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.URL, validation.By(httpScheme)),
	)
}

func (c HTTPConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

func (c LogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.By(func(v any) error {
			if !logging.ValidLevel(v.(string)) {
				return errors.New("must be debug, info, warn or error")
			}
			return nil
		})),
		validation.Field(&c.Format, validation.In("", string(logging.FormatText), string(logging.FormatJSON))),
	)
}

func httpScheme(v any) error {
	s, _ := v.(string)
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https")
	}
	return nil
}

func validateTokenStore(v any) error {
	c := v.(tokenstore.Config)
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "", tokenstore.BackendMemory:
		return nil
	case tokenstore.BackendFile:
		if strings.TrimSpace(c.Path) == "" {
			return errors.New("path is required for the file backend")
		}
	case tokenstore.BackendRedis:
		if strings.TrimSpace(c.Addr) == "" {
			return errors.New("redis_addr is required for the redis backend")
		}
		if c.TTL < 0 {
			return errors.New("ttl must not be negative")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

func validateAudit(v any) error {
	c := v.(AuditConfig)
	if c.Enabled && c.BufferSize <= 0 {
		return errors.New("buffer_size must be > 0 when audit is enabled")
	}
	return nil
}
