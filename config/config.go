package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"personachat/observability"
	"personachat/services"
)

// Config is read once at startup and treated as read-only afterwards.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Log      LogConfig      `mapstructure:"log"`
	Client   ClientConfig   `mapstructure:"client"`
	Trace    TraceConfig    `mapstructure:"trace"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	AllowedOrigin   string        `mapstructure:"allowed_origin"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// UpstreamConfig locates the OpenAI compatible completion endpoint.
type UpstreamConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type AuditConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Table    string `mapstructure:"table"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TraceConfig selects the span exporter: none, stdout or otlp.
type TraceConfig struct {
	Exporter string `mapstructure:"exporter"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type ClientConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from configPath, or from config.yaml in the
// working directory or ./config when configPath is empty. Environment
// variables override file values, e.g. UPSTREAM_MODEL or SERVER_PORT.
// A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("upstream.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.model", "gpt-4.1")
	v.SetDefault("upstream.max_tokens", 0)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.table", "RelayExchanges")
	v.SetDefault("audit.region", "us-east-1")
	v.SetDefault("audit.endpoint", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("trace.exporter", "none")
	v.SetDefault("trace.endpoint", "localhost:4317")
	v.SetDefault("trace.insecure", true)

	v.SetDefault("client.server_url", "http://localhost:8080")
	v.SetDefault("client.timeout", "0s")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// The provider key also answers to the names the provider SDKs use.
	if err := v.BindEnv("upstream.api_key", "UPSTREAM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind upstream key: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

// RequireUpstream checks the settings the relay server cannot start without.
func (c *Config) RequireUpstream() error {
	if c.Upstream.APIKey == "" {
		return errors.New("upstream api key is not set (GEMINI_API_KEY, OPENAI_API_KEY or UPSTREAM_API_KEY)")
	}
	if c.Upstream.Model == "" {
		return errors.New("upstream model is not set")
	}
	return nil
}

// UpstreamSettings converts the file form into the streamer configuration.
func (c *Config) UpstreamSettings() services.UpstreamConfig {
	return services.UpstreamConfig{
		APIKey:    c.Upstream.APIKey,
		BaseURL:   c.Upstream.BaseURL,
		Model:     c.Upstream.Model,
		MaxTokens: c.Upstream.MaxTokens,
	}
}

// TraceSettings converts the file form into the tracing setup.
func (c *Config) TraceSettings() observability.TraceConfig {
	return observability.TraceConfig{
		Exporter:    c.Trace.Exporter,
		Endpoint:    c.Trace.Endpoint,
		Insecure:    c.Trace.Insecure,
		ServiceName: "personachat",
	}
}

// AuditSettings converts the file form into the recorder configuration.
func (c *Config) AuditSettings() services.AuditConfig {
	return services.AuditConfig{
		Table:    c.Audit.Table,
		Region:   c.Audit.Region,
		Endpoint: c.Audit.Endpoint,
	}
}
