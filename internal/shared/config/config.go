package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Env             string        `mapstructure:"env"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// TrustedProxies are the peers whose X-Forwarded-For is honoured.
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimit     `mapstructure:"rate_limit"`
}

// RateLimit configures inbound request throttling per client.
type RateLimit struct {
	Enabled       bool    `mapstructure:"enabled"`
	SubmitPerMin  float64 `mapstructure:"submit_per_min"`
	SubmitBurst   int     `mapstructure:"submit_burst"`
	DefaultPerMin float64 `mapstructure:"default_per_min"`
	DefaultBurst  int     `mapstructure:"default_burst"`
}

// DatabaseConfig configures the Postgres store.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// ExtractionConfig configures the extraction service client.
type ExtractionConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	PollEvery   time.Duration `mapstructure:"poll_every"`
	Rate        float64       `mapstructure:"rate"`
	Burst       int           `mapstructure:"burst"`
}

// AnalysisConfig configures link validation and preview policy.
type AnalysisConfig struct {
	MarketplaceDomains   []string `mapstructure:"marketplace_domains"`
	PreviewUnlockedCount int      `mapstructure:"preview_unlocked_count"`
}

// PaymentConfig configures the report price.
type PaymentConfig struct {
	AmountCents int64  `mapstructure:"amount_cents"`
	Currency    string `mapstructure:"currency"`
	DownloadURL string `mapstructure:"download_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Load reads configuration from an optional config.yaml and the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MENUSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Also honour the unprefixed names.
	if err := v.BindEnv("database.url", "MENUSCORE_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, eris.Wrap(err, "config: bind database url")
	}
	if err := v.BindEnv("server.port", "MENUSCORE_SERVER_PORT", "PORT"); err != nil {
		return nil, eris.Wrap(err, "config: bind port")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.normalize()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "dev")
	v.SetDefault("server.cors_origins", "http://localhost:3000")
	v.SetDefault("server.trusted_proxies", "")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.submit_per_min", 10)
	v.SetDefault("server.rate_limit.submit_burst", 3)
	v.SetDefault("server.rate_limit.default_per_min", 120)
	v.SetDefault("server.rate_limit.default_burst", 30)
	v.SetDefault("extraction.base_url", "http://localhost:8000")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.conn_max_lifetime", 0)
	v.SetDefault("database.conn_max_idle_time", 0)
	v.SetDefault("database.ping_timeout", 0)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("extraction.api_key", "")
	v.SetDefault("extraction.timeout", 30*time.Second)
	v.SetDefault("extraction.poll_timeout", 5*time.Second)
	v.SetDefault("extraction.poll_every", time.Second)
	v.SetDefault("extraction.rate", 5)
	v.SetDefault("extraction.burst", 10)
	v.SetDefault("analysis.marketplace_domains", "ifood.com.br,marketplace.example")
	v.SetDefault("analysis.preview_unlocked_count", 2)
	v.SetDefault("payment.amount_cents", 1990)
	v.SetDefault("payment.currency", "BRL")
	v.SetDefault("payment.download_url", "/api/v1/reports")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func (c *Config) normalize() {
	c.Server.Env = normalizeEnv(c.Server.Env)
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	c.Server.CORSOrigins = splitAndTrim(c.Server.CORSOrigins)
	c.Server.TrustedProxies = splitAndTrim(c.Server.TrustedProxies)
	c.Analysis.MarketplaceDomains = splitAndTrim(c.Analysis.MarketplaceDomains)
	for i, d := range c.Analysis.MarketplaceDomains {
		c.Analysis.MarketplaceDomains[i] = strings.ToLower(strings.TrimPrefix(d, "."))
	}
	if c.Analysis.PreviewUnlockedCount < 0 {
		c.Analysis.PreviewUnlockedCount = 0
	}
	c.Payment.Currency = strings.ToUpper(strings.TrimSpace(c.Payment.Currency))
	c.Database.URL = strings.TrimSpace(c.Database.URL)
}

// splitAndTrim accepts both list values and a single comma separated string
// from the environment.
func splitAndTrim(raw []string) []string {
	var out []string
	for _, item := range raw {
		for _, p := range strings.Split(item, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}
