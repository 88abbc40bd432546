package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	LogFormat   string   `mapstructure:"LOG_FORMAT"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`

	AuthJWTSecret string `mapstructure:"AUTH_JWT_SECRET"`
	AuthIssuer    string `mapstructure:"AUTH_ISSUER"`
	AuthAudience  string `mapstructure:"AUTH_AUDIENCE"`
	DefaultClinic string `mapstructure:"DEFAULT_CLINIC"`

	SaveDebounce    time.Duration `mapstructure:"SAVE_DEBOUNCE"`
	SaveTimeout     time.Duration `mapstructure:"SAVE_TIMEOUT"`
	SheetMinRows    int           `mapstructure:"SHEET_MIN_ROWS"`
	SessionIdleTTL  time.Duration `mapstructure:"SESSION_IDLE_TTL"`
	PatientCacheTTL time.Duration `mapstructure:"PATIENT_CACHE_TTL"`
	CatalogCacheTTL time.Duration `mapstructure:"CATALOG_CACHE_TTL"`

	LookupDefaultsFile     string `mapstructure:"LOOKUP_DEFAULTS_FILE"`
	DefaultHighlightColor  string `mapstructure:"DEFAULT_HIGHLIGHT_COLOR"`
	ReservedHighlightColor string `mapstructure:"RESERVED_HIGHLIGHT_COLOR"`

	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"LOG_FORMAT", "LOG_LEVEL",
	"AUTH_JWT_SECRET", "AUTH_ISSUER", "AUTH_AUDIENCE", "DEFAULT_CLINIC",
	"SAVE_DEBOUNCE", "SAVE_TIMEOUT", "SHEET_MIN_ROWS", "SESSION_IDLE_TTL",
	"PATIENT_CACHE_TTL", "CATALOG_CACHE_TTL",
	"LOOKUP_DEFAULTS_FILE", "DEFAULT_HIGHLIGHT_COLOR", "RESERVED_HIGHLIGHT_COLOR",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT", "REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_CLINIC", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SAVE_DEBOUNCE", "800ms")
	v.SetDefault("SAVE_TIMEOUT", "15s")
	v.SetDefault("SHEET_MIN_ROWS", 200)
	v.SetDefault("SESSION_IDLE_TTL", "30m")
	v.SetDefault("PATIENT_CACHE_TTL", "5m")
	v.SetDefault("CATALOG_CACHE_TTL", "5m")
	v.SetDefault("DEFAULT_HIGHLIGHT_COLOR", "#fff59d")
	v.SetDefault("RESERVED_HIGHLIGHT_COLOR", "#ff0000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 60)
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// TextLogs reports whether logs go to a console writer. Development always
// logs as text.
func (c *Config) TextLogs() bool {
	return c.IsDev() || strings.EqualFold(c.LogFormat, "text")
}

// Validate checks that the configuration is safe to run. Outside development
// the JWT secret is required, since requests would otherwise be accepted
// unauthenticated.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.AuthJWTSecret != "" && len(c.AuthJWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 bytes, got %d", len(c.AuthJWTSecret))
	}
	if c.SheetMinRows < 1 {
		return fmt.Errorf("SHEET_MIN_ROWS must be at least 1, got %d", c.SheetMinRows)
	}
	if c.SaveDebounce < 0 || c.SaveDebounce > time.Minute {
		return fmt.Errorf("SAVE_DEBOUNCE must be between 0 and 1m, got %s", c.SaveDebounce)
	}
	if c.SaveTimeout <= 0 {
		return fmt.Errorf("SAVE_TIMEOUT must be positive, got %s", c.SaveTimeout)
	}
	if c.SessionIdleTTL < time.Minute {
		return fmt.Errorf("SESSION_IDLE_TTL must be at least 1m, got %s", c.SessionIdleTTL)
	}
	if c.RequestTimeout > 0 && c.RequestTimeout <= c.SaveTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must exceed SAVE_TIMEOUT (%s)", c.RequestTimeout, c.SaveTimeout)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	for name, color := range map[string]string{
		"DEFAULT_HIGHLIGHT_COLOR":  c.DefaultHighlightColor,
		"RESERVED_HIGHLIGHT_COLOR": c.ReservedHighlightColor,
	} {
		if !isHexColor(color) {
			return fmt.Errorf("%s must be a #rrggbb color, got %q", name, color)
		}
	}
	if strings.EqualFold(c.DefaultHighlightColor, c.ReservedHighlightColor) {
		return fmt.Errorf("DEFAULT_HIGHLIGHT_COLOR must differ from RESERVED_HIGHLIGHT_COLOR")
	}
	return nil
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
