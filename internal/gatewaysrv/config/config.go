// Package config holds the gateway service configuration, loaded from a
// TOML file with environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// SecurityConfig holds identity and PII enforcement settings.
type SecurityConfig struct {
	JWTSigningSecret string   `toml:"-"`              // from DATAGATE_JWT_SECRET
	ElevatedRoles    []string `toml:"elevated_roles"` // roles allowed past the PII gate
	PIIDenylist      []string `toml:"pii_denylist"`   // column-name substrings classified as pii
}

// GatewayConfig holds the guarded-read settings.
type GatewayConfig struct {
	RowCap             int    `toml:"row_cap"`               // LIMIT applied to unbounded reads
	StatementTimeout   string `toml:"statement_timeout"`     // hard per-query timeout
	RateWindow         string `toml:"rate_window"`           // rolling rate-limit window
	MaxCallsPerWindow  int    `toml:"max_calls_per_window"`  // calls before block
	MaxErrorsPerWindow int    `toml:"max_errors_per_window"` // errors before hint
}

// GetStatementTimeout returns the statement timeout as a duration.
func (g *GatewayConfig) GetStatementTimeout() (time.Duration, error) {
	return time.ParseDuration(g.StatementTimeout)
}

// GetStatementTimeoutOrDefault returns the statement timeout or panics if
// the configured value is invalid.
func (g *GatewayConfig) GetStatementTimeoutOrDefault() time.Duration {
	d, err := g.GetStatementTimeout()
	if err != nil {
		panic(fmt.Sprintf("invalid statement timeout: %v", err))
	}
	return d
}

// GetRateWindow returns the rate-limit window as a duration.
func (g *GatewayConfig) GetRateWindow() (time.Duration, error) {
	return time.ParseDuration(g.RateWindow)
}

// GetRateWindowOrDefault returns the rate window or panics if the
// configured value is invalid.
func (g *GatewayConfig) GetRateWindowOrDefault() time.Duration {
	d, err := g.GetRateWindow()
	if err != nil {
		panic(fmt.Sprintf("invalid rate window: %v", err))
	}
	return d
}

// PrimerConfig holds primer cache settings.
type PrimerConfig struct {
	TTL string `toml:"ttl"` // cache TTL per role
}

// GetTTLOrDefault returns the primer TTL or panics if the configured value
// is invalid.
func (p *PrimerConfig) GetTTLOrDefault() time.Duration {
	d, err := time.ParseDuration(p.TTL)
	if err != nil {
		panic(fmt.Sprintf("invalid primer ttl: %v", err))
	}
	return d
}

// CacheConfig selects the primer cache backend. When RedisAddr is empty an
// in-process TTL cache is used.
type CacheConfig struct {
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
}

// EngineConfig holds the backing execution engine settings.
type EngineConfig struct {
	Type     string `toml:"type"` // "postgres" or "memory"
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	DBName   string `toml:"dbname"`
	User     string `toml:"user"`
	Password string `toml:"-"` // from DATAGATE_ENGINE_PASSWORD
	SSLMode  string `toml:"sslmode"`
}

// DSN returns the Postgres connection string for the engine.
func (e *EngineConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		e.Host, e.Port, e.DBName, e.User, e.Password, e.SSLMode)
}

// IntentConfig holds intent matcher settings.
type IntentConfig struct {
	SynonymsFile string `toml:"synonyms_file"` // optional YAML synonym table
}

// PlannerConfig holds the optional NL-to-plan service settings.
type PlannerConfig struct {
	Enabled bool   `toml:"enabled"`
	Model   string `toml:"model"`
	APIKey  string `toml:"-"` // from DATAGATE_PLANNER_API_KEY
}

// ConfigParam holds all configuration parameters for the gateway service.
type ConfigParam struct {
	FormatVersion string `toml:"format_version"`

	ServerHostName string `toml:"server_hostname"`
	ServerPort     string `toml:"server_port"`
	HandleCORS     bool   `toml:"handle_cors"`

	// SingleUserMode accepts identity headers instead of bearer tokens.
	// Intended for local development only.
	SingleUserMode bool `toml:"single_user_mode"`

	Security SecurityConfig `toml:"security"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Primer   PrimerConfig   `toml:"primer"`
	Cache    CacheConfig    `toml:"cache"`
	Engine   EngineConfig   `toml:"engine"`
	Intent   IntentConfig   `toml:"intent"`
	Planner  PlannerConfig  `toml:"planner"`
}

var config *ConfigParam

// Config returns the loaded configuration. Panics if LoadConfig or TestInit
// has not been called.
func Config() *ConfigParam {
	if config == nil {
		panic("config not loaded")
	}
	return config
}

// LoadConfig loads configuration from the given TOML file, applies defaults
// for unset values, and pulls secrets from the environment. A .env file in
// the working directory is honored if present.
func LoadConfig(path string) error {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("unable to parse config file %s: %w", path, err)
		}
	}

	cfg.Security.JWTSigningSecret = os.Getenv("DATAGATE_JWT_SECRET")
	cfg.Engine.Password = os.Getenv("DATAGATE_ENGINE_PASSWORD")
	cfg.Planner.APIKey = os.Getenv("DATAGATE_PLANNER_API_KEY")

	if err := validate(cfg); err != nil {
		return err
	}

	config = cfg
	return nil
}

func defaultConfig() *ConfigParam {
	return &ConfigParam{
		FormatVersion:  "1.0",
		ServerHostName: "localhost",
		ServerPort:     "8440",
		Security: SecurityConfig{
			ElevatedRoles: []string{"admin", "analyst_elevated"},
			PIIDenylist: []string{
				"email", "phone", "ssn", "credit_card", "card_number",
				"dob", "birth", "address", "salary", "tax_id",
				"passport", "national_id",
			},
		},
		Gateway: GatewayConfig{
			RowCap:             1000,
			StatementTimeout:   "30s",
			RateWindow:         "60s",
			MaxCallsPerWindow:  60,
			MaxErrorsPerWindow: 5,
		},
		Primer: PrimerConfig{TTL: "1h"},
		Engine: EngineConfig{
			Type:    "memory",
			Host:    "localhost",
			Port:    5432,
			DBName:  "datagate",
			User:    "datagate",
			SSLMode: "disable",
		},
		Planner: PlannerConfig{Model: "gpt-4o-mini"},
	}
}

func validate(cfg *ConfigParam) error {
	if cfg.Gateway.RowCap <= 0 {
		return fmt.Errorf("row_cap must be positive")
	}
	if _, err := cfg.Gateway.GetStatementTimeout(); err != nil {
		return fmt.Errorf("invalid statement_timeout: %w", err)
	}
	if _, err := cfg.Gateway.GetRateWindow(); err != nil {
		return fmt.Errorf("invalid rate_window: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Primer.TTL); err != nil {
		return fmt.Errorf("invalid primer ttl: %w", err)
	}
	switch cfg.Engine.Type {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown engine type %q", cfg.Engine.Type)
	}
	return nil
}

// TestInit installs the default configuration for tests.
func TestInit() {
	config = defaultConfig()
}
