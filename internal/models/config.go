package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Webhook  WebhookConfig
	Speed    SpeedConfig
	Ledger   LedgerConfig
	Mirror   MirrorConfig
	Monitor  MonitorConfig
}

// DatabaseConfig holds database connection settings. Driver is either
// "sqlite3" (DSN is a file path) or "pgx" (DSN is a postgres URL).
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	TxTimeout       time.Duration
}

type ServerConfig struct {
	Addr            string
	APIKey          string
	ShutdownTimeout time.Duration
}

// WebhookConfig holds the signing secrets for the inbound endpoints
type WebhookConfig struct {
	DepositSecret    string
	WithdrawalSecret string
	HookdeckSecret   string
	Tolerance        time.Duration
}

// SpeedConfig holds payment provider API settings
type SpeedConfig struct {
	DepositURL    string
	WithdrawalURL string
	SecretKey     string
	APIVersion    string
	Timeout       time.Duration
}

// LedgerConfig holds reconciliation policy
type LedgerConfig struct {
	DepositMode        DepositMode
	RailsFile          string
	DefaultCurrency    string
	DefaultTarget      string
	WithdrawalCooldown time.Duration
	DepositCooldown    time.Duration
	MaxAttempts        int
	RetryBaseDelay     time.Duration
}

// MirrorConfig holds the real-time mirror sink settings
type MirrorConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Channel       string
	QueueSize     int
	WriteTimeout  time.Duration
}

// MonitorConfig holds settings for the stale pending record monitor
type MonitorConfig struct {
	Enabled         bool
	StaleAfter      time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
	BatchSize       int
}

// RailConfig describes the confirmation semantics of one payment rail.
type RailConfig struct {
	Rail         Rail   `yaml:"rail"`
	Confirmation string `yaml:"confirmation"`
	OptionKey    string `yaml:"option_key"`
	AddressField string `yaml:"address_field"`
}

// Delayed reports whether the rail settles in two events.
func (r RailConfig) Delayed() bool {
	return r.Confirmation == "delayed"
}

// RailSet indexes rail configs by rail
type RailSet map[Rail]RailConfig

// IsDelayed reports whether rail needs a paid and a confirmed event.
func (rs RailSet) IsDelayed(rail Rail) bool {
	cfg, ok := rs[rail]
	return ok && cfg.Delayed()
}

// Supports reports whether the rail is enabled in this deployment.
func (rs RailSet) Supports(rail Rail) bool {
	_, ok := rs[rail]
	return ok
}

// DefaultRailSet is used when no rails file is configured.
func DefaultRailSet() RailSet {
	return RailSet{
		RailLightning: {Rail: RailLightning, Confirmation: "single", OptionKey: "lightning", AddressField: "payment_request"},
		RailOnchain:   {Rail: RailOnchain, Confirmation: "delayed", OptionKey: "on_chain", AddressField: "address"},
		RailEthereum:  {Rail: RailEthereum, Confirmation: "delayed", OptionKey: "ethereum", AddressField: "address"},
		RailTron:      {Rail: RailTron, Confirmation: "delayed", OptionKey: "tron", AddressField: "address"},
	}
}
