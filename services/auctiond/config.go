package auctiond

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"nhbmarket/crypto"
	"nhbmarket/native/assets"
	"nhbmarket/native/auction"
	"nhbmarket/native/fees"
)

// Duration wraps time.Duration so it can be written as "90s" or "1h" in both
// YAML and TOML files.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for auctiond.
type Config struct {
	ListenAddress string          `yaml:"listen" toml:"listen"`
	DataDir       string          `yaml:"data_dir" toml:"data_dir"`
	Storage       StorageConfig   `yaml:"storage" toml:"storage"`
	EventLog      EventLogConfig  `yaml:"event_log" toml:"event_log"`
	Auth          AuthConfig      `yaml:"auth" toml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Auction       AuctionConfig   `yaml:"auction" toml:"auction"`
	Fees          FeesConfig      `yaml:"fees" toml:"fees"`
	Admins        AdminsConfig    `yaml:"admins" toml:"admins"`
	Genesis       GenesisConfig   `yaml:"genesis" toml:"genesis"`
	Telemetry     TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// StorageConfig selects the key/value backend.
type StorageConfig struct {
	// Engine is one of memory, leveldb or pebble.
	Engine string `yaml:"engine" toml:"engine"`
	Path   string `yaml:"path" toml:"path"`
}

// EventLogConfig locates the sqlite event log.
type EventLogConfig struct {
	Path string `yaml:"path" toml:"path"`
	// StreamHistory bounds the events replayed to new stream subscribers.
	StreamHistory int `yaml:"stream_history" toml:"stream_history"`
}

// AuthConfig controls bearer token verification for mutating routes.
type AuthConfig struct {
	Secret     string   `yaml:"secret" toml:"secret"`
	SecretFile string   `yaml:"secret_file" toml:"secret_file"`
	SecretEnv  string   `yaml:"secret_env" toml:"secret_env"`
	Issuer     string   `yaml:"issuer" toml:"issuer"`
	ClockSkew  Duration `yaml:"clock_skew" toml:"clock_skew"`
}

// RateLimitConfig throttles requests per caller identity.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// AuctionConfig overrides engine parameters. Zero values keep the defaults.
type AuctionConfig struct {
	MinDuration            Duration `yaml:"min_duration" toml:"min_duration"`
	MaxDuration            Duration `yaml:"max_duration" toml:"max_duration"`
	ExtensionThreshold     Duration `yaml:"extension_threshold" toml:"extension_threshold"`
	ExtensionWindow        Duration `yaml:"extension_window" toml:"extension_window"`
	EmergencyDelay         Duration `yaml:"emergency_delay" toml:"emergency_delay"`
	DefaultBidIncrementBps uint32   `yaml:"default_bid_increment_bps" toml:"default_bid_increment_bps"`
}

// FeesConfig configures the platform fee leg of settlement.
type FeesConfig struct {
	PlatformBps uint32 `yaml:"platform_bps" toml:"platform_bps"`
	Treasury    string `yaml:"treasury" toml:"treasury"`
}

// AdminsConfig lists the addresses granted each administrative role at
// startup.
type AdminsConfig struct {
	Pausers     []string `yaml:"pausers" toml:"pausers"`
	FeeManagers []string `yaml:"fee_managers" toml:"fee_managers"`
	Minters     []string `yaml:"minters" toml:"minters"`
}

// GenesisConfig seeds a fresh data directory.
type GenesisConfig struct {
	Accounts    []GenesisAccount    `yaml:"accounts" toml:"accounts"`
	Collections []GenesisCollection `yaml:"collections" toml:"collections"`
	Units       []GenesisUnit       `yaml:"units" toml:"units"`
}

// GenesisAccount credits an opening balance.
type GenesisAccount struct {
	Address string `yaml:"address" toml:"address"`
	Balance string `yaml:"balance" toml:"balance"`
}

// GenesisCollection registers a custody collection.
type GenesisCollection struct {
	Address         string `yaml:"address" toml:"address"`
	Name            string `yaml:"name" toml:"name"`
	Standard        string `yaml:"standard" toml:"standard"`
	Creator         string `yaml:"creator" toml:"creator"`
	RoyaltyReceiver string `yaml:"royalty_receiver" toml:"royalty_receiver"`
	RoyaltyBps      uint32 `yaml:"royalty_bps" toml:"royalty_bps"`
}

// GenesisUnit mints a unit into a registered collection.
type GenesisUnit struct {
	Collection string `yaml:"collection" toml:"collection"`
	UnitID     string `yaml:"unit_id" toml:"unit_id"`
	Owner      string `yaml:"owner" toml:"owner"`
	Quantity   uint64 `yaml:"quantity" toml:"quantity"`
}

// TelemetryConfig toggles OTLP export. The endpoint falls back to
// OTEL_EXPORTER_OTLP_ENDPOINT.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	Insecure bool   `yaml:"insecure" toml:"insecure"`
	Traces   bool   `yaml:"traces" toml:"traces"`
	Metrics  bool   `yaml:"metrics" toml:"metrics"`
}

// LoadConfig reads configuration from path. Files ending in .toml are decoded
// as TOML, everything else as YAML.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	if err := decodeConfig(path, data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return cfg, fmt.Errorf("auth: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeConfig(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data/auctiond"
	}
	cfg.Storage.Engine = strings.ToLower(strings.TrimSpace(cfg.Storage.Engine))
	if cfg.Storage.Engine == "" {
		cfg.Storage.Engine = "leveldb"
	}
	if cfg.Storage.Path == "" && cfg.Storage.Engine != "memory" {
		cfg.Storage.Path = filepath.Join(cfg.DataDir, cfg.Storage.Engine)
	}
	if cfg.EventLog.Path == "" {
		cfg.EventLog.Path = filepath.Join(cfg.DataDir, "events.db")
	}
	if cfg.EventLog.StreamHistory <= 0 {
		cfg.EventLog.StreamHistory = 256
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
}

func (a *AuthConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("auth configuration missing")
	}
	a.Secret = strings.TrimSpace(a.Secret)
	a.SecretEnv = strings.TrimSpace(a.SecretEnv)
	a.SecretFile = strings.TrimSpace(a.SecretFile)
	a.Issuer = strings.TrimSpace(a.Issuer)
	if a.Secret != "" {
		return nil
	}
	switch {
	case a.SecretEnv != "":
		value := strings.TrimSpace(os.Getenv(a.SecretEnv))
		if value == "" {
			return fmt.Errorf("secret_env %s is empty", a.SecretEnv)
		}
		a.Secret = value
	case a.SecretFile != "":
		contents, err := os.ReadFile(a.SecretFile)
		if err != nil {
			return fmt.Errorf("read secret_file: %w", err)
		}
		a.Secret = strings.TrimSpace(string(contents))
	default:
		return fmt.Errorf("secret is required")
	}
	return nil
}

func validateConfig(cfg Config) error {
	switch cfg.Storage.Engine {
	case "memory", "leveldb", "pebble":
	default:
		return fmt.Errorf("unsupported storage engine %q", cfg.Storage.Engine)
	}
	if len(cfg.Auth.Secret) < 16 {
		return fmt.Errorf("auth secret must be at least 16 bytes")
	}
	if cfg.Fees.PlatformBps > fees.MaxPlatformFeeBps {
		return fmt.Errorf("fees platform_bps %d exceeds %d", cfg.Fees.PlatformBps, fees.MaxPlatformFeeBps)
	}
	if strings.TrimSpace(cfg.Fees.Treasury) == "" {
		return fmt.Errorf("fees treasury must be configured")
	}
	if _, err := crypto.ParseAddress(cfg.Fees.Treasury); err != nil {
		return fmt.Errorf("fees treasury: %w", err)
	}
	if _, err := cfg.Auction.Params(); err != nil {
		return err
	}
	for _, group := range [][]string{cfg.Admins.Pausers, cfg.Admins.FeeManagers, cfg.Admins.Minters} {
		for _, raw := range group {
			if _, err := crypto.ParseAddress(raw); err != nil {
				return fmt.Errorf("admin %q: %w", raw, err)
			}
		}
	}
	for _, coll := range cfg.Genesis.Collections {
		if _, err := assets.ParseStandard(coll.Standard); err != nil {
			return fmt.Errorf("genesis collection %s: %w", coll.Name, err)
		}
	}
	return nil
}

// Params merges the configured overrides into the engine defaults and
// validates the result.
func (a AuctionConfig) Params() (auction.Params, error) {
	p := auction.DefaultParams()
	if a.MinDuration.Duration > 0 {
		p.MinDuration = seconds(a.MinDuration)
	}
	if a.MaxDuration.Duration > 0 {
		p.MaxDuration = seconds(a.MaxDuration)
	}
	if a.ExtensionThreshold.Duration > 0 {
		p.ExtensionThreshold = seconds(a.ExtensionThreshold)
	}
	if a.ExtensionWindow.Duration > 0 {
		p.ExtensionWindow = seconds(a.ExtensionWindow)
	}
	if a.EmergencyDelay.Duration > 0 {
		p.EmergencyDelay = seconds(a.EmergencyDelay)
	}
	if a.DefaultBidIncrementBps > 0 {
		p.DefaultBidIncrementBps = a.DefaultBidIncrementBps
	}
	if err := p.Validate(); err != nil {
		return auction.Params{}, fmt.Errorf("auction params: %w", err)
	}
	return p, nil
}

func seconds(d Duration) int64 { return int64(d.Duration / time.Second) }
