package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when LIVETRADE_CONFIG is not set.
const DefaultPath = "config/livetrade.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for livetrade.
type Config struct {
	Broker    Broker    `yaml:"broker"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Simulator Simulator `yaml:"simulator"`
	Engine    Engine    `yaml:"engine"`
	Journal   Journal   `yaml:"journal"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

// Broker selects the session implementation: "alpaca" or "simulator".
type Broker struct {
	Kind string `yaml:"kind"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	Paper           bool   `yaml:"paper"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Simulator configures the in-memory paper session.
type Simulator struct {
	Latency  time.Duration `yaml:"latency"`
	FillStep int64         `yaml:"fill_step"`
	Cash     float64       `yaml:"cash"`
	// Prices are reference prices for market orders, keyed by symbol.
	Prices map[string]float64 `yaml:"prices"`
}

// Engine tunes the adapter worker and its pre-trade checks.
type Engine struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	MaxOrderQty       int64         `yaml:"max_order_qty"`
	MaxNotional       float64       `yaml:"max_notional"`
}

// Journal selects where completed orders are recorded: "none", "sqlite" or
// "parquet".
type Journal struct {
	Kind       string `yaml:"kind"`
	SQLitePath string `yaml:"sqlite_path"`
	DataDir    string `yaml:"data_dir"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration file path from LIVETRADE_CONFIG, falling
// back to DefaultPath.
func Path() string {
	if v := os.Getenv("LIVETRADE_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, fills defaults and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied, suitable for
// running the simulator without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks enum fields and required credentials.
func (c *Config) Validate() error {
	switch c.Broker.Kind {
	case "simulator":
	case "alpaca":
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			return fmt.Errorf("config: alpaca broker requires api_key and api_secret")
		}
	default:
		return fmt.Errorf("config: unknown broker kind %q", c.Broker.Kind)
	}
	switch c.Journal.Kind {
	case "none", "sqlite", "parquet":
	default:
		return fmt.Errorf("config: unknown journal kind %q", c.Journal.Kind)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Broker.Kind == "" {
		cfg.Broker.Kind = "simulator"
	}
	if cfg.Alpaca.BaseURL == "" && cfg.Alpaca.Paper {
		cfg.Alpaca.BaseURL = "https://paper-api.alpaca.markets"
	}
	if cfg.Alpaca.RateLimitPerMin == 0 {
		cfg.Alpaca.RateLimitPerMin = 200
	}
	if cfg.Simulator.FillStep == 0 {
		cfg.Simulator.FillStep = 100
	}
	if cfg.Simulator.Cash == 0 {
		cfg.Simulator.Cash = 1_000_000
	}
	if cfg.Engine.PollInterval == 0 {
		cfg.Engine.PollInterval = 100 * time.Millisecond
	}
	if cfg.Engine.ReconcileInterval == 0 {
		cfg.Engine.ReconcileInterval = 400 * time.Millisecond
	}
	if cfg.Journal.Kind == "" {
		cfg.Journal.Kind = "none"
	}
	if cfg.Journal.SQLitePath == "" {
		cfg.Journal.SQLitePath = "data/livetrade.db"
	}
	if cfg.Journal.DataDir == "" {
		cfg.Journal.DataDir = "data"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LIVETRADE_BROKER"); v != "" {
		cfg.Broker.Kind = v
	}
	if v := os.Getenv("LIVETRADE_JOURNAL"); v != "" {
		cfg.Journal.Kind = v
	}
	if v := os.Getenv("LIVETRADE_DATA_DIR"); v != "" {
		cfg.Journal.DataDir = v
	}
	if v := os.Getenv("LIVETRADE_SQLITE_PATH"); v != "" {
		cfg.Journal.SQLitePath = v
	}
	if v := os.Getenv("LIVETRADE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LIVETRADE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LIVETRADE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars win over everything else.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	return nil
}
