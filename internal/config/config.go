// Package config provides configuration management for the trading bot.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	yaml "gopkg.in/yaml.v3"

	"github.com/jenbur242/pocket-option/internal/martingale"
)

const (
	// defaultOffsetSeconds is applied when neither the YAML config nor the
	// legacy offset file specifies an entry offset.
	defaultOffsetSeconds = 3
	// offsetFileKey is the single key recognized in the legacy offset file.
	offsetFileKey = "TRADE_OFFSET_SECONDS"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Session     SessionConfig     `yaml:"session"`
	Signals     SignalsConfig     `yaml:"signals"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker session settings.
type BrokerConfig struct {
	SSID string `yaml:"ssid"` // browser-captured session blob, usually ${POCKET_SSID}
	Demo bool   `yaml:"demo"`
	URL  string `yaml:"url"`
}

// SessionConfig defines the martingale session parameters.
type SessionConfig struct {
	BaseAmount         string  `yaml:"base_amount"`
	Multiplier         string  `yaml:"multiplier"`
	Variant            string  `yaml:"variant"`
	Scope              string  `yaml:"scope"` // per_symbol | global
	StopLoss           float64 `yaml:"stop_loss"`
	TakeProfit         float64 `yaml:"take_profit"`
	MaxParallelSymbols int     `yaml:"max_parallel_symbols"`
	MinStake           string  `yaml:"min_stake"` // broker order minimum, default $1
	MaxStake           string  `yaml:"max_stake"` // broker order maximum, empty = unbounded
}

// SignalsConfig defines where signals come from and how they are scheduled.
type SignalsConfig struct {
	File          string `yaml:"file"` // explicit CSV path; empty = date-based name in Dir
	Dir           string `yaml:"dir"`
	PollInterval  string `yaml:"poll_interval"`
	OffsetSeconds int    `yaml:"offset_seconds"`
	OffsetFile    string `yaml:"offset_file"` // legacy TRADE_OFFSET_SECONDS file, wins over offset_seconds
	MaxLead       string `yaml:"max_lead"`
	MaxLag        string `yaml:"max_lag"`
}

// StorageConfig defines storage settings for trade history.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the HTTP dashboard settings.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Session.Scope == "" {
		c.Session.Scope = "per_symbol"
	}
	if c.Session.MaxParallelSymbols == 0 {
		c.Session.MaxParallelSymbols = 4
	}
	if c.Session.MinStake == "" {
		c.Session.MinStake = "1"
	}
	if c.Signals.Dir == "" {
		c.Signals.Dir = "."
	}
	if c.Signals.PollInterval == "" {
		c.Signals.PollInterval = "2s"
	}
	if c.Signals.OffsetSeconds == 0 {
		c.Signals.OffsetSeconds = defaultOffsetSeconds
	}
	if c.Signals.MaxLead == "" {
		c.Signals.MaxLead = "60s"
	}
	if c.Signals.MaxLag == "" {
		c.Signals.MaxLag = "2m"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "trades.json"
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	if c.Environment.Mode == "live" && c.Broker.SSID == "" {
		return fmt.Errorf("broker.ssid is required in live mode")
	}

	base, err := decimal.NewFromString(c.Session.BaseAmount)
	if err != nil {
		return fmt.Errorf("session.base_amount invalid: %w", err)
	}
	if base.Sign() <= 0 {
		return fmt.Errorf("session.base_amount must be > 0")
	}
	mult, err := decimal.NewFromString(c.Session.Multiplier)
	if err != nil {
		return fmt.Errorf("session.multiplier invalid: %w", err)
	}
	if mult.LessThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("session.multiplier must be > 1")
	}
	if _, ok := martingale.Lookup(c.Session.Variant); !ok {
		return fmt.Errorf("session.variant %q unknown", c.Session.Variant)
	}
	if c.Session.Scope != "per_symbol" && c.Session.Scope != "global" {
		return fmt.Errorf("session.scope must be 'per_symbol' or 'global'")
	}
	if c.Session.StopLoss < 0 {
		return fmt.Errorf("session.stop_loss must be >= 0")
	}
	if c.Session.TakeProfit < 0 {
		return fmt.Errorf("session.take_profit must be >= 0")
	}
	if c.Session.MaxParallelSymbols <= 0 {
		return fmt.Errorf("session.max_parallel_symbols must be > 0")
	}
	minStake, err := decimal.NewFromString(c.Session.MinStake)
	if err != nil {
		return fmt.Errorf("session.min_stake invalid: %w", err)
	}
	if minStake.Sign() <= 0 {
		return fmt.Errorf("session.min_stake must be > 0")
	}
	if c.Session.MaxStake != "" {
		maxStake, err := decimal.NewFromString(c.Session.MaxStake)
		if err != nil {
			return fmt.Errorf("session.max_stake invalid: %w", err)
		}
		if maxStake.LessThan(minStake) {
			return fmt.Errorf("session.max_stake must be >= session.min_stake")
		}
	}

	if _, err := time.ParseDuration(c.Signals.PollInterval); err != nil {
		return fmt.Errorf("signals.poll_interval invalid: %w", err)
	}
	if c.Signals.OffsetSeconds < 0 {
		return fmt.Errorf("signals.offset_seconds must be >= 0")
	}
	if _, err := time.ParseDuration(c.Signals.MaxLead); err != nil {
		return fmt.Errorf("signals.max_lead invalid: %w", err)
	}
	if _, err := time.ParseDuration(c.Signals.MaxLag); err != nil {
		return fmt.Errorf("signals.max_lag invalid: %w", err)
	}

	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be in 1..65535")
	}

	return nil
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// BaseAmount returns the configured base stake. Validate has already
// established the string parses.
func (c *Config) BaseAmount() decimal.Decimal {
	d, _ := decimal.NewFromString(c.Session.BaseAmount)
	return d
}

// Multiplier returns the configured martingale multiplier.
func (c *Config) Multiplier() decimal.Decimal {
	d, _ := decimal.NewFromString(c.Session.Multiplier)
	return d
}

// MinStake returns the smallest order the broker accepts.
func (c *Config) MinStake() decimal.Decimal {
	d, _ := decimal.NewFromString(c.Session.MinStake)
	return d
}

// MaxStake returns the largest order the broker accepts; zero means
// unbounded.
func (c *Config) MaxStake() decimal.Decimal {
	if c.Session.MaxStake == "" {
		return decimal.Decimal{}
	}
	d, _ := decimal.NewFromString(c.Session.MaxStake)
	return d
}

// PollInterval returns the signal file poll interval.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Signals.PollInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// MaxLead returns how far in the future a signal may be and still be queued.
func (c *Config) MaxLead() time.Duration {
	d, err := time.ParseDuration(c.Signals.MaxLead)
	if err != nil {
		return time.Minute
	}
	return d
}

// MaxLag returns how stale a signal may be and still be dispatched.
func (c *Config) MaxLag() time.Duration {
	d, err := time.ParseDuration(c.Signals.MaxLag)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// OffsetSeconds resolves the entry offset: the legacy offset file overrides
// the YAML value when present and parseable.
func (c *Config) OffsetSeconds() int {
	if c.Signals.OffsetFile != "" {
		if v, err := ReadOffsetFile(c.Signals.OffsetFile); err == nil {
			return v
		}
	}
	return c.Signals.OffsetSeconds
}

// ReadOffsetFile parses the legacy trade_config.txt format: one
// TRADE_OFFSET_SECONDS=<int> line, '#' comments and blank lines ignored.
func ReadOffsetFile(path string) (int, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from validated config
	if err != nil {
		return 0, fmt.Errorf("opening offset file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) != offsetFileKey {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("parsing %s: %w", offsetFileKey, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("%s must be >= 0, got %d", offsetFileKey, n)
		}
		return n, nil
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("reading offset file: %w", err)
	}
	return 0, fmt.Errorf("offset file has no %s entry", offsetFileKey)
}
