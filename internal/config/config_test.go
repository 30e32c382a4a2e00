package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	c := &Config{
		Environment: EnvironmentConfig{
			Mode:     "paper",
			LogLevel: "info",
		},
		Broker: BrokerConfig{
			Demo: true,
		},
		Session: SessionConfig{
			BaseAmount:         "1",
			Multiplier:         "2.5",
			Variant:            "two-cycle-reset",
			Scope:              "per_symbol",
			StopLoss:           50,
			TakeProfit:         100,
			MaxParallelSymbols: 4,
			MinStake:           "1",
		},
		Signals: SignalsConfig{
			Dir:           ".",
			PollInterval:  "2s",
			OffsetSeconds: 3,
			MaxLead:       "60s",
			MaxLag:        "2m",
		},
		Storage: StorageConfig{
			Path: "trades.json",
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Port:    9000,
		},
	}
	return c
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
environment:
  mode: paper
  log_level: info
broker:
  demo: true
session:
  base_amount: "1"
  multiplier: "2.5"
  variant: two-cycle-reset
  scope: per_symbol
  stop_loss: 50
  take_profit: 100
signals:
  poll_interval: 2s
  offset_seconds: 3
storage:
  path: trades.json
dashboard:
  enabled: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.IsPaperTrading() {
		t.Error("expected paper trading mode")
	}
	if got := cfg.Multiplier().String(); got != "2.5" {
		t.Errorf("Multiplier() = %s, want 2.5", got)
	}
	if cfg.Session.MaxParallelSymbols != 4 {
		t.Errorf("default max_parallel_symbols = %d, want 4", cfg.Session.MaxParallelSymbols)
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Errorf("PollInterval() = %v, want 2s", cfg.PollInterval())
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
environment:
  mode: paper
session:
  base_amount: "1"
  multiplier: "2.5"
  variant: manual
  typo_field: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected strict decoding to reject unknown field")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("POCKET_SSID", "ssid-blob")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
environment:
  mode: live
broker:
  ssid: ${POCKET_SSID}
  demo: true
session:
  base_amount: "1"
  multiplier: "2"
  variant: single-cycle
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Broker.SSID != "ssid-blob" {
		t.Errorf("SSID = %q, want expanded env value", cfg.Broker.SSID)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad mode", func(c *Config) { c.Environment.Mode = "demo" }, "environment.mode"},
		{"live needs ssid", func(c *Config) { c.Environment.Mode = "live" }, "broker.ssid"},
		{"zero base", func(c *Config) { c.Session.BaseAmount = "0" }, "base_amount"},
		{"unparseable base", func(c *Config) { c.Session.BaseAmount = "one" }, "base_amount"},
		{"multiplier not above 1", func(c *Config) { c.Session.Multiplier = "1" }, "multiplier"},
		{"unknown variant", func(c *Config) { c.Session.Variant = "four-cycle" }, "variant"},
		{"bad scope", func(c *Config) { c.Session.Scope = "shared" }, "scope"},
		{"negative stop loss", func(c *Config) { c.Session.StopLoss = -1 }, "stop_loss"},
		{"zero min stake", func(c *Config) { c.Session.MinStake = "0" }, "min_stake"},
		{"max stake below min", func(c *Config) { c.Session.MinStake = "5"; c.Session.MaxStake = "2" }, "max_stake"},
		{"bad poll interval", func(c *Config) { c.Signals.PollInterval = "soon" }, "poll_interval"},
		{"bad max lead", func(c *Config) { c.Signals.MaxLead = "x" }, "max_lead"},
		{"bad dashboard port", func(c *Config) { c.Dashboard.Port = 70000 }, "dashboard.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestReadOffsetFile(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("plain entry", func(t *testing.T) {
		got, err := ReadOffsetFile(write("a.txt", "TRADE_OFFSET_SECONDS=10\n"))
		if err != nil || got != 10 {
			t.Errorf("got (%d, %v), want (10, nil)", got, err)
		}
	})

	t.Run("comments and whitespace", func(t *testing.T) {
		content := "# trade entry offset\n\n  TRADE_OFFSET_SECONDS = 7  \n"
		got, err := ReadOffsetFile(write("b.txt", content))
		if err != nil || got != 7 {
			t.Errorf("got (%d, %v), want (7, nil)", got, err)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		if _, err := ReadOffsetFile(write("c.txt", "OTHER=1\n")); err == nil {
			t.Error("expected error for file without offset key")
		}
	})

	t.Run("negative rejected", func(t *testing.T) {
		if _, err := ReadOffsetFile(write("d.txt", "TRADE_OFFSET_SECONDS=-2\n")); err == nil {
			t.Error("expected error for negative offset")
		}
	})
}

func TestOffsetSecondsFilePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trade_config.txt")
	if err := os.WriteFile(path, []byte("TRADE_OFFSET_SECONDS=10\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := validConfig()
	cfg.Signals.OffsetSeconds = 3
	cfg.Signals.OffsetFile = path
	if got := cfg.OffsetSeconds(); got != 10 {
		t.Errorf("OffsetSeconds() = %d, want file value 10", got)
	}

	cfg.Signals.OffsetFile = filepath.Join(dir, "missing.txt")
	if got := cfg.OffsetSeconds(); got != 3 {
		t.Errorf("OffsetSeconds() with missing file = %d, want yaml value 3", got)
	}
}
