package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load with defaults failed: %v", err)
	}

	if cfg.Server.Port != 9900 {
		t.Errorf("Default port = %d, want 9900", cfg.Server.Port)
	}
	if cfg.Risk.RiskPerTradePercent != 2.0 {
		t.Errorf("Default risk per trade = %v, want 2.0", cfg.Risk.RiskPerTradePercent)
	}
	if cfg.Risk.MinAutotradeConfidence != 60.0 {
		t.Errorf("Default min confidence = %v, want 60", cfg.Risk.MinAutotradeConfidence)
	}
	if cfg.Risk.SignalMaxAgeMinutes != 15 {
		t.Errorf("Default signal max age = %d, want 15", cfg.Risk.SignalMaxAgeMinutes)
	}
	if cfg.Engine.LockTTL != 60*time.Second {
		t.Errorf("Default lock TTL = %s, want 60s", cfg.Engine.LockTTL)
	}
	if ceiling := cfg.Spread.ClassCeilings["forex"]; ceiling != 0.0005 {
		t.Errorf("Default forex spread ceiling = %v, want 0.0005", ceiling)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis must default to disabled")
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8081
risk:
  max_positions: 4
replacement:
  max_hold_hours:
    BTCUSD: 6
engine:
  accounts:
    - live-1
    - live-2
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8081 {
		t.Errorf("Port = %d, want 8081", cfg.Server.Port)
	}
	if cfg.Risk.MaxPositions != 4 {
		t.Errorf("Max positions = %d, want 4", cfg.Risk.MaxPositions)
	}
	if got := cfg.Replacement.MaxHoldFor("BTCUSD"); got != 6*time.Hour {
		t.Errorf("BTCUSD max hold = %s, want 6h", got)
	}
	if got := cfg.Replacement.MaxHoldFor("EURUSD"); got != 48*time.Hour {
		t.Errorf("Unlisted symbol must use default max hold, got %s", got)
	}
	if len(cfg.Engine.Accounts) != 2 || cfg.Engine.Accounts[1] != "live-2" {
		t.Errorf("Accounts = %v, want [live-1 live-2]", cfg.Engine.Accounts)
	}
	// Untouched sections keep defaults.
	if cfg.Risk.MinRewardRisk != 1.2 {
		t.Errorf("Min reward/risk = %v, want default 1.2", cfg.Risk.MinRewardRisk)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("NGT_RISK_MIN_AUTOTRADE_CONFIDENCE", "72.5")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Risk.MinAutotradeConfidence != 72.5 {
		t.Errorf("Env override ignored, got %v", cfg.Risk.MinAutotradeConfidence)
	}
}

func TestValidationRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"excessive risk per trade", "risk:\n  risk_per_trade_percent: 50\n"},
		{"zero max positions", "risk:\n  max_positions: 0\n"},
		{"reward risk below one", "risk:\n  min_reward_risk: 0.8\n"},
		{"zero lock ttl", "engine:\n  lock_ttl: 0s\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := config.Load(path); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestMissingFileFails(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for a missing config file")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}
