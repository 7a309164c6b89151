package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ssugameworks/invest-system-backend/internal/config"
	"github.com/ssugameworks/invest-system-backend/internal/pricing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Pricing != pricing.DefaultParams() {
		t.Errorf("pricing = %+v", cfg.Pricing)
	}
	if cfg.Game.InitialCapital != 50000 || cfg.Game.HistoryWindow != 150*time.Minute {
		t.Errorf("game = %+v", cfg.Game)
	}
	if cfg.Scheduler.Spec != "@every 10s" || !cfg.Scheduler.Enabled {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Admin.Enabled {
		t.Error("admin routes should be off by default")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/invest")
	t.Setenv("PORT", "9090")
	t.Setenv("PRICING_GAMMA", "0.25")
	t.Setenv("GAME_INITIAL_CAPITAL", "100000")
	t.Setenv("DB_INTERNAL_ENABLED", "true")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DB.URL != "postgres://localhost/invest" {
		t.Errorf("db url = %q", cfg.DB.URL)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Pricing.Gamma != 0.25 {
		t.Errorf("gamma = %v", cfg.Pricing.Gamma)
	}
	if cfg.Game.InitialCapital != 100000 {
		t.Errorf("initial capital = %d", cfg.Game.InitialCapital)
	}
	if !cfg.Admin.Enabled {
		t.Error("admin should be enabled")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
pricing:
  n: 50
  c1: 5000
scheduler:
  spec: "@every 30s"
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pricing.N != 50 || cfg.Pricing.C1 != 5000 || cfg.Pricing.T != 6 {
		t.Errorf("pricing = %+v", cfg.Pricing)
	}
	if cfg.Scheduler.Spec != "@every 30s" {
		t.Errorf("spec = %q", cfg.Scheduler.Spec)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q", cfg.Log.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_InvalidPricing(t *testing.T) {
	t.Setenv("PRICING_T", "0")
	if _, err := config.Load(""); err == nil {
		t.Error("expected validation error")
	}
}

func TestLogConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger := config.LogConfig{Level: "warn", Format: "json"}.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "team_id", 7)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"team_id":7`) {
		t.Errorf("output = %s", out)
	}
}
