//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("applies defaults over a minimal file", func(t *testing.T) {
		path := writeConfig(t, `
database:
  url: postgres://localhost:5432/billing
`)

		cfg, err := LoadConfig(path, false)

		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
		}
		if cfg.Billing.GraceWindowDays != 7 {
			t.Errorf("expected default grace window of 7 days, got %d", cfg.Billing.GraceWindowDays)
		}
		if cfg.Scheduler.SweepInterval != time.Hour {
			t.Errorf("expected default sweep interval 1h, got %v", cfg.Scheduler.SweepInterval)
		}
		if cfg.Billing.GraceWindow() != 7*24*time.Hour {
			t.Errorf("unexpected grace window duration: %v", cfg.Billing.GraceWindow())
		}
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 9090
database:
  url: postgres://localhost:5432/billing
billing:
  grace_window_days: 14
scheduler:
  sweep_interval: 30m
`)

		cfg, err := LoadConfig(path, false)

		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Billing.GraceWindowDays != 14 {
			t.Errorf("expected grace window 14 days, got %d", cfg.Billing.GraceWindowDays)
		}
		if cfg.Scheduler.SweepInterval != 30*time.Minute {
			t.Errorf("expected sweep interval 30m, got %v", cfg.Scheduler.SweepInterval)
		}
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := writeConfig(t, `
database:
  url: postgres://file-host:5432/billing
admin:
  api_key: from-file
`)
		t.Setenv("DATABASE_URL", "postgres://env-host:5432/billing")
		t.Setenv("ADMIN_API_KEY", "from-env")

		cfg, err := LoadConfig(path, false)

		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if cfg.Database.URL != "postgres://env-host:5432/billing" {
			t.Errorf("expected env database url, got %q", cfg.Database.URL)
		}
		if cfg.Admin.APIKey != "from-env" {
			t.Errorf("expected env admin key, got %q", cfg.Admin.APIKey)
		}
	})

	t.Run("rejects a config without a database url", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 8080
`)
		t.Setenv("DATABASE_URL", "")

		if _, err := LoadConfig(path, false); err == nil {
			t.Fatal("expected an error for the missing database url")
		}
	})

	t.Run("rejects a non-positive grace window", func(t *testing.T) {
		path := writeConfig(t, `
database:
  url: postgres://localhost:5432/billing
billing:
  grace_window_days: 0
`)

		if _, err := LoadConfig(path, false); err == nil {
			t.Fatal("expected an error for a zero grace window")
		}
	})
}
