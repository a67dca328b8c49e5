package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type AdminConfig struct {
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BillingConfig struct {
	GraceWindowDays int `yaml:"grace_window_days"`
}

type SchedulerConfig struct {
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	ReconcileInterval   time.Duration `yaml:"reconcile_interval"`
	ReconcileStaleAfter time.Duration `yaml:"reconcile_stale_after"`
}

// UnmarshalYAML accepts "30m"-style values; yaml cannot decode duration
// strings on its own. Absent keys keep whatever was already set.
func (s *SchedulerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		SweepInterval       string `yaml:"sweep_interval"`
		ReconcileInterval   string `yaml:"reconcile_interval"`
		ReconcileStaleAfter string `yaml:"reconcile_stale_after"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	for _, f := range []struct {
		v   string
		dst *time.Duration
	}{
		{raw.SweepInterval, &s.SweepInterval},
		{raw.ReconcileInterval, &s.ReconcileInterval},
		{raw.ReconcileStaleAfter, &s.ReconcileStaleAfter},
	} {
		if f.v == "" {
			continue
		}
		d, err := time.ParseDuration(f.v)
		if err != nil {
			return fmt.Errorf("parse scheduler interval %q: %w", f.v, err)
		}
		*f.dst = d
	}
	return nil
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Billing   BillingConfig   `yaml:"billing"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

func (c *BillingConfig) GraceWindow() time.Duration {
	return time.Duration(c.GraceWindowDays) * 24 * time.Hour
}

// LoadConfig reads the yaml file, then overlays secrets from the
// environment (a .env file is honored when present).
func LoadConfig(path string, dev bool) (*Config, error) {
	// best-effort; absence of .env is normal outside local setups
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := defaults()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ADMIN_API_KEY"); v != "" {
		cfg.Admin.APIKey = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Log:    LogConfig{Level: "info", Format: "json"},
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			MaxConns: 10,
		},
		Billing: BillingConfig{GraceWindowDays: 7},
		Scheduler: SchedulerConfig{
			SweepInterval:       time.Hour,
			ReconcileInterval:   time.Minute,
			ReconcileStaleAfter: 10 * time.Minute,
		},
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url (or DATABASE_URL) is required")
	}
	if c.Billing.GraceWindowDays <= 0 {
		return fmt.Errorf("billing.grace_window_days must be positive")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	return nil
}
