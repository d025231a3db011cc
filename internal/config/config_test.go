package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfigFile(t *testing.T) {
	cfg, err := Load("../../config")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.SiteName != "Directory" {
		t.Errorf("expected site name Directory, got %s", cfg.App.SiteName)
	}
	if cfg.App.SupportEmail != "support@example.com" {
		t.Errorf("expected support email from file, got %s", cfg.App.SupportEmail)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("expected API port 8080, got %d", cfg.API.Port)
	}
	if cfg.Provider.FromEmail != "no-reply@example.com" {
		t.Errorf("expected from_email from file, got %s", cfg.Provider.FromEmail)
	}
	if cfg.Queue.TickInterval != 30*time.Second {
		t.Errorf("expected tick interval 30s, got %v", cfg.Queue.TickInterval)
	}
	if cfg.Queue.HealthInterval != 2*time.Minute {
		t.Errorf("expected health interval 2m, got %v", cfg.Queue.HealthInterval)
	}
	if cfg.Queue.Concurrency != 3 {
		t.Errorf("expected concurrency 3, got %d", cfg.Queue.Concurrency)
	}
	if cfg.Queue.StaleAfter != 10*time.Minute {
		t.Errorf("expected stale_after 10m, got %v", cfg.Queue.StaleAfter)
	}
	if cfg.Preferences.CacheTTL != 5*time.Minute {
		t.Errorf("expected cache ttl 5m, got %v", cfg.Preferences.CacheTTL)
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Provider.Type != "stdout" {
		t.Errorf("expected provider stdout, got %s", cfg.Provider.Type)
	}
	if cfg.Queue.BatchSize != 10 {
		t.Errorf("expected batch size 10, got %d", cfg.Queue.BatchSize)
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Errorf("expected max attempts 3, got %d", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.RestartDelay != 5*time.Second {
		t.Errorf("expected restart delay 5s, got %v", cfg.Queue.RestartDelay)
	}
	if cfg.Queue.Store != "postgres" {
		t.Errorf("expected postgres store, got %s", cfg.Queue.Store)
	}
	if cfg.Templates.Source != "builtin" {
		t.Errorf("expected builtin templates, got %s", cfg.Templates.Source)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MAILQUEUE_PROVIDER_TYPE", "sendgrid")
	t.Setenv("MAILQUEUE_PROVIDER_API_KEY", "SG.test")
	t.Setenv("MAILQUEUE_QUEUE_BATCH_SIZE", "25")
	t.Setenv("MAILQUEUE_QUEUE_TICK_INTERVAL", "45s")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Provider.Type != "sendgrid" {
		t.Errorf("expected provider sendgrid, got %s", cfg.Provider.Type)
	}
	if cfg.Provider.APIKey != "SG.test" {
		t.Errorf("expected api key from env, got %s", cfg.Provider.APIKey)
	}
	if cfg.Queue.BatchSize != 25 {
		t.Errorf("expected batch size 25, got %d", cfg.Queue.BatchSize)
	}
	if cfg.Queue.TickInterval != 45*time.Second {
		t.Errorf("expected tick interval 45s, got %v", cfg.Queue.TickInterval)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("queue: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Provider:  ProviderConfig{FromEmail: "a@example.com"},
			Templates: TemplatesConfig{Source: "builtin"},
			Queue: QueueConfig{
				Store:          "memory",
				TickInterval:   time.Second,
				HealthInterval: time.Second,
				BatchSize:      1,
				Concurrency:    1,
				MaxAttempts:    1,
				SendTimeout:    30 * time.Second,
				StaleAfter:     10 * time.Minute,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero batch", func(c *Config) { c.Queue.BatchSize = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Queue.Concurrency = 0 }, true},
		{"zero attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }, true},
		{"sub-second tick", func(c *Config) { c.Queue.TickInterval = 500 * time.Millisecond }, true},
		{"zero send timeout", func(c *Config) { c.Queue.SendTimeout = 0 }, true},
		{"send timeout outlives stale window", func(c *Config) {
			c.Queue.SendTimeout = time.Hour
			c.Queue.StaleAfter = 10 * time.Minute
		}, true},
		{"send timeout equals stale window", func(c *Config) {
			c.Queue.SendTimeout = 10 * time.Minute
			c.Queue.StaleAfter = 10 * time.Minute
		}, true},
		{"unknown store", func(c *Config) { c.Queue.Store = "sqlite" }, true},
		{"unknown template source", func(c *Config) { c.Templates.Source = "s3" }, true},
		{"missing sender", func(c *Config) { c.Provider.FromEmail = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
