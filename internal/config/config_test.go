package config

import (
	"strings"
	"testing"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/cards")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("WEBHOOK_SECRET", "shh")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppEnv != "development" || !cfg.IsDevelopment() {
		t.Fatalf("expected development default, got %q", cfg.AppEnv)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestDevelopmentBootsWithoutBackingStores(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("WEBHOOK_SECRET", "shh")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("development must tolerate missing stores: %v", err)
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" {
		t.Fatalf("unexpected store urls: %+v", cfg)
	}
}

func TestProductionRequiresBackingStores(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("WEBHOOK_SECRET", "shh")
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL requirement, got %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost:5432/cards")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REDIS_URL") {
		t.Fatalf("expected REDIS_URL requirement, got %v", err)
	}
}

func TestInsecureWebhookModeRefusedOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("WEBHOOK_SECRET", "")
	t.Setenv("WEBHOOK_ALLOW_INSECURE", "true")
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected insecure mode rejection in production")
	}

	t.Setenv("APP_ENV", "development")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("development insecure mode: %v", err)
	}
	if !cfg.WebhookAllowInsecure {
		t.Fatal("expected insecure flag set")
	}
}
