package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8085" {
		t.Fatalf("expected default port 8085, got %q", cfg.Port)
	}
	if cfg.StoreDriver != StoreMemory {
		t.Fatalf("expected memory store by default, got %q", cfg.StoreDriver)
	}
	if cfg.VerificationInterval != 2*time.Minute {
		t.Fatalf("expected 2m verification interval, got %v", cfg.VerificationInterval)
	}
	if cfg.VerificationFirstCheckDelay != 5*time.Minute {
		t.Fatalf("expected 5m first check delay, got %v", cfg.VerificationFirstCheckDelay)
	}
	if cfg.PaymentExpiry != 24*time.Hour {
		t.Fatalf("expected 24h expiry, got %v", cfg.PaymentExpiry)
	}
	if cfg.VerificationBatchSize != 10 {
		t.Fatalf("expected batch size 10, got %d", cfg.VerificationBatchSize)
	}
	if cfg.MockGatewaySuccessRate != 0.9 {
		t.Fatalf("expected mock success rate 0.9, got %v", cfg.MockGatewaySuccessRate)
	}
}

func TestLoadConfig_ReadsEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("PORT", "9000")
	t.Setenv("VERIFICATION_INTERVAL", "30s")
	t.Setenv("VERIFICATION_BATCH_SIZE", "25")
	t.Setenv("GATEWAY_PROVIDER", "HTTP")
	t.Setenv("GATEWAY_BASE_URL", "https://gateway.example.com")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example.com, https://admin.example.com")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "9000" {
		t.Fatalf("expected port 9000, got %q", cfg.Port)
	}
	if cfg.VerificationInterval != 30*time.Second {
		t.Fatalf("expected 30s interval, got %v", cfg.VerificationInterval)
	}
	if cfg.VerificationBatchSize != 25 {
		t.Fatalf("expected batch size 25, got %d", cfg.VerificationBatchSize)
	}
	if cfg.GatewayProvider != GatewayHTTP {
		t.Fatalf("expected provider to be normalised to http, got %q", cfg.GatewayProvider)
	}
	origins := cfg.AllowedOrigins()
	if len(origins) != 2 || origins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected origins: %v", origins)
	}
}

func TestLoadConfig_PostgresRequiresDatabaseURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := LoadConfig(t.TempDir())
	if err == nil {
		t.Fatal("expected missing DATABASE_URL error")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected error to mention DATABASE_URL, got %v", err)
	}
}

func TestLoadConfig_RejectsNonPositiveBatchSize(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("VERIFICATION_BATCH_SIZE", "0")

	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatal("expected batch size validation error")
	}
}
