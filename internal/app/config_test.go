package app

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfigDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg := LoadConfig(v)

	if cfg.HTTPAddr != ":8080" || cfg.ExportRatePerMin != 30 || cfg.StorageDir != "./media" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Timezone != "Europe/Istanbul" || cfg.AppEnv != "development" || cfg.CSRFEnforced {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ConnMaxLifetime() != 30*time.Minute {
		t.Fatalf("unexpected conn lifetime %v", cfg.ConnMaxLifetime())
	}
}

func TestLoadConfigOverridesAndFallbacks(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("http_addr", ":9090")
	v.Set("export_rate_limit_per_minute", 0)
	v.Set("csrf_enforced", "true")
	v.Set("app_timezone", " UTC ")
	cfg := LoadConfig(v)

	if cfg.HTTPAddr != ":9090" || !cfg.CSRFEnforced {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ExportRatePerMin != 30 {
		t.Fatalf("non-positive limit should fall back, got %d", cfg.ExportRatePerMin)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("unexpected location %v %v", loc, err)
	}
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("QBANK_STORAGE_DIR", "/srv/qbank")
	v, err := NewViper()
	if err != nil {
		t.Fatalf("new viper: %v", err)
	}
	if got := LoadConfig(v).StorageDir; got != "/srv/qbank" {
		t.Fatalf("env override not applied, got %q", got)
	}
}
