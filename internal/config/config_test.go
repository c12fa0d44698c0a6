package config_test

import (
	"testing"
	"time"

	"bazaar/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TOKEN", "123:abc")

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.DBPath != "db.sqlite" || cfg.PageSize != 20 || cfg.FetchTimeout != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	if cfg.ImportSpec != "*/30 * * * *" || cfg.MetricsAddr != ":9090" || len(cfg.AllowedUsers) != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	if !cfg.ImportEnabled || !cfg.MetricsEnabled {
		t.Fatalf("import and metrics should be enabled by default: %+v", cfg)
	}
}

func TestLoadConfigDisablesOptionalFeatures(t *testing.T) {
	t.Setenv("TOKEN", "123:abc")
	t.Setenv("IMPORT_ENABLED", "false")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ImportEnabled || cfg.MetricsEnabled {
		t.Fatalf("expected import and metrics to be disabled: %+v", cfg)
	}
}

func TestLoadConfigParsesValues(t *testing.T) {
	t.Setenv("TOKEN", "123:abc")
	t.Setenv("ALLOWED_USERS", "1,-2")
	t.Setenv("FEED_PAGE_SIZE", "5")
	t.Setenv("FEED_FETCH_TIMEOUT", "250ms")

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if len(cfg.AllowedUsers) != 2 || cfg.AllowedUsers[0] != 1 || cfg.AllowedUsers[1] != -2 {
		t.Fatalf("unexpected allowed users: %v", cfg.AllowedUsers)
	}

	if cfg.PageSize != 5 || cfg.FetchTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected feed settings: %+v", cfg)
	}
}

func TestLoadConfigRequiresToken(t *testing.T) {
	t.Setenv("TOKEN", "")

	if _, err := config.LoadConfig(); err == nil {
		t.Fatalf("expected error without TOKEN")
	}
}

func TestLoadConfigRejectsBadUserList(t *testing.T) {
	t.Setenv("TOKEN", "123:abc")
	t.Setenv("ALLOWED_USERS", "1,abc")

	if _, err := config.LoadConfig(); err == nil {
		t.Fatalf("expected error for non-numeric user id")
	}
}
