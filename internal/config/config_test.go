package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "")

	cfg, err := Load()
	require.NoError(t, err)
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.BootstrapAdminPassword != "" {
		t.Fatalf("expected empty BOOTSTRAP_ADMIN_PASSWORD when unset, got %q", cfg.BootstrapAdminPassword)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("DB_AUTO_MIGRATE", "false")
	t.Setenv("AUTH_SECRET", "  padded-secret  ")
	t.Setenv("BOOTSTRAP_ADMIN_USERNAME", " Owner ")
	t.Setenv("REPORT_PDF_FONT", " /usr/share/fonts/DejaVuSans.ttf ")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Port)
	require.Equal(t, ":9090", cfg.Address())
	require.Equal(t, 3, cfg.RedisDB)
	require.False(t, cfg.DBAutoMigrate)
	require.Equal(t, "padded-secret", cfg.AuthSecret)
	require.Equal(t, "owner", cfg.BootstrapAdminUsername)
	require.Equal(t, "/usr/share/fonts/DejaVuSans.ttf", cfg.ReportPDFFont)
}

func TestLoadClampsNonPositiveDurations(t *testing.T) {
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "0")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 300, cfg.ReportCacheTTLSeconds)
	require.Equal(t, 480, cfg.AccessTokenTTLMinutes)
}
