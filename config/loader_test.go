package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 30, cfg.Migration.PlanRetentionDays)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfigFile(t, `
server:
  http_port: 9000
  shutdown_timeout: 10s
database:
  driver: postgres
  host: db.internal
  port: 5433
  name: flows
migration:
  deploy_concurrency: 16
  cache_ttl: 1m
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 16, cfg.Migration.DeployConcurrency)
	assert.Equal(t, time.Minute, cfg.Migration.CacheTTL)

	// untouched sections keep defaults
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a map")
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLOWMIGRATE_SERVER_HTTP_PORT", "7070")
	t.Setenv("FLOWMIGRATE_DATABASE_DRIVER", "postgres")
	t.Setenv("FLOWMIGRATE_REDIS_ENABLED", "true")
	t.Setenv("FLOWMIGRATE_MIGRATION_DEPLOY_RATE_PER_SEC", "250.5")
	t.Setenv("FLOWMIGRATE_MIGRATION_CACHE_TTL", "90s")
	t.Setenv("FLOWMIGRATE_LOG_OUTPUT_PATHS", "stdout, /var/log/flowmigrate.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 250.5, cfg.Migration.DeployRatePerSec)
	assert.Equal(t, 90*time.Second, cfg.Migration.CacheTTL)
	assert.Equal(t, []string{"stdout", "/var/log/flowmigrate.log"}, cfg.Log.OutputPaths)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  http_port: 9000\n")
	t.Setenv("FLOWMIGRATE_SERVER_HTTP_PORT", "7070")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.HTTPPort)
}

func TestEnvInvalidValue(t *testing.T) {
	t.Setenv("FLOWMIGRATE_SERVER_HTTP_PORT", "not-a-number")
	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestCustomEnvPrefix(t *testing.T) {
	t.Setenv("FM_SERVER_HTTP_PORT", "6060")
	cfg, err := NewLoader().WithEnvPrefix("FM").Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.HTTPPort)
}

func TestValidatorRuns(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(cfg *Config) error { return cfg.Validate() }).
		Load()
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(*Config) {}, ""},
		{"bad http port", func(c *Config) { c.Server.HTTPPort = 0 }, "invalid HTTP port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "unknown log level"},
		{"zero concurrency", func(c *Config) { c.Migration.DeployConcurrency = 0 }, "deploy_concurrency"},
		{"negative retention", func(c *Config) { c.Migration.PlanRetentionDays = -1 }, "plan_retention_days"},
		{"negative rate", func(c *Config) { c.Migration.DeployRatePerSec = -1 }, "deploy_rate_per_sec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	pg := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432,
		User: "svc", Password: "secret", Name: "flows", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db port=5432 user=svc password=secret dbname=flows sslmode=require",
		pg.DSN())
	assert.Equal(t,
		"postgres://svc:secret@db:5432/flows?sslmode=require",
		pg.URL())

	lite := DatabaseConfig{Driver: "sqlite", Name: "local.db"}
	assert.Equal(t, "local.db", lite.DSN())
	assert.Empty(t, lite.URL())

	unknown := DatabaseConfig{Driver: "oracle"}
	assert.Empty(t, unknown.DSN())
}

func TestMustLoadPanicsOnBadConfig(t *testing.T) {
	path := writeConfigFile(t, "database: [broken")
	assert.Panics(t, func() { MustLoad(path) })
}
