package config

import "time"

// DefaultConfig returns the full default configuration. Values are
// chosen so a local sqlite deployment works with no config file at all.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Migration: DefaultMigrationConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns default HTTP server settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9090,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// DefaultDatabaseConfig returns default database settings: a local
// sqlite file so the service runs without a postgres instance.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "flowmigrate.db",
		Host:            "localhost",
		Port:            5432,
		User:            "flowmigrate",
		SSLMode:         "disable",
		MaxOpenConns:    100,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultRedisConfig returns default cache settings. Disabled by
// default; the stores fall back to direct database reads.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultMigrationConfig returns default pipeline tuning.
func DefaultMigrationConfig() MigrationConfig {
	return MigrationConfig{
		PlanRetentionDays: 30,
		DeployConcurrency: 8,
		DeployRatePerSec:  0,
		CacheTTL:          5 * time.Minute,
	}
}

// DefaultLogConfig returns default logger settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns default telemetry settings.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "flowmigrate",
		SampleRate:   1.0,
	}
}
