package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Gateway  GatewayConfig
	Charges  ChargesConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Migrate  bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// GatewayConfig holds payment gateway configuration.
type GatewayConfig struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// ChargesConfig holds reconciliation settings.
type ChargesConfig struct {
	// LockTTL must outlive the slowest operation: up to two gateway calls
	// plus store writes.
	LockTTL     time.Duration
	LockWait    time.Duration
	PixCacheTTL time.Duration
	Timezone    string
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level       string
	Development bool
}

// Location resolves the operator timezone used to compute "today".
func (c ChargesConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Load loads configuration from environment variables and, when CONFIG_FILE
// is set, from that file. Environment variables win over the file.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("server_port"),
			ReadTimeout:  v.GetDuration("server_read_timeout"),
			WriteTimeout: v.GetDuration("server_write_timeout"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("db_host"),
			Port:     v.GetString("db_port"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			DBName:   v.GetString("db_name"),
			SSLMode:  v.GetString("db_sslmode"),
			Migrate:  v.GetBool("db_migrate"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		NewRelic: NewRelicConfig{
			AppName:    v.GetString("new_relic_app_name"),
			LicenseKey: v.GetString("new_relic_license_key"),
			Enabled:    v.GetBool("new_relic_enabled"),
		},
		Gateway: GatewayConfig{
			BaseURL:         v.GetString("gateway_base_url"),
			APIKey:          v.GetString("gateway_api_key"),
			Timeout:         v.GetDuration("gateway_timeout"),
			BreakerFailures: v.GetUint32("gateway_breaker_failures"),
			BreakerCooldown: v.GetDuration("gateway_breaker_cooldown"),
		},
		Charges: ChargesConfig{
			LockTTL:     v.GetDuration("charge_lock_ttl"),
			LockWait:    v.GetDuration("charge_lock_wait"),
			PixCacheTTL: v.GetDuration("pix_cache_ttl"),
			Timezone:    v.GetString("app_timezone"),
		},
		Log: LogConfig{
			Level:       v.GetString("log_level"),
			Development: v.GetBool("log_development"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config_file", "")

	v.SetDefault("server_port", "8080")
	v.SetDefault("server_read_timeout", 10*time.Second)
	v.SetDefault("server_write_timeout", 30*time.Second)

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "postgres")
	v.SetDefault("db_name", "cobranca")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_migrate", true)

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("new_relic_app_name", "cobranca-service")
	v.SetDefault("new_relic_license_key", "")
	v.SetDefault("new_relic_enabled", false)

	v.SetDefault("gateway_base_url", "https://sandbox.asaas.com/api")
	v.SetDefault("gateway_api_key", "")
	v.SetDefault("gateway_timeout", 10*time.Second)
	v.SetDefault("gateway_breaker_failures", 5)
	v.SetDefault("gateway_breaker_cooldown", 30*time.Second)

	v.SetDefault("charge_lock_ttl", 2*time.Minute)
	v.SetDefault("charge_lock_wait", 5*time.Second)
	v.SetDefault("pix_cache_ttl", 15*time.Minute)
	v.SetDefault("app_timezone", "America/Sao_Paulo")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)
}

func (c *Config) validate() error {
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	// Register/undo may hit two gateway calls; the lock must survive both.
	if c.Charges.LockTTL < 3*c.Gateway.Timeout {
		return fmt.Errorf("CHARGE_LOCK_TTL (%s) must be at least 3x GATEWAY_TIMEOUT (%s)",
			c.Charges.LockTTL, c.Gateway.Timeout)
	}
	if _, err := c.Charges.Location(); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.Charges.Timezone, err)
	}
	return nil
}
