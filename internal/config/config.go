package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Plc      PlcConfig      `mapstructure:"plc"`
	Testing  TestingConfig  `mapstructure:"testing"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv   string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// PlcConfig describes both controllers the bench talks to: the test
// rig ("tester") and the unit under test ("target"). Mode "sim" swaps
// both for the in-memory facade.
type PlcConfig struct {
	Mode           string            `mapstructure:"mode"` // "modbus" or "sim"
	Tester         PlcEndpointConfig `mapstructure:"tester"`
	Target         PlcEndpointConfig `mapstructure:"target"`
	Timeout        time.Duration     `mapstructure:"timeout"`
	MonitorEnabled bool              `mapstructure:"monitor_enabled"`
	MonitorPeriod  time.Duration     `mapstructure:"monitor_period"`
}

type PlcEndpointConfig struct {
	Address string `mapstructure:"address"`
	UnitID  int    `mapstructure:"unit_id"`
}

// TestingConfig holds the sequencer timing and sizing knobs.
type TestingConfig struct {
	SettleAfterWrite time.Duration `mapstructure:"settle_after_write"`
	SettleBetween    time.Duration `mapstructure:"settle_between"`
	WorkerMultiplier int           `mapstructure:"worker_multiplier"`
}

type CatalogConfig struct {
	RigCataloguePath string `mapstructure:"rig_catalogue_path"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	// Defaults setzen
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.shutdown_timeout", "30s")

	viper.SetDefault("plc.mode", "modbus")
	viper.SetDefault("plc.timeout", "1s")
	viper.SetDefault("plc.monitor_enabled", true)
	viper.SetDefault("plc.monitor_period", "5s")
	viper.SetDefault("plc.tester.unit_id", 1)
	viper.SetDefault("plc.target.unit_id", 1)

	viper.SetDefault("testing.settle_after_write", "3s")
	viper.SetDefault("testing.settle_between", "1s")
	viper.SetDefault("testing.worker_multiplier", 2)

	viper.SetDefault("catalog.rig_catalogue_path", "configs/rig_catalogue.yaml")

	// Auth Defaults
	viper.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	viper.SetDefault("auth.access_token_ttl", "60m")

	// Environment Variables automatisch binden (Viper Feature)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("OTB") // Environment Variables mit Prefix OTB_

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET" // Fallback
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development Fallback (MIT WARNING!)
		return "dev-secret-change-in-production-min-32-chars"
	}
	return secret
}
