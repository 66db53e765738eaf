package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration.
type Config struct {
	DataPath    string   `mapstructure:"data_path" yaml:"data_path"`
	ListenAddr  string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	LogLevel    string   `mapstructure:"log_level" yaml:"log_level"`
	LogFormat   string   `mapstructure:"log_format" yaml:"log_format"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`

	// Per-client request rate; 0 disables the limiter.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`

	DefaultBins     int `mapstructure:"default_bins" yaml:"default_bins"`
	ShutdownTimeout int `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		DataPath:        "data_stunting.csv",
		ListenAddr:      ":8080",
		LogLevel:        "info",
		CORSOrigins:     []string{"*"},
		RateBurst:       20,
		DefaultBins:     20,
		ShutdownTimeout: 10,
	}
}

// Save writes the configuration as yaml to path, creating parent directories.
func Save(c *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Flags are applied by the caller.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STUNTING")
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("data_path", d.DataPath)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("cors_origins", d.CORSOrigins)
	v.SetDefault("rate_limit", d.RateLimit)
	v.SetDefault("rate_burst", d.RateBurst)
	v.SetDefault("default_bins", d.DefaultBins)
	v.SetDefault("shutdown_timeout_sec", d.ShutdownTimeout)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("dashboard")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
