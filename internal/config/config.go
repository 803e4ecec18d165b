package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Account       string
	PoolRoot      string
	DBPath        string
	PGDSN         string
	Period        time.Duration
	HTTPTimeout   time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	Cursor        string
	CursorEnabled bool
	Listen        string
	OutDir        string
	LogLevel      string
}

// Load merges config file, environment variables, and flags into Config.
// Environment variables use the POOLWATCH_ prefix with dashes mapped to
// underscores (POOLWATCH_POOL_ROOT, POOLWATCH_ACCOUNT, ...).
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("pool-root", "https://ocean.xyz")
	v.SetDefault("db", "./data/pool.db")
	v.SetDefault("period", 10*time.Minute)
	v.SetDefault("http-timeout", 30*time.Second)
	v.SetDefault("max-retries", 2)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("cursor", "./data/cursor.json")
	v.SetDefault("cursor-enabled", true)
	v.SetDefault("listen", ":8080")
	v.SetDefault("out-dir", "./data")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Account:       v.GetString("account"),
		PoolRoot:      v.GetString("pool-root"),
		DBPath:        v.GetString("db"),
		PGDSN:         v.GetString("pg-dsn"),
		Period:        v.GetDuration("period"),
		HTTPTimeout:   v.GetDuration("http-timeout"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		Cursor:        v.GetString("cursor"),
		CursorEnabled: v.GetBool("cursor-enabled"),
		Listen:        v.GetString("listen"),
		OutDir:        v.GetString("out-dir"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}
