// Package config loads dashboard-backend settings from an optional YAML
// file overlaid with environment variables (BILIFEED_SERVER_LISTEN, ...).
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Mode         string        `mapstructure:"mode"` // gin mode: debug | release
}

type UpstreamConfig struct {
	// Credential is the opaque session token (SESSDATA). Empty runs in
	// anonymous mode with tighter upstream rate limits.
	Credential     string        `mapstructure:"credential"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	RetryableCodes []int         `mapstructure:"retryable_codes"`
	AuthCodes      []int         `mapstructure:"auth_codes"`
	KeyTTL         time.Duration `mapstructure:"key_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type CacheConfig struct {
	// Backend: "sqlite" (default), "redis", or "memory".
	Backend     string        `mapstructure:"backend"`
	Path        string        `mapstructure:"path"`      // sqlite file
	RedisURL    string        `mapstructure:"redis_url"` // redis://...
	ArtifactTTL time.Duration `mapstructure:"artifact_ttl"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug | info | warn | error
}

// Load reads the optional config file at path ("" skips it), overlays
// environment variables, and applies defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.listen", ":8787")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.mode", "release")

	// Every key needs a default (even an empty one): AutomaticEnv only
	// surfaces env vars for keys viper already knows about, so a key
	// without a default would make its env override a silent no-op.
	v.SetDefault("upstream.credential", "")
	v.SetDefault("upstream.min_interval", 500*time.Millisecond)
	v.SetDefault("upstream.max_retries", 2)
	v.SetDefault("upstream.base_delay", time.Second)
	v.SetDefault("upstream.retryable_codes", []int{-799, -352, -503, -412})
	v.SetDefault("upstream.auth_codes", []int{-101, -111})
	v.SetDefault("upstream.key_ttl", time.Hour)
	v.SetDefault("upstream.request_timeout", 15*time.Second)

	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.path", "bilifeed.db")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.artifact_ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")

	// BILIFEED_UPSTREAM_CREDENTIAL -> upstream.credential
	v.SetEnvPrefix("bilifeed")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
