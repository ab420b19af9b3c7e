// Package config loads kvq settings from defaults, an optional config file
// and KVQ_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. KVQ_HTTP_ADDR.
const EnvPrefix = "KVQ"

type Config struct {
	Storage Storage `mapstructure:"storage"`
	Device  Device  `mapstructure:"device"`
	HTTP    HTTP    `mapstructure:"http"`
	Log     Log     `mapstructure:"log"`
	Query   Query   `mapstructure:"query"`
	Notify  Notify  `mapstructure:"notify"`
	Metrics Metrics `mapstructure:"metrics"`
}

type Storage struct {
	DataDir    string `mapstructure:"data_dir" default:"./data"`
	InMemory   bool   `mapstructure:"in_memory" default:"false"`
	SyncWrites bool   `mapstructure:"sync_writes" default:"false"`
}

// Device identifies this store; local writes live under "<ID>/".
type Device struct {
	ID string `mapstructure:"id" default:"local"`
}

type HTTP struct {
	Addr string `mapstructure:"addr" default:":8080"`
}

type Log struct {
	Level  string `mapstructure:"level" default:"info"`
	Format string `mapstructure:"format" default:"json"`
}

type Query struct {
	PlanCacheSize int `mapstructure:"plan_cache_size" default:"256"`
}

type Notify struct {
	Workers int `mapstructure:"workers" default:"16"`
}

type Metrics struct {
	Enabled bool `mapstructure:"enabled" default:"true"`
}

// keys lists every setting so environment overrides apply even when no
// config file mentions them.
var keys = []string{
	"storage.data_dir",
	"storage.in_memory",
	"storage.sync_writes",
	"device.id",
	"http.addr",
	"log.level",
	"log.format",
	"query.plan_cache_size",
	"notify.workers",
	"metrics.enabled",
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config: bad default tags: %v", err))
	}
	return cfg
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment variables are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	return load(v, path)
}

// LoadWith is Load on a caller-supplied viper instance, used by the CLI to
// layer bound flags on top.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	return load(v, path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	base := Default()
	v.SetDefault("storage.data_dir", base.Storage.DataDir)
	v.SetDefault("storage.in_memory", base.Storage.InMemory)
	v.SetDefault("storage.sync_writes", base.Storage.SyncWrites)
	v.SetDefault("device.id", base.Device.ID)
	v.SetDefault("http.addr", base.HTTP.Addr)
	v.SetDefault("log.level", base.Log.Level)
	v.SetDefault("log.format", base.Log.Format)
	v.SetDefault("query.plan_cache_size", base.Query.PlanCacheSize)
	v.SetDefault("notify.workers", base.Notify.Workers)
	v.SetDefault("metrics.enabled", base.Metrics.Enabled)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the store cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Device.ID) == "" {
		errs = append(errs, errors.New("device.id must not be empty"))
	}
	if strings.Contains(c.Device.ID, "/") {
		errs = append(errs, errors.New("device.id must not contain '/'"))
	}
	if !c.Storage.InMemory && c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is required unless storage.in_memory is set"))
	}
	if c.Query.PlanCacheSize <= 0 {
		errs = append(errs, errors.New("query.plan_cache_size must be positive"))
	}
	if c.Notify.Workers <= 0 {
		errs = append(errs, errors.New("notify.workers must be positive"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
