// Package config loads and hot-reloads the Core's configuration the way
// the teacher's go.mod stack implies: viper for layered file/env/flag
// resolution, pflag for the CLI surface, and fsnotify so a config file
// edit takes effect without a restart.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is every tunable named in SPEC_FULL.md §6.
type Config struct {
	ServiceName string `mapstructure:"service_name"`
	LocalDevice string `mapstructure:"local_device"`

	Relay struct {
		Strategy string   `mapstructure:"strategy"`
		Region   string   `mapstructure:"region"`
		Seeds    []string `mapstructure:"seeds"`
	} `mapstructure:"relay"`

	Health struct {
		PingCadence           time.Duration `mapstructure:"ping_cadence"`
		LatencyWarningMillis  int64         `mapstructure:"latency_warning_millis"`
		LatencyCriticalMillis int64         `mapstructure:"latency_critical_millis"`
		MissedPingsCritical   int           `mapstructure:"missed_pings_critical"`
	} `mapstructure:"health"`

	Outbound struct {
		MaxSize        int           `mapstructure:"max_size"`
		BackoffBase    time.Duration `mapstructure:"backoff_base"`
		BackoffMax     time.Duration `mapstructure:"backoff_max"`
		BreakerTripN   int           `mapstructure:"breaker_trip_n"`
		BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`
	} `mapstructure:"outbound"`

	Receipt struct {
		DebounceWindow time.Duration `mapstructure:"debounce_window"`
		SizeCap        int           `mapstructure:"size_cap"`
		MaxRetries     int           `mapstructure:"max_retries"`
	} `mapstructure:"receipt"`

	Sync struct {
		ConflictStrategy string `mapstructure:"conflict_strategy"`
	} `mapstructure:"sync"`

	AdminHTTP struct {
		ListenAddr string `mapstructure:"listen_addr"`
	} `mapstructure:"admin_http"`

	AMQP struct {
		URI string `mapstructure:"uri"`
	} `mapstructure:"amqp"`
}

// defaults mirrors every package-level constant this config overrides,
// keeping a single source of truth for production-ready fallback values.
func defaults(v *viper.Viper) {
	v.SetDefault("service_name", "solconnect-messaging-core")
	v.SetDefault("local_device", "")
	v.SetDefault("relay.strategy", "round_robin")
	v.SetDefault("relay.region", "")
	v.SetDefault("health.ping_cadence", 15*time.Second)
	v.SetDefault("health.latency_warning_millis", 300)
	v.SetDefault("health.latency_critical_millis", 800)
	v.SetDefault("health.missed_pings_critical", 3)
	v.SetDefault("outbound.max_size", 1000)
	v.SetDefault("outbound.backoff_base", 500*time.Millisecond)
	v.SetDefault("outbound.backoff_max", 60*time.Second)
	v.SetDefault("outbound.breaker_trip_n", 5)
	v.SetDefault("outbound.breaker_timeout", 30*time.Second)
	v.SetDefault("receipt.debounce_window", 500*time.Millisecond)
	v.SetDefault("receipt.size_cap", 50)
	v.SetDefault("receipt.max_retries", 3)
	v.SetDefault("sync.conflict_strategy", "vector_clock")
	v.SetDefault("admin_http.listen_addr", ":8091")
	v.SetDefault("amqp.uri", "")
}

// Load resolves configuration from, in ascending priority: defaults,
// configFile (if non-empty), environment variables prefixed SOLCONNECT_,
// then CLI flags already parsed into fs.
func Load(configFile string, fs *flag.FlagSet) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("solconnect")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// WatchReload re-unmarshals configFile into out whenever it changes on
// disk, logging failures rather than panicking so a malformed edit never
// takes the Core down.
func WatchReload(configFile string, out *Config, logger *slog.Logger) (*fsnotify.Watcher, error) {
	if configFile == "" {
		return nil, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := watcher.Add(configFile); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", configFile, err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloaded, err := Load(configFile, nil)
				if err != nil {
					logger.Error("config: reload failed, keeping previous config", "err", err)
					continue
				}
				*out = *reloaded
				logger.Info("config: reloaded", "file", configFile)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("config: watcher error", "err", err)
			}
		}
	}()

	return watcher, nil
}

// Flags registers the CLI surface Load binds against.
func Flags() *flag.FlagSet {
	fs := flag.NewFlagSet("solconnect-messaging-core", flag.ContinueOnError)
	fs.String("admin_http.listen_addr", ":8091", "admin HTTP surface listen address")
	fs.String("local_device", "", "this Core instance's local device id")
	return fs
}
