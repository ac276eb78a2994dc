// Package config loads partybot settings from an optional TOML file and
// PARTYBOT_* environment variables through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/partybot/internal/domain"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	envPrefix  = "PARTYBOT"
	baseDir    = ".partybot"

	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendTOML   = "toml"
)

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Actuator ActuatorConfig `mapstructure:"actuator"`
	Reclaim  ReclaimConfig  `mapstructure:"reclaim"`
	Party    PartyConfig    `mapstructure:"party"`
	Command  CommandConfig  `mapstructure:"command"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Backend string       `mapstructure:"backend"`
	Redis   RedisConfig  `mapstructure:"redis"`
	SQLite  PathConfig   `mapstructure:"sqlite"`
	Badger  PathConfig   `mapstructure:"badger"`
	TOML    PathConfig   `mapstructure:"toml"`
	Retry   BackoffRetry `mapstructure:"retry"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type PathConfig struct {
	Path string `mapstructure:"path"`
}

type BackoffRetry struct {
	Attempts        uint          `mapstructure:"attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type ActuatorConfig struct {
	Retry FixedRetry `mapstructure:"retry"`
	Rate  float64    `mapstructure:"rate"`
	Burst int        `mapstructure:"burst"`
}

type FixedRetry struct {
	Attempts uint          `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

type ReclaimConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Countdown int           `mapstructure:"countdown"`
}

type PartyConfig struct {
	JoinMarker    string        `mapstructure:"join_marker"`
	CollectWindow time.Duration `mapstructure:"collect_window"`
	NoticeTTL     time.Duration `mapstructure:"notice_ttl"`
}

type CommandConfig struct {
	Prefix string `mapstructure:"prefix"`
}

type DiscordConfig struct {
	Token    string `mapstructure:"token"`
	TokenRef string `mapstructure:"token_ref"`
}

type SecretsConfig struct {
	Dir string `mapstructure:"dir"`
}

type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
}

// Load reads configuration into a Config. path may be empty, in which case
// ~/.partybot/config.toml is used when present.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}
	root := filepath.Join(home, baseDir)
	setDefaults(v, root)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(root)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, root string) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.redis.addr", "127.0.0.1:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "partybot:group:")
	v.SetDefault("store.sqlite.path", filepath.Join(root, "partybot.db"))
	v.SetDefault("store.badger.path", filepath.Join(root, "badger"))
	v.SetDefault("store.toml.path", filepath.Join(root, "groups.toml"))
	v.SetDefault("store.retry.attempts", 4)
	v.SetDefault("store.retry.initial_interval", 200*time.Millisecond)
	v.SetDefault("store.retry.max_interval", 2*time.Second)

	v.SetDefault("actuator.retry.attempts", 3)
	v.SetDefault("actuator.retry.delay", time.Second)
	v.SetDefault("actuator.rate", 5.0)
	v.SetDefault("actuator.burst", 5)

	v.SetDefault("reclaim.interval", 60*time.Second)
	v.SetDefault("reclaim.countdown", domain.DefaultCountdown)

	v.SetDefault("party.join_marker", domain.DefaultJoinMarker)
	v.SetDefault("party.collect_window", 6*time.Hour)
	v.SetDefault("party.notice_ttl", 10*time.Second)

	v.SetDefault("command.prefix", ">?")

	v.SetDefault("discord.token", "")
	v.SetDefault("discord.token_ref", "partybot/discord/token")

	v.SetDefault("secrets.dir", filepath.Join(root, "secrets"))

	v.SetDefault("http.listen", "127.0.0.1:9464")
}

func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis, BackendSQLite, BackendBadger, BackendTOML:
	default:
		return fmt.Errorf("unsupported store backend %q", c.Store.Backend)
	}
	if c.Store.Retry.Attempts == 0 {
		return errors.New("store.retry.attempts must be at least 1")
	}
	if c.Actuator.Retry.Attempts == 0 {
		return errors.New("actuator.retry.attempts must be at least 1")
	}
	if c.Reclaim.Interval < time.Second {
		return fmt.Errorf("reclaim.interval must be at least 1s, got %s", c.Reclaim.Interval)
	}
	if c.Reclaim.Countdown < 1 {
		return errors.New("reclaim.countdown must be at least 1")
	}
	if strings.TrimSpace(c.Party.JoinMarker) == "" {
		return errors.New("party.join_marker is empty")
	}
	if strings.TrimSpace(c.Command.Prefix) == "" {
		return errors.New("command.prefix is empty")
	}
	return nil
}
