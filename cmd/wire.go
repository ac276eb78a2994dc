package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/partybot/internal/adapters/discord"
	statusadapter "github.com/bnema/partybot/internal/adapters/render/status"
	badgerrepo "github.com/bnema/partybot/internal/adapters/repo/badger"
	memoryrepo "github.com/bnema/partybot/internal/adapters/repo/memory"
	redisrepo "github.com/bnema/partybot/internal/adapters/repo/redis"
	sqliterepo "github.com/bnema/partybot/internal/adapters/repo/sqlite"
	tomlrepo "github.com/bnema/partybot/internal/adapters/repo/toml"
	chainstore "github.com/bnema/partybot/internal/adapters/secrets/chain"
	"github.com/bnema/partybot/internal/application"
	"github.com/bnema/partybot/internal/config"
	"github.com/bnema/partybot/internal/domain"
	applog "github.com/bnema/partybot/internal/log"
	"github.com/bnema/partybot/internal/metrics"
	"github.com/bnema/partybot/internal/ports"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

var errTokenMissing = errors.New("discord bot token is not configured")

type app struct {
	cfg            config.Config
	viper          *viper.Viper
	logger         zerolog.Logger
	metrics        *metrics.Collector
	secrets        ports.SecretStore
	clock          ports.Clock
	statusRenderer func([]application.GroupView, statusadapter.RenderOptions) (string, error)
}

func (a *app) wire(configPath string) error {
	v := viper.New()
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return err
	}

	secrets, err := chainstore.NewPassFirstWithFileFallback(cfg.Secrets.Dir)
	if err != nil {
		return fmt.Errorf("wire secret store chain: %w", err)
	}

	*a = app{
		cfg:            cfg,
		viper:          v,
		logger:         applog.Configure(applog.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}),
		metrics:        metrics.New(),
		secrets:        secrets,
		clock:          ports.SystemClock{},
		statusRenderer: statusadapter.Render,
	}
	return nil
}

func (a *app) component(name string) zerolog.Logger {
	return a.logger.With().Str("component", name).Logger()
}

// openRepository opens the configured group document backend. The caller
// closes it.
func (a *app) openRepository(ctx context.Context) (ports.GroupRepository, error) {
	store := a.cfg.Store
	switch store.Backend {
	case config.BackendMemory:
		return memoryrepo.NewRepository(), nil
	case config.BackendRedis:
		return redisrepo.Open(ctx, redisrepo.Options{
			Addr:     store.Redis.Addr,
			Password: store.Redis.Password,
			DB:       store.Redis.DB,
			Prefix:   store.Redis.Prefix,
		}, a.component("redis"))
	case config.BackendSQLite:
		if err := ensureParent(store.SQLite.Path); err != nil {
			return nil, err
		}
		return sqliterepo.Open(ctx, store.SQLite.Path, sqliterepo.DefaultConfig())
	case config.BackendBadger:
		return badgerrepo.Open(store.Badger.Path)
	case config.BackendTOML:
		return tomlrepo.NewRepository(a.viper)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", store.Backend)
	}
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

func (a *app) sessionStore(repo ports.GroupRepository) *application.SessionStore {
	retry := application.StoreRetry{
		Attempts:        a.cfg.Store.Retry.Attempts,
		InitialInterval: a.cfg.Store.Retry.InitialInterval,
		MaxInterval:     a.cfg.Store.Retry.MaxInterval,
	}
	return application.NewSessionStore(repo, retry, a.clock, a.metrics, a.component("store"))
}

func (a *app) actuatorRetry() application.ActuatorRetry {
	return application.ActuatorRetry{
		Attempts: a.cfg.Actuator.Retry.Attempts,
		Delay:    a.cfg.Actuator.Retry.Delay,
		Metrics:  a.metrics,
	}
}

func (a *app) tokenRef() string {
	if a.cfg.Discord.TokenRef != "" {
		return a.cfg.Discord.TokenRef
	}
	return ports.DefaultTokenRef
}

// resolveToken prefers an explicit discord.token and falls back to the
// secret store.
func (a *app) resolveToken(ctx context.Context) (string, error) {
	if a.cfg.Discord.Token != "" {
		return a.cfg.Discord.Token, nil
	}
	token, err := a.secrets.Get(ctx, a.tokenRef())
	if errors.Is(err, domain.ErrSecretNotFound) {
		return "", fmt.Errorf("%w: run `partybot token set` or export PARTYBOT_DISCORD_TOKEN", errTokenMissing)
	}
	if err != nil {
		return "", fmt.Errorf("load discord token: %w", err)
	}
	return token, nil
}

// adminService builds a party service that talks to Discord over REST only.
// It runs no party loops; a bot process notices removals on its next tick.
func (a *app) adminService(ctx context.Context, store *application.SessionStore) (*application.PartyService, error) {
	token, err := a.resolveToken(ctx)
	if err != nil {
		return nil, err
	}
	session, err := discord.NewSession(token)
	if err != nil {
		return nil, err
	}

	actuator := discord.NewActuator(session, a.cfg.Actuator.Rate, a.cfg.Actuator.Burst)
	retry := a.actuatorRetry()
	teardown := application.NewTeardown(actuator, retry, application.LogAndContinue{}, a.metrics, a.component("teardown"))
	return application.NewPartyService(store, actuator, retry, teardown, nil, a.clock, a.partyConfig(), a.metrics, a.component("party")), nil
}

func (a *app) partyConfig() application.PartyServiceConfig {
	return application.PartyServiceConfig{
		Countdown: a.cfg.Reclaim.Countdown,
		Marker:    a.cfg.Party.JoinMarker,
	}
}
