package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/partybot/internal/adapters/discord"
	"github.com/bnema/partybot/internal/adapters/httpapi"
	"github.com/bnema/partybot/internal/application"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and run the party loops",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), app)
		},
	}
}

func runServe(parent context.Context, app *app) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := app.component("serve")
	cfg := app.cfg

	repo, err := app.openRepository(ctx)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Warn().Err(err).Msg("close store")
		}
	}()
	store := app.sessionStore(repo)

	token, err := app.resolveToken(ctx)
	if err != nil {
		return err
	}
	session, err := discord.NewSession(token)
	if err != nil {
		return err
	}

	actuator := discord.NewActuator(session, cfg.Actuator.Rate, cfg.Actuator.Burst)
	retry := app.actuatorRetry()
	signals := discord.NewSignalSource(app.component("signals"))
	teardown := application.NewTeardown(actuator, retry, application.LogAndContinue{}, app.metrics, app.component("teardown"))
	processor := application.NewMembershipProcessor(store, actuator, retry, cfg.Party.JoinMarker, app.metrics, app.component("membership"))
	reclaimer := application.NewReclaimer(store, teardown, app.clock, cfg.Reclaim.Interval, app.metrics, app.component("reclaim"))
	coordinator := application.NewCoordinator(processor, reclaimer, signals, cfg.Party.CollectWindow, app.metrics, app.component("coordinator"))
	service := application.NewPartyService(store, actuator, retry, teardown, coordinator, app.clock, app.partyConfig(), app.metrics, app.component("party"))

	router := discord.NewRouter(service, signals, session.State, discord.RouterConfig{
		Prefix:    cfg.Command.Prefix,
		Marker:    cfg.Party.JoinMarker,
		NoticeTTL: cfg.Party.NoticeTTL,
	}, app.component("router"))
	bot := discord.NewBot(session, router, signals, app.component("gateway"))

	api := httpapi.NewServer(application.NewQueries(store), app.metrics.Handler(), app.component("http"))
	server := api.NewHTTPServer(cfg.HTTP.Listen)

	if _, err := coordinator.Resume(ctx, store); err != nil {
		return fmt.Errorf("resume parties: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx)
	})
	g.Go(func() error {
		logger.Info().Str("listen", cfg.HTTP.Listen).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(server.Shutdown(shutdownCtx), coordinator.Shutdown(shutdownCtx))
	})

	err = g.Wait()
	logger.Info().Err(err).Msg("partybot stopped")
	return err
}
