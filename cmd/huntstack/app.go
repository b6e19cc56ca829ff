package main

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lox/huntstack/internal/api"
	"github.com/lox/huntstack/internal/config"
	"github.com/lox/huntstack/internal/ebird"
	"github.com/lox/huntstack/internal/hunt"
	"github.com/lox/huntstack/internal/ingest"
	"github.com/lox/huntstack/internal/migration"
	"github.com/lox/huntstack/internal/narrative"
	"github.com/lox/huntstack/internal/store"
	"github.com/lox/huntstack/internal/weather"
)

const storeWaitTimeout = 30 * time.Second

// app holds the wired services shared by the commands.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	store        store.Store
	weather      *weather.Service
	push         *migration.Service
	hunt         *hunt.Service
	observations *ebird.Service
	narrative    *narrative.Summarizer
}

// openStore opens the configured store. Postgres connections are retried
// with backoff for databases that start alongside the service.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Store, error) {
	if cfg.Driver == "sqlite" {
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "huntstack.db"
		}
		return store.NewSQLite(dsn)
	}

	var st store.Store
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = storeWaitTimeout
	err := backoff.RetryNotify(func() error {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, cfg.MaxConns)
		if err != nil {
			return err
		}
		st = pg
		return nil
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		logger.Warn("store not ready", zap.Duration("retry_in", next), zap.Error(err))
	})
	if err != nil {
		return nil, eris.Wrap(err, "store unreachable")
	}
	return st, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	clock := clockwork.NewRealClock()

	wc := weather.NewClient(weather.ClientOptions{
		BaseURL:       cfg.Weather.BaseURL,
		UserAgent:     cfg.Weather.UserAgent,
		Timeout:       cfg.Weather.Timeout,
		RatePerSecond: cfg.Weather.RatePerSecond,
	})
	signals := weather.NewSignalCache(clock, cfg.Weather.ForecastTTL, cfg.Weather.AlertsTTL)
	ws := weather.NewService(wc, signals, logger)

	push := migration.NewService(st, ws, clock, logger)
	huntSvc := hunt.NewService(st, push, ws, clock, logger)

	var observer ebird.Observer
	if cfg.EBird.APIKey != "" {
		observer = ebird.NewClient(ebird.ClientOptions{
			BaseURL: cfg.EBird.BaseURL,
			APIKey:  cfg.EBird.APIKey,
		})
	} else {
		logger.Info("ebird api key not set, observations disabled")
	}
	obs := ebird.NewService(observer, nil, ebird.ServiceOptions{
		RadiusKM: cfg.EBird.RadiusKM,
		DaysBack: cfg.EBird.DaysBack,
		Clock:    clock,
	}, logger)

	provider, err := narrative.New(narrative.Config{
		Provider:       cfg.LLM.Provider,
		OpenAIKey:      cfg.LLM.OpenAIAPIKey,
		OpenAIModel:    cfg.LLM.OpenAIModel,
		AnthropicKey:   cfg.LLM.AnthropicAPIKey,
		AnthropicModel: cfg.LLM.AnthropicModel,
		MaxTokens:      cfg.LLM.MaxTokens,
	})
	switch {
	case errors.Is(err, narrative.ErrDisabled):
		logger.Info("llm provider not set, summaries disabled")
	case err != nil:
		st.Close()
		return nil, err
	}
	summarizer := narrative.NewSummarizer(provider, huntSvc, clock, 0, logger)

	return &app{
		cfg:          cfg,
		logger:       logger,
		store:        st,
		weather:      ws,
		push:         push,
		hunt:         huntSvc,
		observations: obs,
		narrative:    summarizer,
	}, nil
}

func (a *app) server() *api.Server {
	return api.NewServer(api.Deps{
		Store:        a.store,
		Weather:      a.weather,
		Push:         a.push,
		Hunt:         a.hunt,
		Observations: a.observations,
		Narrative:    a.narrative,
	}, api.Options{
		Addr:            a.cfg.Server.Addr,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
	}, a.logger)
}

func (a *app) scheduler() *ingest.Scheduler {
	return ingest.NewScheduler(a.push, a.narrative, ingest.SchedulerOptions{
		States:          a.cfg.Scheduler.States,
		WarmInterval:    a.cfg.Scheduler.WarmInterval,
		SummaryInterval: a.cfg.Scheduler.SummaryInterval,
	}, a.logger)
}

func (a *app) close() {
	a.store.Close()
}
