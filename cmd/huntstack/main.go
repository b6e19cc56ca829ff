package main

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lox/huntstack/internal/config"
	"github.com/lox/huntstack/internal/ingest"
	"github.com/lox/huntstack/internal/store"
)

type CLI struct {
	Config  string `help:"Path to a YAML config file." type:"path" env:"HUNTSTACK_CONFIG"`
	EnvFile string `help:"Dotenv file loaded before configuration." default:".env" name:"env-file"`

	Serve        ServeCmd        `cmd:"" default:"1" help:"Run the HTTP API and background scheduler."`
	Migrate      MigrateCmd      `cmd:"" help:"Apply database migrations."`
	Seed         SeedCmd         `cmd:"" help:"Load reference data, seasons and survey counts."`
	PushFactors  PushFactorsCmd  `cmd:"" name:"push-factors" help:"Print push factors for states as JSON."`
	Observations ObservationsCmd `cmd:"" help:"Print aggregated eBird observations for a refuge."`
	Summary      SummaryCmd      `cmd:"" help:"Print the weekly LLM summary for a state."`
}

type ServeCmd struct {
	NoScheduler bool `help:"Disable the background scheduler." name:"no-scheduler"`
}

func (c *ServeCmd) Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server().Run(gctx)
	})
	if cfg.Scheduler.Enabled && !c.NoScheduler {
		g.Go(func() error {
			a.scheduler().Run(gctx)
			return nil
		})
	} else {
		logger.Info("scheduler disabled")
	}
	return g.Wait()
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("database migrated")
	return nil
}

type SeedCmd struct {
	File  string `help:"Seed YAML file. Defaults to the built-in data." type:"existingfile"`
	Force bool   `help:"Load even when validation reports issues."`
}

func (c *SeedCmd) Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	data, err := store.LoadSeed(c.File)
	if err != nil {
		return err
	}
	if issues := ingest.ValidateSeed(data, time.Now()); len(issues) > 0 {
		for _, issue := range issues {
			logger.Warn("seed issue", zap.String("issue", issue.String()))
		}
		if !c.Force {
			return eris.Errorf("seed data has %d issues, rerun with --force to load anyway", len(issues))
		}
	}

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	if err := store.Seed(ctx, st, data); err != nil {
		return err
	}
	logger.Info("seeded",
		zap.Int("states", len(data.States)),
		zap.Int("locations", len(data.Locations)),
		zap.Int("survey_counts", len(data.SurveyCounts)))
	return nil
}

type PushFactorsCmd struct {
	States []string `help:"State codes, comma separated. Empty means all." sep:","`
}

func (c *PushFactorsCmd) Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.push.PushFactors(ctx, c.States)
	if err != nil {
		return err
	}
	return printJSON(report)
}

type ObservationsCmd struct {
	Refuge string `help:"Location id." required:""`
}

func (c *ObservationsCmd) Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	loc, err := a.store.GetLocation(ctx, c.Refuge)
	if err != nil {
		return err
	}
	obs, err := a.observations.Observations(ctx, *loc)
	if err != nil {
		return err
	}
	return printJSON(obs)
}

type SummaryCmd struct {
	State string `help:"Two letter state code." required:""`
}

func (c *SummaryCmd) Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	sum, err := a.narrative.Refresh(ctx, strings.ToUpper(c.State))
	if err != nil {
		return err
	}
	return printJSON(sum)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("huntstack"),
		kong.Description("Waterfowl migration and hunting conditions service."),
		kong.UsageOnError(),
	)

	if err := godotenv.Load(cli.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		kctx.FatalIfErrorf(eris.Wrapf(err, "load %s", cli.EnvFile))
	}

	cfg, err := config.Load(cli.Config)
	kctx.FatalIfErrorf(err)
	kctx.FatalIfErrorf(cfg.Validate())

	logger, err := config.NewLogger(cfg.Log)
	kctx.FatalIfErrorf(err)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(cfg, logger); err != nil {
		logger.Error("command failed", zap.String("command", kctx.Command()), zap.Error(err))
		stop()
		logger.Sync()
		os.Exit(1)
	}
}
