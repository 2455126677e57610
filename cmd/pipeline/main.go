// cmd/pipeline/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/datapipe/internal/archiver"
	"github.com/andresuchdata/datapipe/internal/cache"
	"github.com/andresuchdata/datapipe/internal/config"
	"github.com/andresuchdata/datapipe/internal/processor"
	"github.com/andresuchdata/datapipe/internal/repository/postgres"
	"github.com/andresuchdata/datapipe/internal/service"
	"github.com/andresuchdata/datapipe/internal/storage"
	"github.com/andresuchdata/datapipe/pkg/logger"
)

const incomingPrefix = "incoming/"

func main() {
	if err := godotenv.Load(".env"); err != nil {
		logger.Log.Debug().Err(err).Msg("could not load .env file")
	}

	app := &cli.App{
		Name:  "pipeline",
		Usage: "Process raw files and manage processed-store lifecycle",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "process",
				Usage: "Run the transform engine over raw files",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "key",
						Usage: "Raw object key to process (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Process every object under the incoming prefix",
					},
				},
				Action: runProcess,
			},
			{
				Name:  "sweep",
				Usage: "Archive processed objects older than the retention threshold",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "retention-days",
						Usage:   "Override the configured retention threshold",
						EnvVars: []string{"RETENTION_DAYS"},
					},
				},
				Action: runSweep,
			},
			{
				Name:   "stats",
				Usage:  "Print rolling counters and the last sweep report",
				Action: runStats,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("pipeline command failed")
	}
}

type deps struct {
	cfg     *config.Config
	stores  *storage.Stores
	service *service.PipelineService
	close   func()
}

func setup(ctx context.Context, retentionOverride int) (*deps, error) {
	cfg := config.Load()

	stores, err := storage.NewStores(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	statsCache, err := cache.NewStatsCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	closeFn := func() {}
	var runs *postgres.RunRepository
	if cfg.Database.Enabled {
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		closeFn = func() { db.Close() }

		runs = postgres.NewRunRepository(db)
		if err := runs.EnsureSchema(ctx); err != nil {
			closeFn()
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
	}

	retentionDays := cfg.Retention.RetentionDays
	if retentionOverride > 0 {
		retentionDays = retentionOverride
	}

	engine := processor.NewEngine(stores.Raw, stores.Processed, cfg.App.Environment, cfg.App.WorkerCount)
	sweeper := archiver.NewSweeper(stores.Processed, stores.Archive, retentionDays, cfg.Retention.SweepConcurrency)

	return &deps{
		cfg:     cfg,
		stores:  stores,
		service: service.NewPipelineService(engine, sweeper, statsCache, runs),
		close:   closeFn,
	}, nil
}

func runProcess(c *cli.Context) error {
	d, err := setup(c.Context, 0)
	if err != nil {
		return err
	}
	defer d.close()

	keys := c.StringSlice("key")
	if c.Bool("all") {
		err := d.stores.Raw.List(c.Context, incomingPrefix, func(info storage.ObjectInfo) error {
			keys = append(keys, info.Key)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to list incoming prefix: %w", err)
		}
	}
	if len(keys) == 0 {
		return cli.Exit("nothing to process: pass --key or --all", 1)
	}

	result := d.service.ProcessBatch(c.Context, keys)
	printJSON(result)

	if len(result.Failed) > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files failed", len(result.Failed), len(keys)), 1)
	}
	return nil
}

func runSweep(c *cli.Context) error {
	d, err := setup(c.Context, c.Int("retention-days"))
	if err != nil {
		return err
	}
	defer d.close()

	report, err := d.service.Sweep(c.Context)
	if report != nil {
		printJSON(report)
	}
	return err
}

func runStats(c *cli.Context) error {
	d, err := setup(c.Context, 0)
	if err != nil {
		return err
	}
	defer d.close()

	stats, err := d.service.Stats(c.Context)
	if err != nil {
		return err
	}
	printJSON(stats)
	return nil
}

func printJSON(v any) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Log.Error().Err(err).Msg("failed to encode output")
		return
	}
	fmt.Println(string(payload))
}
