package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"affiliateflow/config"
	"affiliateflow/internal/bitget"
	"affiliateflow/internal/bronze"
	"affiliateflow/internal/checkpoint"
	"affiliateflow/internal/dashboard"
	"affiliateflow/internal/extract"
	"affiliateflow/internal/warehouse"
	"affiliateflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	affiliateID := flag.String("affiliate", "", "Run for one affiliate only")
	clientID := flag.String("client", "", "Scope windowed extraction to one client")
	startRaw := flag.String("start", "", "Backfill window start (RFC3339 or epoch millis)")
	endRaw := flag.String("end", "", "Backfill window end (RFC3339 or epoch millis)")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "etl"
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if cfg.Logging.CloudWatchEnabled {
		logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.Logging.MetricsNamespace)
	}

	log.WithFields(logger.Fields{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
		"command": command,
	}).Info("starting affiliateflow")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts, err := runOptions(*clientID, *startRaw, *endRaw)
	if err != nil {
		log.WithError(err).Error("invalid run options")
		os.Exit(1)
	}

	switch command {
	case "etl":
		err = runETL(ctx, cfg, *affiliateID, opts)
	case "silver":
		err = withWarehouse(ctx, cfg, func(db *warehouse.DB) error {
			return db.RunSilver(ctx)
		})
	case "gold":
		err = withWarehouse(ctx, cfg, func(db *warehouse.DB) error {
			return db.RunGold(ctx)
		})
	case "dashboard":
		err = runDashboard(ctx, cfg)
	case "full":
		err = runETL(ctx, cfg, *affiliateID, opts)
		if err == nil {
			err = withWarehouse(ctx, cfg, func(db *warehouse.DB) error {
				if serr := db.RunSilver(ctx); serr != nil {
					return serr
				}
				return db.RunGold(ctx)
			})
		}
	default:
		log.WithFields(logger.Fields{"command": command}).Error("unknown command")
		os.Exit(2)
	}

	if err != nil {
		log.WithError(err).Error("run failed")
		os.Exit(1)
	}
	log.Info("affiliateflow finished")
}

// runETL extracts every configured affiliate (or one, when scoped). One
// affiliate's failure never blocks the others; the process still exits
// non-zero if any failed.
func runETL(ctx context.Context, cfg *config.Config, affiliateID string, opts extract.Options) error {
	log := logger.GetLogger()

	affiliates := cfg.Affiliates
	if affiliateID != "" {
		affiliates = nil
		for _, aff := range cfg.Affiliates {
			if aff.ID == affiliateID {
				affiliates = append(affiliates, aff)
			}
		}
		if len(affiliates) == 0 {
			return fmt.Errorf("affiliate %q is not configured", affiliateID)
		}
	}
	if len(affiliates) == 0 {
		return fmt.Errorf("no affiliates configured; set BITGET_AFFILIATE_IDS")
	}

	sinkOpts := []bronze.Option{}
	var db *warehouse.DB
	if cfg.Database.Enabled {
		var err error
		db, err = warehouse.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.EnsureBronzeTables(ctx); err != nil {
			return err
		}
		sinkOpts = append(sinkOpts, bronze.WithUpserter(db))
	}
	if cfg.Storage.S3.Enabled {
		archiver, err := bronze.NewS3Archiver(cfg)
		if err != nil {
			return err
		}
		sinkOpts = append(sinkOpts, bronze.WithArchiver(archiver))
	}
	if cfg.Storage.Kafka.Enabled {
		publisher, err := bronze.NewKafkaPublisher(cfg)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinkOpts = append(sinkOpts, bronze.WithPublisher(publisher))
	}

	client := bitget.NewClient(cfg)
	sink := bronze.NewSink(cfg.Bronze.Dir, sinkOpts...)
	store := checkpoint.NewStore(cfg.ETL.CheckpointDir)
	extractor := extract.New(client, sink, store, cfg.ETL)

	failed := 0
	for _, aff := range affiliates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := extractor.RunETL(ctx, aff.ID, opts); err != nil {
			log.WithComponent("main").WithFields(logger.Fields{
				"affiliate_id": aff.ID,
			}).WithError(err).Error("affiliate extraction failed")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d affiliates failed", failed, len(affiliates))
	}
	return nil
}

func withWarehouse(ctx context.Context, cfg *config.Config, fn func(*warehouse.DB) error) error {
	if !cfg.Database.Enabled {
		return fmt.Errorf("database is not enabled in configuration")
	}
	db, err := warehouse.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.EnsureBronzeTables(ctx); err != nil {
		return err
	}
	return fn(db)
}

func runDashboard(ctx context.Context, cfg *config.Config) error {
	if !cfg.Dashboard.Enabled {
		return fmt.Errorf("dashboard is not enabled in configuration")
	}
	return withWarehouse(ctx, cfg, func(db *warehouse.DB) error {
		srv := dashboard.NewServer(cfg.Dashboard, db, logger.GetLogger())
		return srv.Run(ctx)
	})
}

func runOptions(clientID, startRaw, endRaw string) (extract.Options, error) {
	opts := extract.Options{ClientID: clientID}
	var err error
	if opts.Start, err = parseTimestamp(startRaw); err != nil {
		return opts, fmt.Errorf("invalid -start: %w", err)
	}
	if opts.End, err = parseTimestamp(endRaw); err != nil {
		return opts, fmt.Errorf("invalid -end: %w", err)
	}
	if !opts.Start.IsZero() && !opts.End.IsZero() && !opts.End.After(opts.Start) {
		return opts, fmt.Errorf("-start must be before -end")
	}
	return opts, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
