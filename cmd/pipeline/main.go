package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ghg-data-pipeline/internal/api"
	"ghg-data-pipeline/internal/api/handler"
	"ghg-data-pipeline/internal/config"
	"ghg-data-pipeline/internal/geo"
	"ghg-data-pipeline/internal/metrics"
	"ghg-data-pipeline/internal/model"
	"ghg-data-pipeline/internal/pipeline"
	"ghg-data-pipeline/internal/store"
	"ghg-data-pipeline/pkg/logging"
	"ghg-data-pipeline/pkg/router"

	"github.com/joho/godotenv"
)

// @title GHG Data Pipeline API
// @version 1.0
// @description Validation, metric derivation and hierarchical aggregation for emissions, EPC and geography datasets.
// @BasePath /api/v1
func main() {
	// A missing .env is fine; real environment variables still apply.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	logger := logging.NewStructuredLogger("ghg-data-pipeline", cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", nil, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.StructuredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	st, err := store.OpenWithRetry(ctx, cfg.Database.Driver, cfg.Database.DSN, store.DefaultRetryConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	lookup, err := loadLookup(ctx, cfg.Geography, st, logger)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger.WithFields(logging.Fields{"component": "pipeline"})),
		pipeline.WithValidationWorkers(cfg.Workers.Validation),
		pipeline.WithAggregationWorkers(cfg.Workers.Aggregation),
		pipeline.WithThresholds(pipeline.Thresholds{
			NullRate: &cfg.Validation.NullRateThreshold,
			OutlierK: &cfg.Validation.OutlierK,
			Strict:   &cfg.Validation.Strict,
		}),
	}
	if cfg.Geography.TaxonomyFile != "" {
		data, err := os.ReadFile(cfg.Geography.TaxonomyFile)
		if err != nil {
			return fmt.Errorf("failed to read sector taxonomy: %w", err)
		}
		taxonomy, err := pipeline.ParseTaxonomy(data)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithTaxonomy(taxonomy))
	}
	p := pipeline.New(lookup, opts...)

	m := metrics.NewCollector("ghg")
	r := router.New(logger.WithFields(logging.Fields{"component": "http"}))
	api.RegisterRoutes(r, handler.NewPipelineHandler(p, st, m, logger), m)

	errc := make(chan error, 1)
	go func() { errc <- r.Start(cfg.Server.Addr()) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// loadLookup seeds the lookup table from CSV when configured, validates it as a
// geography_lookup batch and builds the hierarchy. A missing table means the server
// runs without geography resolution.
func loadLookup(ctx context.Context, cfg config.GeographyConfig, st *store.Store, logger *logging.StructuredLogger) (*geo.Lookup, error) {
	if cfg.LookupCSV != "" {
		seed, err := store.ReadCSVFile(cfg.LookupCSV, geo.LookupColumns)
		if err != nil {
			return nil, err
		}
		if err := st.ReplaceTable(ctx, cfg.LookupTable, seed); err != nil {
			return nil, err
		}
		logger.Info("lookup table seeded", logging.Fields{"table": cfg.LookupTable, "rows": seed.Len()})
	}

	query := "SELECT child_code, child_level, parent_code, parent_level FROM " + cfg.LookupTable
	tbl, err := st.LoadTable(ctx, query, geo.LookupColumns)
	if err != nil {
		logger.Warn("no geography lookup loaded", logging.Fields{"table": cfg.LookupTable, "reason": err.Error()})
		return nil, nil
	}

	report, err := pipeline.New(nil).Validate(pipeline.RunRequest{Kind: model.KindGeographyLookup, Table: tbl})
	if err != nil {
		return nil, err
	}
	if !report.Passed {
		return nil, model.ConfigErrorf("load_lookup", "lookup table %s failed validation: %d error(s)",
			cfg.LookupTable, report.Summary.Errors)
	}

	lookup, err := geo.NewLookup(tbl)
	if err != nil {
		return nil, err
	}
	logger.Info("geography lookup loaded", logging.Fields{"table": cfg.LookupTable, "edges": lookup.Len()})
	return lookup, nil
}
