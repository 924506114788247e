package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/symmetri/internal/datagen"
	"github.com/angelmondragon/symmetri/internal/warehouse"
	"github.com/angelmondragon/symmetri/pkg/bigquery"
	"github.com/angelmondragon/symmetri/pkg/metrics"
	"github.com/angelmondragon/symmetri/pkg/pubsub"
	"github.com/angelmondragon/symmetri/pkg/storage/gcs"
)

type generateOptions struct {
	configPath  string
	configDir   string
	outputDir   string
	seed        uint64
	warehouse   string
	parallelism int
}

func newGenerateDataCommand(a *app) *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate-data",
		Short: "Generate the synthetic datasets and load them into the warehouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if !flags.Changed("config-dir") {
				opts.configDir = a.cfg.Generator.ConfigDir
			}
			if !flags.Changed("output-dir") {
				opts.outputDir = a.cfg.Generator.OutputDir
			}
			if !flags.Changed("seed") {
				opts.seed = a.cfg.Generator.Seed
			}
			if !flags.Changed("warehouse") {
				opts.warehouse = a.cfg.Generator.Warehouse
			}
			if !flags.Changed("parallelism") {
				opts.parallelism = a.cfg.Generator.Parallelism
			}
			return a.generateData(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "config.yaml", "generator document, relative to --config-dir")
	flags.StringVar(&opts.configDir, "config-dir", "", "directory holding the generator documents")
	flags.StringVar(&opts.outputDir, "output-dir", "", "directory for the exported table files")
	flags.Uint64Var(&opts.seed, "seed", 0, "random seed; equal seeds produce equal datasets")
	flags.StringVar(&opts.warehouse, "warehouse", "", "warehouse driver: none|bigquery|postgres")
	flags.IntVar(&opts.parallelism, "parallelism", 0, "concurrent generation batches")
	return cmd
}

func (a *app) generateData(ctx context.Context, out io.Writer, opts generateOptions) error {
	res := &resources{}
	defer func() {
		if cerr := res.Close(); cerr != nil {
			a.logg.Warn(a.logg.WithField(ctx, "error", cerr.Error()), "generate.teardown.failed")
		}
	}()

	loader, err := a.warehouseLoader(ctx, res, opts.warehouse)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	params := datagen.ServiceParams{
		Logger:      a.logg,
		Warehouse:   loader,
		Metrics:     metrics.NewGeneratorMetrics(registry),
		ConfigPath:  opts.configPath,
		ConfigDir:   opts.configDir,
		OutputDir:   opts.outputDir,
		Seed:        opts.seed,
		Parallelism: opts.parallelism,
	}

	if a.cfg.GCS.BucketName != "" {
		storage, err := gcs.NewClient(ctx, a.cfg.GCS, a.cfg.GCP, a.logg)
		if err != nil {
			return err
		}
		res.add(storage.Close)
		params.Uploader = storage.BucketHandle(storage.DefaultBucket())
		params.ObjectName = storage.ObjectName
	}

	if a.cfg.PubSub.DatasetTopic != "" {
		publisher, err := pubsub.NewClient(ctx, a.cfg.GCP, a.cfg.PubSub, a.logg)
		if err != nil {
			return err
		}
		res.add(publisher.Close)
		params.Notifier = publisher
	}

	svc, err := datagen.NewService(params)
	if err != nil {
		return err
	}

	summary, runErr := svc.Run(ctx)
	if err := metrics.Push(ctx, a.cfg.Metrics, registry); err != nil {
		a.logg.Warn(a.logg.WithField(ctx, "error", err.Error()), "metrics.push.failed")
	}
	if runErr != nil {
		return runErr
	}

	printSummary(out, summary)
	return nil
}

func (a *app) warehouseLoader(ctx context.Context, res *resources, name string) (warehouse.Loader, error) {
	driver, err := warehouse.ParseDriver(name)
	if err != nil {
		return nil, err
	}

	switch driver {
	case warehouse.DriverBigQuery:
		client, err := bigquery.NewClient(ctx, a.cfg.GCP, a.cfg.BigQuery, a.logg)
		if err != nil {
			return nil, err
		}
		res.add(client.Close)
		return warehouse.NewBigQuery(client, a.logg), nil
	case warehouse.DriverPostgres:
		client, err := a.openDB(ctx, res)
		if err != nil {
			return nil, err
		}
		return warehouse.NewPostgres(client, a.cfg.Generator.LoadBatch, a.logg), nil
	default:
		return warehouse.Noop{}, nil
	}
}

func printSummary(out io.Writer, s *datagen.Summary) {
	fmt.Fprintf(out, "seed: %d (%s)\n", s.Seed, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "pools: crm=%d website=%d data_provider=%d crm_with_transactions=%d website_with_transactions=%d\n",
		s.Pools.CRM, s.Pools.Website, s.Pools.DataProvider, s.Pools.CRMWithTransactions, s.Pools.WebsiteWithTransactions)
	fmt.Fprintf(out, "overlaps: crm/website=%d crm/data_provider=%d website/data_provider=%d data_provider_website_only=%d all=%d\n",
		s.Overlaps.CRMWebsite, s.Overlaps.CRMDataProvider, s.Overlaps.WebsiteDataProvider,
		s.Overlaps.DataProviderWebsiteOnly, s.Overlaps.CRMWebsiteDataProvider)
	for _, t := range s.Tables {
		location := t.Path
		if t.URI != "" {
			location = t.URI
		}
		fmt.Fprintf(out, "  %-28s %9d rows  %s\n", t.Name, t.Rows, location)
	}
}
