package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/symmetri/internal/catalog"
	"github.com/angelmondragon/symmetri/internal/llm"
	"github.com/angelmondragon/symmetri/internal/schemaanalyzer"
	"github.com/angelmondragon/symmetri/pkg/bigquery"
	"github.com/angelmondragon/symmetri/pkg/redis"
)

type analyzeOptions struct {
	llm         string
	model       string
	catalog     string
	orgCode     string
	tables      []string
	withSamples bool
	concurrency int
}

func newAnalyzeSchemaCommand(a *app) *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze-schema",
		Short: "Describe every warehouse table with an LLM and store it for an organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("catalog") {
				opts.catalog = a.cfg.Analyzer.Catalog
			}
			return a.analyzeSchema(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.llm, "llm", "l", "", fmt.Sprintf("llm provider: %s", strings.Join(llm.Providers(), "|")))
	flags.StringVarP(&opts.model, "model", "m", "", "model of the llm provider")
	flags.StringVar(&opts.catalog, "catalog", "", "warehouse catalog: bigquery|postgres")
	flags.StringVarP(&opts.orgCode, "org-code", "o", "", "organization code")
	flags.StringSliceVar(&opts.tables, "tables", nil, "only analyze these tables")
	flags.BoolVar(&opts.withSamples, "with-samples", false, "attach sample values to text columns")
	flags.IntVar(&opts.concurrency, "concurrency", 4, "tables analyzed at once")
	_ = cmd.MarkFlagRequired("llm")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("org-code")
	return cmd
}

func (a *app) analyzeSchema(ctx context.Context, out io.Writer, opts analyzeOptions) error {
	res := &resources{}
	defer func() {
		if err := res.Close(); err != nil {
			a.logg.Warn(a.logg.WithField(ctx, "error", err.Error()), "analyze.teardown.failed")
		}
	}()

	model, err := llm.New(ctx, opts.llm, opts.model, a.cfg.LLM)
	if err != nil {
		return err
	}

	client, err := a.openDB(ctx, res)
	if err != nil {
		return err
	}

	deps := catalog.Deps{DB: client, Schema: a.cfg.DB.Schema}
	if strings.EqualFold(strings.TrimSpace(opts.catalog), catalog.ProviderBigQuery) {
		bq, err := bigquery.NewClient(ctx, a.cfg.GCP, a.cfg.BigQuery, a.logg)
		if err != nil {
			return err
		}
		res.add(bq.Close)
		deps.BigQuery = bq
		deps.Project = bq.ProjectID()
		deps.Dataset = bq.DatasetID()
	}
	provider, err := catalog.NewProvider(opts.catalog, deps)
	if err != nil {
		return err
	}

	orgs, err := a.organizations(client)
	if err != nil {
		return err
	}
	store, err := schemaanalyzer.NewService(schemaanalyzer.NewRepository(client.DB()), client, a.logg)
	if err != nil {
		return err
	}
	analyzer, err := schemaanalyzer.NewLLMAnalyzer(model)
	if err != nil {
		return err
	}

	params := schemaanalyzer.OrchestratorParams{
		Logger:        a.logg,
		Catalog:       provider,
		Analyzer:      analyzer,
		Organizations: orgs,
		Store:         store,
		CacheTTL:      a.cfg.Analyzer.CacheTTL,
		ModelID:       model.Name() + "/" + model.Model(),
		WithSamples:   opts.withSamples,
		Concurrency:   opts.concurrency,
	}
	if a.cfg.Redis.Configured() {
		cache, err := redis.New(ctx, a.cfg.Redis, a.logg)
		if err != nil {
			return err
		}
		res.add(cache.Close)
		params.Cache = cache
	}

	orch, err := schemaanalyzer.NewOrchestrator(params)
	if err != nil {
		return err
	}
	result, err := orch.AnalyzeSchema(ctx, opts.orgCode, opts.tables...)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(result))
	for name := range result {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(out, result[name].String())
	}
	return nil
}
