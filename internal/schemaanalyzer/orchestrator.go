package schemaanalyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/symmetri/internal/catalog"
	"github.com/angelmondragon/symmetri/pkg/db/models"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
	"github.com/angelmondragon/symmetri/pkg/redis"
)

// OrganizationLookup resolves organizations by code.
type OrganizationLookup interface {
	GetByCode(ctx context.Context, code string) (*models.Organization, error)
}

type OrchestratorParams struct {
	Logger        *logger.Logger
	Catalog       catalog.Provider
	Analyzer      TableAnalyzer
	Organizations OrganizationLookup
	Store         Service

	// Cache is optional. Analyses are keyed by ModelID and the table definition.
	Cache    redis.Cache
	CacheTTL time.Duration
	ModelID  string

	// WithSamples attaches up to SampleSize sample values per column.
	WithSamples bool
	SampleSize  int
	Concurrency int
}

// Orchestrator analyzes a warehouse schema and stores the result for an
// organization.
type Orchestrator struct {
	p OrchestratorParams
}

func NewOrchestrator(p OrchestratorParams) (*Orchestrator, error) {
	switch {
	case p.Catalog == nil:
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "catalog provider required")
	case p.Analyzer == nil:
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "table analyzer required")
	case p.Organizations == nil:
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "organization lookup required")
	case p.Store == nil:
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "schema metadata service required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.SampleSize <= 0 {
		p.SampleSize = catalog.DefaultSampleSize
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	return &Orchestrator{p: p}, nil
}

// AnalyzeSchema analyzes every catalog table, or only the named ones, and
// stores the metadata under the organization with the given code.
func (o *Orchestrator) AnalyzeSchema(ctx context.Context, orgCode string, tables ...string) (map[string]TableMetadata, error) {
	ctx = o.p.Logger.WithOrganization(ctx, orgCode)

	org, err := o.p.Organizations.GetByCode(ctx, orgCode)
	if err != nil {
		return nil, err
	}

	catalogTables, err := o.p.Catalog.Catalog(ctx, tables)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	result := make(map[string]TableMetadata, len(catalogTables))
	var usage Usage

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.p.Concurrency)
	for _, table := range catalogTables {
		g.Go(func() error {
			meta, u, err := o.analyze(gctx, table)
			if err != nil {
				return err
			}
			mu.Lock()
			result[table.Name] = meta
			usage.InputTokens += u.InputTokens
			usage.OutputTokens += u.OutputTokens
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := o.p.Store.StoreTableMetadata(ctx, org.ID, result); err != nil {
		return nil, err
	}

	logCtx := o.p.Logger.WithFields(ctx, map[string]any{
		"tables":        len(result),
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
	})
	o.p.Logger.Info(logCtx, "schema_analysis.completed")
	return result, nil
}

func (o *Orchestrator) analyze(ctx context.Context, table catalog.Table) (TableMetadata, Usage, error) {
	ctx = o.p.Logger.WithTable(ctx, table.Name)

	meta, usage, hit := o.cached(ctx, table)
	if !hit {
		var err error
		meta, usage, err = o.p.Analyzer.AnalyzeTable(ctx, table)
		if err != nil {
			o.p.Logger.Error(ctx, "schema_analysis.table_failed", err)
			return TableMetadata{}, Usage{}, err
		}
		o.store(ctx, table, meta)
	}

	if o.p.WithSamples {
		o.attachSamples(ctx, table, &meta)
	}
	return meta, usage, nil
}

// attachSamples never fails the analysis; sampling errors are logged.
func (o *Orchestrator) attachSamples(ctx context.Context, table catalog.Table, meta *TableMetadata) {
	samples, err := o.p.Catalog.SampleValues(ctx, table.Name, table.Columns, o.p.SampleSize)
	if err != nil {
		o.p.Logger.Warn(o.p.Logger.WithField(ctx, "error", err.Error()), "schema_analysis.samples_failed")
		return
	}
	for i := range meta.Columns {
		if values, ok := samples[meta.Columns[i].Name]; ok {
			meta.Columns[i].SampleValues = values
		}
	}
}

func (o *Orchestrator) cacheKey(table catalog.Table) string {
	sum := sha256.Sum256([]byte(o.p.ModelID + "\n" + table.String()))
	return o.p.Cache.SchemaAnalysisKey(table.Name, hex.EncodeToString(sum[:]))
}

func (o *Orchestrator) cached(ctx context.Context, table catalog.Table) (TableMetadata, Usage, bool) {
	if o.p.Cache == nil {
		return TableMetadata{}, Usage{}, false
	}
	raw, err := o.p.Cache.Get(ctx, o.cacheKey(table))
	if err != nil {
		if !errors.Is(err, redis.ErrMiss) {
			o.p.Logger.Warn(o.p.Logger.WithField(ctx, "error", err.Error()), "schema_analysis.cache_read_failed")
		}
		return TableMetadata{}, Usage{}, false
	}
	meta, err := FromJSON([]byte(raw))
	if err != nil {
		o.p.Logger.Warn(o.p.Logger.WithField(ctx, "error", err.Error()), "schema_analysis.cache_decode_failed")
		return TableMetadata{}, Usage{}, false
	}
	o.p.Logger.Debug(ctx, "schema_analysis.cache_hit")
	return meta, Usage{}, true
}

func (o *Orchestrator) store(ctx context.Context, table catalog.Table, meta TableMetadata) {
	if o.p.Cache == nil {
		return
	}
	raw, err := meta.ToJSON()
	if err == nil {
		err = o.p.Cache.Set(ctx, o.cacheKey(table), string(raw), o.p.CacheTTL)
	}
	if err != nil {
		o.p.Logger.Warn(o.p.Logger.WithField(ctx, "error", err.Error()), "schema_analysis.cache_write_failed")
	}
}
