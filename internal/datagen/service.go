// Package datagen runs a full synthetic dataset generation: configuration,
// identity pools, every table generator, export, and warehouse load.
package datagen

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/angelmondragon/symmetri/internal/datagen/batch"
	"github.com/angelmondragon/symmetri/internal/datagen/config"
	"github.com/angelmondragon/symmetri/internal/datagen/crm"
	"github.com/angelmondragon/symmetri/internal/datagen/dataset"
	"github.com/angelmondragon/symmetri/internal/datagen/pools"
	"github.com/angelmondragon/symmetri/internal/datagen/providers"
	"github.com/angelmondragon/symmetri/internal/datagen/sales"
	"github.com/angelmondragon/symmetri/internal/datagen/web"
	"github.com/angelmondragon/symmetri/internal/warehouse"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
	"github.com/angelmondragon/symmetri/pkg/metrics"
)

// EventTableLoaded is published once per loaded table.
const EventTableLoaded = "dataset.table_loaded"

const exportContentType = "application/gzip"

// Uploader copies an export file to object storage and returns its URI.
type Uploader interface {
	UploadFile(ctx context.Context, object, contentType, path string) (string, error)
}

// Notifier publishes JSON events.
type Notifier interface {
	PublishJSON(ctx context.Context, eventType string, payload any) (string, error)
}

// ServiceParams configure a generation run.
type ServiceParams struct {
	Logger    *logger.Logger
	Warehouse warehouse.Loader
	Uploader  Uploader
	// ObjectName maps an export file name to its object name. Defaults to
	// the file name.
	ObjectName func(string) string
	Notifier   Notifier
	Metrics    *metrics.GeneratorMetrics

	ConfigPath  string
	ConfigDir   string
	OutputDir   string
	Seed        uint64
	Parallelism int
	// Now anchors every generated date. Defaults to the current UTC time.
	Now time.Time
}

// TableLoadedEvent is the payload of EventTableLoaded.
type TableLoadedEvent struct {
	Table     string    `json:"table"`
	Rows      int       `json:"rows"`
	File      string    `json:"file"`
	URI       string    `json:"uri,omitempty"`
	Warehouse string    `json:"warehouse"`
	Seed      uint64    `json:"seed"`
	LoadedAt  time.Time `json:"loaded_at"`
}

type TableResult struct {
	Name string
	Rows int
	Path string
	URI  string
}

// Summary describes a completed run.
type Summary struct {
	Seed     uint64
	Pools    PoolSizes
	Overlaps pools.Overlaps
	Tables   []TableResult
	Duration time.Duration
}

type PoolSizes struct {
	CRM                     int
	Website                 int
	DataProvider            int
	CRMWithTransactions     int
	WebsiteWithTransactions int
}

// Service generates every dataset and hands each table to the warehouse.
type Service struct {
	logg       *logger.Logger
	loader     warehouse.Loader
	uploader   Uploader
	objectName func(string) string
	notifier   Notifier
	metrics    *metrics.GeneratorMetrics

	configPath string
	configDir  string
	outputDir  string
	opts       batch.Options
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.ConfigPath == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "generator config path is required")
	}
	if params.OutputDir == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "output directory is required")
	}
	loader := params.Warehouse
	if loader == nil {
		loader = warehouse.Noop{}
	}
	objectName := params.ObjectName
	if objectName == nil {
		objectName = func(name string) string { return name }
	}

	return &Service{
		logg:       params.Logger,
		loader:     loader,
		uploader:   params.Uploader,
		objectName: objectName,
		notifier:   params.Notifier,
		metrics:    params.Metrics,
		configPath: params.ConfigPath,
		configDir:  params.ConfigDir,
		outputDir:  params.OutputDir,
		opts: batch.Options{
			Seed:        params.Seed,
			Now:         params.Now,
			Parallelism: params.Parallelism,
		}.Normalize(),
	}, nil
}

// Run executes the pipeline. The first failing table aborts the run; tables
// loaded before it stay loaded.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	ctx = s.logg.WithFields(ctx, map[string]any{"seed": s.opts.Seed, "warehouse": s.loader.Name()})
	s.logg.Info(ctx, "datagen.run.started")

	var doc *config.Document
	err := s.metrics.Track("config", func() error {
		var err error
		doc, err = config.Load(s.configPath, s.configDir)
		return err
	})
	if err != nil {
		return nil, err
	}

	var p *pools.Pools
	err = s.metrics.Track("pools", func() error {
		var err error
		p, err = pools.NewManager(s.logg).Generate(ctx, doc.UserCounts, s.opts.Seed)
		return err
	})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Seed: s.opts.Seed,
		Pools: PoolSizes{
			CRM:                     len(p.CRM),
			Website:                 len(p.Website),
			DataProvider:            len(p.DataProvider),
			CRMWithTransactions:     len(p.CRMWithTransactions),
			WebsiteWithTransactions: len(p.WebsiteWithTransactions),
		},
		Overlaps: p.Overlaps(),
	}
	for pool, n := range map[string]int{
		"crm":                       summary.Pools.CRM,
		"website":                   summary.Pools.Website,
		"data_provider":             summary.Pools.DataProvider,
		"crm_with_transactions":     summary.Pools.CRMWithTransactions,
		"website_with_transactions": summary.Pools.WebsiteWithTransactions,
	} {
		s.metrics.SetPoolSize(pool, n)
	}

	stages := []struct {
		name string
		run  func(context.Context) ([]*dataset.Table, error)
	}{
		{"crm", func(ctx context.Context) ([]*dataset.Table, error) { return s.crm(ctx, doc, p) }},
		{"sales", func(ctx context.Context) ([]*dataset.Table, error) { return s.sales(ctx, doc, p) }},
		{"web", func(ctx context.Context) ([]*dataset.Table, error) { return s.web(ctx, doc, p) }},
		{"providers", func(ctx context.Context) ([]*dataset.Table, error) { return s.providers(ctx, doc, p) }},
	}

	for _, stage := range stages {
		var tables []*dataset.Table
		err := s.metrics.Track(stage.name, func() error {
			var err error
			tables, err = stage.run(ctx)
			return err
		})
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "stage", stage.name), "datagen.stage.failed", err)
			return nil, err
		}
		for _, table := range tables {
			result, err := s.export(ctx, table)
			if err != nil {
				s.logg.Error(s.logg.WithTable(ctx, table.Name), "datagen.table.failed", err)
				return nil, err
			}
			summary.Tables = append(summary.Tables, result)
		}
	}

	summary.Duration = time.Since(started)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tables":      len(summary.Tables),
		"duration_ms": summary.Duration.Milliseconds(),
	}), "datagen.run.completed")
	return summary, nil
}

func (s *Service) crm(ctx context.Context, doc *config.Document, p *pools.Pools) ([]*dataset.Table, error) {
	g, err := crm.New(doc.CRM, s.opts)
	if err != nil {
		return nil, err
	}
	table, err := g.Generate(ctx, p.CRM)
	if err != nil {
		return nil, err
	}
	return []*dataset.Table{table}, nil
}

func (s *Service) sales(ctx context.Context, doc *config.Document, p *pools.Pools) ([]*dataset.Table, error) {
	transactions, lineItems, err := sales.New(doc.Products, doc.Sales, s.opts).Generate(ctx, p.TransactionUsers())
	if err != nil {
		return nil, err
	}
	return []*dataset.Table{transactions, lineItems}, nil
}

func (s *Service) web(ctx context.Context, doc *config.Document, p *pools.Pools) ([]*dataset.Table, error) {
	g, err := web.New(doc.Website, s.opts, s.logg)
	if err != nil {
		return nil, err
	}
	table, err := g.Generate(ctx, p.Website)
	if err != nil {
		return nil, err
	}
	return []*dataset.Table{table}, nil
}

func (s *Service) providers(ctx context.Context, doc *config.Document, p *pools.Pools) ([]*dataset.Table, error) {
	g := providers.New(doc.DataProviders, s.opts)
	provs := g.Providers()
	segments := g.Segments(provs)
	userMap, err := g.UserSegmentMap(ctx, p.DataProvider, segments)
	if err != nil {
		return nil, err
	}
	return []*dataset.Table{
		providers.ProviderTable(provs),
		providers.SegmentTable(segments),
		userMap,
	}, nil
}

// export writes the table file, uploads it when object storage is
// configured, loads it and announces the load.
func (s *Service) export(ctx context.Context, table *dataset.Table) (TableResult, error) {
	ctx = s.logg.WithTable(ctx, table.Name)
	result := TableResult{
		Name: table.Name,
		Rows: table.Len(),
		Path: filepath.Join(s.outputDir, table.FileName()),
	}

	if err := table.WriteCSVGzip(result.Path); err != nil {
		return result, err
	}
	s.metrics.AddRows(table.Name, table.Len())

	if s.uploader != nil {
		uri, err := s.uploader.UploadFile(ctx, s.objectName(table.FileName()), exportContentType, result.Path)
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload export "+table.FileName())
		}
		result.URI = uri
	}

	err := s.metrics.Track("load", func() error {
		return s.loader.Load(ctx, table, warehouse.Export{Path: result.Path, URI: result.URI})
	})
	if err != nil {
		return result, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"rows": result.Rows, "file": result.Path}), "datagen.table.exported")
	s.notify(ctx, result)
	return result, nil
}

// notify is best effort: the table is already loaded when it runs.
func (s *Service) notify(ctx context.Context, result TableResult) {
	if s.notifier == nil {
		return
	}
	event := TableLoadedEvent{
		Table:     result.Name,
		Rows:      result.Rows,
		File:      filepath.Base(result.Path),
		URI:       result.URI,
		Warehouse: s.loader.Name(),
		Seed:      s.opts.Seed,
		LoadedAt:  time.Now().UTC(),
	}
	if _, err := s.notifier.PublishJSON(ctx, EventTableLoaded, event); err != nil {
		s.logg.Error(ctx, "datagen.notify.failed", err)
	}
}
