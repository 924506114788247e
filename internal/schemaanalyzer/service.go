package schemaanalyzer

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/symmetri/pkg/db/types"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service reads and writes stored schema metadata.
type Service interface {
	StoreTableMetadata(ctx context.Context, orgID uuid.UUID, tables map[string]TableMetadata) error
	TableSummaries(ctx context.Context, orgID uuid.UUID) ([]TableSummary, error)
	TableMetadata(ctx context.Context, orgID uuid.UUID, table string) (*TableMetadata, error)
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "schema analyzer repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, logg: logg, now: func() time.Time { return time.Now().UTC() }}, nil
}

// StoreTableMetadata inserts tables seen for the first time and updates the
// rest, all in one transaction.
func (s *service) StoreTableMetadata(ctx context.Context, orgID uuid.UUID, tables map[string]TableMetadata) error {
	if orgID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "organization id required")
	}
	if len(tables) == 0 {
		return nil
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		full, err := tables[name].ToJSON()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode table metadata")
		}
		summary, err := tables[name].ToSummaryJSON()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode table summary")
		}
		records = append(records, Record{Table: name, Full: dbtypes.JSON(full), Summary: dbtypes.JSON(summary)})
	}

	var inserted, updated int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.TableNames(ctx, orgID)
		if err != nil {
			return err
		}
		var inserts, updates []Record
		for _, rec := range records {
			if existing[rec.Table] {
				updates = append(updates, rec)
			} else {
				inserts = append(inserts, rec)
			}
		}
		inserted, updated = len(inserts), len(updates)
		return repo.Store(ctx, orgID, inserts, updates, s.now())
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store table metadata")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"organization_id": orgID.String(),
		"inserted":        inserted,
		"updated":         updated,
	})
	s.logg.Info(logCtx, "schema_metadata.stored")
	return nil
}

func (s *service) TableSummaries(ctx context.Context, orgID uuid.UUID) ([]TableSummary, error) {
	rows, err := s.repo.TableSummaries(ctx, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list table summaries")
	}
	out := make([]TableSummary, 0, len(rows))
	for _, row := range rows {
		var summary TableSummary
		if err := row.Decode(&summary); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode table summary")
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *service) TableMetadata(ctx context.Context, orgID uuid.UUID, table string) (*TableMetadata, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table name required")
	}
	raw, err := s.repo.TableMetadata(ctx, orgID, table)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "no metadata for table %s", table)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load table metadata")
	}
	meta, err := FromJSON(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode table metadata")
	}
	return &meta, nil
}
