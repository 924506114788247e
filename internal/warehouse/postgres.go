package warehouse

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/symmetri/internal/datagen/dataset"
	"github.com/angelmondragon/symmetri/pkg/db"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

const defaultInsertBatch = 1000

// Postgres reloads tables inside a single transaction: create if missing,
// empty, insert in batches. A failure rolls everything back.
type Postgres struct {
	db        *db.Client
	batchSize int
	logg      *logger.Logger
}

func NewPostgres(client *db.Client, batchSize int, logg *logger.Logger) *Postgres {
	if batchSize <= 0 {
		batchSize = defaultInsertBatch
	}
	return &Postgres{db: client, batchSize: batchSize, logg: logg}
}

func (p *Postgres) Name() string { return DriverPostgres }

func (p *Postgres) Load(ctx context.Context, table *dataset.Table, _ Export) error {
	if p == nil || p.db == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "postgres loader not configured")
	}
	name := quoteIdent(table.Name)
	dialect := p.db.Dialect()

	err := p.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec(createTableSQL(table)).Error; err != nil {
			return fmt.Errorf("create %s: %w", table.Name, err)
		}

		truncate := "DELETE FROM " + name
		if dialect == "postgres" {
			truncate = "TRUNCATE TABLE " + name
		}
		if err := tx.Exec(truncate).Error; err != nil {
			return fmt.Errorf("truncate %s: %w", table.Name, err)
		}

		batch := make([]map[string]any, 0, p.batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := tx.Table(table.Name).Create(batch).Error; err != nil {
				return fmt.Errorf("insert into %s: %w", table.Name, err)
			}
			batch = make([]map[string]any, 0, p.batchSize)
			return nil
		}

		for i, row := range table.Rows {
			if len(row) != len(table.Columns) {
				return pkgerrors.Newf(pkgerrors.CodeInternal, "%s row %d has %d values for %d columns", table.Name, i, len(row), len(table.Columns))
			}
			rec := make(map[string]any, len(row))
			for j, col := range table.Columns {
				rec[col.Name] = row[j]
			}
			batch = append(batch, rec)
			if len(batch) == p.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("postgres load %s", table.Name))
	}

	if p.logg != nil {
		ctx = p.logg.WithFields(ctx, map[string]any{"table": table.Name, "rows": table.Len(), "driver": DriverPostgres})
		p.logg.Info(ctx, "warehouse.load.completed")
	}
	return nil
}

func createTableSQL(table *dataset.Table) string {
	cols := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		cols[i] = quoteIdent(col.Name) + " " + sqlType(col.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table.Name), strings.Join(cols, ", "))
}

func sqlType(t dataset.ColumnType) string {
	switch t {
	case dataset.Integer:
		return "BIGINT"
	case dataset.Float:
		return "DOUBLE PRECISION"
	case dataset.Numeric:
		return "NUMERIC(14,2)"
	case dataset.Timestamp:
		return "TIMESTAMP"
	case dataset.Date:
		return "DATE"
	case dataset.Boolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
