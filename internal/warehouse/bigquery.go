package warehouse

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/bigquery"
	"go.uber.org/multierr"

	"github.com/angelmondragon/symmetri/internal/datagen/dataset"
	pkgbigquery "github.com/angelmondragon/symmetri/pkg/bigquery"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

// CSVLoader is the load-job surface of pkg/bigquery.
type CSVLoader interface {
	LoadCSV(ctx context.Context, req pkgbigquery.LoadRequest) error
}

// BigQuery loads tables with a WRITE_TRUNCATE load job.
type BigQuery struct {
	client CSVLoader
	logg   *logger.Logger
}

func NewBigQuery(client CSVLoader, logg *logger.Logger) *BigQuery {
	return &BigQuery{client: client, logg: logg}
}

func (b *BigQuery) Name() string { return DriverBigQuery }

func (b *BigQuery) Load(ctx context.Context, table *dataset.Table, export Export) (err error) {
	if b == nil || b.client == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "bigquery loader not configured")
	}
	req := pkgbigquery.LoadRequest{
		Table:  table.Name,
		Schema: Schema(table),
	}

	if export.URI != "" {
		req.GCSURI = export.URI
		req.Gzip = true
	} else {
		f, err := os.Open(export.Path)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("open export %s", export.Path))
		}
		defer func() { err = multierr.Append(err, f.Close()) }()

		gz, err := gzip.NewReader(f)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("read export %s", export.Path))
		}
		defer func() { err = multierr.Append(err, gz.Close()) }()
		req.Reader = gz
	}

	if err := b.client.LoadCSV(ctx, req); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("bigquery load %s", table.Name))
	}

	if b.logg != nil {
		ctx = b.logg.WithFields(ctx, map[string]any{"table": table.Name, "rows": table.Len(), "driver": DriverBigQuery})
		b.logg.Info(ctx, "warehouse.load.completed")
	}
	return nil
}

// Schema maps the table's column types to a BigQuery schema. Every column is
// nullable since CSV exports render nil as an empty field.
func Schema(table *dataset.Table) bigquery.Schema {
	schema := make(bigquery.Schema, 0, len(table.Columns))
	for _, col := range table.Columns {
		schema = append(schema, &bigquery.FieldSchema{
			Name: col.Name,
			Type: fieldType(col.Type),
		})
	}
	return schema
}

func fieldType(t dataset.ColumnType) bigquery.FieldType {
	switch t {
	case dataset.Integer:
		return bigquery.IntegerFieldType
	case dataset.Float:
		return bigquery.FloatFieldType
	case dataset.Numeric:
		return bigquery.NumericFieldType
	case dataset.Timestamp:
		return bigquery.TimestampFieldType
	case dataset.Date:
		return bigquery.DateFieldType
	case dataset.Boolean:
		return bigquery.BooleanFieldType
	default:
		return bigquery.StringFieldType
	}
}
