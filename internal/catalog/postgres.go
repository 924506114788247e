package catalog

import (
	"context"
	"strings"

	"github.com/angelmondragon/symmetri/pkg/db"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const postgresColumnsSQL = `
SELECT c.table_name, c.column_name, c.data_type, c.is_nullable, c.column_default,
	EXISTS (
		SELECT 1
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage k
			ON k.constraint_name = tc.constraint_name
			AND k.table_schema = tc.table_schema
			AND k.table_name = tc.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = c.table_schema
			AND tc.table_name = c.table_name
			AND k.column_name = c.column_name
	) AS primary_key
FROM information_schema.columns c
WHERE c.table_catalog = current_database() AND c.table_schema = ?
ORDER BY c.table_name, c.ordinal_position`

// Postgres reads the catalog of one schema through information_schema.
type Postgres struct {
	db     *db.Client
	schema string
}

func NewPostgres(client *db.Client, schema string) (*Postgres, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "database client is required")
	}
	if strings.TrimSpace(schema) == "" {
		schema = "public"
	}
	return &Postgres{db: client, schema: schema}, nil
}

func (p *Postgres) Name() string { return ProviderPostgres }

func (p *Postgres) Catalog(ctx context.Context, tableNames []string) ([]Table, error) {
	var records []struct {
		TableName     string
		ColumnName    string
		DataType      string
		IsNullable    string
		ColumnDefault *string
		PrimaryKey    bool
	}
	if err := p.db.DB().WithContext(ctx).Raw(postgresColumnsSQL, p.schema).Scan(&records).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read postgres catalog")
	}

	rows := make([]columnRow, len(records))
	for i, r := range records {
		rows[i] = columnRow{
			TableName:  r.TableName,
			ColumnName: r.ColumnName,
			DataType:   r.DataType,
			IsNullable: r.IsNullable,
			Default:    r.ColumnDefault,
			PrimaryKey: r.PrimaryKey,
		}
	}
	return groupColumns(rows, tableNames), nil
}

func (p *Postgres) SampleValues(ctx context.Context, table string, columns []Column, limit int) (map[string][]any, error) {
	names := SampleColumns(columns)
	samples := map[string][]any{}
	if len(names) == 0 {
		return samples, nil
	}
	if limit <= 0 {
		limit = DefaultSampleSize
	}

	rows, err := p.db.DB().WithContext(ctx).Raw(sampleSQL(quoteIdent(table), names, limit, quoteIdent)).Rows()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sample "+table)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan samples of "+table)
		}
		for i, name := range names {
			samples[name] = append(samples[name], normalizeSample(values[i]))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sample "+table)
	}
	return samples, nil
}

func normalizeSample(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
