package catalog

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

// Querier runs BigQuery SQL and returns materialized rows.
type Querier interface {
	QueryRows(ctx context.Context, sql string, params []bigquery.QueryParameter) ([]map[string]bigquery.Value, error)
}

// BigQuery reads the catalog of one dataset from INFORMATION_SCHEMA.
type BigQuery struct {
	q       Querier
	project string
	dataset string
}

func NewBigQuery(q Querier, project, dataset string) (*BigQuery, error) {
	if q == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "bigquery client is required")
	}
	if strings.TrimSpace(dataset) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "bigquery dataset is required")
	}
	return &BigQuery{q: q, project: project, dataset: dataset}, nil
}

func (b *BigQuery) Name() string { return ProviderBigQuery }

func (b *BigQuery) qualified(name string) string {
	if b.project == "" {
		return fmt.Sprintf("`%s.%s`", b.dataset, name)
	}
	return fmt.Sprintf("`%s.%s.%s`", b.project, b.dataset, name)
}

func (b *BigQuery) columnsSQL(filtered bool) string {
	schema := b.qualified("INFORMATION_SCHEMA")
	sql := fmt.Sprintf(`SELECT c.table_name, c.column_name, c.data_type, c.is_nullable, c.column_default,
	k.column_name IS NOT NULL AS primary_key
FROM %[1]s.COLUMNS c
LEFT JOIN (
	SELECT u.table_name, u.column_name
	FROM %[1]s.KEY_COLUMN_USAGE u
	JOIN %[1]s.TABLE_CONSTRAINTS t
		ON t.constraint_name = u.constraint_name AND t.table_name = u.table_name
	WHERE t.constraint_type = 'PRIMARY KEY'
) k ON k.table_name = c.table_name AND k.column_name = c.column_name`, schema)
	if filtered {
		sql += "\nWHERE c.table_name IN UNNEST(@tables)"
	}
	return sql + "\nORDER BY c.table_name, c.ordinal_position"
}

func (b *BigQuery) Catalog(ctx context.Context, tableNames []string) ([]Table, error) {
	var params []bigquery.QueryParameter
	if len(tableNames) > 0 {
		params = []bigquery.QueryParameter{{Name: "tables", Value: tableNames}}
	}
	records, err := b.q.QueryRows(ctx, b.columnsSQL(len(params) > 0), params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read bigquery catalog")
	}

	rows := make([]columnRow, 0, len(records))
	for _, r := range records {
		row := columnRow{
			TableName:  stringValue(r["table_name"]),
			ColumnName: stringValue(r["column_name"]),
			DataType:   stringValue(r["data_type"]),
			IsNullable: stringValue(r["is_nullable"]),
		}
		// BigQuery reports the literal NULL when a column has no default.
		if def := stringValue(r["column_default"]); def != "" && !strings.EqualFold(def, "NULL") {
			row.Default = &def
		}
		if pk, ok := r["primary_key"].(bool); ok {
			row.PrimaryKey = pk
		}
		rows = append(rows, row)
	}
	return groupColumns(rows, tableNames), nil
}

func (b *BigQuery) SampleValues(ctx context.Context, table string, columns []Column, limit int) (map[string][]any, error) {
	names := SampleColumns(columns)
	samples := map[string][]any{}
	if len(names) == 0 {
		return samples, nil
	}
	if limit <= 0 {
		limit = DefaultSampleSize
	}

	sql := sampleSQL(b.qualified(table), names, limit, func(name string) string {
		return "`" + name + "`"
	})
	records, err := b.q.QueryRows(ctx, sql, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sample "+table)
	}
	for _, r := range records {
		for _, name := range names {
			samples[name] = append(samples[name], any(r[name]))
		}
	}
	return samples, nil
}

func stringValue(v bigquery.Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
