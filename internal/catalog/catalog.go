package catalog

import (
	"context"
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const (
	ProviderBigQuery = "bigquery"
	ProviderPostgres = "postgres"

	DefaultSampleSize = 5
)

// Column describes one warehouse column.
type Column struct {
	Name         string
	DataType     string
	Nullable     bool
	PrimaryKey   bool
	DefaultValue *string
}

func (c Column) String() string {
	parts := []string{
		"Column: " + c.Name,
		"Type: " + c.DataType,
		"Nullable: " + yesNo(c.Nullable),
		"Primary Key: " + yesNo(c.PrimaryKey),
	}
	if c.DefaultValue != nil {
		parts = append(parts, "Default Value: "+*c.DefaultValue)
	}
	return strings.Join(parts, " | ")
}

// Table is a named list of columns in catalog order.
type Table struct {
	Name    string
	Columns []Column
}

func (t Table) String() string {
	lines := []string{"Table: " + t.Name, "\nColumns:"}
	for _, c := range t.Columns {
		lines = append(lines, "  - "+c.String())
	}
	return strings.Join(lines, "\n")
}

// Provider reads table definitions and sample data from a warehouse.
type Provider interface {
	Name() string
	// Catalog returns every table of the configured schema, or only those
	// named in tableNames when it is not empty.
	Catalog(ctx context.Context, tableNames []string) ([]Table, error)
	// SampleValues returns up to limit distinct non-null rows for the sampleable
	// columns, keyed by column name.
	SampleValues(ctx context.Context, table string, columns []Column, limit int) (map[string][]any, error)
}

var sampleableTypes = map[string]bool{
	"VARCHAR":           true,
	"CHAR":              true,
	"CHARACTER":         true,
	"CHARACTER VARYING": true,
	"TEXT":              true,
	"STRING":            true,
	"NUMBER":            true,
	"NUMERIC":           true,
	"INTEGER":           true,
	"INT64":             true,
	"BIGINT":            true,
	"BOOLEAN":           true,
	"BOOL":              true,
}

// Sampleable reports whether a column type is worth sampling. Large text,
// timestamps and nested types are skipped.
func Sampleable(dataType string) bool {
	return sampleableTypes[strings.ToUpper(strings.TrimSpace(dataType))]
}

// SampleColumns returns the names of the sampleable columns in order.
func SampleColumns(columns []Column) []string {
	var names []string
	for _, c := range columns {
		if Sampleable(c.DataType) {
			names = append(names, c.Name)
		}
	}
	return names
}

// columnRow is one information_schema record.
type columnRow struct {
	TableName  string
	ColumnName string
	DataType   string
	IsNullable string
	Default    *string
	PrimaryKey bool
}

// groupColumns builds tables in first-seen order, skipping tables outside
// the filter.
func groupColumns(rows []columnRow, tableNames []string) []Table {
	var filter map[string]bool
	if len(tableNames) > 0 {
		filter = make(map[string]bool, len(tableNames))
		for _, n := range tableNames {
			filter[n] = true
		}
	}

	index := map[string]int{}
	var tables []Table
	for _, r := range rows {
		if filter != nil && !filter[r.TableName] {
			continue
		}
		i, ok := index[r.TableName]
		if !ok {
			i = len(tables)
			index[r.TableName] = i
			tables = append(tables, Table{Name: r.TableName})
		}
		tables[i].Columns = append(tables[i].Columns, Column{
			Name:         r.ColumnName,
			DataType:     r.DataType,
			Nullable:     r.IsNullable == "" || strings.EqualFold(r.IsNullable, "yes"),
			PrimaryKey:   r.PrimaryKey,
			DefaultValue: r.Default,
		})
	}
	return tables
}

// sampleSQL selects distinct rows where every sampled column is set. tableRef
// must already be quoted.
func sampleSQL(tableRef string, columns []string, limit int, quote func(string) string) string {
	quoted := make([]string, len(columns))
	conds := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quote(c)
		conds[i] = quoted[i] + " IS NOT NULL"
	}
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s LIMIT %d",
		strings.Join(quoted, ", "), tableRef, strings.Join(conds, " AND "), limit)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func unknownProvider(name string) error {
	return pkgerrors.Newf(pkgerrors.CodeConfig, "unknown database provider: %s", name)
}
