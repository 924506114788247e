// Package dataset is the in-memory table shared by the generators, the CSV
// export and the warehouse loaders.
package dataset

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

type ColumnType string

const (
	String    ColumnType = "STRING"
	Integer   ColumnType = "INTEGER"
	Float     ColumnType = "FLOAT"
	Numeric   ColumnType = "NUMERIC"
	Timestamp ColumnType = "TIMESTAMP"
	Date      ColumnType = "DATE"
	Boolean   ColumnType = "BOOLEAN"
)

const (
	TimestampLayout = "2006-01-02 15:04:05"
	DateLayout      = "2006-01-02"
)

type Column struct {
	Name string
	Type ColumnType
}

// Table is a named, typed set of rows. Row values follow the column order.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

func New(name string, columns ...Column) *Table {
	return &Table{Name: name, Columns: columns}
}

func (t *Table) Append(row ...any) {
	t.Rows = append(t.Rows, row)
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of name or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Values returns every value of column name in row order.
func (t *Table) Values(name string) []any {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}

// FileName is the export file name for the table.
func (t *Table) FileName() string {
	return strings.ToLower(t.Name) + ".csv.gz"
}

// WriteCSVGzip writes a header and every row to path as gzip-compressed CSV.
func (t *Table) WriteCSVGzip(path string) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create export directory")
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("create export %s", path))
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	gz := gzip.NewWriter(f)
	defer func() { err = multierr.Append(err, gz.Close()) }()

	w := csv.NewWriter(gz)
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		return err
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return pkgerrors.Newf(pkgerrors.CodeInternal, "%s: row has %d values for %d columns", t.Name, len(row), len(t.Columns))
		}
		for i, v := range row {
			record[i] = Format(t.Columns[i].Type, v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Format renders v for text exports. nil renders empty.
func Format(typ ColumnType, v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		if typ == Date {
			return val.Format(DateLayout)
		}
		return val.UTC().Format(TimestampLayout)
	case decimal.Decimal:
		return val.StringFixed(2)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
