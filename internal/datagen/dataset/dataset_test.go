package dataset

import (
	"compress/gzip"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSVGzip(t *testing.T) {
	table := New("SALES_TRANSACTIONS",
		Column{Name: "transaction_id", Type: Integer},
		Column{Name: "transaction_date", Type: Timestamp},
		Column{Name: "birth_date", Type: Date},
		Column{Name: "total_amount", Type: Numeric},
		Column{Name: "score", Type: Float},
		Column{Name: "consent", Type: Boolean},
		Column{Name: "note", Type: String},
	)
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	table.Append(1, ts, ts, decimal.RequireFromString("12.5"), 7.25, true, "a,b")
	table.Append(2, ts, ts, decimal.NewFromInt(3), 0.0, false, nil)

	path := filepath.Join(t.TempDir(), "nested", table.FileName())
	require.NoError(t, table.WriteCSVGzip(path))
	assert.Equal(t, "sales_transactions.csv.gz", filepath.Base(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	records, err := csv.NewReader(gz).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"transaction_id", "transaction_date", "birth_date", "total_amount", "score", "consent", "note"}, records[0])
	assert.Equal(t, []string{"1", "2025-03-04 05:06:07", "2025-03-04", "12.50", "7.25", "true", "a,b"}, records[1])
	assert.Equal(t, []string{"2", "2025-03-04 05:06:07", "2025-03-04", "3.00", "0", "false", ""}, records[2])
}

func TestWriteCSVGzip_RowWidthMismatch(t *testing.T) {
	table := New("T", Column{Name: "a", Type: String})
	table.Append("x", "y")
	require.Error(t, table.WriteCSVGzip(filepath.Join(t.TempDir(), "t.csv.gz")))
}

func TestValues(t *testing.T) {
	table := New("T", Column{Name: "a", Type: String}, Column{Name: "b", Type: Integer})
	table.Append("x", 1)
	table.Append("y", 2)
	assert.Equal(t, []any{1, 2}, table.Values("b"))
	assert.Nil(t, table.Values("missing"))
	assert.Equal(t, 2, table.Len())
}
