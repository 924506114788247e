// Package warehouse loads exported dataset tables into an analytical store.
// Every loader replaces the target table's contents in one step so a failed
// load leaves the previous contents in place.
package warehouse

import (
	"context"
	"strings"

	"github.com/angelmondragon/symmetri/internal/datagen/dataset"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const (
	DriverNone     = "none"
	DriverBigQuery = "bigquery"
	DriverPostgres = "postgres"
)

// Export points at the written file of a table. URI is set when the file was
// also uploaded to object storage.
type Export struct {
	Path string
	URI  string
}

// Loader truncates and reloads one table.
type Loader interface {
	Name() string
	Load(ctx context.Context, table *dataset.Table, export Export) error
}

// ParseDriver normalizes a configured warehouse driver name.
func ParseDriver(name string) (string, error) {
	switch d := strings.ToLower(strings.TrimSpace(name)); d {
	case "", DriverNone, "noop":
		return DriverNone, nil
	case DriverBigQuery, "bq":
		return DriverBigQuery, nil
	case DriverPostgres, "postgresql":
		return DriverPostgres, nil
	default:
		return "", pkgerrors.Newf(pkgerrors.CodeConfig, "unknown warehouse driver %q", name)
	}
}

// Noop keeps the file export only.
type Noop struct{}

func (Noop) Name() string { return DriverNone }

func (Noop) Load(context.Context, *dataset.Table, Export) error { return nil }
