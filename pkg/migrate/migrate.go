package migrate

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

// DefaultDir is where new migration files are created, relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the SQL migrations compiled into the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Result reports one applied or rolled back migration.
type Result struct {
	Version   int64
	Name      string
	Direction string
	Duration  time.Duration
}

// Status reports whether a known migration has been applied.
type Status struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Migrator applies the organizations and schema metadata schema to Postgres.
type Migrator struct {
	provider *goose.Provider
}

// New builds a migrator over the embedded migrations.
func New(db *sql.DB) (*Migrator, error) {
	return NewFromFS(db, Migrations())
}

// NewFromFS builds a migrator over the .sql files at the root of fsys.
func NewFromFS(db *sql.DB, fsys fs.FS) (*Migrator, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "database is required")
	}
	if fsys == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "migrations are required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, err, "load migrations")
	}
	return &Migrator{provider: provider}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) ([]Result, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return toResults(results), pkgerrors.Wrap(pkgerrors.CodeDependency, err, "goose up")
	}
	return toResults(results), nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) (Result, error) {
	result, err := m.provider.Down(ctx)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "goose down")
	}
	return toResult(result), nil
}

// Version returns the current database version; 0 means nothing is applied.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read database version")
	}
	return v, nil
}

func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "goose status")
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		if s == nil || s.Source == nil {
			continue
		}
		out = append(out, Status{
			Version:   s.Source.Version,
			Name:      path.Base(s.Source.Path),
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

// MigrateTo moves the database up or down until it sits at target.
func (m *Migrator) MigrateTo(ctx context.Context, target int64) ([]Result, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err = m.provider.UpTo(ctx, target)
	default:
		results, err = m.provider.DownTo(ctx, target)
	}
	if err != nil {
		return toResults(results), pkgerrors.Wrap(pkgerrors.CodeDependency, err, "migrate to version "+strconv.FormatInt(target, 10))
	}
	return toResults(results), nil
}

// ParseVersion parses a YYYYMMDDHHMMSS migration version.
func ParseVersion(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if !versionRe.MatchString(value) {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid version %q (expected YYYYMMDDHHMMSS)", value)
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse version")
	}
	return v, nil
}

func toResults(results []*goose.MigrationResult) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		out = append(out, toResult(r))
	}
	return out
}

func toResult(r *goose.MigrationResult) Result {
	if r == nil {
		return Result{}
	}
	res := Result{Direction: r.Direction, Duration: r.Duration}
	if r.Source != nil {
		res.Version = r.Source.Version
		res.Name = path.Base(r.Source.Path)
	}
	return res
}
