package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"go.uber.org/multierr"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const versionLayout = "20060102150405"

var (
	versionRe = regexp.MustCompile(`^\d{14}$`)
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
)

// Validate checks every .sql file at the root of fsys: file names, unique
// versions and both goose sections. All problems are reported together.
func Validate(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read migrations")
	}

	var problems error
	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			problems = multierr.Append(problems, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if prev, ok := seen[m[1]]; ok {
			problems = multierr.Append(problems, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name))
		}
		seen[m[1]] = name

		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("read %q: %w", name, err))
			continue
		}
		for _, section := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(b), section) {
				problems = multierr.Append(problems, fmt.Errorf("migration %q missing %q", name, section))
			}
		}
	}

	if problems != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, problems, "invalid migrations")
	}
	return nil
}
