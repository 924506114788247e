package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty goose migration named
// <dir>/<YYYYMMDDHHMMSS>_<name>.sql, versioned at now.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "dir is required")
	}
	safe := sanitizeName(name)
	if safe == "" {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "name %q results in empty sanitized filename", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create migrations dir")
	}

	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", now.UTC().Format(versionLayout), safe))
	f, err := os.OpenFile(fullpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", pkgerrors.Newf(pkgerrors.CodeConflict, "migration already exists: %s", fullpath)
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create migration file")
	}
	if _, err := fmt.Fprintf(f, migrationTemplate, safe); err != nil {
		_ = f.Close()
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write migration file")
	}
	if err := f.Close(); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close migration file")
	}
	return fullpath, nil
}

func sanitizeName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}
