package pagination

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Params holds cursor pagination inputs from controllers or the CLI.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points at the last row of a page ordered by created_at, id.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit applies DefaultLimit and caps at MaxLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EncodeCursor renders c as an opaque, URL safe token.
func EncodeCursor(c Cursor) string {
	payload := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes a token from EncodeCursor. An empty token yields a nil
// cursor; anything malformed is a validation error.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode cursor")
	}
	ts, rawID, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor format")
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor timestamp")
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor id")
	}
	return &Cursor{CreatedAt: t, ID: id}, nil
}
