package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
}

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{
		CreatedAt: time.Date(2025, 3, 1, 9, 30, 0, 123456789, time.FixedZone("CET", 3600)),
		ID:        uuid.New(),
	}

	token := EncodeCursor(want)
	assert.NotContains(t, token, "=")

	got, err := ParseCursor(token)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(want.CreatedAt))
	assert.Equal(t, want.ID, got.ID)
}

func TestParseCursorRejectsMalformedTokens(t *testing.T) {
	none, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, none)

	for name, token := range map[string]string{
		"not base64":   "%%%",
		"no separator": base64.RawURLEncoding.EncodeToString([]byte("2025-03-01T00:00:00Z")),
		"bad time":     base64.RawURLEncoding.EncodeToString([]byte("yesterday|" + uuid.NewString())),
		"bad id":       base64.RawURLEncoding.EncodeToString([]byte("2025-03-01T00:00:00Z|nope")),
	} {
		_, err := ParseCursor(token)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), name)
	}
}
