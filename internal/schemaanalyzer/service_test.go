package schemaanalyzer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/angelmondragon/symmetri/pkg/config"
	"github.com/angelmondragon/symmetri/pkg/db"
	"github.com/angelmondragon/symmetri/pkg/db/models"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

func newTestService(t *testing.T) (*service, *db.Client) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	client, err := db.Open(context.Background(), sqlite.Open(dsn), config.DBConfig{MaxOpenConns: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, client.DB().AutoMigrate(&models.Organization{}, &models.SchemaAnalyzerMetadata{}))
	t.Cleanup(func() { _ = client.Close() })

	svc, err := NewService(NewRepository(client.DB()), client, nil)
	require.NoError(t, err)
	return svc.(*service), client
}

func TestStoreInsertsThenUpdates(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	orgID := uuid.New()

	first := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return first }
	require.NoError(t, svc.StoreTableMetadata(ctx, orgID, map[string]TableMetadata{
		"orders":    ordersMetadata(),
		"customers": {Name: "customers", Description: "People"},
	}))

	second := first.Add(time.Hour)
	svc.now = func() time.Time { return second }
	updated := ordersMetadata()
	updated.Description = "Orders v2"
	require.NoError(t, svc.StoreTableMetadata(ctx, orgID, map[string]TableMetadata{"orders": updated}))

	var rows []models.SchemaAnalyzerMetadata
	require.NoError(t, client.DB().Order("table_name").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "customers", rows[0].Table)
	assert.True(t, rows[0].UpdatedAt.Equal(first))
	assert.Equal(t, "orders", rows[1].Table)
	assert.True(t, rows[1].CreatedAt.Equal(first))
	assert.True(t, rows[1].UpdatedAt.Equal(second))

	meta, err := svc.TableMetadata(ctx, orgID, "orders")
	require.NoError(t, err)
	assert.Equal(t, "Orders v2", meta.Description)
	assert.Len(t, meta.Columns, 2)
}

func TestTableSummariesAreScopedAndOrdered(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	orgID := uuid.New()

	require.NoError(t, svc.StoreTableMetadata(ctx, orgID, map[string]TableMetadata{
		"orders":    ordersMetadata(),
		"customers": {Name: "customers"},
	}))
	require.NoError(t, svc.StoreTableMetadata(ctx, uuid.New(), map[string]TableMetadata{
		"events": {Name: "events"},
	}))

	summaries, err := svc.TableSummaries(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "customers", summaries[0].Name)
	assert.Equal(t, "orders", summaries[1].Name)
	assert.Equal(t, []string{"amount", "tax", "shipping"}, summaries[1].KeyColumns.Metrics)

	none, err := svc.TableSummaries(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTableMetadataErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.TableMetadata(ctx, uuid.New(), "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.TableMetadata(ctx, uuid.New(), "  ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestStoreValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.StoreTableMetadata(context.Background(), uuid.Nil, map[string]TableMetadata{"t": {Name: "t"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.NoError(t, svc.StoreTableMetadata(context.Background(), uuid.New(), nil))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil)
	require.Error(t, err)

	_, err = NewService(NewRepository(nil), nil, nil)
	require.Error(t, err)
}
