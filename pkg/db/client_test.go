package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/symmetri/pkg/config"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestClient(t *testing.T, logg *logger.Logger) *Client {
	t.Helper()
	client, err := Open(context.Background(), sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), config.DBConfig{MaxOpenConns: 1}, logg)
	require.NoError(t, err)
	require.NoError(t, client.DB().AutoMigrate(&testModel{}))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")

	var names []string
	require.NoError(t, client.DB().Model(&testModel{}).Pluck("name", &names).Error)
	assert.Equal(t, []string{"committed"}, names)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	client := newTestClient(t, nil)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&testModel{Name: "doomed"})
			panic("kaboom")
		})
	})

	var count int64
	require.NoError(t, client.DB().Model(&testModel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPingAndDialect(t *testing.T) {
	client := newTestClient(t, nil)
	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "sqlite", client.Dialect())
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfig))
}

func TestQueryLoggerReportsFailuresNotMisses(t *testing.T) {
	buf := &bytes.Buffer{}
	client := newTestClient(t, logger.New(logger.Options{ServiceName: "test", Output: buf}))
	ctx := context.Background()

	var row testModel
	err := client.DB().WithContext(ctx).First(&row, "id = ?", 42).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NotContains(t, buf.String(), "db.query.failed")

	require.Error(t, client.DB().WithContext(ctx).Exec("SELECT * FROM missing_table").Error)
	assert.Contains(t, buf.String(), "db.query.failed")
	assert.Contains(t, buf.String(), "missing_table")
}

func TestQueryLoggerSlowQueries(t *testing.T) {
	buf := &bytes.Buffer{}
	q := newQueryLogger(logger.New(logger.Options{ServiceName: "test", Output: buf}), time.Millisecond)
	fc := func() (string, int64) { return "SELECT 1", 1 }

	q.Trace(context.Background(), time.Now(), fc, nil)
	assert.Zero(t, buf.Len())

	q.Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)
	assert.Contains(t, buf.String(), "db.query.slow")

	buf.Reset()
	q.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now().Add(-time.Second), fc, errors.New("x"))
	assert.Zero(t, buf.Len())
}
