package db

import (
	"context"
	"database/sql"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/angelmondragon/symmetri/pkg/config"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

// Client owns the pooled GORM connection shared by repositories, the
// Postgres warehouse loader and the catalog.
type Client struct {
	conn *gorm.DB
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New connects to Postgres through pgx using cfg.DSN.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "database DSN is required")
	}
	dialector := postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})

	client, err := Open(ctx, dialector, cfg, logg)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ping database")
	}
	return client, nil
}

// Open builds a client from any dialector; tests pass sqlite.
func Open(ctx context.Context, dialector gorm.Dialector, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		logg = logger.Nop()
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open database")
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sql handle")
	}
	configurePool(sqlDB, cfg)

	logg.Info(logg.WithField(ctx, "dialect", conn.Dialector.Name()), "db.connected")
	return &Client{conn: conn}, nil
}

func configurePool(sqlDB *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Dialect names the backing database: "postgres" or "sqlite".
func (c *Client) Dialect() string {
	return c.conn.Dialector.Name()
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction. It commits when fn returns nil and rolls
// back on error or panic.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
