package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/freekieb7/go-polls/internal/config"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

var (
	ErrNoRows = sql.ErrNoRows
)

// Database is a pooled connection to one of the supported drivers. Queries
// use $N placeholders, which both drivers accept.
type Database struct {
	*sql.DB
	Driver string
}

func NewDatabase() Database {
	return Database{}
}

func (db *Database) Connect(ctx context.Context, cfg config.Database) error {
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	pool, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return err
	}

	// Configure the connection pool
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if cfg.Driver == DriverSQLite {
		// An in-memory SQLite database lives and dies with its connection
		pool.SetMaxOpenConns(1)
		pool.SetMaxIdleConns(1)
		pool.SetConnMaxIdleTime(0)
		pool.SetConnMaxLifetime(0)
	}

	// Ping the database to ensure connection is valid
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return err
	}

	db.DB = pool
	db.Driver = cfg.Driver
	return nil
}

func (db *Database) Health(ctx context.Context) error {
	if db.DB == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (db *Database) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
