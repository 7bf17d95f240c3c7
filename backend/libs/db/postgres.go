// Package db opens the Postgres pool used for the transaction audit mirror.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const (
	maxOpenConns = 2
	maxIdleConns = 1
	connLifetime = time.Hour
	pingTimeout  = 5 * time.Second
)

// Options selects the database and tags the session.
type Options struct {
	DSN string
	// ApplicationName shows up in pg_stat_activity.
	ApplicationName string
}

// Config parses the DSN into a pgx connection config.
func Config(opts Options) (*pgx.ConnConfig, error) {
	dsn := strings.TrimSpace(opts.DSN)
	if dsn == "" {
		return nil, errors.New("db: empty DSN")
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("db: parse DSN: %w", err)
	}
	if opts.ApplicationName != "" {
		cfg.RuntimeParams["application_name"] = opts.ApplicationName
	}
	return cfg, nil
}

// Open returns a pgx-backed *sql.DB and checks that the server answers. Writes come from one
// sequential payment loop, so the pool stays tiny.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	cfg, err := Config(opts)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*cfg)
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db: ping %s: %w", cfg.Host, err)
	}
	return db, nil
}
