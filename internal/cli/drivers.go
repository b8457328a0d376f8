// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/canonical/go-dqlite/client"
	dqlite "github.com/canonical/go-dqlite/driver"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/sijms/go-ora/v2"
	_ "modernc.org/sqlite"

	"github.com/canonical/twoway/internal/config"
)

// openFunc opens a database for the configuration.
type openFunc func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error)

func openRegistered(name string) openFunc {
	return func(_ context.Context, cfg *config.Config, _ *slog.Logger) (*sql.DB, error) {
		return sql.Open(name, cfg.DSN)
	}
}

// drivers maps driver names to the way they are opened. The dialect of each
// driver is registered under the same name in the dialect package.
var drivers = map[string]openFunc{
	"sqlite3":   openRegistered("sqlite3"),
	"sqlite":    openRegistered("sqlite"),
	"pgx":       openRegistered("pgx"),
	"mysql":     openRegistered("mysql"),
	"sqlserver": openRegistered("sqlserver"),
	"duckdb":    openRegistered("duckdb"),
	"oracle":    openRegistered("oracle"),
	"dqlite":    openDqlite,
}

func driverNames() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func openDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	open, ok := drivers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (known: %s)", cfg.Driver, strings.Join(driverNames(), ", "))
	}
	db, err := open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

// openDqlite connects to a dqlite cluster through the nodes in the
// configuration. The DSN names the database.
func openDqlite(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	store := client.NewInmemNodeStore()
	nodes := make([]client.NodeInfo, len(cfg.DqliteNodes))
	for i, addr := range cfg.DqliteNodes {
		nodes[i] = client.NodeInfo{ID: uint64(i + 1), Address: addr}
	}
	if err := store.Set(ctx, nodes); err != nil {
		return nil, err
	}
	drv, err := dqlite.New(store, dqlite.WithLogFunc(dqliteLogFunc(logger)))
	if err != nil {
		return nil, err
	}
	name := cfg.DSN
	if name == "" {
		name = "twoway"
	}
	return sql.OpenDB(&dqliteConnector{drv: drv, name: name}), nil
}

func dqliteLogFunc(logger *slog.Logger) client.LogFunc {
	return func(l client.LogLevel, format string, a ...any) {
		level := slog.LevelDebug
		switch l {
		case client.LogInfo:
			level = slog.LevelInfo
		case client.LogWarn:
			level = slog.LevelWarn
		case client.LogError:
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, fmt.Sprintf(format, a...), slog.String("driver", "dqlite"))
	}
}

// dqliteConnector opens connections to one database of a dqlite cluster.
type dqliteConnector struct {
	drv  *dqlite.Driver
	name string
}

func (c *dqliteConnector) Connect(context.Context) (driver.Conn, error) {
	return c.drv.Open(c.name)
}

func (c *dqliteConnector) Driver() driver.Driver {
	return c.drv
}
