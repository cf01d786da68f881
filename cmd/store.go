package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sealtrack/pncp-radar/internal/db"
	"github.com/sealtrack/pncp-radar/internal/discovery"
)

// initStore opens the record store named by store.driver. Postgres pools are
// owned by the returned store and closed with it.
func initStore(ctx context.Context) (discovery.RecordStore, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "radar.db"
		}
		return discovery.NewSQLiteStore(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver (RADAR_STORE_DATABASE_URL)")
		}
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "connect postgres")
		}
		return discovery.NewPostgresStore(pool), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
