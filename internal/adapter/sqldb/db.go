// Package sqldb wires the SQL repositories to Postgres or an embedded SQLite file.
package sqldb

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"gitlab.com/opensubmit.net/internal/adapter/sqldb/dialect"
	"gitlab.com/opensubmit.net/internal/config"
)

func init() {
	sqlx.BindDriver(dialect.SQLite, sqlx.QUESTION)
}

// Open connects to the configured database and checks the connection
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case dialect.Postgres, dialect.SQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.Url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == dialect.SQLite {
		// one writer; transactions serialize on the single connection
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
