// Package store opens the agent's local SQLite database, applies the
// embedded goose migrations and wires the repositories on top of it.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/poleshift/internal/client/migrations"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/crud"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/processed"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/rawdata"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/uploads"
	"github.com/dmitrijs2005/poleshift/internal/events"
	_ "modernc.org/sqlite"
)

type Repositories struct {
	DB        *sql.DB
	Metadata  metadata.Repository
	Uploads   uploads.Repository
	Processed processed.Repository
	RawData   rawdata.Repository
	Crud      crud.Repository
}

func (r *Repositories) Close() error {
	return r.DB.Close()
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrations.Up(ctx, db)
}

// Open opens the database at dsn. SQLite allows a single writer, so the pool
// is pinned to one connection; this also keeps shared in-memory databases
// alive for the lifetime of the handle.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// FileDSN builds a DSN for an on-disk database in WAL mode.
func FileDSN(path string) string {
	return "file:" + path + "?_pragma=journal_mode(WAL)"
}

// InitDatabase opens dsn, migrates it and returns the repositories. bus may
// be nil; when set, repositories publish table change notifications on it.
func InitDatabase(ctx context.Context, dsn string, bus *events.Bus) (*Repositories, error) {
	db, err := Open(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewRepositories(db, bus), nil
}

func NewRepositories(db *sql.DB, bus *events.Bus) *Repositories {
	return &Repositories{
		DB:        db,
		Metadata:  metadata.NewSQLiteRepository(db),
		Uploads:   uploads.NewSQLiteRepository(db),
		Processed: processed.NewSQLiteRepository(db, bus),
		RawData:   rawdata.NewSQLiteRepository(db, bus),
		Crud:      crud.NewSQLiteRepository(db),
	}
}
