// Package pgstore keeps notification templates and records in PostgreSQL.
package pgstore

import (
	"context"
	"embed"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lifebank/notifykit/pkg/notifications"
	"github.com/lifebank/notifykit/pkg/pg"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ notifications.TemplateStore = (*Store)(nil)
	_ notifications.RecordStore   = (*Store)(nil)
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	return pg.Migrate(ctx, pool, migrationsFS, "migrations", cfg, log)
}
