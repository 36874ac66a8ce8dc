package store

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"sort"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// RunMigrations executes the dialect's SQL files in alphabetical order.
// Each file is executed in a single transaction. Files must be idempotent.
func RunMigrations(ctx context.Context, db *sql.DB, d Dialect) error {
	dir := path.Join("migrations", string(d))
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return err
	}
	// ensure deterministic order: 001_..., 002_..., etc.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		sqlBytes, err := fs.ReadFile(migrationsFS, path.Join(dir, e.Name()))
		if err != nil {
			return err
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
