package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sprout-pricing/internal/config"
	"sprout-pricing/internal/storage"
)

// Migrate applies migrations/*.sql in lexical order against Postgres.
// The SQLite backend creates its schema on open, so there is nothing to run.
func (a *App) Migrate(ctx context.Context) error {
	if strings.EqualFold(a.Config.Database.Driver, config.DriverSQLite) {
		a.Logger.Info().Str("path", a.Config.Database.SQLitePath).Msg("sqlite schema is applied on open; nothing to migrate")
		return nil
	}

	files, err := storage.MigrationFiles(a.Config.Database.MigrationsPath)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations found in %s", a.Config.Database.MigrationsPath)
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return err
	}
	store := storage.NewStore(pool)
	defer store.Close()

	for _, file := range files {
		sql, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if err := store.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", filepath.Base(file), err)
		}
		a.Logger.Info().Str("migration", filepath.Base(file)).Msg("migration applied")
	}

	fmt.Fprintf(a.Out, "applied %d migration(s)\n", len(files))
	return nil
}
