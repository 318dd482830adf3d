package docstore

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type migration struct {
	version string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		migrations = append(migrations, migration{version: strings.TrimSuffix(name, ".sql"), sql: string(data)})
	}

	return migrations, nil
}

// applyMigrations runs every migration not yet recorded, in name order, in a
// single transaction.
func (s *Store) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)")
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, pending := range migrations {
		var count int

		err = tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", pending.version).
			Scan(&count)
		if err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}

		if count > 0 {
			continue
		}

		_, err = tx.ExecContext(ctx, pending.sql)
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", pending.version, err)
		}

		_, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", pending.version)
		if err != nil {
			return fmt.Errorf("record migration %s: %w", pending.version, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}

	return nil
}
