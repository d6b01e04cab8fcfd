package database

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/safar/shop-orders/migrations"
)

const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// MigrationFiles lists the embedded migrations for driver in the order they
// must run for direction.
func MigrationFiles(driver, direction string) ([]string, error) {
	if direction != MigrateUp && direction != MigrateDown {
		return nil, fmt.Errorf("direction must be %q or %q", MigrateUp, MigrateDown)
	}

	entries, err := fs.ReadDir(migrations.FS, driver)
	if err != nil {
		return nil, fmt.Errorf("read migrations for %s: %w", driver, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), fmt.Sprintf(".%s.sql", direction)) {
			files = append(files, path.Join(driver, entry.Name()))
		}
	}

	sort.Strings(files)
	if direction == MigrateDown {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}

	return files, nil
}

// Migrate runs every embedded migration for the connection's driver and
// returns how many files were applied.
func Migrate(ctx context.Context, db *sqlx.DB, direction string) (int, error) {
	files, err := MigrationFiles(db.DriverName(), direction)
	if err != nil {
		return 0, err
	}

	for i, name := range files {
		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return i, fmt.Errorf("read migration file %s: %w", name, err)
		}

		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return i, fmt.Errorf("execute migration %s: %w", name, err)
		}
	}

	return len(files), nil
}
