package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/safar/shop-orders/internal/config"
	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/store"
	"github.com/safar/shop-orders/internal/store/storetest"
)

func newSQLiteStore(t *testing.T) store.Repository {
	t.Helper()

	db, err := database.NewConnection(&config.DatabaseConfig{
		Driver: config.DriverSQLite,
		URL:    "file:" + filepath.Join(t.TempDir(), "shop.db"),
	})
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := database.Migrate(context.Background(), db, database.MigrateUp); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return New(db, 3)
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, newSQLiteStore)
}

func TestForUpdateOnlyInsidePostgresTx(t *testing.T) {
	repo := newSQLiteStore(t).(*Store)

	const query = "SELECT 1"
	if got := repo.forUpdate(query); got != query {
		t.Errorf("Pool queries must not lock, got %q", got)
	}

	tx := &querier{ext: repo.db, locking: true}
	if got := tx.forUpdate(query); got != query {
		t.Errorf("SQLite transactions must not add FOR UPDATE, got %q", got)
	}
}
