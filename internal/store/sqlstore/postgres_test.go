package sqlstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/safar/shop-orders/internal/config"
	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/store"
	"github.com/safar/shop-orders/internal/store/storetest"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type postgresContainer struct {
	container testcontainers.Container
	dsn       string
}

func startPostgres(t *testing.T) *postgresContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return &postgresContainer{
		container: postgres,
		dsn:       fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port()),
	}
}

// newStore gives each subtest empty tables on the shared container.
func (pc *postgresContainer) newStore(t *testing.T) store.Repository {
	t.Helper()

	db, err := database.NewConnection(&config.DatabaseConfig{
		Driver:       config.DriverPostgres,
		URL:          pc.dsn,
		MaxOpenConns: 20,
		MaxIdleConns: 5,
	})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if _, err := database.Migrate(ctx, db, database.MigrateDown); err != nil {
		t.Fatalf("Failed to reset schema: %v", err)
	}
	if _, err := database.Migrate(ctx, db, database.MigrateUp); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return New(db, 3)
}

func TestPostgresStore(t *testing.T) {
	pc := startPostgres(t)
	storetest.Run(t, pc.newStore)
}

func TestPostgresLocksRowsInsideTx(t *testing.T) {
	pc := startPostgres(t)
	repo := pc.newStore(t).(*Store)

	tx := &querier{ext: repo.db, locking: true}
	if got := tx.forUpdate("SELECT 1"); got != "SELECT 1 FOR UPDATE" {
		t.Errorf("Expected FOR UPDATE inside a transaction, got %q", got)
	}
}
