//go:build e2e

package e2e

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go"

	"github.com/pendergraft/deployer/internal/storage"
)

var (
	testCtx      = &TestContext{}
	postgresOnce sync.Once
	postgresErr  error
)

func TestMain(m *testing.M) {
	// Parse flags
	flag.Parse()

	// Simulated-chain tests need no infrastructure; Postgres starts on first use
	log.Println("Running E2E tests...")
	exitCode := m.Run()
	log.Println("E2E tests completed with exit code:", exitCode)

	teardownPostgres(context.Background())
	os.Exit(exitCode)
}

// postgresStore returns the shared Postgres-backed store, starting the
// container on first use. Tests are skipped when Docker is unavailable.
func postgresStore(t *testing.T) storage.Store {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	postgresOnce.Do(func() {
		ctx := context.Background()

		log.Println("Starting Postgres container...")
		testCtx.PostgresContainer, testCtx.ConnString, postgresErr = setupPostgresE(ctx)
		if postgresErr != nil {
			return
		}
		log.Println("Postgres container started")

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		store, err := storage.NewPostgresStore(testCtx.ConnString, logger)
		if err != nil {
			postgresErr = err
			return
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			postgresErr = err
			return
		}
		testCtx.Store = store
	})
	if postgresErr != nil {
		t.Fatalf("postgres setup failed: %v", postgresErr)
	}
	return testCtx.Store
}

func teardownPostgres(ctx context.Context) {
	if testCtx.Store != nil {
		testCtx.Store.Close()
	}
	if testCtx.PostgresContainer != nil {
		if err := testCtx.PostgresContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate postgres container: %v", err)
		}
	}
}
