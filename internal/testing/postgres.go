//go:build integration

package testing

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"github.com/teranos/dataloader/db"
)

// CreatePostgresTestDB starts a throwaway PostgreSQL container and returns a
// migrated connection to it. The container is purged via t.Cleanup().
func CreatePostgresTestDB(t *testing.T) *sql.DB {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("Docker not reachable: %v", err)
	}
	pool.MaxWait = 90 * time.Second

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=dataloader",
			"POSTGRES_PASSWORD=dataloader",
			"POSTGRES_DB=dataloader",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("Failed to purge postgres container: %v", err)
		}
	})
	_ = resource.Expire(300)

	dsn := fmt.Sprintf("postgres://dataloader:dataloader@%s/dataloader?sslmode=disable", resource.GetHostPort("5432/tcp"))

	var database *sql.DB
	if err := pool.Retry(func() error {
		conn, err := sql.Open("pgx", dsn)
		if err != nil {
			return err
		}
		if err := conn.Ping(); err != nil {
			conn.Close()
			return err
		}
		database = conn
		return nil
	}); err != nil {
		t.Fatalf("Postgres did not become ready: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})

	if err := db.Migrate(database, nil); err != nil {
		t.Fatalf("Failed to migrate postgres test database: %v", err)
	}

	return database
}
