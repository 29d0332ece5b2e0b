package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest"
	"github.com/ory/dockertest/docker"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"
	"go.uber.org/zap"

	outbox "github.com/TimKotowski/pg-outbox-relay"
	"github.com/TimKotowski/pg-outbox-relay/migrations"
)

const (
	postgresDefaultPassword = "password"
	postgresDefaultUser     = "outbox"
	postgresDefaultDB       = "outbox_relay"

	tag = "17"
)

type Resource struct {
	Dsn string

	DB *bun.DB

	ContainerName string

	ContainerID string
}

// NewPool connects to the local docker daemon. The test is skipped in -short mode
// or when docker is unreachable.
func NewPool(t *testing.T) *dockertest.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}

	return pool
}

// SetUp starts a postgres container with the outbox schema migrated.
// Set OUTBOX_TEST_SQL_DEBUG=1 to log every query.
func SetUp(pool *dockertest.Pool, t *testing.T) Resource {
	t.Helper()
	ctx := context.Background()
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        tag,
		Env: []string{
			"POSTGRES_PASSWORD=" + postgresDefaultPassword,
			"POSTGRES_USER=" + postgresDefaultUser,
			"POSTGRES_DB=" + postgresDefaultDB,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("purging postgres container: %v", err)
		}
	})

	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresDefaultUser,
		postgresDefaultPassword,
		resource.GetBoundIP("5432/tcp"),
		resource.GetPort("5432/tcp"),
		postgresDefaultDB,
	)

	pool.MaxWait = 30 * time.Second
	db, err := pgIsReady(ctx, pool, databaseURL)
	require.NoError(t, err)
	require.NotNil(t, db, "db connection unsuccessful")
	t.Cleanup(func() {
		_ = db.Close()
	})

	if os.Getenv("OUTBOX_TEST_SQL_DEBUG") != "" {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	err = migrations.Migrate(ctx, db, zap.NewNop())
	require.NoError(t, err)

	return Resource{
		Dsn:           databaseURL,
		DB:            db,
		ContainerName: resource.Container.Name,
		ContainerID:   resource.Container.ID,
	}
}

func pgIsReady(ctx context.Context, pool *dockertest.Pool, dsn string) (*bun.DB, error) {
	var db *bun.DB

	if err := pool.Retry(func() error {
		var err error
		db, err = outbox.GetDBConnection(ctx, outbox.NewConfig(outbox.WithDSN(dsn)))
		return err
	}); err != nil {
		return nil, err
	}

	return db, nil
}
