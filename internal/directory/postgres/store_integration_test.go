//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mollebakken/artconnect/internal/directory"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*Store, func()) {
	// Start postgres container
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &Config{
		ConnString:  connString,
		AutoMigrate: true, // Enable migrations for tests
	}

	store, err := NewStore(ctx, cfg)
	require.NoError(t, err)

	cleanup := func() {
		store.Close()
		_ = container.Terminate(ctx)
	}

	return store, cleanup
}

func TestIntegration_ProvisioningLifecycle(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	t.Run("unknown subject", func(t *testing.T) {
		_, err := store.ProvisioningRecord(ctx, "nobody")
		require.ErrorIs(t, err, directory.ErrUnknownSubject)
	})

	t.Run("put and fetch record", func(t *testing.T) {
		err := store.PutProvisioningRecord(ctx, directory.ProvisioningRecord{
			SubjectID: "parent-001",
			Token:     "tok-abc",
		})
		require.NoError(t, err)

		rec, err := store.ProvisioningRecord(ctx, "parent-001")
		require.NoError(t, err)
		require.Equal(t, "parent-001", rec.SubjectID)
		require.Equal(t, "tok-abc", rec.Token)
	})

	t.Run("put replaces existing token", func(t *testing.T) {
		err := store.PutProvisioningRecord(ctx, directory.ProvisioningRecord{
			SubjectID: "parent-001",
			Token:     "tok-rotated",
		})
		require.NoError(t, err)

		rec, err := store.ProvisioningRecord(ctx, "parent-001")
		require.NoError(t, err)
		require.Equal(t, "tok-rotated", rec.Token)
	})

	t.Run("create profile is idempotent", func(t *testing.T) {
		profile := directory.Profile{
			Email:    "parent-001@mollebakken.internal",
			Role:     "parent",
			ParentID: "parent-001",
		}

		err := store.CreateProfile(ctx, "acct-1", profile)
		require.NoError(t, err)

		// Second create for the same account must not fail.
		err = store.CreateProfile(ctx, "acct-1", profile)
		require.NoError(t, err)
	})
}
