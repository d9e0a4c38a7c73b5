package postgresengine_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asofreads/mvcc-asof-reads-go/asofreads"
	"github.com/asofreads/mvcc-asof-reads-go/asofreads/postgresengine"
	"github.com/asofreads/mvcc-asof-reads-go/testutil/postgres"
)

// These tests need a running Postgres with the asof_execute companion
// function installed. They are skipped unless ASOF_POSTGRES_DSN is set.

func requireDatabase(t *testing.T) {
	t.Helper()

	if os.Getenv("ASOF_POSTGRES_DSN") == "" {
		t.Skip("ASOF_POSTGRES_DSN not set, skipping database integration test")
	}
}

func Test_Integration_AllAdapters_ExecuteSimpleRead(t *testing.T) {
	requireDatabase(t)

	ctx := context.Background()

	pool, err := postgres.NewPGXPool(ctx)
	require.NoError(t, err)
	defer pool.Close()

	sqlDB, err := postgres.NewSQLDB(ctx)
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	sqlxDB, err := postgres.NewSQLXDB(ctx)
	require.NoError(t, err)
	defer func() { _ = sqlxDB.Close() }()

	gateways := map[string]postgresengine.Gateway{}

	gateways["pgx_pool"], err = postgresengine.NewGatewayFromPGXPool(pool)
	require.NoError(t, err)

	gateways["sql_db"], err = postgresengine.NewGatewayFromSQLDB(sqlDB)
	require.NoError(t, err)

	gateways["sqlx_db"], err = postgresengine.NewGatewayFromSQLX(sqlxDB)
	require.NoError(t, err)

	// a snapshot far in the future sees every committed row
	snapshot := "4294967295:4294967295:"

	for name, gw := range gateways {
		t.Run(name, func(t *testing.T) {
			// act
			rows, execErr := gw.Execute(ctx, snapshot, "SELECT 1 AS one", nil)

			// assert
			assert.NoError(t, execErr)
			assert.Len(t, rows, 1)
			assert.EqualValues(t, 1, rows[0]["one"])
		})
	}
}

func Test_Integration_RejectsWriteStatement(t *testing.T) {
	requireDatabase(t)

	ctx := context.Background()

	pool, err := postgres.NewPGXPool(ctx)
	require.NoError(t, err)
	defer pool.Close()

	gw, err := postgresengine.NewGatewayFromPGXPool(pool)
	require.NoError(t, err)

	// act
	_, execErr := gw.Execute(ctx, "4294967295:4294967295:", "DROP TABLE accounts", nil)

	// assert
	assert.ErrorIs(t, execErr, asofreads.ErrNotReadOnly)
}
