package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPostgres(t *testing.T) {
	t.Parallel()

	assert.True(t, isPostgres("postgres://u:p@localhost:5432/hub?sslmode=disable"))
	assert.True(t, isPostgres("postgresql://localhost/hub"))
	assert.True(t, isPostgres("host=localhost user=postgres dbname=hub"))
	assert.False(t, isPostgres("hub.db"))
	assert.False(t, isPostgres("file::memory:?cache=shared"))
}

func TestOpen_EmptyDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "")
	require.Error(t, err)
}

func TestOpen_SQLiteMemory(t *testing.T) {
	t.Parallel()

	gdb, err := Open(context.Background(), "file:open_test?mode=memory&cache=shared")
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}
