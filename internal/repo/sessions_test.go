package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/tachyon_hub/pkg/db"
)

func newRepo(t *testing.T) *GormRepo {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := db.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	r := &GormRepo{DB: gdb}
	require.NoError(t, r.Migrate())
	return r
}

func TestSessionLifecycle(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateSession(ctx, "jti-1", "42", time.Now().Add(time.Hour)))

	ok, err := r.SessionActive(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.RevokeSession(ctx, "jti-1", "logout"))

	ok, err = r.SessionActive(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)

	s, err := r.FindSession(ctx, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, "logout", s.RevokedReason)
}

func TestSessionActive_UnknownAndExpired(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	ok, err := r.SessionActive(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.CreateSession(ctx, "old", "42", time.Now().Add(-time.Minute)))
	ok, err = r.SessionActive(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.FindSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRevokeAllForDiscord(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, r.CreateSession(ctx, "a", "42", exp))
	require.NoError(t, r.CreateSession(ctx, "b", "42", exp))
	require.NoError(t, r.CreateSession(ctx, "c", "7", exp))

	n, err := r.RevokeAllForDiscord(ctx, "42", "banned")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = r.RevokeAllForDiscord(ctx, "42", "banned")
	require.NoError(t, err)
	assert.Zero(t, n)

	ok, err := r.SessionActive(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPurgeExpired(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateSession(ctx, "old", "42", time.Now().Add(-time.Hour)))
	require.NoError(t, r.CreateSession(ctx, "new", "42", time.Now().Add(time.Hour)))

	n, err := r.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = r.FindSession(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
