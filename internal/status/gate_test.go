package status

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/internal/backend/backendtest"
	"github.com/Skotchmaster/tachyon_hub/internal/models"
	"github.com/Skotchmaster/tachyon_hub/internal/repo"
	"github.com/Skotchmaster/tachyon_hub/internal/session"
	"github.com/Skotchmaster/tachyon_hub/pkg/db"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status models.Status
		want   Decision
	}{
		{models.StatusActive, Decision{CanCreateCodes: true, CanView: true}},
		{models.StatusSuspended, Decision{CanView: true}},
		{models.StatusBanned, Decision{ForceLogout: true}},
		{"", Decision{CanCreateCodes: true, CanView: true}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Evaluate(tt.status))
		})
	}
}

func newStore(t *testing.T) *repo.GormRepo {
	t.Helper()
	gdb, err := db.Open(context.Background(), fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	r := &repo.GormRepo{DB: gdb}
	require.NoError(t, r.Migrate())
	return r
}

func TestCheck_Suspended(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	srv.AddUploader(models.Uploader{DiscordUID: "42", Status: models.StatusSuspended})
	c := &Checker{Backend: srv.Client(backend.Options{})}

	res := c.Check(context.Background(), session.Token{ExternalID: "42", Status: models.StatusActive})
	assert.Equal(t, models.StatusSuspended, res.Status)
	assert.False(t, res.Decision.CanCreateCodes)
	assert.True(t, res.Decision.CanView)
	assert.False(t, res.Stale)
	assert.Zero(t, srv.DeleteKeyCalls.Load())
}

func TestCheck_BannedDeletesKeyOnce(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddUploader(models.Uploader{DiscordUID: "42", Status: models.StatusBanned})
	srv.AddKey(models.APIKey{Key: "k", DiscordUID: "42"})

	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateSession(ctx, "jti-1", "42", time.Now().Add(time.Hour)))

	c := &Checker{Backend: srv.Client(backend.Options{}), Sessions: store}
	tok := session.Token{ExternalID: "42", JTI: "jti-1", Status: models.StatusActive}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.Check(ctx, tok)
			assert.True(t, res.Decision.ForceLogout)
		}()
	}
	wg.Wait()

	res := c.Check(ctx, tok)
	assert.True(t, res.Decision.ForceLogout)

	assert.EqualValues(t, 1, srv.DeleteKeyCalls.Load())
	assert.False(t, srv.HasKey("42"))

	active, err := store.SessionActive(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestBan_NoSessionsStillDeletesKey(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	srv.AddUploader(models.Uploader{DiscordUID: "42", Status: models.StatusBanned})
	srv.AddKey(models.APIKey{Key: "k", DiscordUID: "42"})

	c := &Checker{Backend: srv.Client(backend.Options{}), Sessions: newStore(t)}
	c.Ban(context.Background(), "42", "up-1")
	c.Ban(context.Background(), "42", "up-1")

	assert.EqualValues(t, 1, srv.DeleteKeyCalls.Load())
	assert.False(t, srv.HasKey("42"))
}

func TestCheck_BackendDownUsesTokenStatus(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	client := srv.Client(backend.Options{})
	srv.Close()

	c := &Checker{Backend: client}
	res := c.Check(context.Background(), session.Token{ExternalID: "42", Status: models.StatusSuspended})
	assert.True(t, res.Stale)
	assert.Equal(t, models.StatusSuspended, res.Status)
	assert.Equal(t, Decision{CanView: true}, res.Decision)
}
