package identity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/internal/backend/backendtest"
	"github.com/Skotchmaster/tachyon_hub/internal/events"
	"github.com/Skotchmaster/tachyon_hub/internal/models"
)

type captured struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captured) Publish(_ context.Context, _, _ string, event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := event.(events.Event); ok {
		c.events = append(c.events, e)
	}
	return nil
}

func (c *captured) Close() error { return nil }

func TestEnsure_CreatesOnce(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	pub := &captured{}
	b := &Bridge{Backend: srv.Client(backend.Options{}), Events: pub}

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Ensure(context.Background(), "42", "kanami"))
	}

	assert.Equal(t, 1, srv.UploaderCount())
	assert.EqualValues(t, 1, srv.CreateUploaderCalls.Load())

	u, ok := srv.Uploader("42")
	require.True(t, ok)
	assert.Equal(t, "kanami", u.Name)
	assert.Equal(t, models.StatusActive, u.Status)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.UploaderCreated, pub.events[0].Type)
}

func TestEnsure_ConcurrentLogins(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	b := &Bridge{Backend: srv.Client(backend.Options{})}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = b.Ensure(context.Background(), "42", "kanami")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, srv.UploaderCount())
}

func TestEnsure_ExistingIsNoop(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	srv.AddUploader(models.Uploader{DiscordUID: "42", Name: "old"})
	b := &Bridge{Backend: srv.Client(backend.Options{})}

	require.NoError(t, b.Ensure(context.Background(), "42", "new"))
	assert.Zero(t, srv.CreateUploaderCalls.Load())

	u, _ := srv.Uploader("42")
	assert.Equal(t, "old", u.Name)
}

type stubBackend struct {
	lookupErr  error
	createResp *backend.Response
	createErr  error
}

func (s stubBackend) GetUploaderByDiscord(context.Context, string) (*models.Uploader, error) {
	return nil, s.lookupErr
}

func (s stubBackend) CreateUploader(context.Context, backend.CreateUploaderInput) (*backend.Response, error) {
	return s.createResp, s.createErr
}

func TestEnsure_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		stub      stubBackend
		wantStage string
	}{
		{
			name:      "backend down",
			stub:      stubBackend{lookupErr: backend.ErrUnavailable},
			wantStage: StageLookup,
		},
		{
			name:      "create rejected",
			stub:      stubBackend{lookupErr: backend.ErrNotFound, createResp: &backend.Response{Status: http.StatusBadRequest, Body: []byte(`{"error":"bad name"}`)}},
			wantStage: StageCreate,
		},
		{
			name:      "create network error",
			stub:      stubBackend{lookupErr: backend.ErrNotFound, createErr: backend.ErrUnavailable},
			wantStage: StageCreate,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := &Bridge{Backend: tt.stub}
			err := b.Ensure(context.Background(), "42", "kanami")

			var ee *EnrichmentError
			require.True(t, errors.As(err, &ee))
			assert.Equal(t, tt.wantStage, ee.Stage)
			assert.Equal(t, "42", ee.DiscordUID)
		})
	}
}
