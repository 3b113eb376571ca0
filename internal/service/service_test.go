package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/internal/backend/backendtest"
	"github.com/Skotchmaster/tachyon_hub/internal/models"
	"github.com/Skotchmaster/tachyon_hub/internal/repo"
	"github.com/Skotchmaster/tachyon_hub/internal/session"
	"github.com/Skotchmaster/tachyon_hub/internal/status"
	"github.com/Skotchmaster/tachyon_hub/pkg/db"
)

func TestCodes_CreateThenListRoundTrip(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	up := srv.AddUploader(models.Uploader{DiscordUID: "42", Name: "kanami"})
	svc := &Codes{Backend: srv.Client(backend.Options{})}
	ctx := context.Background()

	tok := session.Token{ExternalID: "42", Status: models.StatusActive}
	resp, err := svc.Create(ctx, tok, NewCode{
		Code:    "STRINOVA2026",
		Version: "global",
		Rewards: []models.CodeReward{{RewardID: "r-1", Amount: 300}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Status)

	_, _, _, body := srv.LastRequest()
	var sent map[string]any
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.Equal(t, "42", sent["discord_uid"])

	resp, err = svc.List(ctx, backend.CodeFilter{})
	require.NoError(t, err)
	require.True(t, resp.OK())

	var env struct {
		Success bool                `json:"success"`
		Count   int                 `json:"count"`
		Data    []models.RedeemCode `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &env))
	assert.True(t, env.Success)
	assert.Equal(t, 1, env.Count)
	require.Len(t, env.Data, 1)

	got := env.Data[0]
	assert.Equal(t, "STRINOVA2026", got.Code)
	assert.Equal(t, "global", got.Version)
	require.Len(t, got.Rewards, 1)
	assert.Equal(t, 300, got.Rewards[0].Amount)
	assert.Equal(t, up.ID, got.UploaderID)
	assert.Equal(t, "kanami", got.UploaderName)
	assert.Equal(t, "42", got.UploaderDiscordUID)
}

func TestCodes_CreateForwardsExtraFields(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	srv.AddUploader(models.Uploader{DiscordUID: "42", Name: "kanami"})
	svc := &Codes{Backend: srv.Client(backend.Options{})}
	ctx := context.Background()

	var in NewCode
	require.NoError(t, json.Unmarshal([]byte(`{"code":"ANNIV","event":"anniversary","max_uses":500,
		"discord_uid":"999","uploader_id":"up-other"}`), &in))
	assert.Equal(t, "ANNIV", in.Code)
	require.Contains(t, in.Extra, "event")
	assert.NotContains(t, in.Extra, "discord_uid")
	assert.NotContains(t, in.Extra, "uploader_id")

	tok := session.Token{ExternalID: "42", Status: models.StatusActive}
	resp, err := svc.Create(ctx, tok, in)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Status)

	_, _, _, body := srv.LastRequest()
	var sent map[string]any
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.Equal(t, "42", sent["discord_uid"])
	assert.Equal(t, "anniversary", sent["event"])
	assert.EqualValues(t, 500, sent["max_uses"])
	assert.NotContains(t, sent, "uploader_id")

	resp, err = svc.List(ctx, backend.CodeFilter{})
	require.NoError(t, err)
	var env struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &env))
	require.Len(t, env.Data, 1)
	assert.Equal(t, "anniversary", env.Data[0]["event"])
	assert.Equal(t, "kanami", env.Data[0]["uploader_name"])
}

func TestCodes_ListKeepsOrderAndUnknownUploaders(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	srv.AddUploader(models.Uploader{DiscordUID: "1", Name: "a"})
	srv.AddUploader(models.Uploader{DiscordUID: "2", Name: "b"})
	svc := &Codes{Backend: srv.Client(backend.Options{}), JoinLimit: 2}
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		owner := fmt.Sprint(i%2 + 1)
		_, err := svc.Create(ctx, session.Token{ExternalID: owner}, NewCode{Code: fmt.Sprintf("C%d", i)})
		require.NoError(t, err)
	}

	resp, err := svc.List(ctx, backend.CodeFilter{})
	require.NoError(t, err)

	var env models.Envelope[[]models.RedeemCode]
	require.NoError(t, json.Unmarshal(resp.Body, &env))
	require.Len(t, env.Data, 6)
	for i, c := range env.Data {
		assert.Equal(t, fmt.Sprintf("C%d", i), c.Code)
		assert.Equal(t, fmt.Sprint(i%2+1), c.UploaderDiscordUID)
	}
}

func TestCodes_CreateRefusedWhenSuspended(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	svc := &Codes{Backend: srv.Client(backend.Options{})}

	for _, st := range []models.Status{models.StatusSuspended, models.StatusBanned} {
		_, err := svc.Create(context.Background(), session.Token{ExternalID: "42", Status: st}, NewCode{Code: "X"})
		assert.ErrorIs(t, err, ErrCreateDisabled)
	}
	m, _, _, _ := srv.LastRequest()
	assert.Empty(t, m)
}

func TestCodes_ListRelaysFailures(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	svc := &Codes{Backend: srv.Client(backend.Options{APIKey: "wrong"})}

	resp, err := svc.List(context.Background(), backend.CodeFilter{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "invalid api key", resp.ErrorMessage())
}

func TestKeys_CreateDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		tok      session.Token
		in       NewKey
		wantName string
		wantDesc string
	}{
		{"explicit", session.Token{ExternalID: "42", Name: "kanami"}, NewKey{Name: "ci", Description: "deploys"}, "ci", "deploys"},
		{"session name", session.Token{ExternalID: "42", Name: "kanami"}, NewKey{}, "kanami", defaultKeyDescription},
		{"fallback", session.Token{ExternalID: "42"}, NewKey{Name: "  "}, defaultKeyName, defaultKeyDescription},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := backendtest.New(t)
			svc := &Keys{Backend: srv.Client(backend.Options{})}

			resp, err := svc.Create(context.Background(), tt.tok, tt.in)
			require.NoError(t, err)
			require.Equal(t, http.StatusCreated, resp.Status)

			var env models.Envelope[models.APIKey]
			require.NoError(t, json.Unmarshal(resp.Body, &env))
			assert.Equal(t, tt.wantName, env.Data.Name)
			assert.Equal(t, tt.wantDesc, env.Data.Description)
			assert.Equal(t, "42", env.Data.DiscordUID)
		})
	}
}

func TestUploaders_BanRevokesSessionsAndKey(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	up := srv.AddUploader(models.Uploader{DiscordUID: "42"})
	srv.AddKey(models.APIKey{Key: "k", DiscordUID: "42"})

	gdb, err := db.Open(context.Background(), "file:svc_ban?mode=memory&cache=shared")
	require.NoError(t, err)
	store := &repo.GormRepo{DB: gdb}
	require.NoError(t, store.Migrate())
	ctx := context.Background()
	require.NoError(t, store.CreateSession(ctx, "jti-1", "42", time.Now().Add(time.Hour)))

	client := srv.Client(backend.Options{})
	svc := &Uploaders{Backend: client, Bans: &status.Checker{Backend: client, Sessions: store}}
	resp, err := svc.SetStatus(ctx, up.ID, models.StatusBanned)
	require.NoError(t, err)
	require.True(t, resp.OK())

	got, _ := srv.Uploader("42")
	assert.Equal(t, models.StatusBanned, got.Status)

	active, err := store.SessionActive(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, active)
	assert.EqualValues(t, 1, srv.DeleteKeyCalls.Load())
	assert.False(t, srv.HasKey("42"))
}

func TestUploaders_BanWithoutSessionsStillDeletesKey(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	up := srv.AddUploader(models.Uploader{DiscordUID: "42"})
	srv.AddKey(models.APIKey{Key: "k", DiscordUID: "42"})

	client := srv.Client(backend.Options{})
	svc := &Uploaders{Backend: client, Bans: &status.Checker{Backend: client}}
	_, err := svc.SetStatus(context.Background(), up.ID, models.StatusBanned)
	require.NoError(t, err)

	assert.EqualValues(t, 1, srv.DeleteKeyCalls.Load())
	assert.False(t, srv.HasKey("42"))
}
