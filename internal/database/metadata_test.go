package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckwmsfield/internal/models"
)

func TestSyncMetadata(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	t1 := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	require.NoError(t, db.SaveSyncMetadata(ctx, &models.SyncMetadata{
		Kind: models.KindProducts, LastSyncAt: t1, Status: models.SyncStatusCompleted, Downloaded: 3,
	}, nil))
	require.NoError(t, db.SaveSyncMetadata(ctx, &models.SyncMetadata{
		Kind: models.KindSuppliers, LastSyncAt: t2, Status: models.SyncStatusPartial,
	}, []string{"create supplier local:1: boom"}))

	// upsert replaces the row
	require.NoError(t, db.SaveSyncMetadata(ctx, &models.SyncMetadata{
		Kind: models.KindSuppliers, LastSyncAt: t2, Status: models.SyncStatusCompleted,
	}, nil))

	rows, err := db.ListSyncMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		if r.Kind == models.KindSuppliers {
			require.Equal(t, models.SyncStatusCompleted, r.Status)
			var errs []string
			require.NoError(t, json.Unmarshal(r.Errors, &errs))
			require.Empty(t, errs)
		}
	}
}

func TestLastSyncTime(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	last, err := db.LastSyncTime(ctx)
	require.NoError(t, err)
	require.True(t, last.IsZero())

	// completed kinds alone do not make a completed cycle
	require.NoError(t, db.SaveSyncMetadata(ctx, &models.SyncMetadata{
		Kind: models.KindProducts, LastSyncAt: time.Now().UTC(), Status: models.SyncStatusCompleted,
	}, nil))
	last, err = db.LastSyncTime(ctx)
	require.NoError(t, err)
	require.True(t, last.IsZero())

	t1 := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	require.NoError(t, db.SaveLastSyncTime(ctx, t1))
	require.NoError(t, db.SaveLastSyncTime(ctx, t2))

	last, err = db.LastSyncTime(ctx)
	require.NoError(t, err)
	require.True(t, last.Equal(t2), last)
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.LoadCredential(ctx)
	require.ErrorIs(t, err, ErrRecordNotFound)

	require.NoError(t, db.SaveCredential(ctx, &models.Credential{Email: "a@b.c", AccessToken: "x", RefreshToken: "y"}))
	require.NoError(t, db.SaveCredential(ctx, &models.Credential{Email: "a@b.c", AccessToken: "x2", RefreshToken: "y2"}))

	c, err := db.LoadCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, "x2", c.AccessToken)

	require.NoError(t, db.ClearCredentials(ctx))
	_, err = db.LoadCredential(ctx)
	require.ErrorIs(t, err, ErrRecordNotFound)
}
