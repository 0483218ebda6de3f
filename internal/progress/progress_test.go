package progress_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/webtrack/internal/progress"
	"github.com/jdholdren/webtrack/internal/webtrack"
)

func intPtr(i int) *int { return &i }

func TestPublishGet(t *testing.T) {
	var (
		ctx   = context.Background()
		mr    = miniredis.RunT(t)
		store = progress.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	)

	_, err := store.Get(ctx, "ingest-1")
	assert.ErrorIs(t, err, progress.ErrNotFound)

	snap := webtrack.Snapshot{
		Status:    webtrack.RequestStatusInProcess,
		Processed: intPtr(2),
		Total:     intPtr(5),
		Errors:    webtrack.SnapshotErrors{Count: 1, URLs: []string{"bad"}},
	}
	require.NoError(t, store.Publish(ctx, "ingest-1", snap))

	got, err := store.Get(ctx, "ingest-1")
	require.NoError(t, err)
	assert.Equal(t, snap, got)
	assert.True(t, mr.Exists("webtrack:progress:ingest-1"))

	// Overwritten, not merged
	snap.Processed = intPtr(5)
	snap.Status = webtrack.RequestStatusPartialFailure
	require.NoError(t, store.Publish(ctx, "ingest-1", snap))
	got, err = store.Get(ctx, "ingest-1")
	require.NoError(t, err)
	assert.Equal(t, 5, *got.Processed)
	assert.Equal(t, webtrack.RequestStatusPartialFailure, got.Status)
}

func TestExpiry(t *testing.T) {
	var (
		ctx   = context.Background()
		mr    = miniredis.RunT(t)
		store = progress.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	)

	require.NoError(t, store.Publish(ctx, "ingest-2", webtrack.Snapshot{Status: webtrack.RequestStatusInProcess}))
	assert.Equal(t, time.Minute, mr.TTL("webtrack:progress:ingest-2"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "ingest-2")
	assert.ErrorIs(t, err, progress.ErrNotFound)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := progress.NewClient(context.Background(), progress.ClientConfig{Address: mr.Addr()})
	require.NoError(t, err)
	client.Close()

	_, err = progress.NewClient(context.Background(), progress.ClientConfig{})
	assert.Error(t, err)

	addr := mr.Addr()
	mr.Close()
	_, err = progress.NewClient(context.Background(), progress.ClientConfig{Address: addr})
	assert.Error(t, err)
}
