package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestGormStore_InsertAndRecent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("uki"),
		postgres.WithUsername("uki"),
		postgres.WithPassword("uki"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.Insert(ctx, &Entry{OriginID: 1, Actuator: "leg", Field: "mode", Mode: 2, AppliedAt: base}))
	require.NoError(t, store.Insert(ctx, &Entry{OriginID: 2, Actuator: "wing", Field: "speed", Speed: 0.75, AppliedAt: base.Add(time.Second)}))

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, uint32(2), recent[0].OriginID)
	assert.Equal(t, float32(0.75), recent[0].Speed)
	assert.Equal(t, "leg", recent[1].Actuator)
	assert.Equal(t, 2, recent[1].Mode)
}
