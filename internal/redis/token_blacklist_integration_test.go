//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"friendfeed/internal/config"
)

func startRedis(t *testing.T) config.RedisConfig {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return config.RedisConfig{Addr: endpoint}
}

func TestRedisTokenBlacklist(t *testing.T) {
	cfg := startRedis(t)
	client, err := NewClient(t.Context(), cfg)
	require.NoError(t, err)
	defer client.Close()

	bl := NewRedisTokenBlacklist(client)

	revoked, err := bl.IsBlacklisted(t.Context(), "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, bl.Add(t.Context(), "jti-1", time.Now().Add(time.Minute)))
	revoked, err = bl.IsBlacklisted(t.Context(), "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl, err := client.TTL(t.Context(), blacklistKeyPrefix+"jti-1").Result()
	require.NoError(t, err)
	assert.InDelta(t, time.Minute.Seconds(), ttl.Seconds(), 5)

	// Already expired tokens are not stored.
	require.NoError(t, bl.Add(t.Context(), "jti-2", time.Now().Add(-time.Minute)))
	revoked, err = bl.IsBlacklisted(t.Context(), "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}
