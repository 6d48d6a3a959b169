//go:build integration

package permissions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/logger"
	"switchyard/internal/testinfra"
)

func TestRedisCacheBackedAuthority(t *testing.T) {
	client := testinfra.Redis(t)
	ctx := context.Background()

	next := &countingAuthority{granted: true}
	cached := NewCachedAuthority(next, NewRedisCache(client), "redis", time.Minute, logger.NopLogger())

	for i := 0; i < 2; i++ {
		granted, err := cached.HasPermission(ctx, "alice", IntegrationsRead.String())
		require.NoError(t, err)
		assert.True(t, granted)
	}
	assert.Equal(t, 1, next.calls)

	ttl, err := client.TTL(ctx, cacheKey("alice", IntegrationsRead.String())).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
