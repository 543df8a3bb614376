package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxoffice/internal/platform/config"
)

func TestNew_EmptyURLDisablesRedis(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "not-a-url"}, nil)
	assert.Error(t, err)
}

func TestClient_HealthAndPoolStats(t *testing.T) {
	mr := miniredis.RunT(t)
	metrics := NewPoolMetrics(prometheus.NewRegistry())

	client, err := New(context.Background(), config.RedisConfig{
		URL:      "redis://" + mr.Addr(),
		PoolSize: 4,
	}, metrics)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Health(context.Background()))

	client.RecordPoolStats()
	assert.GreaterOrEqual(t, promtest.ToFloat64(metrics.totalConns), float64(1))

	mr.Close()
	assert.Error(t, client.Health(context.Background()))
}
