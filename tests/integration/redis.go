package integration

import (
	"context"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/infrastructure/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestRedis is a throwaway Redis container
type TestRedis struct {
	Client    *redis.Client
	Container testcontainers.Container
	Host      string
	Port      int
}

// NewTestRedis starts a Redis container and connects to it. The container is
// terminated on test cleanup.
func NewTestRedis(t *testing.T) *TestRedis {
	t.Helper()
	skipIfShort(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err, "Failed to get Redis host")
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err, "Failed to get Redis port")

	client, err := cache.NewRedisClient(ctx, cache.RedisConfig{Host: host, Port: port.Int()})
	require.NoError(t, err, "Failed to connect to Redis")

	tr := &TestRedis{Client: client, Container: container, Host: host, Port: port.Int()}
	t.Cleanup(func() {
		_ = client.Close()
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate Redis container: %v", err)
		}
	})
	return tr
}
