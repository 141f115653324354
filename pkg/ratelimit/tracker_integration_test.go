//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_GetState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, logger)
	ctx := context.Background()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy {
		t.Error("Empty Redis state should be healthy")
	}

	headers := http.Header{}
	headers.Set("Retry-After", "3")
	cooldown, err := tracker.RecordThrottle(ctx, headers)
	if err != nil {
		t.Fatalf("RecordThrottle() error = %v", err)
	}
	if cooldown != 3*time.Second {
		t.Errorf("cooldown = %v, want 3s", cooldown)
	}

	state, err = tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() after throttle error = %v", err)
	}
	if state.Consecutive != 1 {
		t.Errorf("Consecutive = %d, want 1", state.Consecutive)
	}
	if state.IsHealthy {
		t.Error("State should be unhealthy during cooldown")
	}

	remaining := state.TimeUntilReset()
	if remaining <= 0 || remaining > 3*time.Second {
		t.Errorf("TimeUntilReset = %v, want within (0, 3s]", remaining)
	}
}

func TestTracker_Integration_SharedAcrossInstances(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	first := NewTracker(redisClient, logger)
	second := NewTracker(redisClient, logger)
	second.SetMaxWait(100 * time.Millisecond)
	ctx := context.Background()

	headers := http.Header{}
	headers.Set("Retry-After", "10")
	if _, err := first.RecordThrottle(ctx, headers); err != nil {
		t.Fatalf("RecordThrottle() error = %v", err)
	}

	allowed, err := second.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("Second tracker should observe the cooldown recorded by the first")
	}
}

func TestTracker_Integration_CooldownExpires(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, logger)
	ctx := context.Background()

	if _, err := tracker.RecordThrottle(ctx, http.Header{}); err != nil {
		t.Fatalf("RecordThrottle() error = %v", err)
	}

	time.Sleep(BaseCooldown + 200*time.Millisecond)

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy {
		t.Error("State should be healthy once the cooldown expired")
	}
}
