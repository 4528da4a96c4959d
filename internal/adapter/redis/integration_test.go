package redis

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/pscheid92/routerws/internal/adapter/metrics"
)

var (
	testRedisURL   string
	redisContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	redisContainer, err = tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	code := m.Run()

	if err := redisContainer.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
	}
	os.Exit(code)
}

func setupTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, testRedisURL, NewCircuitBreakerHook(0, nil))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse redis URL")
}

func TestFanout_DeliversAcrossInstances(t *testing.T) {
	client := setupTestClient(t)
	channel := fmt.Sprintf("routerws:test:%d", time.Now().UnixNano())

	a := NewFanout(client, channel, "instance-a", metrics.NewFanoutMetrics(prometheus.NewRegistry()))
	b := NewFanout(client, channel, "instance-b", metrics.NewFanoutMetrics(prometheus.NewRegistry()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	targetA := &recordingDeliverer{}
	targetB := &recordingDeliverer{}
	done := make(chan error, 2)
	go func() { done <- a.Run(ctx, targetA) }()
	go func() { done <- b.Run(ctx, targetB) }()

	require.Eventually(t, func() bool {
		counts, err := client.PubSubNumSub(ctx, channel).Result()
		return err == nil && counts[channel] == 2
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, a.Publish(ctx, []byte(`{"msg":"from a"}`)))

	require.Eventually(t, func() bool { return len(targetB.received()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.JSONEq(t, `{"msg":"from a"}`, string(targetB.received()[0]))
	assert.Empty(t, targetA.received(), "an instance ignores its own broadcasts")
	assert.InDelta(t, 1, testutil.ToFloat64(a.metrics.Published.WithLabelValues("redis")), 0)

	cancel()
	for iter := 0; iter < 2; iter++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("subscriber did not stop")
		}
	}
}
