package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/routerws/internal/adapter/metrics"
	"github.com/pscheid92/routerws/internal/domain"
	"github.com/pscheid92/routerws/internal/registry"
	"github.com/pscheid92/routerws/internal/registry/registrytest"
	"github.com/pscheid92/routerws/internal/timestamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)

// mockFanout records published payloads.
type mockFanout struct {
	mu        sync.Mutex
	published []json.RawMessage
	err       error
}

func (m *mockFanout) Publish(_ context.Context, payload json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, payload)
	return m.err
}

func (m *mockFanout) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

type testEnv struct {
	engine   *Engine
	registry *registry.Registry
	metrics  *metrics.BroadcastMetrics
}

func newTestEngine(t *testing.T, fanout domain.Fanout) testEnv {
	t.Helper()
	reg := registry.New()
	clock := timestamp.NewProvider(clockwork.NewFakeClockAt(t0), "UTC")
	m := metrics.NewBroadcastMetrics(prometheus.NewRegistry())
	return testEnv{
		engine:   NewEngine(reg, clock, fanout, m),
		registry: reg,
		metrics:  m,
	}
}

func (env testEnv) connect(t *testing.T, transport *registrytest.Transport) *registry.Connection {
	t.Helper()
	conn := registry.NewConnection(transport, "", clockwork.NewRealClock(), registry.Options{})
	require.NoError(t, env.registry.Register(conn))
	t.Cleanup(func() { env.registry.Deregister(conn) })
	return conn
}

func decodeEnvelope(t *testing.T, raw []byte) domain.Envelope {
	t.Helper()
	var env domain.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func TestBroadcast_EmptyRegistry(t *testing.T) {
	env := newTestEngine(t, nil)

	count, err := env.engine.Broadcast(context.Background(), json.RawMessage(`{"x":1}`))

	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestBroadcast_OneFailingConnectionDoesNotStopOthers(t *testing.T) {
	env := newTestEngine(t, nil)
	a := registrytest.NewTransport()
	b := registrytest.NewFailingTransport()
	c := registrytest.NewTransport()
	env.connect(t, a)
	env.connect(t, b)
	env.connect(t, c)

	count, err := env.engine.Broadcast(context.Background(), json.RawMessage(`{"msg":"hi"}`))

	require.NoError(t, err)
	assert.Equal(t, 3, count, "count is attempted deliveries, not successes")

	for _, tr := range []*registrytest.Transport{a, c} {
		require.True(t, tr.WaitForMessages(1, time.Second))
		msgs := tr.Messages()
		require.Len(t, msgs, 1)

		got := decodeEnvelope(t, msgs[0])
		assert.Equal(t, domain.EnvelopeBroadcast, got.Type)
		var data map[string]string
		require.NoError(t, json.Unmarshal(got.Data, &data))
		assert.Equal(t, "hi", data["msg"])
	}
	assert.Empty(t, b.Messages())
}

func TestBroadcast_DeadConnectionStillCountedAndSkipped(t *testing.T) {
	env := newTestEngine(t, nil)
	healthy := registrytest.NewTransport()
	broken := registrytest.NewFailingTransport()
	env.connect(t, healthy)
	dead := env.connect(t, broken)

	// The first write kills the connection; it stays registered until its read loop notices.
	require.NoError(t, dead.Send([]byte("boom")))
	require.Eventually(t, func() bool { return !dead.Alive() }, time.Second, time.Millisecond)

	count, err := env.engine.Broadcast(context.Background(), json.RawMessage(`{"msg":"hi"}`))

	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.True(t, healthy.WaitForMessages(1, time.Second))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.DeliveryFailures.WithLabelValues("closed")))
}

func TestBroadcast_SameEnvelopeForEveryConnection(t *testing.T) {
	env := newTestEngine(t, nil)
	transports := []*registrytest.Transport{registrytest.NewTransport(), registrytest.NewTransport(), registrytest.NewTransport()}
	for _, tr := range transports {
		env.connect(t, tr)
	}

	_, err := env.engine.Broadcast(context.Background(), json.RawMessage(`{"msg":"same"}`))
	require.NoError(t, err)

	var first []byte
	for _, tr := range transports {
		require.True(t, tr.WaitForMessages(1, time.Second))
		msg := tr.Messages()[0]
		if first == nil {
			first = msg
			continue
		}
		assert.Equal(t, string(first), string(msg))
	}

	got := decodeEnvelope(t, first)
	assert.Equal(t, "2026-10-15T12:00:00.000Z", got.Timestamp.ISO)
	assert.Equal(t, "10/15/2026, 12:00:00", got.Timestamp.Local)
	assert.Equal(t, "UTC", got.Timestamp.Timezone)
}

func TestBroadcast_RejectsEmptyPayload(t *testing.T) {
	env := newTestEngine(t, nil)
	tr := registrytest.NewTransport()
	env.connect(t, tr)

	for _, payload := range []string{"", "  ", "null", "{}", "[]", `""`, "{ }"} {
		count, err := env.engine.Broadcast(context.Background(), json.RawMessage(payload))
		assert.ErrorIs(t, err, domain.ErrEmptyPayload, "payload %q", payload)
		assert.Equal(t, 0, count)
	}

	assert.False(t, tr.WaitForMessages(1, 50*time.Millisecond))
}

func TestBroadcast_RejectsInvalidJSON(t *testing.T) {
	env := newTestEngine(t, nil)

	_, err := env.engine.Broadcast(context.Background(), json.RawMessage(`{"msg":`))

	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestBroadcast_ScalarPayload(t *testing.T) {
	env := newTestEngine(t, nil)
	tr := registrytest.NewTransport()
	env.connect(t, tr)

	count, err := env.engine.Broadcast(context.Background(), json.RawMessage(`"hello"`))

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.True(t, tr.WaitForMessages(1, time.Second))
	assert.Equal(t, `"hello"`, string(decodeEnvelope(t, tr.Messages()[0]).Data))
}

func TestBroadcast_EvictsSlowClient(t *testing.T) {
	env := newTestEngine(t, nil)
	slowTransport := registrytest.NewBlockingTransport()
	slow := registry.NewConnection(slowTransport, "", clockwork.NewRealClock(), registry.Options{SendBufferSize: 1})
	require.NoError(t, env.registry.Register(slow))
	fast := registrytest.NewTransport()
	env.connect(t, fast)

	for iter := 0; iter < 5; iter++ {
		_, err := env.engine.Broadcast(context.Background(), json.RawMessage(`{"n":1}`))
		require.NoError(t, err)
	}

	assert.Equal(t, 1, env.registry.Size())
	assert.False(t, slow.Alive())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SlowClientsEvicted))
	assert.True(t, fast.WaitForMessages(5, time.Second))
}

func TestBroadcast_PublishesToFanout(t *testing.T) {
	fanout := &mockFanout{}
	env := newTestEngine(t, fanout)

	_, err := env.engine.Broadcast(context.Background(), json.RawMessage(`{"msg":"hi"}`))
	require.NoError(t, err)

	assert.Equal(t, 1, fanout.count())
	assert.JSONEq(t, `{"msg":"hi"}`, string(fanout.published[0]))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.BroadcastsTotal.WithLabelValues(scopeFanout)))
}

func TestBroadcast_FanoutErrorIsNotSurfaced(t *testing.T) {
	fanout := &mockFanout{err: errors.New("redis down")}
	env := newTestEngine(t, fanout)
	env.connect(t, registrytest.NewTransport())

	count, err := env.engine.Broadcast(context.Background(), json.RawMessage(`{"msg":"hi"}`))

	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBroadcast_EmptyPayloadIsNotFannedOut(t *testing.T) {
	fanout := &mockFanout{}
	env := newTestEngine(t, fanout)

	_, err := env.engine.Broadcast(context.Background(), nil)

	require.ErrorIs(t, err, domain.ErrEmptyPayload)
	assert.Equal(t, 0, fanout.count())
}

func TestDeliver_DoesNotFanOut(t *testing.T) {
	fanout := &mockFanout{}
	env := newTestEngine(t, fanout)
	tr := registrytest.NewTransport()
	env.connect(t, tr)

	count, err := env.engine.Deliver(context.Background(), json.RawMessage(`{"from":"peer"}`))

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, fanout.count())
	assert.True(t, tr.WaitForMessages(1, time.Second))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.BroadcastsTotal.WithLabelValues(scopeLocal)))
}

func TestBroadcast_ConcurrentWithMembershipChanges(t *testing.T) {
	env := newTestEngine(t, nil)
	var wg sync.WaitGroup

	for iter := 0; iter < 8; iter++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for iter := 0; iter < 50; iter++ {
				_, err := env.engine.Broadcast(context.Background(), json.RawMessage(`{"tick":true}`))
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for iter := 0; iter < 50; iter++ {
				conn := registry.NewConnection(registrytest.NewTransport(), "", clockwork.NewRealClock(), registry.Options{SendBufferSize: 256})
				if !assert.NoError(t, env.registry.Register(conn)) {
					return
				}
				env.registry.Deregister(conn)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, env.registry.Size())
}
