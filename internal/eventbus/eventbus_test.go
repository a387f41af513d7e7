package eventbus

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/vec"
)

func TestMemoryBus_DeliversFilteredInOrder(t *testing.T) {
	bus := NewMemoryBus(16)

	var mu sync.Mutex
	var got []string
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{EventChunkReady}}, func(_ context.Context, ev *Envelope) {
		var payload ChunkEvent
		require.NoError(t, ev.Decode(&payload))
		mu.Lock()
		got = append(got, payload.Position.String())
		mu.Unlock()
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ev, err := NewEnvelope("test", EventChunkReady, 1, ChunkEvent{World: "w", Position: vec.Vec3{X: i}})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	saved, err := NewEnvelope("test", EventWorldSaved, 1, WorldSavedEvent{World: "w"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), saved))

	// Close дожидается доставки принятых событий
	require.NoError(t, bus.Close())

	assert.Equal(t, []string{"(0,0,0)", "(1,0,0)", "(2,0,0)"}, got)

	stats := bus.Metrics()
	assert.Equal(t, uint64(4), stats.Published)
	assert.Equal(t, uint64(3), stats.Consumed)

	assert.ErrorIs(t, bus.Publish(context.Background(), saved), ErrClosed)
	assert.NoError(t, bus.Close(), "повторное закрытие безопасно")
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus(4)

	calls := 0
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) { calls++ })
	require.NoError(t, err)
	sub.Unsubscribe()

	ev, err := NewEnvelope("test", EventChunkUnloaded, 1, ChunkEvent{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Close())

	assert.Equal(t, 0, calls)
}

func TestNewEnvelope(t *testing.T) {
	ev, err := NewEnvelope("chunks", EventChunkReady, 3, ChunkEvent{World: "main", Position: vec.Vec3{Y: -2}, Loaded: true})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "chunks", ev.Source)
	assert.Equal(t, 1, ev.Version)
	assert.JSONEq(t, `{"world":"main","position":{"x":0,"y":-2,"z":0},"loaded":true}`, string(ev.Payload))
	assert.Equal(t, "events.chunk.ready", Subject(ev.EventType))
}

func TestMetricsExporter_Collect(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	reg := prometheus.NewRegistry()
	me := NewMetricsExporter(bus, reg)

	ev, err := NewEnvelope("test", EventWorldSaved, 1, WorldSavedEvent{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Publish(context.Background(), ev))

	prev := me.collect(Stats{})
	assert.Equal(t, 2.0, testutil.ToFloat64(me.published))

	me.collect(prev)
	assert.Equal(t, 2.0, testutil.ToFloat64(me.published), "повторный сбор не должен удваивать счётчик")
}
