package backpressure

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"default", DefaultPolicy(), false},
		{"min capacity", Policy{Capacity: 1}, false},
		{"max capacity", Policy{Capacity: MaxCapacity}, false},
		{"zero capacity", Policy{Capacity: 0}, true},
		{"too large", Policy{Capacity: MaxCapacity + 1}, true},
		{"watermark at capacity", Policy{Capacity: 4, LowWatermark: 4}, true},
		{"negative watermark", Policy{Capacity: 4, LowWatermark: -1}, true},
		{"bad leaky", Policy{Capacity: 4, Leaky: Leaky(9)}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.policy.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseLeaky(t *testing.T) {
	for in, want := range map[string]Leaky{
		"":            Block,
		"block":       Block,
		"drop-newest": DropNewest,
		"Upstream":    DropNewest,
		"drop-oldest": DropOldest,
		"downstream":  DropOldest,
	} {
		got, err := ParseLeaky(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLeaky("sometimes")
	assert.Error(t, err)
}

func TestMonitor_OneSignalPerEpisode(t *testing.T) {
	var signals []Signal
	m := NewMonitor("queue-0", Policy{Capacity: 4}, func(s Signal) {
		signals = append(signals, s)
	})

	// Saturated and stays saturated: many Full calls, one signal
	for i := 0; i < 10; i++ {
		m.Full()
		m.Level(3) // one unit leaves, still above watermark (2)
	}
	require.Len(t, signals, 1)
	assert.Equal(t, "queue-0", signals[0].Buffer)
	assert.Equal(t, 4, signals[0].Capacity)
	assert.Equal(t, uint64(1), signals[0].Episode)
	assert.True(t, m.Saturated())

	// Drain to the watermark ends the episode
	m.Level(2)
	assert.False(t, m.Saturated())

	// Next saturation is a new episode
	m.Full()
	m.Full()
	require.Len(t, signals, 2)
	assert.Equal(t, uint64(2), signals[1].Episode)
	assert.Equal(t, uint64(2), m.Episodes())
}

func TestMonitor_CustomWatermark(t *testing.T) {
	var count int
	m := NewMonitor("queue-1", Policy{Capacity: 10, LowWatermark: 1}, func(Signal) { count++ })

	m.Full()
	m.Level(5)
	m.Level(2)
	m.Full()
	assert.Equal(t, 1, count, "episode must not end above the low watermark")

	m.Level(1)
	m.Full()
	assert.Equal(t, 2, count)
}

func TestMonitor_ConcurrentFull(t *testing.T) {
	var count atomic.Int32
	m := NewMonitor("queue-0", DefaultPolicy(), func(Signal) { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Full()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), count.Load())
}

func TestMonitor_NilEmit(t *testing.T) {
	m := NewMonitor("queue-0", DefaultPolicy(), nil)
	m.Full()
	assert.Equal(t, uint64(1), m.Episodes())
}
