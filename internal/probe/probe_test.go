package probe

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_RunsInAttachmentOrder(t *testing.T) {
	var c Chain
	var order []int

	for i := 1; i <= 3; i++ {
		i := i
		c.Add(func(*Sample) Disposition {
			order = append(order, i)
			return Continue
		})
	}

	got := c.Run(&Sample{Port: "capture-0.src"})
	assert.Equal(t, Continue, got)
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 3, c.Len())
}

func TestChain_DropStopsChain(t *testing.T) {
	var c Chain
	var calledAfterDrop bool

	c.Add(func(*Sample) Disposition { return Continue })
	c.Add(func(*Sample) Disposition { return Drop })
	c.Add(func(*Sample) Disposition {
		calledAfterDrop = true
		return Continue
	})

	assert.Equal(t, Drop, c.Run(&Sample{}))
	assert.False(t, calledAfterDrop, "probes after a Drop must not run")
}

func TestChain_EmptyContinues(t *testing.T) {
	var c Chain
	assert.Equal(t, Continue, c.Run(&Sample{}))
	assert.Zero(t, c.Len())
}

func TestChain_ConcurrentAddAndRun(t *testing.T) {
	var c Chain
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.Add(func(*Sample) Disposition { return Continue })
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.Run(&Sample{Seq: c.NextSeq()})
		}
	}()
	wg.Wait()

	require.Equal(t, 100, c.Len())
	assert.Equal(t, uint64(1001), c.NextSeq())
}

func TestSink_DeliverWithoutConsumer(t *testing.T) {
	var k Sink
	assert.Equal(t, FlowOK, k.Deliver(&Sample{}))
	assert.Equal(t, uint64(1), k.Delivered())
}

func TestSink_ConsumerFlowIsReturned(t *testing.T) {
	var k Sink
	var seen []uint64

	k.SetConsumer(func(s *Sample) Flow {
		seen = append(seen, s.Seq)
		if s.Seq == 2 {
			return FlowEOS
		}
		return FlowOK
	})

	assert.Equal(t, FlowOK, k.Deliver(&Sample{Seq: 1}))
	assert.Equal(t, FlowEOS, k.Deliver(&Sample{Seq: 2}))
	assert.Equal(t, []uint64{1, 2}, seen)

	k.SetConsumer(nil)
	assert.Equal(t, FlowOK, k.Deliver(&Sample{Seq: 3}))
	assert.Equal(t, []uint64{1, 2}, seen)
}
