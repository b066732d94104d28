package collector

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srodi/wattrace/pkg/types"
)

type fakeSampler struct {
	name   string
	calls  atomic.Int64
	closed atomic.Bool
}

func (f *fakeSampler) Name() string     { return f.name }
func (f *fakeSampler) HasUIDData() bool { return true }

func (f *fakeSampler) Calculate(iter int64) (*types.IterationData, error) {
	f.calls.Add(1)
	data := types.NewIterationData()
	data.UIDPower[types.UIDAll] = int(iter)
	return data, nil
}

func (f *fakeSampler) Close() error {
	f.closed.Store(true)
	return nil
}

func TestDataReturnsNilWithoutMatch(t *testing.T) {
	c := New(&fakeSampler{name: "CPU"})
	if got := c.Data(0); got != nil {
		t.Fatalf("expected nil before any store, got %+v", got)
	}
}

func TestStoreKeepsCurrentAndPreviousIteration(t *testing.T) {
	c := New(&fakeSampler{name: "CPU"})
	d1 := types.NewIterationData()
	d2 := types.NewIterationData()
	d3 := types.NewIterationData()

	c.store(1, d1)
	c.store(2, d2)
	if got := c.Data(1); got != d1 {
		t.Fatalf("previous iteration lost after producer advanced")
	}
	if got := c.Data(2); got != d2 {
		t.Fatalf("current iteration missing")
	}

	c.store(3, d3)
	if got := c.Data(1); got != nil {
		t.Fatalf("iteration two steps back should be gone, got %+v", got)
	}
}

func TestStoreSameIterationOverwritesWithoutShifting(t *testing.T) {
	c := New(&fakeSampler{name: "CPU"})
	first := types.NewIterationData()
	second := types.NewIterationData()
	c.store(4, first)
	c.store(5, second)

	updated := types.NewIterationData()
	c.store(5, updated)
	if got := c.Data(5); got != updated {
		t.Fatalf("rewrite of same iteration not visible")
	}
	if got := c.Data(4); got != first {
		t.Fatalf("rewrite must not evict the previous iteration")
	}
}

func TestProducerLoopRunsAndCloses(t *testing.T) {
	fake := &fakeSampler{name: "CPU"}
	c := New(fake)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx, time.Now(), 5*time.Millisecond)
	deadline := time.After(time.Second)
	for fake.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("producer loop too slow: %d calls", fake.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !fake.closed.Load() {
		t.Fatalf("sampler not released on close")
	}
	settled := fake.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if fake.calls.Load() != settled {
		t.Fatalf("producer kept running after close")
	}
}
