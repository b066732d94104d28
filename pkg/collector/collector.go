package collector

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/srodi/wattrace/pkg/types"
)

// Sampler produces one measurement set per iteration for a single hardware
// component. Calculate runs on the component's own goroutine, never the
// aggregator's.
type Sampler interface {
	Name() string
	HasUIDData() bool
	Calculate(iter int64) (*types.IterationData, error)
	Close() error
}

// Component schedules a Sampler on its own goroutine and exposes the
// non-blocking per-iteration pull the aggregator relies on. Results land in a
// two-slot cell: the aggregator asks for iteration N right when the producer
// may already be writing N+1, so a single latest-value slot would drop every
// sample produced on the boundary.
type Component struct {
	sampler Sampler

	mu    sync.Mutex
	slots [2]resultSlot

	cancel context.CancelFunc
	done   chan struct{}
}

type resultSlot struct {
	iter int64
	data *types.IterationData
}

// New wraps a sampler in its scheduling shell.
func New(s Sampler) *Component {
	c := &Component{sampler: s}
	c.slots[0].iter = -1
	c.slots[1].iter = -1
	return c
}

// Name reports the sampler's component name.
func (c *Component) Name() string { return c.sampler.Name() }

// HasUIDData reports whether the sampler breaks readings down per UID.
func (c *Component) HasUIDData() bool { return c.sampler.HasUIDData() }

// Start launches the producer loop against the shared iteration timeline.
func (c *Component) Start(ctx context.Context, epoch time.Time, interval time.Duration) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx, epoch, interval)
}

func (c *Component) run(ctx context.Context, epoch time.Time, interval time.Duration) {
	defer close(c.done)
	for iter := int64(-1); ; {
		elapsed := time.Since(epoch)
		iter = max(iter+1, int64(elapsed/interval))

		data, err := c.sampler.Calculate(iter)
		if err != nil {
			log.Printf("%s sampler: %v", c.Name(), err)
		} else if data != nil {
			c.store(iter, data)
		}

		deadline := epoch.Add(time.Duration(iter+1) * interval)
		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Component) store(iter int64, data *types.IterationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Keep the newest result in slot 0 and the previous one in slot 1.
	if iter != c.slots[0].iter {
		c.slots[1] = c.slots[0]
	}
	c.slots[0] = resultSlot{iter: iter, data: data}
}

// Data returns the measurement set for one iteration, or nil when the sampler
// has not produced it. It never blocks on the producer.
func (c *Component) Data(iter int64) *types.IterationData {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.slots {
		if s.iter == iter {
			return s.data
		}
	}
	return nil
}

// Close stops the producer loop, waits for it, and releases the sampler.
func (c *Component) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return c.sampler.Close()
}
