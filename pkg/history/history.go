package history

import (
	"sync"
	"time"

	"github.com/srodi/wattrace/pkg/types"
)

// Window names a continuously advancing aggregation horizon.
type Window int

const (
	// WindowTotal accumulates since process start and never resets.
	WindowTotal Window = iota
	// WindowCharge accumulates since the last charge-cycle boundary.
	WindowCharge
	// WindowDay accumulates since the last wall-clock day change.
	WindowDay

	numWindows
)

// timeNow allows tests to control the day-boundary clock.
var timeNow = time.Now

type windowState struct {
	total int64
	count int64
}

type uidHistory struct {
	values  []int
	iters   []int64
	head    int64
	windows [numWindows]windowState
}

// Buffer holds per-UID power history for one component: a fixed-capacity
// ring of per-iteration samples plus exact running totals per window.
//
// The ring is indexed by iteration modulo capacity; each slot carries the
// iteration it was written for, so slots skipped over by a forward jump read
// back as zero without any sweep. Windowed totals advance at most once per
// (UID, iteration) pair regardless of how often a sample is re-delivered.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	uids     map[int]*uidHistory
	day      int64
}

// New returns a Buffer retaining capacity per-iteration samples per UID.
// A zero capacity keeps windowed totals only, with no ring.
func New(capacity int) *Buffer {
	return &Buffer{
		capacity: capacity,
		uids:     make(map[int]*uidHistory),
		day:      daysSinceEpoch(timeNow()),
	}
}

func (b *Buffer) ensure(uid int) *uidHistory {
	h, ok := b.uids[uid]
	if !ok {
		h = &uidHistory{head: -1}
		if b.capacity > 0 {
			h.values = make([]int, b.capacity)
			h.iters = make([]int64, b.capacity)
			for i := range h.iters {
				h.iters[i] = -1
			}
		}
		b.uids[uid] = h
	}
	return h
}

// Add records one sample for (uid, iter). Samples older than the oldest
// retained slot are discarded. A repeated add for the same (uid, iter)
// overwrites the ring value but never contributes to the windowed totals a
// second time.
func (b *Buffer) Add(uid int, iter int64, value int) {
	if iter < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollDayLocked()

	h := b.ensure(uid)
	if b.capacity == 0 {
		// No ring: the head pointer is the only duplicate guard, so only
		// strictly newer iterations count.
		if iter <= h.head {
			return
		}
		h.head = iter
		b.advanceWindows(h, value)
		return
	}

	if h.head >= 0 && h.head-iter >= int64(b.capacity) {
		return // stale, fell off the ring
	}
	slot := int(iter % int64(b.capacity))
	if h.iters[slot] == iter {
		h.values[slot] = value // last writer wins for display only
		return
	}
	h.values[slot] = value
	h.iters[slot] = iter
	if iter > h.head {
		h.head = iter
	}
	b.advanceWindows(h, value)
}

func (b *Buffer) advanceWindows(h *uidHistory, value int) {
	for w := range h.windows {
		h.windows[w].total += int64(value)
		h.windows[w].count++
	}
}

// Get returns the count most recent per-iteration values ending at upto,
// oldest first. Iterations with no recorded sample read as zero. For UIDAll
// with no stored system-wide row, the result is the per-slot sum across every
// known UID.
func (b *Buffer) Get(uid int, upto int64, count int) []int {
	if count < 0 {
		return nil
	}
	out := make([]int, count)
	if b.capacity == 0 {
		return out
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if h, ok := b.uids[uid]; ok {
		b.fill(out, h, upto)
		return out
	}
	if uid == types.UIDAll {
		tmp := make([]int, count)
		for _, h := range b.uids {
			b.fill(tmp, h, upto)
			for i, v := range tmp {
				out[i] += v
				tmp[i] = 0
			}
		}
	}
	return out
}

func (b *Buffer) fill(out []int, h *uidHistory, upto int64) {
	count := int64(len(out))
	for j := int64(0); j < count; j++ {
		it := upto - count + 1 + j
		if it < 0 {
			continue
		}
		slot := int(it % int64(b.capacity))
		if h.iters[slot] == it {
			out[j] = h.values[slot]
		}
	}
}

// Total returns the exact running sum for (uid, window) since the window's
// last reset.
func (b *Buffer) Total(uid int, w Window) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w < 0 || w >= numWindows {
		return 0
	}
	if h, ok := b.uids[uid]; ok {
		return h.windows[w].total
	}
	return 0
}

// SampleCount returns how many samples contributed to (uid, window) since the
// window's last reset.
func (b *Buffer) SampleCount(uid int, w Window) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w < 0 || w >= numWindows {
		return 0
	}
	if h, ok := b.uids[uid]; ok {
		return h.windows[w].count
	}
	return 0
}

// ResetWindow zeros the sum and count of one window for every UID. WindowTotal
// never resets.
func (b *Buffer) ResetWindow(w Window) {
	if w <= WindowTotal || w >= numWindows {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range b.uids {
		h.windows[w] = windowState{}
	}
}

// rollDayLocked resets WindowDay when the wall-clock day has changed since the
// previous add.
func (b *Buffer) rollDayLocked() {
	d := daysSinceEpoch(timeNow())
	if d == b.day {
		return
	}
	b.day = d
	for _, h := range b.uids {
		h.windows[WindowDay] = windowState{}
	}
}

func daysSinceEpoch(t time.Time) int64 {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location()).Unix() / 86400
}
