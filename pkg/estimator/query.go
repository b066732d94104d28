package estimator

import (
	"math"
	"sort"

	"github.com/srodi/wattrace/pkg/history"
	"github.com/srodi/wattrace/pkg/types"
)

// Components lists the component names in history order.
func (e *Estimator) Components() []string {
	names := make([]string, len(e.components))
	for i, c := range e.components {
		names[i] = c.Name()
	}
	return names
}

// ComponentsMaxPower returns each component's rated maximum draw in
// milliwatts, in the same order as Components.
func (e *Estimator) ComponentsMaxPower() []int {
	maxes := make([]int, len(e.components))
	for i, c := range e.components {
		maxes[i] = e.profile.MaxPower(c.Name())
	}
	return maxes
}

// NoUIDMask returns a bitmask with bit i set when component i has no per-UID
// breakdown, so per-UID views can skip it.
func (e *Estimator) NoUIDMask() int {
	mask := 0
	for i, c := range e.components {
		if !c.HasUIDData() {
			mask |= 1 << i
		}
	}
	return mask
}

// LastIteration returns the newest fully aggregated iteration, -1 before the
// first one completes.
func (e *Estimator) LastIteration() int64 {
	return e.lastWritten.Load()
}

// Severity returns the most recent smoothed severity level and the average
// draw behind it, zero values before the first smoothing window completes.
func (e *Estimator) Severity() (int, float64) {
	e.sevMu.Lock()
	defer e.sevMu.Unlock()
	return e.sevLevel, e.sevAvgMW
}

// ComponentHistory returns the count most recent per-iteration milliwatt
// values ending at iteration, oldest first, zero-filled where no sample
// exists. A negative iteration means the newest aggregated one. componentID
// may be ComponentAll to sum across components; uid may be UIDAll for the
// system-wide row. An invalid componentID or negative count yields nil.
func (e *Estimator) ComponentHistory(count int, componentID int, uid int, iteration int64) []int {
	if count < 0 {
		return nil
	}
	if iteration < 0 {
		iteration = e.lastWritten.Load()
	}
	if componentID == types.ComponentAll {
		out := make([]int, count)
		for _, h := range e.histories {
			for i, v := range h.Get(uid, iteration, count) {
				out[i] += v
			}
		}
		return out
	}
	if componentID < 0 || componentID >= len(e.histories) {
		return nil
	}
	return e.histories[componentID].Get(uid, iteration, count)
}

// Totals returns each component's accumulated energy for (uid, window) in
// millijoules, in Components order.
func (e *Estimator) Totals(uid int, w history.Window) []int64 {
	out := make([]int64, len(e.histories))
	for i, h := range e.histories {
		out[i] = h.Total(uid, w) * e.intervalMS / 1000
	}
	return out
}

// Runtime returns how long the UID has been observed in (any component of)
// the window, in seconds. Sample counts differ across components when a
// sampler joined late, so the largest one wins.
func (e *Estimator) Runtime(uid int, w history.Window) int64 {
	var count int64
	for _, h := range e.histories {
		if c := h.SampleCount(uid, w); c > count {
			count = c
		}
	}
	return count * e.intervalMS / 1000
}

// Means returns each component's average draw for (uid, window) in
// milliwatts, in Components order.
func (e *Estimator) Means(uid int, w history.Window) []float64 {
	totals := e.Totals(uid, w)
	runtime := e.Runtime(uid, w)
	if runtime < 1 {
		runtime = 1
	}
	out := make([]float64, len(totals))
	for i, t := range totals {
		out[i] = float64(t) / float64(runtime)
	}
	return out
}

// UIDInfo summarizes one identity for ranking views.
type UIDInfo struct {
	UID          int
	Name         string
	CurrentPower int   // mW at the newest iteration, summed across components
	TotalEnergy  int64 // mJ for the queried window
	Runtime      int64 // seconds observed in the queried window
}

// UIDInfos returns a summary for every known application and system identity,
// sorted by UID. Components whose bit is set in ignoreMask contribute nothing
// to the energy and current figures.
func (e *Estimator) UIDInfos(w history.Window, ignoreMask int) []UIDInfo {
	e.uidMu.Lock()
	uids := make([]int, 0, len(e.uidNames))
	names := make(map[int]string, len(e.uidNames))
	for uid, name := range e.uidNames {
		uids = append(uids, uid)
		names[uid] = name
	}
	e.uidMu.Unlock()
	sort.Ints(uids)

	last := e.lastWritten.Load()
	out := make([]UIDInfo, 0, len(uids))
	for _, uid := range uids {
		info := UIDInfo{UID: uid, Name: names[uid]}
		if info.Name == "" {
			info.Name = e.displayName(uid)
		}
		for i, h := range e.histories {
			if ignoreMask&(1<<i) != 0 {
				continue
			}
			info.TotalEnergy += h.Total(uid, w) * e.intervalMS / 1000
			if vals := h.Get(uid, last, 1); len(vals) == 1 {
				info.CurrentPower += vals[0]
			}
			if c := h.SampleCount(uid, w); c*e.intervalMS/1000 > info.Runtime {
				info.Runtime = c * e.intervalMS / 1000
			}
		}
		out = append(out, info)
	}
	return out
}

func (e *Estimator) displayName(uid int) string {
	e.uidMu.Lock()
	defer e.uidMu.Unlock()
	return e.displayNameLocked(uid)
}

// UIDExtra reports a named auxiliary statistic for one UID. "DISPSCORE" is
// the average display quality over the iterations the panel was on, rescaled
// to 0..255 and rounded to two decimals. It is -2 when no samples exist and
// -1 for an unknown statistic name.
func (e *Estimator) UIDExtra(name string, uid int) float64 {
	if name != "DISPSCORE" {
		return -1
	}
	entries := e.dispScore.SampleCount(uid, history.WindowTotal)
	if entries <= 0 {
		return -2
	}
	mean := float64(e.dispScore.Total(uid, history.WindowTotal)) / 1000 / float64(entries)
	return math.Round(mean*255*100) / 100
}
