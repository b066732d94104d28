package estimator

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srodi/wattrace/pkg/device"
	"github.com/srodi/wattrace/pkg/history"
	"github.com/srodi/wattrace/pkg/powerlog"
	"github.com/srodi/wattrace/pkg/sysinfo"
	"github.com/srodi/wattrace/pkg/types"
	"github.com/srodi/wattrace/pkg/uploader"
)

const (
	// DefaultInterval is the length of one iteration.
	DefaultInterval = time.Second
	// DefaultHistorySize is the per-UID ring capacity of each component.
	DefaultHistorySize = 300

	notifyInterval   = 5
	memInfoInterval  = 10
	flushInterval    = 30
	currentInterval  = 60
	envInterval      = 300
	settingsInterval = 1800
)

// Component is the sampler contract the aggregator consumes. Data must
// return promptly with nil when the iteration's measurements are not ready;
// the aggregator never waits on a producer.
type Component interface {
	Name() string
	HasUIDData() bool
	Start(ctx context.Context, epoch time.Time, interval time.Duration)
	Data(iter int64) *types.IterationData
	Close() error
}

// BatteryStats is the telemetry the log's environment snapshots draw from.
type BatteryStats interface {
	HasCurrent() bool
	Current() float64
	HasTemp() bool
	Temp() int64
	HasCharge() bool
	Charge() int64
	HasFullCapacity() bool
	FullCapacity() int64
}

// Indicator receives the smoothed severity level for an external display.
// Done blanks it at shutdown.
type Indicator interface {
	Update(level int, avgPowerMW float64)
	Done()
}

// Options configures an Estimator. Zero values pick the defaults documented
// on each field.
type Options struct {
	Profile    *device.Profile // nil: device.Default()
	Components []Component
	PowerFuncs []types.PowerFunc // one per component, same order

	Interval    time.Duration // 0: DefaultInterval
	HistorySize int           // 0: DefaultHistorySize
	LogPath     string        // empty: persistence disabled
	Compress    bool
	LogMemInfo  bool

	Upload    uploader.UploadFunc // nil: rotated logs are dropped
	Indicator Indicator           // nil: no severity publishing
	Battery   BatteryStats        // nil: no battery lines in the log

	ResolveName      func(uid int) string    // nil: os/user resolution
	SnapshotSettings func() sysinfo.Settings // nil: sysinfo.SnapshotSettings
}

// Estimator runs the fixed-interval aggregation loop: it pulls every
// component's measurement set once per iteration, derives per-UID power,
// advances the history buffers, and appends the iteration's log block. The
// query layer reads are safe concurrently with the loop.
type Estimator struct {
	profile    *device.Profile
	components []Component
	powerFuncs []types.PowerFunc
	histories  []*history.Buffer
	dispScore  *history.Buffer

	interval   time.Duration
	intervalMS int64
	logMemInfo bool

	logw             *powerlog.Writer
	up               *uploader.Uploader
	batt             BatteryStats
	indicator        Indicator
	resolveName      func(uid int) string
	snapshotSettings func() sysinfo.Settings

	// uidMu guards the identity registry only; it is never held across log
	// I/O. Readers of the iteration cursor touch no lock at all.
	uidMu    sync.Mutex
	uidNames map[int]string // "" marks a system identity

	sevMu    sync.Mutex
	sevLevel int
	sevAvgMW float64

	lastWritten atomic.Int64

	epoch       time.Time
	firstLog    bool
	lastCurrent float64
	drainOnce   sync.Once
}

// New builds an Estimator, rotating and handing off any previous log before
// opening the new stream. A log that cannot be opened degrades to no
// persistence; everything else about the loop still runs.
func New(opts Options) (*Estimator, error) {
	if len(opts.Components) == 0 {
		return nil, fmt.Errorf("no components to estimate")
	}
	if len(opts.Components) != len(opts.PowerFuncs) {
		return nil, fmt.Errorf("%d components but %d power functions",
			len(opts.Components), len(opts.PowerFuncs))
	}
	if opts.Profile == nil {
		opts.Profile = device.Default()
	}
	if err := opts.Profile.Validate(); err != nil {
		return nil, err
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.ResolveName == nil {
		opts.ResolveName = sysinfo.NewResolver().Name
	}
	if opts.SnapshotSettings == nil {
		opts.SnapshotSettings = sysinfo.SnapshotSettings
	}

	e := &Estimator{
		profile:          opts.Profile,
		components:       opts.Components,
		powerFuncs:       opts.PowerFuncs,
		histories:        make([]*history.Buffer, len(opts.Components)),
		dispScore:        history.New(0),
		interval:         opts.Interval,
		intervalMS:       opts.Interval.Milliseconds(),
		logMemInfo:       opts.LogMemInfo,
		up:               uploader.New(opts.Upload),
		batt:             opts.Battery,
		indicator:        opts.Indicator,
		resolveName:      opts.ResolveName,
		snapshotSettings: opts.SnapshotSettings,
		uidNames:         make(map[int]string),
		firstLog:         true,
		lastCurrent:      math.NaN(),
	}
	for i := range e.histories {
		e.histories[i] = history.New(opts.HistorySize)
	}
	e.lastWritten.Store(-1)
	e.openLog(opts.LogPath, opts.Compress)
	e.up.Start()
	return e, nil
}

func (e *Estimator) openLog(path string, compress bool) {
	if path == "" {
		return
	}
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		// Hand the previous run's data to the uploader before writing over it.
		rotated := path + ".1"
		if err := os.Rename(path, rotated); err != nil {
			log.Printf("rotating previous log: %v", err)
		} else {
			e.up.Enqueue(rotated)
		}
	}
	w, err := powerlog.Open(path, compress)
	if err != nil {
		log.Printf("failed to open log file, no log will be kept: %v", err)
		return
	}
	e.logw = w
}

// Run executes the loop until ctx is canceled, then drains: samplers and the
// uploader are stopped and joined, the log flushed and closed, the indicator
// blanked. Cancellation is the normal termination path, not an error.
func (e *Estimator) Run(ctx context.Context) error {
	e.epoch = time.Now()
	for _, c := range e.components {
		c.Start(ctx, e.epoch, e.interval)
	}

	frames := make([]*types.IterationData, len(e.components))
	for iter := int64(-1); ; {
		iter = nextIteration(iter, time.Since(e.epoch), e.interval)

		// Sleep to the end of the target iteration so producers had their
		// chance to publish. This is the loop's only suspension point.
		deadline := e.epoch.Add(time.Duration(iter+1) * e.interval)
		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-ctx.Done():
			timer.Stop()
			e.drain()
			return nil
		case <-timer.C:
		}

		e.step(iter, frames)
	}
}

// nextIteration picks the next target: always past the previous one, and
// caught up to the wall clock when the loop fell behind.
func nextIteration(prev int64, elapsed, interval time.Duration) int64 {
	return max(prev+1, int64(elapsed/interval))
}

// step runs everything one iteration does after its deadline sleep.
func (e *Estimator) step(iter int64, frames []*types.IterationData) {
	totalPower := e.aggregate(iter, frames)
	associates := e.refreshRegistry(frames)
	e.lastWritten.Store(iter)

	if iter%notifyInterval == notifyInterval-1 {
		e.publishSeverity()
	}
	e.writeIterationBlock(iter, frames, associates, totalPower)
	if iter%flushInterval == 0 && e.logw != nil {
		e.logw.Flush()
	}
}

// aggregate pulls every component's measurement set for iter, derives and
// caches per-UID power, and advances the histories. A component without data
// contributes nothing this iteration.
func (e *Estimator) aggregate(iter int64, frames []*types.IterationData) int {
	totalPower := 0
	for i, comp := range e.components {
		data := comp.Data(iter)
		frames[i] = data
		if data == nil {
			continue
		}
		for uid, m := range data.UIDPower {
			power := e.powerFuncs[i](m)
			data.Power[uid] = power
			e.histories[i].Add(uid, iter, power)
			if uid == types.UIDAll {
				totalPower += power
			}
			if sc, ok := m.(types.Scorer); ok {
				if score := sc.DisplayScore(); score >= 0 {
					e.dispScore.Add(uid, iter, int(1000*score))
				}
			}
		}
	}
	return totalPower
}

// refreshRegistry records every identity seen this iteration and returns the
// associate events to log. System identities are tracked without resolution.
// Nothing is queued on the very first iteration: that snapshot goes into the
// header block instead of flooding the stream.
func (e *Estimator) refreshRegistry(frames []*types.IterationData) []string {
	var associates []string
	e.uidMu.Lock()
	defer e.uidMu.Unlock()
	for _, data := range frames {
		if data == nil {
			continue
		}
		for uid := range data.UIDPower {
			if uid == types.UIDAll {
				continue
			}
			if uid < types.FirstAppUID {
				e.uidNames[uid] = ""
				continue
			}
			prev, seen := e.uidNames[uid]
			name := e.resolveName(uid)
			e.uidNames[uid] = name
			if !e.firstLog && (!seen || prev != name) {
				associates = append(associates, fmt.Sprintf("associate+%d+%s", uid, name))
			}
		}
	}
	return associates
}

func (e *Estimator) publishSeverity() {
	samples := e.ComponentHistory(notifyInterval, types.ComponentAll, types.UIDAll, -1)
	avg := smoothedPower(samples, smoothingWeight)
	if avg < 0 {
		return // nothing but zeros in the smoothing window
	}
	level := severityLevel(avg, e.profile.MaxPowerMW)
	e.sevMu.Lock()
	e.sevLevel, e.sevAvgMW = level, avg
	e.sevMu.Unlock()
	if e.indicator != nil {
		e.indicator.Update(level, avg)
	}
}

func (e *Estimator) writeIterationBlock(iter int64, frames []*types.IterationData, associates []string, totalPower int) {
	if e.logw == nil {
		e.firstLog = false
		return
	}
	var lines []string
	if e.firstLog {
		e.firstLog = false
		lines = e.headerLines()
	}
	lines = append(lines, associates...)
	lines = append(lines, fmt.Sprintf("begin+%d", iter))

	if iter%currentInterval == 0 && e.batt != nil && e.batt.HasCurrent() {
		if current := e.batt.Current(); current != e.lastCurrent {
			lines = append(lines, fmt.Sprintf("batt_current+%.2f", current))
			e.lastCurrent = current
		}
	}
	if iter%envInterval == 0 && e.batt != nil {
		if e.batt.HasTemp() {
			lines = append(lines, fmt.Sprintf("batt_temp+%d", e.batt.Temp()))
		}
		if e.batt.HasCharge() {
			lines = append(lines, fmt.Sprintf("batt_charge+%d", e.batt.Charge()))
		}
	}
	if iter%settingsInterval == 0 {
		lines = append(lines, e.settingsLines()...)
	}

	lines = append(lines, fmt.Sprintf("total power+%d", totalPower))
	if e.logMemInfo && iter%memInfoInterval == 0 {
		if mem, ok := sysinfo.MemInfo(); ok {
			lines = append(lines, fmt.Sprintf("meminfo+%d+%d+%d+%d", mem[0], mem[1], mem[2], mem[3]))
		}
	}
	lines = append(lines, e.entryLines(frames)...)
	lines = append(lines, powerlog.EndOfIteration)
	e.logw.WriteLines(lines)
}

func (e *Estimator) headerLines() []string {
	_, offsetSeconds := time.Now().Zone()
	lines := []string{
		fmt.Sprintf("iteration_interval+%d", e.intervalMS),
		fmt.Sprintf("time+%d", time.Now().UnixMilli()),
		fmt.Sprintf("localtime_offset+%d", offsetSeconds/60),
		"model+" + e.profile.Model,
	}
	if e.indicator != nil {
		lines = append(lines, "notifications-active")
	}
	if e.batt != nil && e.batt.HasFullCapacity() {
		lines = append(lines, fmt.Sprintf("batt_full_capacity+%d", e.batt.FullCapacity()))
	}

	e.uidMu.Lock()
	uids := make([]int, 0, len(e.uidNames))
	for uid := range e.uidNames {
		if uid >= types.FirstAppUID {
			uids = append(uids, uid)
		}
	}
	sort.Ints(uids)
	for _, uid := range uids {
		lines = append(lines, fmt.Sprintf("associate+%d+%s", uid, e.uidNames[uid]))
	}
	e.uidMu.Unlock()
	return lines
}

func (e *Estimator) settingsLines() []string {
	s := e.snapshotSettings()
	var lines []string
	switch {
	case s.BrightnessAuto:
		lines = append(lines, "setting_brightness+automatic")
	case s.HasBrightness:
		lines = append(lines, fmt.Sprintf("setting_brightness+%d", s.Brightness))
	}
	if s.ScreenTimeout >= 0 {
		lines = append(lines, fmt.Sprintf("setting_screen_timeout+%d", s.ScreenTimeout))
	}
	if s.HTTPProxy != "" {
		lines = append(lines, "setting_httpproxy "+s.HTTPProxy)
	}
	return lines
}

func (e *Estimator) entryLines(frames []*types.IterationData) []string {
	var lines []string
	e.uidMu.Lock()
	defer e.uidMu.Unlock()
	for i, data := range frames {
		if data == nil {
			continue
		}
		name := e.components[i].Name()
		for _, uid := range data.UIDs() {
			power := data.Power[uid]
			if uid == types.UIDAll {
				if el, ok := data.UIDPower[uid].(types.ExtraLogger); ok {
					lines = append(lines, el.LogLines()...)
				}
				lines = append(lines, fmt.Sprintf("%s+ALL++%d", name, power))
				continue
			}
			lines = append(lines, fmt.Sprintf("%s+%d+%s+%d", name, uid, e.displayNameLocked(uid), power))
		}
	}
	return lines
}

func (e *Estimator) displayNameLocked(uid int) string {
	if name := e.uidNames[uid]; name != "" {
		return name
	}
	return fmt.Sprintf("uid-%d", uid)
}

func (e *Estimator) drain() {
	e.drainOnce.Do(func() {
		if e.indicator != nil {
			e.indicator.Done()
		}
		for _, c := range e.components {
			if err := c.Close(); err != nil {
				log.Printf("closing %s sampler: %v", c.Name(), err)
			}
		}
		e.up.Stop()
		if e.logw != nil {
			if err := e.logw.Close(); err != nil {
				log.Printf("closing power log: %v", err)
			}
		}
	})
}

// Plug forwards a charger state change to the uploader. Unplugging starts a
// new discharge cycle, so the since-charge window resets.
func (e *Estimator) Plug(plugged bool) {
	if !plugged {
		for _, h := range e.histories {
			h.ResetWindow(history.WindowCharge)
		}
		e.dispScore.ResetWindow(history.WindowCharge)
	}
	e.up.Plug(plugged)
}
