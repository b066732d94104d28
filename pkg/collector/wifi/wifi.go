package wifi

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/srodi/wattrace/pkg/device"
	"github.com/srodi/wattrace/pkg/types"
)

// sysReadFile and sysGlob allow tests to stub sysfs access.
var (
	sysReadFile = os.ReadFile
	sysGlob     = filepath.Glob
)

// Reading is the wifi measurement for one iteration: transfer rates over the
// interval and link state.
type Reading struct {
	RxMbps float64
	TxMbps float64
	Up     bool
}

// Sampler reads interface byte counters for the first wireless NIC. It has no
// per-UID breakdown; the whole radio draw is reported under UIDAll.
type Sampler struct {
	iface    string
	interval time.Duration
	prevRx   uint64
	prevTx   uint64
}

// New locates a wireless interface and primes its byte counters.
func New(interval time.Duration) (*Sampler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("non-positive interval %v", interval)
	}
	marks, err := sysGlob("/sys/class/net/*/wireless")
	if err != nil {
		return nil, err
	}
	if len(marks) == 0 {
		return nil, fmt.Errorf("no wireless interface")
	}
	s := &Sampler{
		iface:    filepath.Base(filepath.Dir(marks[0])),
		interval: interval,
	}
	rx, tx, err := s.readCounters()
	if err != nil {
		return nil, fmt.Errorf("probing %s counters: %w", s.iface, err)
	}
	s.prevRx, s.prevTx = rx, tx
	return s, nil
}

// Name identifies the component in histories and log blocks.
func (s *Sampler) Name() string { return "Wifi" }

// HasUIDData reports that wifi readings are system-wide only.
func (s *Sampler) HasUIDData() bool { return false }

// Calculate produces the measurement set for one iteration.
func (s *Sampler) Calculate(iter int64) (*types.IterationData, error) {
	rx, tx, err := s.readCounters()
	if err != nil {
		return nil, err
	}
	up := s.linkUp()

	seconds := s.interval.Seconds()
	data := types.NewIterationData()
	data.UIDPower[types.UIDAll] = Reading{
		RxMbps: mbps(counterDelta(rx, s.prevRx), seconds),
		TxMbps: mbps(counterDelta(tx, s.prevTx), seconds),
		Up:     up,
	}
	s.prevRx, s.prevTx = rx, tx
	return data, nil
}

// Close releases nothing; sysfs needs no teardown.
func (s *Sampler) Close() error { return nil }

func (s *Sampler) readCounters() (rx, tx uint64, err error) {
	rx, err = s.readCounter("rx_bytes")
	if err != nil {
		return 0, 0, err
	}
	tx, err = s.readCounter("tx_bytes")
	if err != nil {
		return 0, 0, err
	}
	return rx, tx, nil
}

func (s *Sampler) readCounter(name string) (uint64, error) {
	path := filepath.Join("/sys/class/net", s.iface, "statistics", name)
	data, err := sysReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}

func (s *Sampler) linkUp() bool {
	data, err := sysReadFile(filepath.Join("/sys/class/net", s.iface, "operstate"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "up"
}

func counterDelta(cur, prev uint64) uint64 {
	// Counters reset when the interface bounces.
	if cur < prev {
		return cur
	}
	return cur - prev
}

func mbps(bytes uint64, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(bytes) * 8 / 1e6 / seconds
}

// PowerFunc builds the wifi power function from a device profile.
func PowerFunc(params device.WifiParams) types.PowerFunc {
	return func(m types.Measurement) int {
		r, ok := m.(Reading)
		if !ok || !r.Up {
			return 0
		}
		p := params.BaseMW + r.TxMbps*params.TxMWPerMbit + r.RxMbps*params.RxMWPerMbit
		return int(math.Round(p))
	}
}
