//go:build linux
// +build linux

package cpu

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/srodi/wattrace/pkg/types"
)

const clockTicksPerSecond = 100 // USER_HZ

// Sampler reads per-UID CPU jiffies from procfs. Each iteration charges the
// jiffy delta since the previous one, grouped by the owning UID, plus a
// system-wide reading from the aggregate /proc/stat line.
type Sampler struct {
	interval time.Duration
	prevUID  map[int]cpuTimes
	prevBusy uint64
}

type cpuTimes struct {
	usr uint64
	sys uint64
}

// New probes procfs and primes the jiffy baselines so the first iteration
// charges only what runs after startup.
func New(interval time.Duration) (*Sampler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("non-positive interval %v", interval)
	}
	s := &Sampler{interval: interval}
	busy, err := s.readBusy()
	if err != nil {
		return nil, fmt.Errorf("probing /proc/stat: %w", err)
	}
	uids, err := s.scanUIDs()
	if err != nil {
		return nil, fmt.Errorf("scanning procfs: %w", err)
	}
	s.prevBusy = busy
	s.prevUID = uids
	return s, nil
}

// Name identifies the component in histories and log blocks.
func (s *Sampler) Name() string { return "CPU" }

// HasUIDData reports that CPU readings break down per UID.
func (s *Sampler) HasUIDData() bool { return true }

// Calculate produces the measurement set for one iteration.
func (s *Sampler) Calculate(iter int64) (*types.IterationData, error) {
	uids, err := s.scanUIDs()
	if err != nil {
		return nil, err
	}
	busy, err := s.readBusy()
	if err != nil {
		return nil, err
	}
	freq := s.readFreqKHz()

	intervalJiffies := clockTicksPerSecond * s.interval.Seconds()
	data := types.NewIterationData()
	for uid, cur := range uids {
		prev := s.prevUID[uid]
		data.UIDPower[uid] = Reading{
			UsrFrac: float64(jiffyDelta(cur.usr, prev.usr)) / intervalJiffies,
			SysFrac: float64(jiffyDelta(cur.sys, prev.sys)) / intervalJiffies,
			FreqKHz: freq,
		}
	}
	data.UIDPower[types.UIDAll] = Reading{
		UsrFrac: float64(jiffyDelta(busy, s.prevBusy)) / intervalJiffies,
		FreqKHz: freq,
		System:  true,
	}

	s.prevUID = uids
	s.prevBusy = busy
	return data, nil
}

// Close releases nothing; procfs needs no teardown.
func (s *Sampler) Close() error { return nil }

func (s *Sampler) scanUIDs() (map[int]cpuTimes, error) {
	dirs, err := procGlob("/proc/[0-9]*")
	if err != nil {
		return nil, err
	}
	uids := make(map[int]cpuTimes, 64)
	for _, dir := range dirs {
		status, err := procReadFile(filepath.Join(dir, "status"))
		if err != nil {
			continue // process exited mid-scan
		}
		uid, err := parseUID(status)
		if err != nil {
			continue
		}
		stat, err := procReadFile(filepath.Join(dir, "stat"))
		if err != nil {
			continue
		}
		utime, stime, err := parseStatJiffies(stat)
		if err != nil {
			continue
		}
		t := uids[uid]
		t.usr += utime
		t.sys += stime
		uids[uid] = t
	}
	return uids, nil
}

func (s *Sampler) readBusy() (uint64, error) {
	data, err := procReadFile("/proc/stat")
	if err != nil {
		return 0, err
	}
	return parseBusyJiffies(data)
}

func (s *Sampler) readFreqKHz() int {
	data, err := procReadFile("/sys/devices/system/cpu/cpu0/cpufreq/scaling_cur_freq")
	if err != nil {
		return 0
	}
	return parseKHz(data)
}
