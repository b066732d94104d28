package battery

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// sysReadFile and sysGlob allow tests to stub sysfs access.
var (
	sysReadFile = os.ReadFile
	sysGlob     = filepath.Glob
)

// Stats reads battery telemetry from the power_supply class device. Every
// attribute is optional; Has* reports what this device exposes so the log
// writer can skip absent fields.
type Stats struct {
	dir string
}

// New locates the first power_supply device of type Battery. It returns an
// empty Stats (every Has* false) when none exists, so callers need no nil
// checks.
func New() *Stats {
	dirs, err := sysGlob("/sys/class/power_supply/*")
	if err != nil {
		return &Stats{}
	}
	for _, dir := range dirs {
		data, err := sysReadFile(filepath.Join(dir, "type"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == "Battery" {
			return &Stats{dir: dir}
		}
	}
	return &Stats{}
}

// HasCurrent reports whether instantaneous current draw is readable.
func (s *Stats) HasCurrent() bool { _, ok := s.readInt("current_now"); return ok }

// Current returns the instantaneous current draw in microamps.
func (s *Stats) Current() float64 {
	v, _ := s.readInt("current_now")
	return float64(v)
}

// HasTemp reports whether battery temperature is readable.
func (s *Stats) HasTemp() bool { _, ok := s.readInt("temp"); return ok }

// Temp returns the battery temperature in tenths of a degree Celsius.
func (s *Stats) Temp() int64 {
	v, _ := s.readInt("temp")
	return v
}

// HasCharge reports whether the current charge level is readable.
func (s *Stats) HasCharge() bool { _, ok := s.readInt("charge_now"); return ok }

// Charge returns the current charge in microamp-hours.
func (s *Stats) Charge() int64 {
	v, _ := s.readInt("charge_now")
	return v
}

// HasFullCapacity reports whether the design-full charge is readable.
func (s *Stats) HasFullCapacity() bool { _, ok := s.readInt("charge_full"); return ok }

// FullCapacity returns the full charge in microamp-hours.
func (s *Stats) FullCapacity() int64 {
	v, _ := s.readInt("charge_full")
	return v
}

// Plugged reports whether external power is attached, and whether the status
// attribute was readable at all. Any status other than Discharging counts as
// plugged.
func (s *Stats) Plugged() (bool, bool) {
	if s.dir == "" {
		return false, false
	}
	data, err := sysReadFile(filepath.Join(s.dir, "status"))
	if err != nil {
		return false, false
	}
	return strings.TrimSpace(string(data)) != "Discharging", true
}

func (s *Stats) readInt(name string) (int64, bool) {
	if s.dir == "" {
		return 0, false
	}
	data, err := sysReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
