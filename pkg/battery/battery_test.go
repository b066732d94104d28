package battery

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func stubSysfs(t *testing.T, devices map[string]map[string]string) {
	t.Cleanup(func() {
		sysReadFile = os.ReadFile
		sysGlob = filepath.Glob
	})
	sysGlob = func(pattern string) ([]string, error) {
		dirs := make([]string, 0, len(devices))
		for name := range devices {
			dirs = append(dirs, "/sys/class/power_supply/"+name)
		}
		return dirs, nil
	}
	sysReadFile = func(path string) ([]byte, error) {
		dev := filepath.Base(filepath.Dir(path))
		if attrs, ok := devices[dev]; ok {
			if content, ok := attrs[filepath.Base(path)]; ok {
				return []byte(content), nil
			}
		}
		return nil, errors.New("missing attribute")
	}
}

func TestNewPicksBatteryDevice(t *testing.T) {
	stubSysfs(t, map[string]map[string]string{
		"AC":   {"type": "Mains\n"},
		"BAT0": {"type": "Battery\n", "current_now": "412000\n", "temp": "310\n"},
	})

	s := New()
	if !s.HasCurrent() {
		t.Fatalf("expected current to be readable")
	}
	if got := s.Current(); got != 412000 {
		t.Fatalf("got current %f, want 412000", got)
	}
	if !s.HasTemp() || s.Temp() != 310 {
		t.Fatalf("temp wrong: has=%v v=%d", s.HasTemp(), s.Temp())
	}
	if s.HasCharge() || s.HasFullCapacity() {
		t.Fatalf("attributes absent from sysfs should report false")
	}
}

func TestNewWithoutBattery(t *testing.T) {
	stubSysfs(t, map[string]map[string]string{"AC": {"type": "Mains\n"}})

	s := New()
	if s.HasCurrent() || s.HasTemp() || s.HasCharge() || s.HasFullCapacity() {
		t.Fatalf("no battery device should expose nothing")
	}
	if s.Current() != 0 {
		t.Fatalf("missing readings should be zero")
	}
}

func TestPlugged(t *testing.T) {
	cases := []struct {
		name     string
		status   string
		plugged  bool
		readable bool
	}{
		{"discharging", "Discharging\n", false, true},
		{"charging", "Charging\n", true, true},
		{"full", "Full\n", true, true},
		{"absent", "", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			attrs := map[string]string{"type": "Battery\n"}
			if tc.status != "" {
				attrs["status"] = tc.status
			}
			stubSysfs(t, map[string]map[string]string{"BAT0": attrs})
			plugged, ok := New().Plugged()
			if plugged != tc.plugged || ok != tc.readable {
				t.Fatalf("got (%v, %v), want (%v, %v)", plugged, ok, tc.plugged, tc.readable)
			}
		})
	}
}

func TestUnparseableAttribute(t *testing.T) {
	stubSysfs(t, map[string]map[string]string{
		"BAT0": {"type": "Battery\n", "charge_now": "garbage\n", "charge_full": "5200000\n"},
	})

	s := New()
	if s.HasCharge() {
		t.Fatalf("garbage attribute should read as absent")
	}
	if !s.HasFullCapacity() || s.FullCapacity() != 5200000 {
		t.Fatalf("full capacity wrong: has=%v v=%d", s.HasFullCapacity(), s.FullCapacity())
	}
}
