package wifi

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/srodi/wattrace/pkg/device"
	"github.com/srodi/wattrace/pkg/types"
)

func stubSysfs(t *testing.T, files map[string]string) {
	t.Cleanup(func() {
		sysReadFile = os.ReadFile
		sysGlob = filepath.Glob
	})
	sysGlob = func(pattern string) ([]string, error) {
		return []string{"/sys/class/net/wlan0/wireless"}, nil
	}
	sysReadFile = func(path string) ([]byte, error) {
		if content, ok := files[filepath.Base(path)]; ok {
			return []byte(content), nil
		}
		return nil, errors.New("no such attribute")
	}
}

func TestNewRequiresWirelessInterface(t *testing.T) {
	t.Cleanup(func() { sysGlob = filepath.Glob })
	sysGlob = func(pattern string) ([]string, error) { return nil, nil }
	if _, err := New(time.Second); err == nil {
		t.Fatalf("expected error without wireless interfaces")
	}
}

func TestCalculateComputesRates(t *testing.T) {
	files := map[string]string{
		"rx_bytes":  "1000000\n",
		"tx_bytes":  "500000\n",
		"operstate": "up\n",
	}
	stubSysfs(t, files)

	s, err := New(time.Second)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	if s.iface != "wlan0" {
		t.Fatalf("wrong interface: %s", s.iface)
	}

	// One second later: +1 MB received, +250 KB sent.
	files["rx_bytes"] = "2000000\n"
	files["tx_bytes"] = "750000\n"
	data, err := s.Calculate(1)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	r := data.UIDPower[types.UIDAll].(Reading)
	if math.Abs(r.RxMbps-8) > 1e-9 || math.Abs(r.TxMbps-2) > 1e-9 {
		t.Fatalf("unexpected rates: %+v", r)
	}
	if !r.Up {
		t.Fatalf("link should be up")
	}
}

func TestCounterDeltaHandlesReset(t *testing.T) {
	if got := counterDelta(300, 900); got != 300 {
		t.Fatalf("reset counter should charge current value, got %d", got)
	}
	if got := counterDelta(900, 300); got != 600 {
		t.Fatalf("got %d, want 600", got)
	}
}

func TestPowerFunc(t *testing.T) {
	fn := PowerFunc(device.WifiParams{BaseMW: 30, TxMWPerMbit: 5, RxMWPerMbit: 3})
	cases := []struct {
		name string
		m    types.Measurement
		want int
	}{
		{"idleLink", Reading{Up: true}, 30},
		{"busyLink", Reading{RxMbps: 10, TxMbps: 2, Up: true}, 70},
		{"linkDown", Reading{RxMbps: 10, Up: false}, 0},
		{"wrongType", 3.14, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := fn(tc.m); got != tc.want {
				t.Fatalf("got %d mW, want %d", got, tc.want)
			}
		})
	}
}
