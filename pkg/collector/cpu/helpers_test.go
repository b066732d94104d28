package cpu

import (
	"testing"

	"github.com/srodi/wattrace/pkg/device"
	"github.com/srodi/wattrace/pkg/types"
)

func TestParseStatJiffies(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		utime   uint64
		stime   uint64
		wantErr bool
	}{
		{
			name:  "plainComm",
			line:  "42 (worker) S 1 42 42 0 -1 4194560 100 0 0 0 350 120 0 0 20 0 1 0 999",
			utime: 350, stime: 120,
		},
		{
			name:  "commWithSpacesAndParens",
			line:  "7 (tmux: server (x)) S 1 7 7 0 -1 4194560 100 0 0 0 77 33 0 0 20 0 1 0 999",
			utime: 77, stime: 33,
		},
		{name: "truncated", line: "42 (worker) S 1 42", wantErr: true},
		{name: "garbage", line: "not a stat line", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			utime, stime, err := parseStatJiffies([]byte(tc.line))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d/%d", utime, stime)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if utime != tc.utime || stime != tc.stime {
				t.Fatalf("got utime=%d stime=%d, want %d/%d", utime, stime, tc.utime, tc.stime)
			}
		})
	}
}

func TestParseUID(t *testing.T) {
	status := "Name:\tworker\nPid:\t42\nUid:\t1000\t1000\t1000\t1000\nGid:\t1000\n"
	uid, err := parseUID([]byte(status))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != 1000 {
		t.Fatalf("got uid %d, want 1000", uid)
	}
	if _, err := parseUID([]byte("Name:\tworker\n")); err == nil {
		t.Fatalf("expected error for missing Uid line")
	}
}

func TestParseBusyJiffies(t *testing.T) {
	stat := "cpu  100 5 60 1000 50 3 2 0 0 0\ncpu0 50 2 30 500 25 1 1 0 0 0\n"
	busy, err := parseBusyJiffies([]byte(stat))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Everything except idle (1000) and iowait (50).
	if busy != 170 {
		t.Fatalf("got busy %d, want 170", busy)
	}
	if _, err := parseBusyJiffies([]byte("intr 12345\n")); err == nil {
		t.Fatalf("expected error for stat without cpu line")
	}
}

func TestParseKHz(t *testing.T) {
	if got := parseKHz([]byte("1800000\n")); got != 1800000 {
		t.Fatalf("got %d, want 1800000", got)
	}
	if got := parseKHz([]byte("bogus")); got != 0 {
		t.Fatalf("unparseable freq should read as 0, got %d", got)
	}
}

func TestJiffyDeltaClampsNegative(t *testing.T) {
	if got := jiffyDelta(10, 50); got != 0 {
		t.Fatalf("negative delta must clamp to 0, got %d", got)
	}
	if got := jiffyDelta(50, 10); got != 40 {
		t.Fatalf("got %d, want 40", got)
	}
}

func TestPowerFunc(t *testing.T) {
	params := device.CPUParams{
		BaseMW: 100,
		FreqPoints: []device.FreqPoint{
			{KHz: 1000, ActiveMW: 400},
			{KHz: 2000, ActiveMW: 800},
		},
	}
	fn := PowerFunc(params)

	cases := []struct {
		name string
		m    types.Measurement
		want int
	}{
		{"halfUtil", Reading{UsrFrac: 0.3, SysFrac: 0.2, FreqKHz: 1000}, 200},
		{"systemAddsBase", Reading{UsrFrac: 0.5, FreqKHz: 1000, System: true}, 300},
		{"interpolatedFreq", Reading{UsrFrac: 1, FreqKHz: 1500}, 600},
		{"idle", Reading{FreqKHz: 2000}, 0},
		{"negativeClamped", Reading{UsrFrac: -1, FreqKHz: 1000}, 0},
		{"wrongType", "not a reading", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := fn(tc.m); got != tc.want {
				t.Fatalf("got %d mW, want %d", got, tc.want)
			}
		})
	}
}
