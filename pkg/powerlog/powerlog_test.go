package powerlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/srodi/wattrace/pkg/types"
)

type closableBuffer struct {
	bytes.Buffer
}

func (b *closableBuffer) Close() error { return nil }

func sampleBlock() []string {
	return []string{
		"iteration_interval+1000",
		"time+1700000000000",
		"localtime_offset+120",
		"model+generic",
		"notifications-active",
		"batt_full_capacity+5200000",
		"associate+1000+alice",
		"begin+0",
		"batt_current+412000.00",
		"total power+2100",
		"meminfo+16000000+9000000+250000+3100000",
		"screen+on",
		"LCD+ALL++650",
		"CPU+ALL++900",
		"CPU+1000+alice+320",
		"CPU+1001+bob+230",
		"Wifi+ALL++70",
		EndOfIteration,
	}
}

func TestRoundTripPlain(t *testing.T) {
	var buf closableBuffer
	w, err := NewWriter(&buf, false)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	w.WriteLines(sampleBlock())
	w.WriteLines([]string{"associate+1001+bobby", "begin+1", "total power+1800", "CPU+ALL++800", EndOfIteration})
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	parsed, err := Parse(&buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Header["iteration_interval"] != "1000" {
		t.Fatalf("header lost: %+v", parsed.Header)
	}
	if _, ok := parsed.Header["notifications-active"]; !ok {
		t.Fatalf("bare header flag lost: %+v", parsed.Header)
	}
	if parsed.Associates[1000] != "alice" || parsed.Associates[1001] != "bobby" {
		t.Fatalf("associates wrong: %+v", parsed.Associates)
	}
	if len(parsed.Iterations) != 2 {
		t.Fatalf("expected 2 iterations, got %d", len(parsed.Iterations))
	}

	it := parsed.Iterations[0]
	if it.Index != 0 || it.TotalPower != 2100 {
		t.Fatalf("iteration 0 wrong: %+v", it)
	}
	want := []Entry{
		{Component: "LCD", UID: types.UIDAll, Power: 650},
		{Component: "CPU", UID: types.UIDAll, Power: 900},
		{Component: "CPU", UID: 1000, Name: "alice", Power: 320},
		{Component: "CPU", UID: 1001, Name: "bob", Power: 230},
		{Component: "Wifi", UID: types.UIDAll, Power: 70},
	}
	if len(it.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), it.Entries)
	}
	for i, e := range want {
		if it.Entries[i] != e {
			t.Fatalf("entry %d: got %+v want %+v", i, it.Entries[i], e)
		}
	}
	// Environment snapshots and component detail lines survive as extras.
	joined := strings.Join(it.Extras, "\n")
	for _, extra := range []string{"batt_current+412000.00", "meminfo+", "screen+on"} {
		if !strings.Contains(joined, extra) {
			t.Fatalf("extra %q lost: %v", extra, it.Extras)
		}
	}
}

func TestRoundTripCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	w, err := Open(path, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	w.WriteLines(sampleBlock())
	w.Flush() // mid-stream flush must not corrupt the frame
	w.WriteLines([]string{"begin+1", "total power+1500", "CPU+ALL++700", EndOfIteration})
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r := NewCompressedReader(f)
	defer r.Close()

	parsed, err := Parse(r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed.Iterations) != 2 {
		t.Fatalf("expected 2 iterations, got %d", len(parsed.Iterations))
	}
	if parsed.Iterations[1].TotalPower != 1500 {
		t.Fatalf("iteration 1 wrong: %+v", parsed.Iterations[1])
	}
}

func TestParseRejectsBrokenBlocks(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"truncatedBlock", "begin+0\ntotal power+5\n"},
		{"nestedBegin", "begin+0\nbegin+1\n"},
		{"strayEnd", EndOfIteration + "\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tc.doc)); err == nil {
				t.Fatalf("expected parse error")
			}
		})
	}
}
