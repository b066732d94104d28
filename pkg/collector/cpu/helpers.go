package cpu

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// procReadFile and procGlob allow tests to stub procfs access.
var (
	procReadFile = os.ReadFile
	procGlob     = filepath.Glob
)

// parseStatJiffies extracts utime and stime from /proc/<pid>/stat content.
// The comm field may contain spaces and parentheses, so fields are counted
// from the last closing paren: state ppid pgrp session tty tpgid flags minflt
// cminflt majflt cmajflt utime stime ...
func parseStatJiffies(data []byte) (utime, stime uint64, err error) {
	end := bytes.LastIndexByte(data, ')')
	if end < 0 || end+2 > len(data) {
		return 0, 0, fmt.Errorf("malformed stat line")
	}
	fields := strings.Fields(string(data[end+1:]))
	if len(fields) < 13 {
		return 0, 0, fmt.Errorf("stat line too short: %d fields", len(fields))
	}
	utime, err = strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	stime, err = strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return utime, stime, nil
}

// parseUID extracts the real UID from /proc/<pid>/status content.
func parseUID(data []byte) (int, error) {
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "Uid:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		return strconv.Atoi(fields[1])
	}
	return 0, fmt.Errorf("no Uid line in status")
}

// parseBusyJiffies sums the non-idle jiffies of the aggregate cpu line of
// /proc/stat.
func parseBusyJiffies(data []byte) (uint64, error) {
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return 0, fmt.Errorf("unexpected cpu line: %q", line)
		}
		var busy uint64
		for i, f := range fields[1:] {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return 0, err
			}
			// Fields 4 and 5 are idle and iowait.
			if i == 3 || i == 4 {
				continue
			}
			busy += v
		}
		return busy, nil
	}
	return 0, fmt.Errorf("no aggregate cpu line in stat")
}

// parseKHz parses a cpufreq sysfs value.
func parseKHz(data []byte) int {
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func jiffyDelta(cur, prev uint64) uint64 {
	// A UID's jiffy sum drops when one of its processes exits; charge nothing
	// rather than wrapping around.
	if cur < prev {
		return 0
	}
	return cur - prev
}
