package sysinfo

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// settingsReadFile and settingsGlob allow tests to stub sysfs access.
var (
	settingsReadFile = os.ReadFile
	settingsGlob     = filepath.Glob
)

// Settings is the periodic environment snapshot written to the log every
// half hour of iterations.
type Settings struct {
	HasBrightness  bool
	BrightnessAuto bool
	Brightness     int
	ScreenTimeout  int // seconds, -1 when unknown
	HTTPProxy      string
}

// SnapshotSettings gathers the current display and proxy settings.
func SnapshotSettings() Settings {
	s := Settings{ScreenTimeout: -1}

	if dirs, err := settingsGlob("/sys/class/backlight/*"); err == nil && len(dirs) > 0 {
		if v, ok := readIntFile(filepath.Join(dirs[0], "brightness")); ok {
			s.HasBrightness = true
			s.Brightness = v
		}
	}
	// consoleblank carries the kernel's screen blank timeout in seconds.
	if v, ok := readIntFile("/sys/module/kernel/parameters/consoleblank"); ok && v > 0 {
		s.ScreenTimeout = v
	}
	for _, key := range []string{"HTTP_PROXY", "http_proxy"} {
		if v := os.Getenv(key); v != "" {
			s.HTTPProxy = v
			break
		}
	}
	return s
}

func readIntFile(path string) (int, bool) {
	data, err := settingsReadFile(path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return v, true
}
