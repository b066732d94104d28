package display

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/srodi/wattrace/pkg/device"
	"github.com/srodi/wattrace/pkg/types"
)

// sysReadFile and sysGlob allow tests to stub sysfs access.
var (
	sysReadFile = os.ReadFile
	sysGlob     = filepath.Glob
)

// Reading is the display measurement for one iteration. Brightness and Score
// are normalized to [0, 1]; Score is -1 while the panel is off so blank time
// never drags the display score average down.
type Reading struct {
	Brightness float64
	On         bool
	Score      float64
}

// DisplayScore exposes the reading to the score history.
func (r Reading) DisplayScore() float64 { return r.Score }

// LogLines reports the panel state ahead of the component's log entry.
func (r Reading) LogLines() []string {
	if r.On {
		return []string{"screen+on"}
	}
	return []string{"screen+off"}
}

// Sampler reads panel brightness from the backlight class device. It has no
// per-UID breakdown; the whole panel draw is reported under UIDAll.
type Sampler struct {
	dir string
	max float64
}

// New picks the first backlight device exposing a max_brightness.
func New() (*Sampler, error) {
	dirs, err := sysGlob("/sys/class/backlight/*")
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		data, err := sysReadFile(filepath.Join(dir, "max_brightness"))
		if err != nil {
			continue
		}
		max, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
		if err != nil || max <= 0 {
			continue
		}
		return &Sampler{dir: dir, max: max}, nil
	}
	return nil, fmt.Errorf("no usable backlight device")
}

// Name identifies the component in histories and log blocks.
func (s *Sampler) Name() string { return "LCD" }

// HasUIDData reports that display readings are system-wide only.
func (s *Sampler) HasUIDData() bool { return false }

// Calculate produces the measurement set for one iteration.
func (s *Sampler) Calculate(iter int64) (*types.IterationData, error) {
	raw, err := s.readValue("actual_brightness")
	if err != nil {
		raw, err = s.readValue("brightness")
		if err != nil {
			return nil, err
		}
	}
	brightness := raw / s.max
	if brightness > 1 {
		brightness = 1
	}

	on := brightness > 0
	if power, err := s.readValue("bl_power"); err == nil {
		// FB_BLANK semantics: zero means unblanked.
		on = power == 0 && brightness > 0
	}

	score := brightness
	if !on {
		score = -1
	}
	data := types.NewIterationData()
	data.UIDPower[types.UIDAll] = Reading{Brightness: brightness, On: on, Score: score}
	return data, nil
}

// Close releases nothing; sysfs needs no teardown.
func (s *Sampler) Close() error { return nil }

func (s *Sampler) readValue(name string) (float64, error) {
	data, err := sysReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
}

// PowerFunc builds the display power function from a device profile.
func PowerFunc(params device.LCDParams) types.PowerFunc {
	return func(m types.Measurement) int {
		r, ok := m.(Reading)
		if !ok || !r.On {
			return 0
		}
		return int(math.Round(params.BaseMW + r.Brightness*params.BrightnessMW))
	}
}
