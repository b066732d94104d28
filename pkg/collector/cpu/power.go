package cpu

import (
	"math"

	"github.com/srodi/wattrace/pkg/device"
	"github.com/srodi/wattrace/pkg/types"
)

// Reading is the CPU measurement for one UID in one iteration: the fractions
// of the interval spent in user and system code, and the sampled core
// frequency. The UIDAll reading is marked System and carries the base draw.
type Reading struct {
	UsrFrac float64
	SysFrac float64
	FreqKHz int
	System  bool
}

// PowerFunc builds the CPU power function from a device profile.
func PowerFunc(params device.CPUParams) types.PowerFunc {
	return func(m types.Measurement) int {
		r, ok := m.(Reading)
		if !ok {
			return 0
		}
		util := r.UsrFrac + r.SysFrac
		if util < 0 {
			util = 0
		}
		p := params.ActiveMWAt(r.FreqKHz) * util
		if r.System {
			p += params.BaseMW
		}
		return int(math.Round(p))
	}
}
