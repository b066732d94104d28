package estimator

import "math"

// smoothingWeight is the per-sample EWMA weight for the severity average.
// Small on purpose: the indicator should track sustained draw, not spikes.
const smoothingWeight = 0.02

// smoothedPower folds a window of milliwatt samples, newest to oldest, into
// one exponentially weighted average. Zero samples are holes left
// by missed iterations and are skipped. Returns -1 when the window holds no
// real samples. The running average is normalized by 1-(1-w)^n so short
// windows are not biased toward zero.
func smoothedPower(samples []int, weight float64) float64 {
	avg := 0.0
	count := 0
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i] == 0 {
			continue
		}
		avg = avg*(1-weight) + weight*float64(samples[i])/1000
		count++
	}
	if count == 0 {
		return -1
	}
	avg /= 1 - math.Pow(1-weight, float64(count))
	return avg * 1000
}

// severityLevel maps an average draw to a level from 0 (idle) to 8 (at or
// beyond the device's rated maximum).
func severityLevel(avgMW float64, maxPowerMW int) int {
	if maxPowerMW <= 0 {
		return 0
	}
	level := int(math.Min(8, 1+avgMW*8/float64(maxPowerMW)))
	if level < 0 {
		return 0
	}
	if level > 8 {
		return 8
	}
	return level
}
