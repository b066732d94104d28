package device

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile holds the per-device power model: rated maximums and the
// coefficients each component's power function is built from. Profiles ship
// as YAML files; Default covers devices without one.
type Profile struct {
	Model      string     `yaml:"model"`
	MaxPowerMW int        `yaml:"max_power_mw"`
	CPU        CPUParams  `yaml:"cpu"`
	LCD        LCDParams  `yaml:"lcd"`
	Wifi       WifiParams `yaml:"wifi"`
}

// CPUParams models CPU draw as a base plus a frequency-dependent active term
// scaled by utilization.
type CPUParams struct {
	MaxPowerMW int         `yaml:"max_power_mw"`
	BaseMW     float64     `yaml:"base_mw"`
	FreqPoints []FreqPoint `yaml:"freq_points"`
}

// FreqPoint is the active power at full utilization for one CPU frequency.
// Points must be sorted by ascending KHz.
type FreqPoint struct {
	KHz      int     `yaml:"khz"`
	ActiveMW float64 `yaml:"active_mw"`
}

// LCDParams models display draw as a base plus a term linear in brightness.
type LCDParams struct {
	MaxPowerMW   int     `yaml:"max_power_mw"`
	BaseMW       float64 `yaml:"base_mw"`
	BrightnessMW float64 `yaml:"brightness_mw"`
}

// WifiParams models radio draw as a base plus per-megabit transfer terms.
type WifiParams struct {
	MaxPowerMW   int     `yaml:"max_power_mw"`
	BaseMW       float64 `yaml:"base_mw"`
	TxMWPerMbit  float64 `yaml:"tx_mw_per_mbit"`
	RxMWPerMbit  float64 `yaml:"rx_mw_per_mbit"`
}

// Default returns a conservative generic profile for devices without a YAML
// profile.
func Default() *Profile {
	return &Profile{
		Model:      "generic",
		MaxPowerMW: 2800,
		CPU: CPUParams{
			MaxPowerMW: 1200,
			BaseMW:     120,
			FreqPoints: []FreqPoint{
				{KHz: 400_000, ActiveMW: 250},
				{KHz: 1_200_000, ActiveMW: 600},
				{KHz: 2_400_000, ActiveMW: 1100},
			},
		},
		LCD: LCDParams{
			MaxPowerMW:   1000,
			BaseMW:       150,
			BrightnessMW: 850,
		},
		Wifi: WifiParams{
			MaxPowerMW:  700,
			BaseMW:      35,
			TxMWPerMbit: 4.5,
			RxMWPerMbit: 3.0,
		},
	}
}

// Load reads and validates a YAML profile.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the profile is usable for estimation.
func (p *Profile) Validate() error {
	if p.MaxPowerMW <= 0 {
		return fmt.Errorf("max_power_mw must be positive, got %d", p.MaxPowerMW)
	}
	if len(p.CPU.FreqPoints) == 0 {
		return fmt.Errorf("cpu.freq_points must not be empty")
	}
	prev := 0
	for _, fp := range p.CPU.FreqPoints {
		if fp.KHz <= prev {
			return fmt.Errorf("cpu.freq_points must be sorted by ascending khz")
		}
		if fp.ActiveMW < 0 {
			return fmt.Errorf("cpu.freq_points active_mw must not be negative")
		}
		prev = fp.KHz
	}
	return nil
}

// MaxPower returns the rated maximum for one component by name, or zero for
// unknown components.
func (p *Profile) MaxPower(component string) int {
	switch component {
	case "CPU":
		return p.CPU.MaxPowerMW
	case "LCD":
		return p.LCD.MaxPowerMW
	case "Wifi":
		return p.Wifi.MaxPowerMW
	}
	return 0
}

// ActiveMWAt interpolates the full-utilization active power at the given
// frequency. Frequencies outside the table clamp to its ends; an unknown
// frequency (zero) uses the lowest point.
func (c CPUParams) ActiveMWAt(khz int) float64 {
	pts := c.FreqPoints
	if len(pts) == 0 {
		return 0
	}
	if khz <= pts[0].KHz {
		return pts[0].ActiveMW
	}
	last := pts[len(pts)-1]
	if khz >= last.KHz {
		return last.ActiveMW
	}
	for i := 1; i < len(pts); i++ {
		if khz <= pts[i].KHz {
			lo, hi := pts[i-1], pts[i]
			frac := float64(khz-lo.KHz) / float64(hi.KHz-lo.KHz)
			return lo.ActiveMW + frac*(hi.ActiveMW-lo.ActiveMW)
		}
	}
	return last.ActiveMW
}
