package types

import "sort"

// UIDAll is the sentinel identity meaning "aggregate across every UID".
// Samplers report system-wide readings (including draw not attributable to
// any single UID) under this key.
const UIDAll = -1

// FirstAppUID is the lowest UID treated as an application identity. UIDs
// below it belong to system daemons and are tracked without name resolution.
const FirstAppUID = 1000

// ComponentAll selects every component in history queries.
const ComponentAll = -1

// Measurement is a component-specific raw reading for one UID in one
// iteration. Each component's power function asserts to its own concrete
// reading type.
type Measurement any

// ExtraLogger is implemented by measurements that contribute extra log lines
// ahead of their component's system-wide entry in an iteration block.
type ExtraLogger interface {
	LogLines() []string
}

// Scorer is implemented by measurements that carry a normalized display
// quality score tracked separately from power. A negative score means no
// sample for this iteration.
type Scorer interface {
	DisplayScore() float64
}

// PowerFunc maps one raw measurement to estimated power in milliwatts.
type PowerFunc func(m Measurement) int

// IterationData carries one sampler's readings for a single iteration, keyed
// by UID. The aggregator fills Power with the derived milliwatt values so the
// log writer never recomputes them.
type IterationData struct {
	UIDPower map[int]Measurement
	Power    map[int]int
}

// NewIterationData returns an empty measurement set ready to be filled by a
// sampler.
func NewIterationData() *IterationData {
	return &IterationData{
		UIDPower: make(map[int]Measurement),
		Power:    make(map[int]int),
	}
}

// UIDs returns the identities present in the set in ascending order, UIDAll
// first. Log blocks need a deterministic order.
func (d *IterationData) UIDs() []int {
	uids := make([]int, 0, len(d.UIDPower))
	for uid := range d.UIDPower {
		uids = append(uids, uid)
	}
	sort.Ints(uids)
	return uids
}
