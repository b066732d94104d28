// Package export publishes the estimator's query surface as Prometheus
// metrics via a const-metric collector, so scrapes always see the newest
// aggregated iteration without any sampling of their own.
package export

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srodi/wattrace/pkg/estimator"
	"github.com/srodi/wattrace/pkg/history"
	"github.com/srodi/wattrace/pkg/types"
)

// Source is the slice of the estimator's query layer the collector reads.
type Source interface {
	Components() []string
	LastIteration() int64
	Severity() (int, float64)
	ComponentHistory(count int, componentID int, uid int, iteration int64) []int
	UIDInfos(w history.Window, ignoreMask int) []estimator.UIDInfo
}

// Collector translates power estimates into Prometheus metrics on every
// scrape.
type Collector struct {
	src Source

	iteration      *prometheus.Desc
	totalPower     *prometheus.Desc
	severity       *prometheus.Desc
	componentPower *prometheus.Desc
	uidPower       *prometheus.Desc
	uidEnergy      *prometheus.Desc
	uidRuntime     *prometheus.Desc
}

// NewCollector builds a collector over src. Register it with a
// prometheus.Registerer to expose it.
func NewCollector(src Source) *Collector {
	return &Collector{
		src: src,
		iteration: prometheus.NewDesc(
			"wattrace_last_iteration",
			"Index of the newest fully aggregated iteration.",
			nil, nil),
		totalPower: prometheus.NewDesc(
			"wattrace_total_power_milliwatts",
			"Estimated system-wide draw at the newest iteration, summed across components.",
			nil, nil),
		severity: prometheus.NewDesc(
			"wattrace_severity_level",
			"Smoothed draw severity from 0 (idle) to 8 (at rated maximum).",
			nil, nil),
		componentPower: prometheus.NewDesc(
			"wattrace_component_power_milliwatts",
			"Estimated system-wide component draw at the newest iteration.",
			[]string{"component"}, nil),
		uidPower: prometheus.NewDesc(
			"wattrace_uid_power_milliwatts",
			"Estimated per-UID draw at the newest iteration, summed across components.",
			[]string{"uid", "name"}, nil),
		uidEnergy: prometheus.NewDesc(
			"wattrace_uid_energy_millijoules_total",
			"Estimated per-UID energy since process start.",
			[]string{"uid", "name"}, nil),
		uidRuntime: prometheus.NewDesc(
			"wattrace_uid_runtime_seconds_total",
			"Seconds each UID has been observed since process start.",
			[]string{"uid", "name"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.iteration
	ch <- c.totalPower
	ch <- c.severity
	ch <- c.componentPower
	ch <- c.uidPower
	ch <- c.uidEnergy
	ch <- c.uidRuntime
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	last := c.src.LastIteration()
	ch <- prometheus.MustNewConstMetric(c.iteration, prometheus.GaugeValue, float64(last))
	if last < 0 {
		return // nothing aggregated yet
	}

	level, _ := c.src.Severity()
	ch <- prometheus.MustNewConstMetric(c.severity, prometheus.GaugeValue, float64(level))
	if vals := c.src.ComponentHistory(1, types.ComponentAll, types.UIDAll, last); len(vals) == 1 {
		ch <- prometheus.MustNewConstMetric(
			c.totalPower, prometheus.GaugeValue, float64(vals[0]))
	}

	for i, name := range c.src.Components() {
		vals := c.src.ComponentHistory(1, i, types.UIDAll, last)
		if len(vals) != 1 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			c.componentPower, prometheus.GaugeValue, float64(vals[0]), name)
	}

	for _, info := range c.src.UIDInfos(history.WindowTotal, 0) {
		uid := strconv.Itoa(info.UID)
		ch <- prometheus.MustNewConstMetric(
			c.uidPower, prometheus.GaugeValue, float64(info.CurrentPower), uid, info.Name)
		ch <- prometheus.MustNewConstMetric(
			c.uidEnergy, prometheus.CounterValue, float64(info.TotalEnergy), uid, info.Name)
		ch <- prometheus.MustNewConstMetric(
			c.uidRuntime, prometheus.CounterValue, float64(info.Runtime), uid, info.Name)
	}
}
