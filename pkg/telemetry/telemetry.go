//go:build unix

// Package telemetry exposes the module's process-wide counters to
// prometheus: guard-lock contention from the spin collaborator and region
// lifecycle activity. The collector reads the counters on every scrape
// and holds no state of its own; nothing here ever runs on an atomic hot
// path or inside the signal-safe barrier code.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/shm-atomics/internal/spin"
	"github.com/srediag/shm-atomics/pkg/region"
)

// Collector implements prometheus.Collector over the spin contention and
// region lifecycle counters.
type Collector struct {
	slowAcquires *prometheus.Desc
	spinRounds   *prometheus.Desc
	sleepDelays  *prometheus.Desc

	regionsCreated   *prometheus.Desc
	regionsAttached  *prometheus.Desc
	regionsPublished *prometheus.Desc
	regionsDetached  *prometheus.Desc
	regionsClosed    *prometheus.Desc
	attachRetries    *prometheus.Desc
	regionsActive    *prometheus.Desc
}

// NewCollector returns a collector ready to register.
func NewCollector() *Collector {
	return &Collector{
		slowAcquires: prometheus.NewDesc(
			"shmatomics_spin_slow_acquires_total",
			"Guard acquisitions that missed the uncontended fast path.",
			nil, nil),
		spinRounds: prometheus.NewDesc(
			"shmatomics_spin_rounds_total",
			"Individual lock attempts made on the slow path.",
			nil, nil),
		sleepDelays: prometheus.NewDesc(
			"shmatomics_spin_sleep_delays_total",
			"Sleeps taken after slow-path spin bursts were exhausted.",
			nil, nil),
		regionsCreated: prometheus.NewDesc(
			"shmatomics_regions_created_total",
			"Shared regions created by this process.",
			nil, nil),
		regionsAttached: prometheus.NewDesc(
			"shmatomics_regions_attached_total",
			"Shared regions attached by this process.",
			nil, nil),
		regionsPublished: prometheus.NewDesc(
			"shmatomics_regions_published_total",
			"Shared regions published by this process.",
			nil, nil),
		regionsDetached: prometheus.NewDesc(
			"shmatomics_regions_detached_total",
			"Shared regions detached by this process.",
			nil, nil),
		regionsClosed: prometheus.NewDesc(
			"shmatomics_regions_closed_total",
			"Shared regions closed and unlinked by this process.",
			nil, nil),
		attachRetries: prometheus.NewDesc(
			"shmatomics_region_attach_retries_total",
			"Attach attempts that found the region missing or unpublished.",
			nil, nil),
		regionsActive: prometheus.NewDesc(
			"shmatomics_regions_active",
			"Regions currently mapped by this process.",
			nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.slowAcquires
	ch <- c.spinRounds
	ch <- c.sleepDelays
	ch <- c.regionsCreated
	ch <- c.regionsAttached
	ch <- c.regionsPublished
	ch <- c.regionsDetached
	ch <- c.regionsClosed
	ch <- c.attachRetries
	ch <- c.regionsActive
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := spin.ReadStats()
	ch <- prometheus.MustNewConstMetric(c.slowAcquires, prometheus.CounterValue, float64(s.SlowAcquires))
	ch <- prometheus.MustNewConstMetric(c.spinRounds, prometheus.CounterValue, float64(s.SpinRounds))
	ch <- prometheus.MustNewConstMetric(c.sleepDelays, prometheus.CounterValue, float64(s.SleepDelays))

	r := region.ReadStats()
	ch <- prometheus.MustNewConstMetric(c.regionsCreated, prometheus.CounterValue, float64(r.Created))
	ch <- prometheus.MustNewConstMetric(c.regionsAttached, prometheus.CounterValue, float64(r.Attached))
	ch <- prometheus.MustNewConstMetric(c.regionsPublished, prometheus.CounterValue, float64(r.Published))
	ch <- prometheus.MustNewConstMetric(c.regionsDetached, prometheus.CounterValue, float64(r.Detached))
	ch <- prometheus.MustNewConstMetric(c.regionsClosed, prometheus.CounterValue, float64(r.Closed))
	ch <- prometheus.MustNewConstMetric(c.attachRetries, prometheus.CounterValue, float64(r.AttachRetries))

	// Mappings still held: everything this process opened minus everything
	// it let go. The counters are read independently, so a scrape racing a
	// close can transiently undercount.
	active := float64(r.Created+r.Attached) - float64(r.Closed+r.Detached)
	if active < 0 {
		active = 0
	}
	ch <- prometheus.MustNewConstMetric(c.regionsActive, prometheus.GaugeValue, active)
}

// MustRegister registers a fresh Collector with reg and panics on a
// registration conflict, in the manner of prometheus.MustRegister.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(NewCollector())
}
