//go:build unix

package region

import (
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
)

type instruments struct {
	created   metric.Int64Counter
	attached  metric.Int64Counter
	published metric.Int64Counter
	detached  metric.Int64Counter
	closed    metric.Int64Counter
}

func newInstruments(meter metric.Meter) *instruments {
	return &instruments{
		created:   int64Counter(meter, "shm_regions_created_total", "Regions created by this process."),
		attached:  int64Counter(meter, "shm_regions_attached_total", "Regions attached by this process."),
		published: int64Counter(meter, "shm_regions_published_total", "Regions published by this process."),
		detached:  int64Counter(meter, "shm_regions_detached_total", "Regions detached by this process."),
		closed:    int64Counter(meter, "shm_regions_closed_total", "Regions closed and unlinked by this process."),
	}
}

func int64Counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		internalLogger.Warnf("register instrument %s failed: %v", name, err)
		c, _ = noopmetric.Meter{}.Int64Counter(name)
	}
	return c
}
