package prometheus

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	minidrive "github.com/MrEthical07/minidrive"
	"github.com/MrEthical07/minidrive/metrics/export/internaldefs"
)

var ErrNilSource = errors.New("nil metrics source")

// Source is what the collector reads on every scrape. *minidrive.Client
// satisfies it.
type Source interface {
	MetricsSnapshot() minidrive.MetricsSnapshot
	AuditDropped() uint64
}

type counterDesc struct {
	id   minidrive.MetricID
	desc *prometheus.Desc
}

type histogramDesc struct {
	id   minidrive.MetricID
	desc *prometheus.Desc
}

// Collector is a prometheus.Collector over a Source. It keeps no state of
// its own; every scrape reads a fresh snapshot.
type Collector struct {
	source     Source
	counters   []counterDesc
	histograms []histogramDesc
	dropped    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector over source, or [ErrNilSource].
func NewCollector(source Source) (*Collector, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	c := &Collector{
		source:  source,
		dropped: prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c, nil
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, h := range c.histograms {
		ch <- h.desc
	}
	ch <- c.dropped
}

// Collect emits nothing for a disabled metrics set, so a scrape of a
// client built with metrics off stays empty.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.MetricsSnapshot()
	dropped := c.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(snap.Counters[d.id]))
	}
	for _, h := range c.histograms {
		raw, ok := snap.Histograms[h.id]
		if !ok {
			continue
		}
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramBounds))
		for i, bound := range internaldefs.HistogramBounds {
			buckets[bound] = cum[i]
		}
		ch <- prometheus.MustNewConstHistogram(h.desc, cum[len(cum)-1], snap.Sums[h.id].Seconds(), buckets)
	}
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(dropped))
}

// Register adds a collector for source to reg.
func Register(reg prometheus.Registerer, source Source) (*Collector, error) {
	c, err := NewCollector(source)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler serves source on a private registry together with the Go runtime
// and process collectors.
func Handler(source Source) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if _, err := Register(reg, source); err != nil {
		return nil, err
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), nil
}
