package observability

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/phy-core/phymetrics"
)

// SnapshotSource yields a consistent copy of the aggregated PHY metrics.
// *phymetrics.Board satisfies it.
type SnapshotSource interface {
	Snapshot() phymetrics.PHYMetrics
}

type fieldDesc[T any] struct {
	field phymetrics.Field[T]
	desc  *prometheus.Desc
}

func newFieldDescs[T any](kind string, fields []phymetrics.Field[T]) []fieldDesc[T] {
	out := make([]fieldDesc[T], 0, len(fields))
	for _, f := range fields {
		out = append(out, fieldDesc[T]{
			field: f,
			desc: prometheus.NewDesc(
				prometheus.BuildFQName("phy", kind, f.Name),
				fmt.Sprintf("PHY %s metric %s per carrier (%s).", kind, f.Name, f.Policy),
				[]string{"carrier"}, nil,
			),
		})
	}
	return out
}

func collectFields[T any](ch chan<- prometheus.Metric, descs []fieldDesc[T], recs []T, active uint32) {
	for cc := uint32(0); cc < active && int(cc) < len(recs); cc++ {
		label := strconv.FormatUint(uint64(cc), 10)
		for _, d := range descs {
			ch <- prometheus.MustNewConstMetric(d.desc, prometheus.GaugeValue, *d.field.Value(&recs[cc]), label)
		}
	}
}

// PHYCollector is a prometheus.Collector that exports every field of the
// active carriers as a gauge, reading a fresh snapshot on each scrape.
// Carriers beyond the active count are never exported.
type PHYCollector struct {
	src SnapshotSource

	activeCarriers *prometheus.Desc
	cellInfo       *prometheus.Desc
	samples        *prometheus.Desc

	sync []fieldDesc[phymetrics.SyncMetrics]
	ch   []fieldDesc[phymetrics.ChannelMetrics]
	dl   []fieldDesc[phymetrics.DLMetrics]
	ul   []fieldDesc[phymetrics.ULMetrics]
}

// NewPHYCollector builds a collector over src and registers it with reg,
// defaulting to the global registry when reg is nil.
func NewPHYCollector(reg prometheus.Registerer, src SnapshotSource) (*PHYCollector, error) {
	if src == nil {
		return nil, fmt.Errorf("phy collector: nil snapshot source")
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &PHYCollector{
		src: src,
		activeCarriers: prometheus.NewDesc("phy_active_carriers",
			"Number of carriers with meaningful metrics.", nil, nil),
		cellInfo: prometheus.NewDesc("phy_cell_info",
			"Cell tracked on each active carrier; the value is always 1.", []string{"carrier", "pci", "dl_earfcn"}, nil),
		samples: prometheus.NewDesc("phy_metric_samples",
			"Observations folded into the current averaging window.", []string{"carrier", "kind"}, nil),
		sync: newFieldDescs("sync", phymetrics.SyncFields()),
		ch:   newFieldDescs("ch", phymetrics.ChannelFields()),
		dl:   newFieldDescs("dl", phymetrics.DLFields()),
		ul:   newFieldDescs("ul", phymetrics.ULFields()),
	}
	if err := reg.Register(c); err != nil {
		return nil, fmt.Errorf("register phy collector: %w", err)
	}
	return c, nil
}

// Describe implements prometheus.Collector.
func (c *PHYCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCarriers
	ch <- c.cellInfo
	ch <- c.samples
	describeFields(ch, c.sync)
	describeFields(ch, c.ch)
	describeFields(ch, c.dl)
	describeFields(ch, c.ul)
}

func describeFields[T any](ch chan<- *prometheus.Desc, descs []fieldDesc[T]) {
	for _, d := range descs {
		ch <- d.desc
	}
}

// Collect implements prometheus.Collector.
func (c *PHYCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.src.Snapshot()
	active := min(snap.NofActiveCC, phymetrics.MaxCarriers)

	ch <- prometheus.MustNewConstMetric(c.activeCarriers, prometheus.GaugeValue, float64(active))
	for cc := uint32(0); cc < active; cc++ {
		label := strconv.FormatUint(uint64(cc), 10)
		info := snap.Info[cc]
		ch <- prometheus.MustNewConstMetric(c.cellInfo, prometheus.GaugeValue, 1,
			label, strconv.FormatUint(uint64(info.PCI), 10), strconv.FormatUint(uint64(info.DLEARFCN), 10))
		ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue, float64(snap.Sync[cc].Samples()), label, "sync")
		ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue, float64(snap.Ch[cc].Samples()), label, "ch")
		ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue, float64(snap.DL[cc].Samples()), label, "dl")
		ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue, float64(snap.UL[cc].Samples()), label, "ul")
	}

	collectFields(ch, c.sync, snap.Sync[:], active)
	collectFields(ch, c.ch, snap.Ch[:], active)
	collectFields(ch, c.dl, snap.DL[:], active)
	collectFields(ch, c.ul, snap.UL[:], active)
}
