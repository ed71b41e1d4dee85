package monitor

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/phy-core/internal/logging"
	"github.com/signalsfoundry/phy-core/internal/observability"
	"github.com/signalsfoundry/phy-core/internal/phyloop"
	"github.com/signalsfoundry/phy-core/phymetrics"
)

// CarrierSnapshot is the JSON view of one active carrier.
type CarrierSnapshot struct {
	Carrier uint32                    `json:"carrier"`
	Info    phymetrics.InfoMetrics    `json:"info"`
	Sync    phymetrics.SyncMetrics    `json:"sync"`
	Channel phymetrics.ChannelMetrics `json:"channel"`
	DL      phymetrics.DLMetrics      `json:"dl"`
	UL      phymetrics.ULMetrics      `json:"ul"`
	Samples map[string]uint32         `json:"samples"`
}

// Snapshot is the body served on /api/snapshot.
type Snapshot struct {
	Status         *phyloop.Status   `json:"status,omitempty"`
	ActiveCarriers uint32            `json:"active_carriers"`
	Carriers       []CarrierSnapshot `json:"carriers"`
}

// BuildSnapshot converts m into its JSON view. Only active carriers are
// included.
func BuildSnapshot(m phymetrics.PHYMetrics) Snapshot {
	active := min(m.NofActiveCC, phymetrics.MaxCarriers)
	out := Snapshot{
		ActiveCarriers: active,
		Carriers:       make([]CarrierSnapshot, 0, active),
	}
	for cc := uint32(0); cc < active; cc++ {
		out.Carriers = append(out.Carriers, CarrierSnapshot{
			Carrier: cc,
			Info:    m.Info[cc],
			Sync:    m.Sync[cc],
			Channel: m.Ch[cc],
			DL:      m.DL[cc],
			UL:      m.UL[cc],
			Samples: map[string]uint32{
				"sync":    m.Sync[cc].Samples(),
				"ch":      m.Ch[cc].Samples(),
				"ch_sinr": m.Ch[cc].SINRSamples(),
				"dl":      m.DL[cc].Samples(),
				"ul":      m.UL[cc].Samples(),
			},
		})
	}
	return out
}

func (m *Monitor) newMux(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(gatherer))
	mux.HandleFunc("/api/snapshot", m.handleSnapshot)
	mux.HandleFunc("/api/stream", m.handleStream)
	return mux
}

func (m *Monitor) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, span := m.tracer.Start(r.Context(), "monitor.snapshot", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	snap := BuildSnapshot(m.metrics.Snapshot())
	if m.status != nil {
		st := m.status.Status()
		snap.Status = &st
	}
	span.SetAttributes(attribute.Int64("phy.active_carriers", int64(snap.ActiveCarriers)))

	// encoding/json rejects NaN and Inf, which Average fields can hold when
	// the source reports them.
	body, err := json.Marshal(snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode snapshot")
		m.log.Warn(ctx, "failed to encode snapshot", logging.Err(err))
		http.Error(w, "snapshot contains non-finite values", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(append(body, '\n'))
}
