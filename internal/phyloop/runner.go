// Package phyloop runs the per-TTI PHY worker: it advances the RF
// timestamps, derives the HARQ timing, and folds one observation per active
// carrier into the shared metrics board.
package phyloop

import (
	"context"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/phy-core/internal/logging"
	"github.com/signalsfoundry/phy-core/phymetrics"
	"github.com/signalsfoundry/phy-core/rftime"
	"github.com/signalsfoundry/phy-core/timectrl"
	"github.com/signalsfoundry/phy-core/tti"
)

const tracerName = "github.com/signalsfoundry/phy-core/internal/phyloop"

// DefaultReportInterval is the number of TTIs between reports.
const DefaultReportInterval = 1000

// Observation is one measurement of a carrier during a TTI.
type Observation struct {
	Info phymetrics.InfoMetrics
	Sync phymetrics.SyncMetrics
	Ch   phymetrics.ChannelMetrics
	DL   phymetrics.DLMetrics
	UL   phymetrics.ULMetrics
}

// Source produces observations. Measure is called on the loop goroutine for
// every active carrier cc, with the TTI being received and the timestamp of
// the carrier's first channel.
type Source interface {
	Measure(cc, rxTTI uint32, ts rftime.Timestamp) Observation
}

// Recorder receives loop counters. *observability.LoopCollector implements it.
type Recorder interface {
	ObserveTTI(t uint32, d time.Duration)
	IncNonFiniteSINR(cc uint32)
	IncReports()
}

type noopRecorder struct{}

func (noopRecorder) ObserveTTI(uint32, time.Duration) {}
func (noopRecorder) IncNonFiniteSINR(uint32)          {}
func (noopRecorder) IncReports()                      {}

// Status describes the most recently processed TTI.
type Status struct {
	TTI       uint32           `json:"tti"`
	TxTTI     uint32           `json:"tx_tti"`
	RxTTI     uint32           `json:"rx_tti"`
	AckTTI    uint32           `json:"ack_tti"`
	Timestamp rftime.Timestamp `json:"timestamp"`
	Processed uint64           `json:"processed"`
	Channels  uint32           `json:"channels"`
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder sets the loop counter sink.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.rec = rec
		}
	}
}

// WithLogger sets the logger used for reports and overruns.
func WithLogger(log logging.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithTracer overrides the tracer used for report spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithReportInterval sets the number of TTIs between reports. Zero keeps the
// default.
func WithReportInterval(n uint32) Option {
	return func(r *Runner) {
		if n > 0 {
			r.reportEvery = n
		}
	}
}

// WithWindowedReports makes every report collect and reset the board, so each
// report covers only the TTIs since the previous one.
func WithWindowedReports(on bool) Option {
	return func(r *Runner) { r.windowed = on }
}

// WithReportHook registers fn to receive the metrics and status of every
// report. fn runs on the loop goroutine and must not block.
func WithReportHook(fn func(phymetrics.PHYMetrics, Status)) Option {
	return func(r *Runner) { r.hook = fn }
}

// WithChannels sets how many RF channels the runner drives, clamped to
// 1..rftime.NumChannels. Only those timestamps advance. The channels are
// split evenly across the active carriers, up to rftime.MaxPorts each, and a
// carrier beyond the last channel shares it. It defaults to every channel.
func WithChannels(n uint32) Option {
	return func(r *Runner) {
		if n > 0 {
			r.channels = min(n, rftime.NumChannels)
		}
	}
}

// WithBudget sets the per-TTI processing budget above which an overrun is
// logged at debug level. It defaults to one subframe.
func WithBudget(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.budget = d
		}
	}
}

// Runner is the PHY worker. OnTTI must only be called from one goroutine.
type Runner struct {
	board *phymetrics.Board
	src   Source
	ts    *rftime.Set

	rec         Recorder
	log         logging.Logger
	tracer      trace.Tracer
	reportEvery uint32
	channels    uint32
	windowed    bool
	budget      time.Duration
	hook        func(phymetrics.PHYMetrics, Status)

	ctx     context.Context
	obs     [phymetrics.MaxCarriers]Observation
	sinceRp uint32

	mu     sync.RWMutex
	status Status
}

// NewRunner creates a runner folding observations from src into board.
// Every channel timestamp starts at start.
func NewRunner(board *phymetrics.Board, src Source, start rftime.Timestamp, opts ...Option) *Runner {
	r := &Runner{
		board:       board,
		src:         src,
		ts:          rftime.NewSet(start),
		rec:         noopRecorder{},
		log:         logging.Noop(),
		tracer:      otel.Tracer(tracerName),
		reportEvery: DefaultReportInterval,
		channels:    rftime.NumChannels,
		budget:      timectrl.Subframe,
		ctx:         context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.status.Timestamp = r.ts.Get(0)
	r.status.Channels = r.channels
	return r
}

// Timestamps returns a copy of the current channel timestamps.
func (r *Runner) Timestamps() *rftime.Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ts.Clone()
}

// Status returns the state of the last processed TTI.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// OnTTI processes TTI t.
func (r *Runner) OnTTI(t uint32) {
	start := time.Now()
	if !tti.Valid(t) {
		r.log.Warn(r.ctx, "ignoring tti outside the ring", logging.Uint32("tti", t))
		return
	}

	r.mu.Lock()
	for ch := uint32(0); ch < r.channels; ch++ {
		r.ts.Ptr(ch).Add(0, timectrl.Subframe.Seconds())
	}
	r.mu.Unlock()

	rx := tti.Rx(t)
	snap := r.board.Snapshot()
	active := min(snap.NofActiveCC, phymetrics.MaxCarriers)

	for cc := uint32(0); cc < active; cc++ {
		r.obs[cc] = r.src.Measure(cc, rx, r.ts.Get(r.channelOf(cc, active)))
		if sinr := r.obs[cc].Ch.SINR; math.IsNaN(sinr) || math.IsInf(sinr, 0) {
			r.rec.IncNonFiniteSINR(cc)
		}
	}

	r.board.Update(func(m *phymetrics.PHYMetrics) {
		for cc := uint32(0); cc < active; cc++ {
			o := &r.obs[cc]
			if info := m.InfoAt(cc); info != nil {
				*info = o.Info
			}
			if s := m.SyncAt(cc); s != nil {
				s.Set(o.Sync)
			}
			if ch := m.ChannelAt(cc); ch != nil {
				ch.Set(o.Ch)
			}
			if dl := m.DLAt(cc); dl != nil {
				dl.Set(o.DL)
			}
			if ul := m.ULAt(cc); ul != nil {
				ul.Set(o.UL)
			}
		}
	})

	r.mu.Lock()
	r.status = Status{
		TTI:       t,
		TxTTI:     tti.Tx(t),
		RxTTI:     rx,
		AckTTI:    tti.RxAck(t),
		Timestamp: r.ts.Get(0),
		Processed: r.status.Processed + 1,
		Channels:  r.channels,
	}
	st := r.status
	r.mu.Unlock()

	r.sinceRp++
	if r.sinceRp >= r.reportEvery {
		r.sinceRp = 0
		r.report(st)
	}

	elapsed := time.Since(start)
	if elapsed > r.budget {
		r.log.Debug(r.ctx, "tti overrun",
			logging.Uint32("tti", t),
			logging.Duration("elapsed", elapsed),
		)
	}
	r.rec.ObserveTTI(t, elapsed)
}

// Channels returns the number of RF channels the runner drives.
func (r *Runner) Channels() uint32 { return r.channels }

// channelOf maps carrier cc to its first channel when active carriers share
// the runner's channels.
func (r *Runner) channelOf(cc, active uint32) uint32 {
	ports := min(max(r.channels/active, 1), rftime.MaxPorts)
	return min(cc*ports, r.channels-1)
}

func (r *Runner) report(st Status) {
	var m phymetrics.PHYMetrics
	if r.windowed {
		m = r.board.Collect()
	} else {
		m = r.board.Snapshot()
	}
	active := min(m.NofActiveCC, phymetrics.MaxCarriers)

	_, span := r.tracer.Start(r.ctx, "phyloop.report", trace.WithAttributes(
		attribute.Int64("phy.tti", int64(st.TTI)),
		attribute.Int64("phy.tx_tti", int64(st.TxTTI)),
		attribute.Int64("phy.processed", int64(st.Processed)),
		attribute.String("phy.timestamp", st.Timestamp.String()),
		attribute.Int64("phy.active_carriers", int64(active)),
	))
	defer span.End()

	fields := []logging.Field{
		logging.Uint32("tti", st.TTI),
		logging.Uint64("processed", st.Processed),
		logging.String("timestamp", st.Timestamp.String()),
		logging.Uint32("carriers", active),
	}
	for cc := uint32(0); cc < active; cc++ {
		ch := m.Ch[cc]
		span.AddEvent("carrier", trace.WithAttributes(
			attribute.Int64("carrier", int64(cc)),
			attribute.Float64("sinr", ch.SINR),
			attribute.Float64("rsrp", ch.RSRP),
			attribute.Float64("ta_us", m.Sync[cc].TAus),
		))
		if cc == 0 {
			fields = append(fields,
				logging.Float64("sinr", ch.SINR),
				logging.Float64("rsrp", ch.RSRP),
				logging.Float64("ta_us", m.Sync[cc].TAus),
				logging.Float64("dl_mcs", m.DL[cc].MCS),
			)
		}
	}
	r.log.Info(r.ctx, "phy report", fields...)
	r.rec.IncReports()
	if r.hook != nil {
		r.hook(m, st)
	}
}

// Run registers the runner on clock and drives it for count TTIs, or until
// ctx is cancelled when count is zero. It blocks until the clock stops and
// returns ctx.Err() if it was cancelled.
func (r *Runner) Run(ctx context.Context, clock *timectrl.TimeController, count uint64) error {
	r.ctx = ctx
	clock.AddListener(r.OnTTI)
	r.log.Info(ctx, "phy loop started",
		logging.Uint32("start_tti", clock.Now()),
		logging.String("mode", clock.Mode.String()),
		logging.Uint32("channels", r.channels),
		logging.Duration("tick", clock.Tick),
	)
	<-clock.Start(ctx, count)
	r.log.Info(ctx, "phy loop stopped", logging.Uint64("processed", clock.Processed()))
	return ctx.Err()
}
