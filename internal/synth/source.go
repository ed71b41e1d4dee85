// Package synth generates plausible PHY measurements for simulation runs.
package synth

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/signalsfoundry/phy-core/internal/phyloop"
	"github.com/signalsfoundry/phy-core/ntn"
	"github.com/signalsfoundry/phy-core/phymetrics"
	"github.com/signalsfoundry/phy-core/rftime"
)

// terrestrialDistanceKm is the UE distance used when no tracker is set.
const terrestrialDistanceKm = 1.5

// Config parameterizes a Source.
type Config struct {
	Seed int64
	// NonFiniteSINRP is the probability that an observation carries a NaN or
	// infinite SINR.
	NonFiniteSINRP float64
	PCIBase        uint32
	DLEARFCN       uint32
	// Tracker, when set, supplies distance, speed and timing advance.
	Tracker *ntn.Tracker
}

// Source is a seeded phyloop.Source. It is not safe for concurrent use.
type Source struct {
	cfg Config
	rng *rand.Rand

	noise     distuv.Normal
	nonFinite distuv.Bernoulli
}

var _ phyloop.Source = (*Source)(nil)

// New returns a source. The same seed yields the same sequence.
func New(cfg Config) *Source {
	src := rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)^0x9e3779b97f4a7c15)
	p := cfg.NonFiniteSINRP
	if !(p >= 0) {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return &Source{
		cfg:       cfg,
		rng:       rand.New(src),
		noise:     distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		nonFinite: distuv.Bernoulli{P: p, Src: src},
	}
}

// Measure implements phyloop.Source.
func (s *Source) Measure(cc, rxTTI uint32, ts rftime.Timestamp) phyloop.Observation {
	var obs phyloop.Observation
	obs.Info = phymetrics.InfoMetrics{
		PCI:      s.cfg.PCIBase + cc,
		DLEARFCN: s.cfg.DLEARFCN + 100*cc,
	}

	geo := ntn.Geometry{
		DistanceKm: terrestrialDistanceKm,
		TAus:       ntn.TimingAdvanceUs(terrestrialDistanceKm),
	}
	if s.cfg.Tracker != nil {
		geo = s.cfg.Tracker.At(ts.Time())
	}
	obs.Sync = phymetrics.SyncMetrics{
		TAus:       geo.TAus,
		DistanceKm: geo.DistanceKm,
		SpeedKmph:  geo.SpeedKmph,
		CFO:        40 * s.noise.Rand(),
		SFO:        0.5 * s.noise.Rand(),
	}

	// Carriers further up the band see a slightly worse channel.
	sinr := 18 - 2*float64(cc) + 2*s.noise.Rand()
	if s.nonFinite.Rand() == 1 {
		sinr = s.nonFiniteValue()
	}
	rsrp := -85 - 3*float64(cc) + 1.5*s.noise.Rand()
	ri := 1.0
	if s.rng.IntN(4) == 0 {
		ri = 2
	}
	obs.Ch = phymetrics.ChannelMetrics{
		N:        math.Pow(10, (rsrp-18)/10),
		SINR:     sinr,
		RSRP:     rsrp,
		RSRQ:     -10 + s.noise.Rand(),
		RSSI:     rsrp + 25 + s.noise.Rand(),
		RI:       ri,
		Pathloss: 15 - rsrp,
		SyncErr:  1e-7 * s.noise.Rand(),
	}

	// Toggle the MCS with the HARQ process so consecutive TTIs differ.
	mcs := float64(20 - 2*cc + rxTTI%2)
	obs.DL = phymetrics.DLMetrics{
		FECIters: float64(1 + s.rng.IntN(4)),
		MCS:      mcs,
		EVM:      math.Abs(2 + 0.5*s.noise.Rand()),
	}
	obs.UL = phymetrics.ULMetrics{
		MCS:   mcs - 4,
		Power: 10 + 2*s.noise.Rand(),
	}
	return obs
}

func (s *Source) nonFiniteValue() float64 {
	switch s.rng.IntN(3) {
	case 0:
		return math.Inf(1)
	case 1:
		return math.Inf(-1)
	default:
		return math.NaN()
	}
}
