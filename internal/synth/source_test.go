package synth

import (
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/phy-core/ntn"
	"github.com/signalsfoundry/phy-core/phymetrics"
	"github.com/signalsfoundry/phy-core/rftime"
)

const (
	issTLE1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issTLE2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

func TestMeasureIsDeterministicForSeed(t *testing.T) {
	a := New(Config{Seed: 7, NonFiniteSINRP: 0.3})
	b := New(Config{Seed: 7, NonFiniteSINRP: 0.3})
	ts := rftime.Timestamp{FullSecs: 100}

	for i := uint32(0); i < 50; i++ {
		oa := a.Measure(i%3, i, ts)
		ob := b.Measure(i%3, i, ts)
		if oa.Ch.RSRP != ob.Ch.RSRP || oa.DL.FECIters != ob.DL.FECIters || oa.Sync.CFO != ob.Sync.CFO {
			t.Fatalf("observation %d differs between equal seeds: %+v vs %+v", i, oa, ob)
		}
		if math.IsNaN(oa.Ch.SINR) != math.IsNaN(ob.Ch.SINR) {
			t.Fatalf("observation %d SINR NaN-ness differs", i)
		}
	}
}

func TestMeasureInfoAndTerrestrialSync(t *testing.T) {
	s := New(Config{Seed: 1, PCIBase: 100, DLEARFCN: 3350})
	obs := s.Measure(2, 0, rftime.Timestamp{})

	if obs.Info.PCI != 102 || obs.Info.DLEARFCN != 3550 {
		t.Fatalf("Info = %+v, want PCI 102 EARFCN 3550", obs.Info)
	}
	if obs.Sync.DistanceKm != terrestrialDistanceKm {
		t.Fatalf("DistanceKm = %v, want %v", obs.Sync.DistanceKm, terrestrialDistanceKm)
	}
	if obs.Sync.TAus != ntn.TimingAdvanceUs(terrestrialDistanceKm) {
		t.Fatalf("TAus = %v, want %v", obs.Sync.TAus, ntn.TimingAdvanceUs(terrestrialDistanceKm))
	}
	if obs.Sync.SpeedKmph != 0 {
		t.Fatalf("SpeedKmph = %v, want 0", obs.Sync.SpeedKmph)
	}
}

func TestMeasureNonFiniteProbabilityBounds(t *testing.T) {
	always := New(Config{Seed: 3, NonFiniteSINRP: 1})
	never := New(Config{Seed: 3, NonFiniteSINRP: 0})
	for i := uint32(0); i < 100; i++ {
		if sinr := always.Measure(0, i, rftime.Timestamp{}).Ch.SINR; !math.IsNaN(sinr) && !math.IsInf(sinr, 0) {
			t.Fatalf("probability 1 produced finite SINR %v", sinr)
		}
		if sinr := never.Measure(0, i, rftime.Timestamp{}).Ch.SINR; math.IsNaN(sinr) || math.IsInf(sinr, 0) {
			t.Fatalf("probability 0 produced non-finite SINR %v", sinr)
		}
	}
}

func TestMeasureValuesArePlausible(t *testing.T) {
	s := New(Config{Seed: 11})
	for i := uint32(0); i < 200; i++ {
		obs := s.Measure(i%phymetrics.MaxCarriers, i, rftime.Timestamp{})
		if obs.DL.FECIters < 1 || obs.DL.FECIters > 4 {
			t.Fatalf("FECIters = %v, want 1..4", obs.DL.FECIters)
		}
		if obs.Ch.RI != 1 && obs.Ch.RI != 2 {
			t.Fatalf("RI = %v, want 1 or 2", obs.Ch.RI)
		}
		if obs.DL.MCS < 0 || obs.DL.MCS > 28 {
			t.Fatalf("DL MCS = %v, want 0..28", obs.DL.MCS)
		}
		if obs.DL.EVM < 0 {
			t.Fatalf("EVM = %v, want non-negative", obs.DL.EVM)
		}
	}
}

func TestNonFiniteSINRDoesNotPoisonAverage(t *testing.T) {
	s := New(Config{Seed: 5, NonFiniteSINRP: 0.5})
	var ch phymetrics.ChannelMetrics
	for i := uint32(0); i < 500; i++ {
		ch.Set(s.Measure(0, i, rftime.Timestamp{}).Ch)
	}
	if math.IsNaN(ch.SINR) || math.IsInf(ch.SINR, 0) {
		t.Fatalf("averaged SINR = %v, want finite", ch.SINR)
	}
	if ch.SINRSamples() == 0 || ch.SINRSamples() >= ch.Samples() {
		t.Fatalf("SINRSamples = %d of %d, want some but not all", ch.SINRSamples(), ch.Samples())
	}
}

func TestMeasureUsesTracker(t *testing.T) {
	tr := ntn.NewTrackerFromTLE(issTLE1, issTLE2, ntn.Observer{LatDeg: 40.4, LonDeg: -3.7, AltKm: 0.6})
	when := time.Date(2021, time.October, 2, 14, 0, 0, 0, time.UTC)
	s := New(Config{Seed: 1, Tracker: tr})

	obs := s.Measure(0, 0, rftime.FromTime(when))
	want := tr.At(when)
	if math.Abs(obs.Sync.DistanceKm-want.DistanceKm) > 1e-3 {
		t.Fatalf("DistanceKm = %v, want %v", obs.Sync.DistanceKm, want.DistanceKm)
	}
	if obs.Sync.DistanceKm < 400 {
		t.Fatalf("DistanceKm = %v, want LEO range", obs.Sync.DistanceKm)
	}
}
