package phymetrics

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"
)

func TestCumulativeAverageMatchesMean(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const n = 5000

	var ul ULMetrics
	mcs := make([]float64, n)
	power := make([]float64, n)
	for i := range n {
		mcs[i] = float64(rng.Intn(29))
		power[i] = rng.NormFloat64()*3 - 10
		ul.Set(ULMetrics{MCS: mcs[i], Power: power[i]})
	}

	if got := ul.Samples(); got != n {
		t.Fatalf("Samples() = %d, want %d", got, n)
	}
	eps := 1e-16 * n * 100
	if want := stat.Mean(mcs, nil); !scalar.EqualWithinAbsOrRel(ul.MCS, want, eps, eps) {
		t.Fatalf("MCS = %v, want %v", ul.MCS, want)
	}
	if want := stat.Mean(power, nil); !scalar.EqualWithinAbsOrRel(ul.Power, want, eps, eps) {
		t.Fatalf("Power = %v, want %v", ul.Power, want)
	}
}

func TestSyncMetricsLatestAndAverage(t *testing.T) {
	var s SyncMetrics
	s.Set(SyncMetrics{TAus: 100, DistanceKm: 600, SpeedKmph: 27000, CFO: 10, SFO: 1})
	s.Set(SyncMetrics{TAus: 120, DistanceKm: 650, SpeedKmph: 26000, CFO: 20, SFO: 3})

	if s.TAus != 120 || s.DistanceKm != 650 || s.SpeedKmph != 26000 {
		t.Fatalf("latest fields = %+v, want last observation", s)
	}
	if s.CFO != 15 || s.SFO != 2 {
		t.Fatalf("CFO, SFO = %v, %v, want 15, 2", s.CFO, s.SFO)
	}
}

func TestChannelSINRSkipsNonFinite(t *testing.T) {
	var ch ChannelMetrics
	for _, v := range []float64{10.0, math.NaN(), 20.0} {
		ch.Set(ChannelMetrics{SINR: v, RSRP: -90})
	}

	if ch.SINR != 15.0 {
		t.Fatalf("SINR = %v, want 15", ch.SINR)
	}
	if got := ch.Samples(); got != 3 {
		t.Fatalf("Samples() = %d, want 3", got)
	}
	if got := ch.SINRSamples(); got != 2 {
		t.Fatalf("SINRSamples() = %d, want 2", got)
	}
	if ch.RSRP != -90 {
		t.Fatalf("RSRP = %v, want -90", ch.RSRP)
	}
}

func TestChannelSINRSkipsInfinities(t *testing.T) {
	var ch ChannelMetrics
	for _, v := range []float64{math.Inf(1), 4, math.Inf(-1), 8} {
		ch.Set(ChannelMetrics{SINR: v})
	}
	if ch.SINR != 6 {
		t.Fatalf("SINR = %v, want 6", ch.SINR)
	}
}

// A guard written as "not NaN or not Inf" holds for every float64, NaN
// included, so it would let NaN poison the average. The finite-only policy
// must reject exactly the values that guard lets through.
func TestFiniteGuardRejectsWhatDisjunctiveGuardAccepts(t *testing.T) {
	disjunctive := func(v float64) bool { return !math.IsNaN(v) || !math.IsInf(v, 0) }

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if !disjunctive(v) {
			t.Fatalf("disjunctive guard rejected %v; expected it to accept everything", v)
		}
		if Finite(v) {
			t.Fatalf("Finite(%v) = true, want false", v)
		}
	}
	for _, v := range []float64{0, -1, 1e300, math.SmallestNonzeroFloat64} {
		if !Finite(v) {
			t.Fatalf("Finite(%v) = false, want true", v)
		}
	}

	var ch ChannelMetrics
	ch.Set(ChannelMetrics{SINR: 10})
	ch.Set(ChannelMetrics{SINR: math.NaN()})
	if math.IsNaN(ch.SINR) {
		t.Fatalf("SINR became NaN")
	}
}

func TestResetZeroesEveryRecord(t *testing.T) {
	var (
		s  SyncMetrics
		ch ChannelMetrics
		dl DLMetrics
		ul ULMetrics
	)
	for i := range 17 {
		v := float64(i) + 0.5
		s.Set(SyncMetrics{TAus: v, DistanceKm: v, SpeedKmph: v, CFO: v, SFO: v})
		ch.Set(ChannelMetrics{N: v, SINR: v, RSRP: v, RSRQ: v, RSSI: v, RI: v, Pathloss: v, SyncErr: v})
		dl.Set(DLMetrics{FECIters: v, MCS: v, EVM: v})
		ul.Set(ULMetrics{MCS: v, Power: v})
	}
	s.Reset()
	ch.Reset()
	dl.Reset()
	ul.Reset()

	if s != (SyncMetrics{}) || s.Samples() != 0 {
		t.Fatalf("SyncMetrics after Reset = %+v", s)
	}
	if ch != (ChannelMetrics{}) || ch.Samples() != 0 || ch.SINRSamples() != 0 {
		t.Fatalf("ChannelMetrics after Reset = %+v", ch)
	}
	if dl != (DLMetrics{}) || dl.Samples() != 0 {
		t.Fatalf("DLMetrics after Reset = %+v", dl)
	}
	if ul != (ULMetrics{}) || ul.Samples() != 0 {
		t.Fatalf("ULMetrics after Reset = %+v", ul)
	}

	// The first observation after reset is taken verbatim.
	dl.Set(DLMetrics{FECIters: 3, MCS: 27, EVM: 0.1})
	if dl.FECIters != 3 || dl.MCS != 27 || dl.EVM != 0.1 {
		t.Fatalf("DLMetrics after first Set = %+v", dl)
	}
}

func TestFieldTablesCoverEveryField(t *testing.T) {
	checkNames(t, "sync", names(SyncFields()), "ta_us", "distance_km", "speed_kmph", "cfo", "sfo")
	checkNames(t, "channel", names(ChannelFields()), "n", "sinr", "rsrp", "rsrq", "rssi", "ri", "pathloss", "sync_err")
	checkNames(t, "dl", names(DLFields()), "fec_iters", "mcs", "evm")
	checkNames(t, "ul", names(ULFields()), "mcs", "power")

	fields := ChannelFields()
	fields[0].Name = "mutated"
	if ChannelFields()[0].Name != "n" {
		t.Fatalf("ChannelFields must return a copy")
	}
}

func TestPolicyString(t *testing.T) {
	for p, want := range map[Policy]string{Average: "average", FiniteAverage: "finite_average", Latest: "latest", Policy(9): "unknown"} {
		if got := p.String(); got != want {
			t.Fatalf("Policy(%d).String() = %q, want %q", p, got, want)
		}
	}
}

func names[T any](fields []Field[T]) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

func checkNames(t *testing.T, kind string, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s fields = %v, want %v", kind, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s fields = %v, want %v", kind, got, want)
		}
	}
}

func TestValuesFollowFieldOrder(t *testing.T) {
	checkValues(t, SyncFields(), func(m *SyncMetrics) []float64 { v := m.values(); return v[:] })
	checkValues(t, ChannelFields(), func(m *ChannelMetrics) []float64 { v := m.values(); return v[:] })
	checkValues(t, DLFields(), func(m *DLMetrics) []float64 { v := m.values(); return v[:] })
	checkValues(t, ULFields(), func(m *ULMetrics) []float64 { v := m.values(); return v[:] })
}

// checkValues gives every field a distinct value and expects values to report
// it at the field's index.
func checkValues[T any](t *testing.T, fields []Field[T], values func(*T) []float64) {
	t.Helper()
	var m T
	for i, f := range fields {
		*f.Value(&m) = float64(i + 1)
	}
	got := values(&m)
	if len(got) != len(fields) {
		t.Fatalf("values() has %d entries, want %d", len(got), len(fields))
	}
	for i, f := range fields {
		if got[i] != float64(i+1) {
			t.Fatalf("values()[%d] = %v, want field %q = %v", i, got[i], f.Name, float64(i+1))
		}
	}
}

func TestSetDoesNotAllocate(t *testing.T) {
	var (
		s  SyncMetrics
		ch ChannelMetrics
		dl DLMetrics
		ul ULMetrics
	)
	syncObs := SyncMetrics{TAus: 100, CFO: 2}
	chObs := ChannelMetrics{SINR: math.NaN(), RSRP: -90}
	dlObs := DLMetrics{MCS: 20}
	ulObs := ULMetrics{Power: 3}

	for name, fn := range map[string]func(){
		"sync":    func() { s.Set(syncObs) },
		"channel": func() { ch.Set(chObs) },
		"dl":      func() { dl.Set(dlObs) },
		"ul":      func() { ul.Set(ulObs) },
	} {
		if allocs := testing.AllocsPerRun(1000, fn); allocs != 0 {
			t.Fatalf("%s Set allocs = %v, want 0", name, allocs)
		}
	}
}
