package phymetrics

import (
	"math"
	"slices"
)

// Policy selects how a field absorbs a new observation.
type Policy int

const (
	// Average folds the observation into a cumulative moving average.
	Average Policy = iota
	// FiniteAverage is Average, but NaN and ±Inf observations are skipped and
	// do not count toward the field's sample total.
	FiniteAverage
	// Latest overwrites the field. Used for values already smoothed upstream.
	Latest
)

func (p Policy) String() string {
	switch p {
	case Average:
		return "average"
	case FiniteAverage:
		return "finite_average"
	case Latest:
		return "latest"
	default:
		return "unknown"
	}
}

// Field describes one float field of a record kind T.
type Field[T any] struct {
	Name   string
	Policy Policy
	Value  func(*T) *float64
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// cma returns the cumulative moving average after the n-th sample v.
func cma(avg, v float64, n uint32) float64 {
	return avg + (v-avg)/float64(n)
}

// fold merges the observed values obs into rec. obs and counts are indexed
// like fields and must be at least as long. The observation arrives as plain
// values so that it stays on the caller's stack.
func fold[T any](rec *T, obs []float64, fields []Field[T], counts []uint32) {
	for i, f := range fields {
		dst, v := f.Value(rec), obs[i]
		switch f.Policy {
		case Latest:
			*dst = v
			continue
		case FiniteAverage:
			if !Finite(v) {
				continue
			}
		}
		counts[i]++
		*dst = cma(*dst, v, counts[i])
	}
}

const (
	numSyncFields    = 5
	numChannelFields = 8
	numDLFields      = 3
	numULFields      = 2
)

var syncFields = [numSyncFields]Field[SyncMetrics]{
	{"ta_us", Latest, func(m *SyncMetrics) *float64 { return &m.TAus }},
	{"distance_km", Latest, func(m *SyncMetrics) *float64 { return &m.DistanceKm }},
	{"speed_kmph", Latest, func(m *SyncMetrics) *float64 { return &m.SpeedKmph }},
	{"cfo", Average, func(m *SyncMetrics) *float64 { return &m.CFO }},
	{"sfo", Average, func(m *SyncMetrics) *float64 { return &m.SFO }},
}

var channelFields = [numChannelFields]Field[ChannelMetrics]{
	{"n", Average, func(m *ChannelMetrics) *float64 { return &m.N }},
	{"sinr", FiniteAverage, func(m *ChannelMetrics) *float64 { return &m.SINR }},
	{"rsrp", Average, func(m *ChannelMetrics) *float64 { return &m.RSRP }},
	{"rsrq", Average, func(m *ChannelMetrics) *float64 { return &m.RSRQ }},
	{"rssi", Average, func(m *ChannelMetrics) *float64 { return &m.RSSI }},
	{"ri", Average, func(m *ChannelMetrics) *float64 { return &m.RI }},
	{"pathloss", Average, func(m *ChannelMetrics) *float64 { return &m.Pathloss }},
	{"sync_err", Average, func(m *ChannelMetrics) *float64 { return &m.SyncErr }},
}

var dlFields = [numDLFields]Field[DLMetrics]{
	{"fec_iters", Average, func(m *DLMetrics) *float64 { return &m.FECIters }},
	{"mcs", Average, func(m *DLMetrics) *float64 { return &m.MCS }},
	{"evm", Average, func(m *DLMetrics) *float64 { return &m.EVM }},
}

var ulFields = [numULFields]Field[ULMetrics]{
	{"mcs", Average, func(m *ULMetrics) *float64 { return &m.MCS }},
	{"power", Average, func(m *ULMetrics) *float64 { return &m.Power }},
}

// SyncFields lists the float fields of SyncMetrics.
func SyncFields() []Field[SyncMetrics] { return slices.Clone(syncFields[:]) }

// ChannelFields lists the float fields of ChannelMetrics.
func ChannelFields() []Field[ChannelMetrics] { return slices.Clone(channelFields[:]) }

// DLFields lists the float fields of DLMetrics.
func DLFields() []Field[DLMetrics] { return slices.Clone(dlFields[:]) }

// ULFields lists the float fields of ULMetrics.
func ULFields() []Field[ULMetrics] { return slices.Clone(ulFields[:]) }
