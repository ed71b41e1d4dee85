// Package phymetrics aggregates per-carrier PHY measurements into running
// averages.
//
// Records are fixed size and never allocate. They have no locking: the PHY
// thread writes them and readers go through a Board.
package phymetrics

// MaxCarriers is the number of carrier slots kept per record kind.
const MaxCarriers = 5

// InfoMetrics identifies the cell tracked on a carrier.
type InfoMetrics struct {
	PCI      uint32 `json:"pci"`
	DLEARFCN uint32 `json:"dl_earfcn"`
}

// SyncMetrics holds synchronization measurements. TAus, DistanceKm and
// SpeedKmph are taken as-is from each observation.
type SyncMetrics struct {
	TAus       float64 `json:"ta_us"`
	DistanceKm float64 `json:"distance_km"`
	SpeedKmph  float64 `json:"speed_kmph"`
	CFO        float64 `json:"cfo"`
	SFO        float64 `json:"sfo"`

	count  uint32
	counts [numSyncFields]uint32
}

// Set folds one observation into m.
func (m *SyncMetrics) Set(obs SyncMetrics) {
	m.count++
	v := obs.values()
	fold(m, v[:], syncFields[:], m.counts[:])
}

// values lists the float fields of m in syncFields order.
func (m SyncMetrics) values() [numSyncFields]float64 {
	return [numSyncFields]float64{m.TAus, m.DistanceKm, m.SpeedKmph, m.CFO, m.SFO}
}

// Reset returns m to its zero state.
func (m *SyncMetrics) Reset() { *m = SyncMetrics{} }

// Samples returns the number of observations folded since the last reset.
func (m SyncMetrics) Samples() uint32 { return m.count }

// ChannelMetrics holds channel quality measurements. SINR ignores non-finite
// observations.
type ChannelMetrics struct {
	N        float64 `json:"n"`
	SINR     float64 `json:"sinr"`
	RSRP     float64 `json:"rsrp"`
	RSRQ     float64 `json:"rsrq"`
	RSSI     float64 `json:"rssi"`
	RI       float64 `json:"ri"`
	Pathloss float64 `json:"pathloss"`
	SyncErr  float64 `json:"sync_err"`

	count  uint32
	counts [numChannelFields]uint32
}

// Set folds one observation into m.
func (m *ChannelMetrics) Set(obs ChannelMetrics) {
	m.count++
	v := obs.values()
	fold(m, v[:], channelFields[:], m.counts[:])
}

// values lists the float fields of m in channelFields order.
func (m ChannelMetrics) values() [numChannelFields]float64 {
	return [numChannelFields]float64{m.N, m.SINR, m.RSRP, m.RSRQ, m.RSSI, m.RI, m.Pathloss, m.SyncErr}
}

// Reset returns m to its zero state.
func (m *ChannelMetrics) Reset() { *m = ChannelMetrics{} }

// Samples returns the number of observations folded since the last reset.
func (m ChannelMetrics) Samples() uint32 { return m.count }

// SINRSamples returns how many finite SINR values contributed to SINR.
func (m ChannelMetrics) SINRSamples() uint32 { return m.counts[1] }

// DLMetrics holds downlink decoding measurements.
type DLMetrics struct {
	FECIters float64 `json:"fec_iters"`
	MCS      float64 `json:"mcs"`
	EVM      float64 `json:"evm"`

	count  uint32
	counts [numDLFields]uint32
}

// Set folds one observation into m.
func (m *DLMetrics) Set(obs DLMetrics) {
	m.count++
	v := obs.values()
	fold(m, v[:], dlFields[:], m.counts[:])
}

// values lists the float fields of m in dlFields order.
func (m DLMetrics) values() [numDLFields]float64 {
	return [numDLFields]float64{m.FECIters, m.MCS, m.EVM}
}

// Reset returns m to its zero state.
func (m *DLMetrics) Reset() { *m = DLMetrics{} }

// Samples returns the number of observations folded since the last reset.
func (m DLMetrics) Samples() uint32 { return m.count }

// ULMetrics holds uplink transmission measurements.
type ULMetrics struct {
	MCS   float64 `json:"mcs"`
	Power float64 `json:"power"`

	count  uint32
	counts [numULFields]uint32
}

// Set folds one observation into m.
func (m *ULMetrics) Set(obs ULMetrics) {
	m.count++
	v := obs.values()
	fold(m, v[:], ulFields[:], m.counts[:])
}

// values lists the float fields of m in ulFields order.
func (m ULMetrics) values() [numULFields]float64 {
	return [numULFields]float64{m.MCS, m.Power}
}

// Reset returns m to its zero state.
func (m *ULMetrics) Reset() { *m = ULMetrics{} }

// Samples returns the number of observations folded since the last reset.
func (m ULMetrics) Samples() uint32 { return m.count }

// PHYMetrics is the full per-carrier metrics set. Only the first
// NofActiveCC slots of each array are meaningful.
type PHYMetrics struct {
	Info        [MaxCarriers]InfoMetrics    `json:"info"`
	Sync        [MaxCarriers]SyncMetrics    `json:"sync"`
	Ch          [MaxCarriers]ChannelMetrics `json:"ch"`
	DL          [MaxCarriers]DLMetrics      `json:"dl"`
	UL          [MaxCarriers]ULMetrics      `json:"ul"`
	NofActiveCC uint32                      `json:"nof_active_cc"`
}

// SetActiveCarriers records how many leading slots are in use, clamped to
// MaxCarriers.
func (m *PHYMetrics) SetActiveCarriers(n uint32) {
	m.NofActiveCC = min(n, MaxCarriers)
}

// InfoAt returns the info record of carrier cc, or nil when cc is out of range.
func (m *PHYMetrics) InfoAt(cc uint32) *InfoMetrics {
	if cc >= MaxCarriers {
		return nil
	}
	return &m.Info[cc]
}

// SyncAt returns the sync record of carrier cc, or nil when cc is out of range.
func (m *PHYMetrics) SyncAt(cc uint32) *SyncMetrics {
	if cc >= MaxCarriers {
		return nil
	}
	return &m.Sync[cc]
}

// ChannelAt returns the channel record of carrier cc, or nil when cc is out of
// range.
func (m *PHYMetrics) ChannelAt(cc uint32) *ChannelMetrics {
	if cc >= MaxCarriers {
		return nil
	}
	return &m.Ch[cc]
}

// DLAt returns the downlink record of carrier cc, or nil when cc is out of range.
func (m *PHYMetrics) DLAt(cc uint32) *DLMetrics {
	if cc >= MaxCarriers {
		return nil
	}
	return &m.DL[cc]
}

// ULAt returns the uplink record of carrier cc, or nil when cc is out of range.
func (m *PHYMetrics) ULAt(cc uint32) *ULMetrics {
	if cc >= MaxCarriers {
		return nil
	}
	return &m.UL[cc]
}

// Reset clears every measurement record. Info records and the active carrier
// count describe configuration and are kept.
func (m *PHYMetrics) Reset() {
	for cc := range MaxCarriers {
		m.Sync[cc].Reset()
		m.Ch[cc].Reset()
		m.DL[cc].Reset()
		m.UL[cc].Reset()
	}
}
