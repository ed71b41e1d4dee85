package rftime

// Channel limits. A channel is one antenna port of one carrier.
const (
	MaxCarriers = 5
	MaxPorts    = 4
	NumChannels = MaxCarriers * MaxPorts
)

// noCopy makes go vet's copylocks check flag implicit copies of a Set.
// Explicit duplication goes through Clone or CopyFrom.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Set holds one Timestamp per channel. The zero value has every channel at
// time zero.
//
// A Set is threaded by pointer through the sample path and must not be
// copied by value; use Clone to snapshot it. A Set has no internal locking.
type Set struct {
	_          noCopy
	timestamps [NumChannels]Timestamp
}

// NewSet returns a set with every channel at ts.
func NewSet(ts Timestamp) *Set {
	s := &Set{}
	s.Reset(ts)
	return s
}

// Get returns the timestamp of channel idx, or the zero Timestamp when idx is
// out of range.
func (s *Set) Get(idx uint32) Timestamp {
	if idx >= NumChannels {
		return Timestamp{}
	}
	return s.timestamps[idx]
}

// Ptr returns a live handle to the timestamp of channel idx, or nil when idx
// is out of range. Callers must check for nil.
func (s *Set) Ptr(idx uint32) *Timestamp {
	if idx >= NumChannels {
		return nil
	}
	return &s.timestamps[idx]
}

// Add shifts every channel forward by secs. Each channel is normalized
// independently.
func (s *Set) Add(secs float64) {
	for i := range s.timestamps {
		s.timestamps[i].Add(0, secs)
	}
}

// Sub shifts every channel backward by secs.
func (s *Set) Sub(secs float64) {
	for i := range s.timestamps {
		s.timestamps[i].Sub(0, secs)
	}
}

// Reset sets every channel to the normalized form of ts.
func (s *Set) Reset(ts Timestamp) {
	ts = ts.Normalize()
	for i := range s.timestamps {
		s.timestamps[i] = ts
	}
}

// CopyFrom overwrites every channel with the matching channel of other.
func (s *Set) CopyFrom(other *Set) {
	if other == nil || other == s {
		return
	}
	s.timestamps = other.timestamps
}

// Clone returns an independent copy of s.
func (s *Set) Clone() *Set {
	c := &Set{}
	c.CopyFrom(s)
	return c
}
