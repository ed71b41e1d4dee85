package phymetrics

import "sync"

// Board is the synchronization point between the PHY thread that folds
// observations and the readers that export them. Readers only ever see
// copies.
type Board struct {
	mu sync.Mutex
	m  PHYMetrics
}

// NewBoard returns a board with n active carriers.
func NewBoard(activeCarriers uint32) *Board {
	b := &Board{}
	b.m.SetActiveCarriers(activeCarriers)
	return b
}

// Update runs fn with exclusive access to the live metrics. fn must not keep
// the pointer after it returns.
func (b *Board) Update(fn func(*PHYMetrics)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.m)
}

// Snapshot returns a copy of the live metrics.
func (b *Board) Snapshot() PHYMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.m
}

// Collect returns a copy of the live metrics and resets the measurement
// records, so the next Collect reports a fresh averaging window.
func (b *Board) Collect() PHYMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.m
	b.m.Reset()
	return out
}
