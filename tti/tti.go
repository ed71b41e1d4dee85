// Package tti implements ring arithmetic over the subframe counter used to
// schedule transmissions and their HARQ acknowledgements.
//
// Every function expects its TTI arguments to already be in [0, Period).
// Passing Invalid or any other out-of-range value is a caller bug: the
// result is still reduced onto the ring, but it has no meaning.
package tti

// Ring and FDD timing constants.
const (
	// Period is the length of the TTI ring (1024 frames of 10 subframes).
	Period = 10240

	// Invalid marks "no TTI assigned". It lies outside the ring and must be
	// special-cased before any arithmetic.
	Invalid = 10241

	// HARQDelayDL is the downlink HARQ delay in subframes.
	HARQDelayDL = 4
	// HARQDelayUL is the uplink HARQ delay in subframes.
	HARQDelayUL = 4
	// Msg3Delay is added on top of HARQDelayDL for message 3 grants.
	Msg3Delay = 2

	// TxENBDelay is the eNodeB transmit delay.
	TxENBDelay = HARQDelayUL

	// ModSize is the period of the coarse index returned by Mod.
	ModSize = 20
)

// Sub returns how far b lies behind a on the ring.
func Sub(a, b uint32) uint32 {
	return (a + Period - b) % Period
}

// Add advances a by b on the ring.
func Add(a, b uint32) uint32 {
	return (a + b) % Period
}

// Next returns the TTI following t.
func Next(t uint32) uint32 {
	return Add(t, 1)
}

// Tx returns the TTI at which a transmission scheduled at t goes on air.
func Tx(t uint32) uint32 {
	return Add(t, HARQDelayDL)
}

// Rx returns the TTI of the uplink transmission being received at t.
func Rx(t uint32) uint32 {
	return Sub(t, HARQDelayUL)
}

// RxAck returns the TTI at which the acknowledgement for a reception at t is due.
func RxAck(t uint32) uint32 {
	return Add(t, HARQDelayUL+HARQDelayDL)
}

// Msg3Tx returns the TTI of a message 3 transmission granted at t.
func Msg3Tx(t uint32) uint32 {
	return Add(t, HARQDelayDL+Msg3Delay)
}

// Mod returns t modulo ModSize, used for 20 ms cyclic bookkeeping.
func Mod(t uint32) uint32 {
	return t % ModSize
}

// Valid reports whether t lies on the ring.
func Valid(t uint32) bool {
	return t < Period
}
