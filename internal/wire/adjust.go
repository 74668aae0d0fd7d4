// Package wire translates the controller's language-neutral model types
// (Flow, Meter, MulticastGroup, PacketOut) into P4Runtime wire entities
// against a loaded Pipeconf, applying the per-field bit-width adjustment
// rule that is the single source of truth for every byte-slice this
// package emits.
package wire

// Adjust returns v re-sliced or zero-padded to exactly ceil(bitWidth/8)
// bytes, big-endian. If v is already that length it is returned unchanged;
// if longer, the leading (most significant) bytes are dropped; if shorter,
// zero bytes are prepended.
//
// This is applied to every exact value, ternary mask, LPM value, range
// endpoint, and action parameter the encoder emits — see spec.md §4.2 and
// §8 properties 1 and 2.
func Adjust(v []byte, bitWidth int) []byte {
	width := byteWidth(bitWidth)

	switch {
	case len(v) == width:
		out := make([]byte, width)
		copy(out, v)
		return out
	case len(v) > width:
		out := make([]byte, width)
		copy(out, v[len(v)-width:])
		return out
	default:
		out := make([]byte, width)
		copy(out[width-len(v):], v)
		return out
	}
}

// byteWidth returns ceil(bitWidth/8), treating a non-positive bitWidth as
// width 0 (only meaningful for malformed P4Info, callers should never hit
// this path for a resolved field).
func byteWidth(bitWidth int) int {
	if bitWidth <= 0 {
		return 0
	}
	return (bitWidth + 7) / 8
}
