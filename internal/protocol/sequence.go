package protocol

import "math"

const (
	seqUpperThird = math.MaxUint16 - math.MaxUint16/3
	seqLowerThird = math.MaxUint16 / 3
)

// AcceptSequence reports whether next is newer than prev. Counters wrap, so
// when prev sits in the top third of the range a next in the bottom third
// counts as newer, and the mirror case (prev low, next high) counts as older.
// Duplicates and plain older values are rejected.
func AcceptSequence(prev, next uint16) bool {
	wrapped := prev >= seqUpperThird && next < seqLowerThird
	backward := prev < seqLowerThird && next >= seqUpperThird
	return (next > prev && !backward) || wrapped
}
