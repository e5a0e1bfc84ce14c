// Package aoh implements the Aggregating Order-Invariant Hash: a commutative,
// associative, incremental multiset fingerprint over unsigned 32-bit items.
//
// The hash tracks two carry-propagating accumulators: the sum of corrected
// items (a 32-bit low word plus a 32-bit carry ("high") word) and the sum of
// their squares (a 64-bit low word plus a 32-bit carry word). Two multisets
// with the same hash are treated as identical. The hash is not collision-free:
// distinct multisets with equal sums and equal sums of squares, such as
// {1,5,6} and {2,3,7}, hash alike.
package aoh

import "math/bits"

// correctionOffset is added to every item before accumulation so that small
// multisets of small values cannot trivially collide: ceil(sqrt(2^32)).
const correctionOffset uint32 = 65536

// Hash is the zero-value-usable accumulator for an empty multiset.
type Hash struct {
	lsum   uint32 // low word of the sum of corrected items
	hsum   uint32 // carry ("high") word of the sum of corrected items
	lv2sum uint64 // low word of the sum of squares of corrected items
	hv2sum uint32 // carry word of the sum of squares
}

// Empty reports whether the hash has never had an item added to it.
func (h Hash) Empty() bool {
	return h.lsum == 0 && h.hsum == 0 && h.lv2sum == 0 && h.hv2sum == 0
}

// Add folds a single item into the hash. v must be strictly less than
// MaxUint32-correctionOffset; callers working with node/cluster ids in the
// billions should reduce to a narrower domain first (not a concern for the
// ids this package is used with).
func (h *Hash) Add(v uint32) {
	corrected := v + correctionOffset // overflow is a caller precondition violation, not guarded here

	sum, carry := bits.Add32(h.lsum, corrected, 0)
	h.lsum = sum
	h.hsum += carry

	sq := square32(corrected)
	lv2, carry2 := bits.Add64(h.lv2sum, sq, 0)
	h.lv2sum = lv2
	h.hv2sum += uint32(carry2)
}

// AddN folds num occurrences of v into the hash without iterating: h(n*v) is
// computed directly via multiplication rather than n calls to Add.
func (h *Hash) AddN(v uint32, num uint32) {
	if num == 0 {
		return
	}
	corrected := uint64(v) + uint64(correctionOffset)
	sumTerm := corrected * uint64(num)
	sumLo, sumHi := bits.Add64(uint64(h.lsum)|uint64(h.hsum)<<32, sumTerm, 0)
	_ = sumHi
	h.lsum = uint32(sumLo)
	h.hsum = uint32(sumLo >> 32)

	sq := square32(uint32(corrected))
	sqHi, sqLo := bits.Mul64(sq, uint64(num))
	lv2, carry := bits.Add64(h.lv2sum, sqLo, 0)
	h.lv2sum = lv2
	h.hv2sum += uint32(carry) + uint32(sqHi)
}

// Combine folds another hash's accumulated multiset into h, i.e.
// h.Combine(g) makes h represent the union multiset h ∪ g. Combine is
// commutative and associative, so partial hashes built concurrently over
// disjoint shards of a multiset can be merged in any order.
func (h *Hash) Combine(other Hash) {
	sum, carry := bits.Add32(h.lsum, other.lsum, 0)
	h.lsum = sum
	h.hsum += carry + other.hsum

	lv2, carry2 := bits.Add64(h.lv2sum, other.lv2sum, 0)
	h.lv2sum = lv2
	h.hv2sum += uint32(carry2) + other.hv2sum
}

// Sub removes a single previously-added item from the hash; it is the exact
// inverse of Add, implemented via borrow-propagating subtraction so that
// candidate-set maintenance can apply an incremental "item left the set"
// update without recomputing the whole digest.
func (h *Hash) Sub(v uint32) {
	corrected := v + correctionOffset

	diff, borrow := bits.Sub32(h.lsum, corrected, 0)
	h.lsum = diff
	h.hsum -= borrow

	sq := square32(corrected)
	lv2, borrow2 := bits.Sub64(h.lv2sum, sq, 0)
	h.lv2sum = lv2
	h.hv2sum -= uint32(borrow2)
}

// Uncombine is the exact inverse of Combine: h.Uncombine(g) removes g's
// multiset from h, assuming g's items are a sub-multiset of h's.
func (h *Hash) Uncombine(other Hash) {
	diff, borrow := bits.Sub32(h.lsum, other.lsum, 0)
	h.lsum = diff
	h.hsum -= borrow + other.hsum

	lv2, borrow2 := bits.Sub64(h.lv2sum, other.lv2sum, 0)
	h.lv2sum = lv2
	h.hv2sum -= uint32(borrow2) + other.hv2sum
}

// Equal reports whether two hashes represent (with overwhelming probability)
// the same multiset.
func (h Hash) Equal(other Hash) bool {
	return h.lsum == other.lsum && h.hsum == other.hsum &&
		h.lv2sum == other.lv2sum && h.hv2sum == other.hv2sum
}

// Less imposes a total, arbitrary but deterministic order over hashes, used
// to break ties between otherwise-equal candidate scores without depending
// on insertion order.
func (h Hash) Less(other Hash) bool {
	if h.hsum != other.hsum {
		return h.hsum < other.hsum
	}
	if h.lsum != other.lsum {
		return h.lsum < other.lsum
	}
	if h.hv2sum != other.hv2sum {
		return h.hv2sum < other.hv2sum
	}
	return h.lv2sum < other.lv2sum
}

// Digest collapses the hash into a single uint64 suitable for use as a map
// key or bucket index. Digest is not itself collision-resistant; only the
// full Hash value is (see Equal).
func (h Hash) Digest() uint64 {
	rev := bits.ReverseBytes32(h.hv2sum)
	lo := uint64(h.lsum) ^ uint64(h.hsum^rev)<<16
	return h.lv2sum ^ lo
}

func square32(v uint32) uint64 {
	return uint64(v) * uint64(v)
}
