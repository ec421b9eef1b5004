// Package unitig extends maximal non-branching paths inside one bucket.
// A path stops where its k-mer side has no join (a Closed end) or where the
// join leads into another bucket (an Open end, resolved by compaction).
package unitig

import (
	"github.com/mudesheng/cdbg/bnt"
	"github.com/mudesheng/cdbg/colors"
	"github.com/mudesheng/cdbg/kmer"
	"github.com/mudesheng/cdbg/links"
)

// Fragment ends.
const (
	Start = 0
	Stop  = 1
)

// EndKey names the exposed side of a boundary k-mer.
type EndKey struct {
	Kmer uint64
	Side uint8
}

// End of a fragment. Partner is the end key the join continues into; it is
// meaningful only for an Open end.
type End struct {
	Key     EndKey
	Open    bool
	Partner EndKey
	Bucket  uint32
}

// Fragment is a path of k-mers. Seq holds 2-bit codes of the spelled
// sequence, so len(Seq) == len(Colors) + k - 1. Colors and Counts are per
// k-mer in path order.
type Fragment struct {
	Bucket   int
	Seq      []byte
	Colors   []colors.ID
	Counts   []uint32
	Ends     [2]End
	Circular bool
}

// Kmers is the number of k-mers in the fragment.
func (f *Fragment) Kmers() int { return len(f.Colors) }

// Reverse turns the fragment to its reverse complement in place.
func (f *Fragment) Reverse() {
	f.Seq = bnt.ReverseComplet(f.Seq)
	for i, j := 0, len(f.Colors)-1; i < j; i, j = i+1, j-1 {
		f.Colors[i], f.Colors[j] = f.Colors[j], f.Colors[i]
		f.Counts[i], f.Counts[j] = f.Counts[j], f.Counts[i]
	}
	f.Ends[Start], f.Ends[Stop] = f.Ends[Stop], f.Ends[Start]
}

// KmerAt returns the i-th k-mer as it reads along the fragment.
func (f *Fragment) KmerAt(i, k int) uint64 {
	var x uint64
	for _, b := range f.Seq[i : i+k] {
		x = x<<bnt.NumBitsInBase | uint64(b)
	}
	return x
}

// EndKeys returns the exposed side of the first and last k-mer of seq.
func EndKeys(seq []byte, k int) (first, last EndKey) {
	f := &Fragment{Seq: seq}
	x := f.KmerAt(0, k)
	c := kmer.Canonical(x, k)
	first = EndKey{Kmer: c, Side: links.Left}
	if c != x {
		first.Side = links.Right
	}
	y := f.KmerAt(len(seq)-k, k)
	c = kmer.Canonical(y, k)
	last = EndKey{Kmer: c, Side: links.Right}
	if c != y {
		last.Side = links.Left
	}
	return first, last
}
