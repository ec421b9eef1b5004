// Package links decides, for every (k-1)-mer overlap of the distinct
// k-mers, whether the k-mers touching it can be merged into one unitig.
//
// Every k-mer side is grouped under the canonical form of its overlap. A
// group with exactly one k-mer on each side of the overlap, no palindrome
// among the overlap and the two k-mers, is a join: each k-mer gets a Link to
// the other, sent back to the bucket it lives in. Every other group is a
// branch point and yields Edges for the graph adjacency.
package links

import (
	"context"
	"encoding/binary"

	"github.com/twotwotwo/sorts"

	"github.com/mudesheng/cdbg/buckets"
	"github.com/mudesheng/cdbg/dedup"
	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/kmer"
)

// Sides of a k-mer in its canonical orientation.
const (
	Left  uint8 = 0
	Right uint8 = 1
)

// Position of a k-mer relative to an overlap in the overlap's canonical
// orientation.
const (
	PosLeft  uint8 = 0
	PosRight uint8 = 1
)

const (
	FlagKmerPalindrome    uint8 = 1 << 0
	FlagOverlapPalindrome uint8 = 1 << 1
)

// Overlap is one k-mer side filed under its canonical (k-1)-mer.
type Overlap struct {
	Overlap uint64
	Kmer    uint64
	Home    uint32
	Side    uint8
	Pos     uint8
	Flags   uint8
}

type OverlapCodec struct{}

func (OverlapCodec) Size() int { return 23 }

func (OverlapCodec) Put(dst []byte, o Overlap) {
	binary.LittleEndian.PutUint64(dst, o.Overlap)
	binary.LittleEndian.PutUint64(dst[8:], o.Kmer)
	binary.LittleEndian.PutUint32(dst[16:], o.Home)
	dst[20], dst[21], dst[22] = o.Side, o.Pos, o.Flags
}

func (OverlapCodec) Get(src []byte) Overlap {
	return Overlap{
		Overlap: binary.LittleEndian.Uint64(src),
		Kmer:    binary.LittleEndian.Uint64(src[8:]),
		Home:    binary.LittleEndian.Uint32(src[16:]),
		Side:    src[20],
		Pos:     src[21],
		Flags:   src[22],
	}
}

// Link joins side Side of Kmer to side NbrSide of Nbr, which lives in
// bucket NbrBucket.
type Link struct {
	Kmer      uint64
	Nbr       uint64
	NbrBucket uint32
	Side      uint8
	NbrSide   uint8
}

type LinkCodec struct{}

func (LinkCodec) Size() int { return 22 }

func (LinkCodec) Put(dst []byte, l Link) {
	binary.LittleEndian.PutUint64(dst, l.Kmer)
	binary.LittleEndian.PutUint64(dst[8:], l.Nbr)
	binary.LittleEndian.PutUint32(dst[16:], l.NbrBucket)
	dst[20], dst[21] = l.Side, l.NbrSide
}

func (LinkCodec) Get(src []byte) Link {
	return Link{
		Kmer:      binary.LittleEndian.Uint64(src),
		Nbr:       binary.LittleEndian.Uint64(src[8:]),
		NbrBucket: binary.LittleEndian.Uint32(src[16:]),
		Side:      src[20],
		NbrSide:   src[21],
	}
}

// Edge is an adjacency between two k-mer sides that stay unitig ends.
type Edge struct {
	A, B         uint64
	ASide, BSide uint8
}

type EdgeCodec struct{}

func (EdgeCodec) Size() int { return 18 }

func (EdgeCodec) Put(dst []byte, e Edge) {
	binary.LittleEndian.PutUint64(dst, e.A)
	binary.LittleEndian.PutUint64(dst[8:], e.B)
	dst[16], dst[17] = e.ASide, e.BSide
}

func (EdgeCodec) Get(src []byte) Edge {
	return Edge{
		A:     binary.LittleEndian.Uint64(src),
		B:     binary.LittleEndian.Uint64(src[8:]),
		ASide: src[16],
		BSide: src[17],
	}
}

// OverlapOf returns the canonical (k-1)-mer touched by side of x and where
// x sits relative to it.
func OverlapOf(x uint64, side uint8, k int) (co uint64, pos uint8) {
	var o uint64
	if side == Right {
		o = kmer.Suffix(x, k)
	} else {
		o = kmer.Prefix(x, k)
	}
	rc := kmer.ReverseComplement(o, k-1)
	isCanon := o <= rc
	co = o
	if !isCanon {
		co = rc
	}
	switch {
	case side == Right && isCanon, side == Left && !isCanon:
		pos = PosLeft
	default:
		pos = PosRight
	}
	return co, pos
}

// Emitter files both sides of every distinct k-mer of a bucket under their
// overlaps.
type Emitter struct {
	K        int
	Hasher   kmer.Hasher
	Overlaps int
}

// OverlapBucket is the overlap bucket co is resolved in.
func (e Emitter) OverlapBucket(co uint64) int {
	return int(e.Hasher.Hash(co, e.K-1) % uint64(e.Overlaps))
}

func (e Emitter) Emit(ctx context.Context, home int, recs []dedup.Record, w *buckets.Writer[Overlap]) error {
	for _, r := range recs {
		var flags uint8
		if kmer.IsPalindrome(r.Kmer, e.K) {
			flags |= FlagKmerPalindrome
		}
		for _, side := range [2]uint8{Left, Right} {
			co, pos := OverlapOf(r.Kmer, side, e.K)
			f := flags
			if kmer.IsPalindrome(co, e.K-1) {
				f |= FlagOverlapPalindrome
			}
			o := Overlap{Overlap: co, Kmer: r.Kmer, Home: uint32(home), Side: side, Pos: pos, Flags: f}
			if err := w.Write(ctx, e.OverlapBucket(co), o); err != nil {
				return err
			}
		}
	}
	return nil
}

type byOverlap []Overlap

func (s byOverlap) Len() int           { return len(s) }
func (s byOverlap) Less(i, j int) bool { return s[i].Overlap < s[j].Overlap }
func (s byOverlap) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s byOverlap) Key(i int) uint64   { return s[i].Overlap }

// maxGroup bounds the k-mer sides one overlap can gather: four extensions
// per side, and for even k up to two palindromic k-mers (ATAT and TATA
// around ATA) whose second side is filed under the same overlap.
const maxGroup = 10

type Stats struct {
	Groups   int64
	Joins    int64
	Unjoined int64
	Edges    int64
}

// Resolve groups the overlaps of one overlap bucket. Links are written to
// the home bucket of the k-mer they belong to; edges to the home bucket of
// their A side.
func Resolve(ctx context.Context, bucket int, ovs []Overlap, lw *buckets.Writer[Link], ew *buckets.Writer[Edge]) (Stats, error) {
	var st Stats
	sorts.ByUint64(byOverlap(ovs))
	var left, right []Overlap
	for i := 0; i < len(ovs); {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		co := ovs[i].Overlap
		j := i
		left, right = left[:0], right[:0]
		palK, palO := false, false
		for ; j < len(ovs) && ovs[j].Overlap == co; j++ {
			o := ovs[j]
			if o.Flags&FlagKmerPalindrome != 0 {
				palK = true
			}
			if o.Flags&FlagOverlapPalindrome != 0 {
				palO = true
			}
			if o.Pos == PosLeft {
				left = append(left, o)
			} else {
				right = append(right, o)
			}
		}
		group := ovs[i:j]
		i = j
		st.Groups++
		if len(group) > maxGroup {
			return st, errs.Invariant("links.Resolve", bucket, co, "overlap touched by %d k-mer sides", len(group))
		}

		if !palO && !palK && len(left) == 1 && len(right) == 1 {
			l, r := left[0], right[0]
			if err := lw.Write(ctx, int(l.Home), Link{Kmer: l.Kmer, Side: l.Side, Nbr: r.Kmer, NbrSide: r.Side, NbrBucket: r.Home}); err != nil {
				return st, err
			}
			if err := lw.Write(ctx, int(r.Home), Link{Kmer: r.Kmer, Side: r.Side, Nbr: l.Kmer, NbrSide: l.Side, NbrBucket: l.Home}); err != nil {
				return st, err
			}
			st.Joins++
			continue
		}

		st.Unjoined++
		if palO {
			// a palindromic overlap reads the same from both sides, so every
			// side touching it connects to every other, itself included
			for a := range group {
				for b := a; b < len(group); b++ {
					if err := writeEdge(ctx, ew, group[a], group[b]); err != nil {
						return st, err
					}
					st.Edges++
				}
			}
			continue
		}
		for _, l := range left {
			for _, r := range right {
				if err := writeEdge(ctx, ew, l, r); err != nil {
					return st, err
				}
				st.Edges++
			}
		}
	}
	return st, nil
}

func writeEdge(ctx context.Context, ew *buckets.Writer[Edge], a, b Overlap) error {
	return ew.Write(ctx, int(a.Home), Edge{A: a.Kmer, ASide: a.Side, B: b.Kmer, BSide: b.Side})
}
