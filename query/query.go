// Package query answers k-mer membership questions against a finished
// graph.
package query

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/mudesheng/cdbg/bnt"
	"github.com/mudesheng/cdbg/colors"
	"github.com/mudesheng/cdbg/graph"
	"github.com/mudesheng/cdbg/kmer"
)

// Hit locates a k-mer: the unitig holding it and its position there.
type Hit struct {
	Unitig uint32
	Offset uint32
	Color  colors.ID
	Count  uint32
}

// Index maps every canonical k-mer of a graph to its unitig. It is
// read-only once built.
type Index struct {
	g    *graph.Graph
	hits map[uint64]Hit
}

func NewIndex(g *graph.Graph) *Index {
	k := g.K()
	mask := kmer.Mask(k)
	idx := &Index{g: g, hits: make(map[uint64]Hit, g.Kmers())}
	g.Each(func(u *graph.Unitig) bool {
		var x uint64
		run, left := 0, 0
		for p, b := range u.Seq {
			x = (x<<bnt.NumBitsInBase | uint64(b)) & mask
			i := p - (k - 1)
			if i < 0 {
				continue
			}
			if i >= u.Kmers() {
				break
			}
			for left == 0 && run < len(u.Colors) {
				left = int(u.Colors[run].Len)
				run++
			}
			left--
			idx.hits[kmer.Canonical(x, k)] = Hit{Unitig: u.ID, Offset: uint32(i), Color: u.Colors[run-1].Color, Count: u.Counts[i]}
		}
		return true
	})
	return idx
}

func (idx *Index) Graph() *graph.Graph { return idx.g }

// Lookup finds the packed k-mer x in either orientation.
func (idx *Index) Lookup(x uint64) (Hit, bool) {
	h, ok := idx.hits[kmer.Canonical(x, idx.g.K())]
	return h, ok
}

// Result summarizes a sequence query.
type Result struct {
	Kmers int
	Found int
	// Samples maps each sample to the number of query k-mers present in it.
	Samples map[uint32]int
	Unitigs []uint32
}

// Fraction is the share of valid query k-mers present in the graph.
func (r Result) Fraction() float64 {
	if r.Kmers == 0 {
		return 0
	}
	return float64(r.Found) / float64(r.Kmers)
}

// Sequence looks up every valid k-mer of seq.
func (idx *Index) Sequence(seq []byte) Result {
	res := Result{Samples: make(map[uint32]int)}
	perColor := make(map[colors.ID]int)
	unitigs := roaring.New()
	s := kmer.NewScanner(idx.g.K())
	s.Reset(seq)
	for s.Next() {
		res.Kmers++
		h, ok := idx.hits[s.Canonical()]
		if !ok {
			continue
		}
		res.Found++
		perColor[h.Color]++
		unitigs.Add(h.Unitig)
	}
	for id, n := range perColor {
		it := idx.g.ColorSet(id).Iterator()
		for it.HasNext() {
			res.Samples[it.Next()] += n
		}
	}
	res.Unitigs = unitigs.ToArray()
	return res
}
