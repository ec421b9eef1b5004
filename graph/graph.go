// Package graph is the finished colored compacted de Bruijn graph. A Graph
// is immutable once built and safe for concurrent readers.
package graph

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/mudesheng/cdbg/bnt"
	"github.com/mudesheng/cdbg/colors"
)

// Unitig ends.
const (
	Start = 0
	Stop  = 1
)

// Link continues end e of a unitig into end ToEnd of unitig To.
type Link struct {
	To    uint32
	ToEnd uint8
}

// ColorRun is Len consecutive k-mers sharing one color set.
type ColorRun struct {
	Color colors.ID
	Len   uint32
}

type Unitig struct {
	ID uint32
	// Seq holds 2-bit base codes; use Sequence for ASCII.
	Seq      []byte
	Colors   []ColorRun
	Counts   []uint32
	Circular bool
	Links    [2][]Link
}

// Sequence spells the unitig in upper-case bases.
func (u *Unitig) Sequence() []byte {
	return bnt.Transform2Char(u.Seq)
}

// Kmers is the number of k-mers the unitig covers.
func (u *Unitig) Kmers() int { return len(u.Counts) }

// ColorAt returns the color set of the i-th k-mer.
func (u *Unitig) ColorAt(i int) colors.ID {
	for _, r := range u.Colors {
		if i < int(r.Len) {
			return r.Color
		}
		i -= int(r.Len)
	}
	return 0
}

// MeanCount is the average abundance of the unitig's k-mers.
func (u *Unitig) MeanCount() float64 {
	if len(u.Counts) == 0 {
		return 0
	}
	var sum uint64
	for _, c := range u.Counts {
		sum += uint64(c)
	}
	return float64(sum) / float64(len(u.Counts))
}

// Runs compresses per k-mer colors into runs.
func Runs(ids []colors.ID) []ColorRun {
	var runs []ColorRun
	for _, id := range ids {
		if n := len(runs); n > 0 && runs[n-1].Color == id {
			runs[n-1].Len++
			continue
		}
		runs = append(runs, ColorRun{Color: id, Len: 1})
	}
	return runs
}

type Graph struct {
	k       int
	unitigs []Unitig
	dict    *colors.Dictionary
}

// New wraps finished unitigs; their IDs must equal their index.
func New(k int, unitigs []Unitig, dict *colors.Dictionary) *Graph {
	return &Graph{k: k, unitigs: unitigs, dict: dict}
}

func (g *Graph) K() int { return g.k }

// Len is the number of unitigs.
func (g *Graph) Len() int { return len(g.unitigs) }

// Unitig returns unitig id. Callers must not modify it.
func (g *Graph) Unitig(id uint32) *Unitig { return &g.unitigs[id] }

// Each calls fn for every unitig in ID order until fn returns false.
func (g *Graph) Each(fn func(u *Unitig) bool) {
	for i := range g.unitigs {
		if !fn(&g.unitigs[i]) {
			return
		}
	}
}

// ColorSet returns a copy of the samples of color set id.
func (g *Graph) ColorSet(id colors.ID) *roaring.Bitmap {
	return g.dict.Bitmap(id)
}

// ColorTable is the read-only side of the color dictionary.
type ColorTable interface {
	Len() int
	Set(id colors.ID) []uint32
	Snapshot() [][]uint32
}

// Colors returns the color sets of the graph; every result is a copy.
func (g *Graph) Colors() ColorTable { return colorTable{g.dict} }

// colorTable hides Intern from graph readers.
type colorTable struct{ d *colors.Dictionary }

func (c colorTable) Len() int                  { return c.d.Len() }
func (c colorTable) Set(id colors.ID) []uint32 { return c.d.Set(id) }
func (c colorTable) Snapshot() [][]uint32      { return c.d.Snapshot() }

// Kmers is the number of distinct k-mers in the graph.
func (g *Graph) Kmers() (n int64) {
	for i := range g.unitigs {
		n += int64(g.unitigs[i].Kmers())
	}
	return n
}

// Samples is the number of distinct samples present in any color set.
func (g *Graph) Samples() int {
	all := roaring.New()
	for i := 0; i < g.dict.Len(); i++ {
		all.Or(g.dict.Bitmap(colors.ID(i)))
	}
	return int(all.GetCardinality())
}
