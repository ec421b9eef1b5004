// Package compact joins the fragments of all buckets into the final graph.
// Open ends are matched by key, chains and cycles of fragments are merged,
// every unitig is put in a canonical orientation and the branch edges found
// by the link stage become the adjacency between unitig ends.
package compact

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mudesheng/cdbg/bnt"
	"github.com/mudesheng/cdbg/colors"
	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/graph"
	"github.com/mudesheng/cdbg/kmer"
	"github.com/mudesheng/cdbg/links"
	"github.com/mudesheng/cdbg/metrics"
	"github.com/mudesheng/cdbg/unitig"
)

type Options struct {
	K      int
	Logger zerolog.Logger
}

type Stats struct {
	Fragments    int64
	Joins        int64
	ForcedClosed int64
	Unitigs      int64
	Circular     int64
	Links        int64
}

type ref struct {
	frag int
	end  int
}

// path is a unitig under construction, read along one orientation.
type path struct {
	seq      []byte
	colors   []colors.ID
	counts   []uint32
	circular bool
}

func (p *path) kmers() int { return len(p.counts) }

func (p *path) kmerAt(i, k int) uint64 {
	var x uint64
	for _, b := range p.seq[i : i+k] {
		x = x<<bnt.NumBitsInBase | uint64(b)
	}
	return x
}

// Run merges frags into a graph. frags may come from the buckets in any
// order; the result only depends on the k-mer set.
func Run(ctx context.Context, opts Options, frags []unitig.Fragment, edges []links.Edge, dict *colors.Dictionary) (*graph.Graph, Stats, error) {
	var st Stats
	st.Fragments = int64(len(frags))
	t0 := time.Now()
	k := opts.K

	open := make(map[unitig.EndKey]ref)
	for i := range frags {
		for e, end := range frags[i].Ends {
			if !end.Open {
				continue
			}
			if _, dup := open[end.Key]; dup {
				return nil, st, errs.Invariant("compact.Run", frags[i].Bucket, end.Key.Kmer, "open end side %d reported twice", end.Key.Side)
			}
			open[end.Key] = ref{frag: i, end: e}
		}
	}

	// next[i][e] is the fragment end that end e of fragment i continues into.
	next := make([][2]ref, len(frags))
	for i := range frags {
		for e, end := range frags[i].Ends {
			next[i][e] = ref{frag: -1}
			if !end.Open {
				continue
			}
			p, ok := open[end.Partner]
			if !ok {
				st.ForcedClosed++
				continue
			}
			back := frags[p.frag].Ends[p.end]
			if back.Partner != end.Key {
				return nil, st, errs.Invariant("compact.Run", frags[i].Bucket, end.Key.Kmer,
					"partner %#x side %d in bucket %d points elsewhere", end.Partner.Kmer, end.Partner.Side, frags[p.frag].Bucket)
			}
			next[i][e] = p
		}
	}
	if st.ForcedClosed > 0 {
		opts.Logger.Warn().Int64("ends", st.ForcedClosed).Msg("[Run] open ends without a partner were closed")
	}

	var paths []path
	seen := make([]bool, len(frags))
	// chains start at a fragment end that does not continue
	for i := range frags {
		if seen[i] {
			continue
		}
		if frags[i].Circular {
			seen[i] = true
			p := orient(&frags[i], true)
			p.circular = true
			paths = append(paths, p)
			continue
		}
		var start int
		switch {
		case next[i][unitig.Start].frag < 0:
			start = unitig.Start
		case next[i][unitig.Stop].frag < 0:
			start = unitig.Stop
		default:
			continue
		}
		p, joins, err := chain(ctx, k, frags, next, seen, ref{frag: i, end: start})
		if err != nil {
			return nil, st, err
		}
		st.Joins += joins
		paths = append(paths, p)
	}
	// what is left continues on both ends: cycles of fragments
	for i := range frags {
		if seen[i] {
			continue
		}
		p, joins, err := chain(ctx, k, frags, next, seen, ref{frag: i, end: unitig.Start})
		if err != nil {
			return nil, st, err
		}
		st.Joins += joins
		paths = append(paths, p)
	}

	for i := range paths {
		canonicalize(&paths[i], k)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].kmerAt(0, k) < paths[j].kmerAt(0, k) })

	unitigs := make([]graph.Unitig, len(paths))
	ends := make(map[unitig.EndKey]ref, 2*len(paths))
	for i := range paths {
		p := &paths[i]
		unitigs[i] = graph.Unitig{
			ID:       uint32(i),
			Seq:      p.seq,
			Colors:   graph.Runs(p.colors),
			Counts:   p.counts,
			Circular: p.circular,
		}
		if p.circular {
			st.Circular++
			continue
		}
		first, last := unitig.EndKeys(p.seq, k)
		ends[first] = ref{frag: i, end: graph.Start}
		ends[last] = ref{frag: i, end: graph.Stop}
	}
	st.Unitigs = int64(len(unitigs))

	for n, e := range edges {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, st, err
			}
		}
		a, ok := ends[unitig.EndKey{Kmer: e.A, Side: e.ASide}]
		if !ok {
			return nil, st, errs.Invariant("compact.Run", -1, e.A, "edge from side %d which is not a unitig end", e.ASide)
		}
		b, ok := ends[unitig.EndKey{Kmer: e.B, Side: e.BSide}]
		if !ok {
			return nil, st, errs.Invariant("compact.Run", -1, e.B, "edge to side %d which is not a unitig end", e.BSide)
		}
		ua, ub := &unitigs[a.frag], &unitigs[b.frag]
		ua.Links[a.end] = append(ua.Links[a.end], graph.Link{To: uint32(b.frag), ToEnd: uint8(b.end)})
		ub.Links[b.end] = append(ub.Links[b.end], graph.Link{To: uint32(a.frag), ToEnd: uint8(a.end)})
	}
	for i := range unitigs {
		for e := range unitigs[i].Links {
			unitigs[i].Links[e] = uniqLinks(unitigs[i].Links[e])
			st.Links += int64(len(unitigs[i].Links[e]))
		}
	}

	metrics.ForcedClosedEndsTotal.Add(float64(st.ForcedClosed))
	metrics.UnitigsBuiltTotal.Add(float64(st.Unitigs))
	opts.Logger.Info().
		Int64("fragments", st.Fragments).
		Int64("unitigs", st.Unitigs).
		Int64("circular", st.Circular).
		Dur("elapsed", time.Since(t0)).
		Msg("[Run] compaction finished")
	return graph.New(k, unitigs, dict), st, nil
}

// chain walks from fragment end from through the joined fragments, merging
// them into one path. A walk that comes back to its first fragment is a
// cycle.
func chain(ctx context.Context, k int, frags []unitig.Fragment, next [][2]ref, seen []bool, from ref) (path, int64, error) {
	var joins int64
	first := from.frag
	seen[first] = true
	p := orient(&frags[first], from.end == unitig.Start)
	cur := ref{frag: first, end: 1 - from.end}
	for {
		if joins%256 == 0 {
			if err := ctx.Err(); err != nil {
				return p, joins, err
			}
		}
		nx := next[cur.frag][cur.end]
		if nx.frag < 0 {
			return p, joins, nil
		}
		joins++
		if nx.frag == first {
			if nx.end != from.end {
				return p, joins, errs.Invariant("compact.Run", frags[first].Bucket, frags[first].Ends[nx.end].Key.Kmer, "chain re-enters its first fragment through its exit")
			}
			if err := closeCycle(&p, k); err != nil {
				return p, joins, err.WithBucket(frags[first].Bucket)
			}
			return p, joins, nil
		}
		if seen[nx.frag] {
			return p, joins, errs.Invariant("compact.Run", frags[nx.frag].Bucket, frags[nx.frag].Ends[nx.end].Key.Kmer, "fragment joined twice")
		}
		seen[nx.frag] = true
		q := orient(&frags[nx.frag], nx.end == unitig.Start)
		if err := appendPath(&p, &q, k); err != nil {
			return p, joins, err.WithBucket(frags[nx.frag].Bucket)
		}
		cur = ref{frag: nx.frag, end: 1 - nx.end}
	}
}

// orient copies f, reverse complemented unless fwd.
func orient(f *unitig.Fragment, fwd bool) path {
	p := path{
		seq:    append([]byte(nil), f.Seq...),
		colors: append([]colors.ID(nil), f.Colors...),
		counts: append([]uint32(nil), f.Counts...),
	}
	if !fwd {
		reverseLinear(&p)
	}
	return p
}

func reverseLinear(p *path) {
	p.seq = bnt.ReverseComplet(p.seq)
	for i, j := 0, len(p.counts)-1; i < j; i, j = i+1, j-1 {
		p.colors[i], p.colors[j] = p.colors[j], p.colors[i]
		p.counts[i], p.counts[j] = p.counts[j], p.counts[i]
	}
}

func appendPath(p, q *path, k int) *errs.Error {
	tail := p.seq[len(p.seq)-(k-1):]
	head := q.seq[:k-1]
	for i := range tail {
		if tail[i] != head[i] {
			return errs.Invariant("compact.Run", -1, q.kmerAt(0, k), "joined fragments do not overlap by k-1 bases")
		}
	}
	p.seq = append(p.seq, q.seq[k-1:]...)
	p.colors = append(p.colors, q.colors...)
	p.counts = append(p.counts, q.counts...)
	return nil
}

// closeCycle checks that the path wraps around onto its own start.
func closeCycle(p *path, k int) *errs.Error {
	n := len(p.seq)
	for i := 0; i < k-1; i++ {
		if p.seq[i] != p.seq[n-(k-1)+i] {
			return errs.Invariant("compact.Run", -1, p.kmerAt(0, k), "fragment cycle does not close")
		}
	}
	p.circular = true
	return nil
}

// canonicalize gives every unitig a representation that does not depend on
// where its walk started. A linear unitig reads in its lexicographically
// smaller direction. A circular one starts at its smallest canonical k-mer,
// read forward.
func canonicalize(p *path, k int) {
	if !p.circular {
		rc := bnt.ReverseComplet(p.seq)
		for i := range rc {
			if rc[i] != p.seq[i] {
				if rc[i] < p.seq[i] {
					reverseLinear(p)
				}
				return
			}
		}
		return
	}

	n := p.kmers()
	best, at := ^uint64(0), 0
	for i := 0; i < n; i++ {
		if c := kmer.Canonical(p.kmerAt(i, k), k); c < best {
			best, at = c, i
		}
	}
	if p.kmerAt(at, k) != best {
		reverseCycle(p, k)
		at = ((n-k-at)%n + n) % n
	}
	rotate(p, at, k)
}

// reverseCycle reverse complements a circular path. The k-mer at position q
// reads, reversed, at position (n-k-q) mod n.
func reverseCycle(p *path, k int) {
	n := p.kmers()
	cyc := p.seq[:n]
	rc := make([]byte, n)
	for j := range rc {
		rc[j] = bnt.BntRev[cyc[n-1-j]]
	}
	cs := make([]colors.ID, n)
	ns := make([]uint32, n)
	for i := 0; i < n; i++ {
		q := ((n-k-i)%n + n) % n
		cs[i] = p.colors[q]
		ns[i] = p.counts[q]
	}
	p.seq = unroll(rc, 0, k)
	p.colors, p.counts = cs, ns
}

func rotate(p *path, r, k int) {
	if r == 0 {
		return
	}
	n := p.kmers()
	p.seq = unroll(p.seq[:n], r, k)
	p.colors = append(append([]colors.ID(nil), p.colors[r:]...), p.colors[:r]...)
	p.counts = append(append([]uint32(nil), p.counts[r:]...), p.counts[:r]...)
}

// unroll spells the cycle cyc from offset r with the first k-1 bases
// repeated at the end.
func unroll(cyc []byte, r, k int) []byte {
	n := len(cyc)
	seq := make([]byte, n+k-1)
	for j := range seq {
		seq[j] = cyc[(r+j)%n]
	}
	return seq
}

func uniqLinks(ls []graph.Link) []graph.Link {
	if len(ls) < 2 {
		return ls
	}
	sort.Slice(ls, func(i, j int) bool {
		if ls[i].To != ls[j].To {
			return ls[i].To < ls[j].To
		}
		return ls[i].ToEnd < ls[j].ToEnd
	})
	out := ls[:1]
	for _, l := range ls[1:] {
		if l != out[len(out)-1] {
			out = append(out, l)
		}
	}
	return out
}
