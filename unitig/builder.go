package unitig

import (
	"context"
	"sort"

	"github.com/mudesheng/cdbg/bnt"
	"github.com/mudesheng/cdbg/colors"
	"github.com/mudesheng/cdbg/dedup"
	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/kmer"
	"github.com/mudesheng/cdbg/links"
)

type Stats struct {
	Fragments int64
	OpenEnds  int64
	Circular  int64
}

type step struct {
	idx int
	fwd bool
}

type builder struct {
	bucket int
	k      int
	recs   []dedup.Record
	lks    []links.Link
	lk     [][2]int32
	seen   []bool
}

func (b *builder) find(x uint64) int {
	i := sort.Search(len(b.recs), func(i int) bool { return b.recs[i].Kmer >= x })
	if i < len(b.recs) && b.recs[i].Kmer == x {
		return i
	}
	return -1
}

// Build turns the distinct k-mers of a bucket (sorted, as dedup returns
// them) and the links addressed to the bucket into fragments. Every k-mer
// ends up in exactly one fragment.
func Build(ctx context.Context, bucket, k int, recs []dedup.Record, lks []links.Link) ([]Fragment, Stats, error) {
	var st Stats
	b := &builder{
		bucket: bucket,
		k:      k,
		recs:   recs,
		lks:    lks,
		lk:     make([][2]int32, len(recs)),
		seen:   make([]bool, len(recs)),
	}
	for i := range b.lk {
		b.lk[i] = [2]int32{-1, -1}
	}
	for li, l := range lks {
		i := b.find(l.Kmer)
		if i < 0 {
			return nil, st, errs.Invariant("unitig.Build", bucket, l.Kmer, "link addressed to a k-mer the bucket does not hold")
		}
		if l.Side > links.Right || b.lk[i][l.Side] >= 0 {
			return nil, st, errs.Invariant("unitig.Build", bucket, l.Kmer, "k-mer side %d linked twice", l.Side)
		}
		b.lk[i][l.Side] = int32(li)
	}

	var frags []Fragment
	for seed := range recs {
		if seed%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, st, err
			}
		}
		if b.seen[seed] {
			continue
		}
		f, err := b.extend(seed)
		if err != nil {
			return nil, st, err
		}
		st.Fragments++
		if f.Circular {
			st.Circular++
		}
		for _, e := range f.Ends {
			if e.Open {
				st.OpenEnds++
			}
		}
		frags = append(frags, f)
	}
	return frags, st, nil
}

// walk follows joins out of side exit of seed until a Closed or Open end or
// until it comes back to seed. It returns the steps taken, the end reached
// and whether the path closed into a cycle.
func (b *builder) walk(seed int, exit uint8) (steps []step, end End, cycle bool, err error) {
	cur, first := seed, exit
	for {
		li := b.lk[cur][exit]
		x := b.recs[cur].Kmer
		end = End{Key: EndKey{Kmer: x, Side: exit}}
		if li < 0 {
			return steps, end, false, nil
		}
		l := b.lks[li]
		if int(l.NbrBucket) != b.bucket {
			end.Open = true
			end.Partner = EndKey{Kmer: l.Nbr, Side: l.NbrSide}
			end.Bucket = l.NbrBucket
			return steps, end, false, nil
		}
		j := b.find(l.Nbr)
		if j < 0 {
			return nil, end, false, errs.Invariant("unitig.Build", b.bucket, l.Nbr, "link into the bucket names a missing k-mer")
		}
		back := b.lk[j][l.NbrSide]
		if back < 0 || b.lks[back].Nbr != x || b.lks[back].NbrSide != exit {
			return nil, end, false, errs.Invariant("unitig.Build", b.bucket, x, "join to %#x is not mutual", l.Nbr)
		}
		if j == seed {
			if l.NbrSide == first {
				return nil, end, false, errs.Invariant("unitig.Build", b.bucket, x, "path re-enters its seed through the side it left")
			}
			return steps, End{}, true, nil
		}
		if b.seen[j] {
			return nil, end, false, errs.Invariant("unitig.Build", b.bucket, l.Nbr, "k-mer reached twice")
		}
		b.seen[j] = true
		steps = append(steps, step{idx: j, fwd: l.NbrSide == links.Left})
		cur = j
		exit = 1 - l.NbrSide
	}
}

func (b *builder) extend(seed int) (Fragment, error) {
	b.seen[seed] = true
	f := Fragment{Bucket: b.bucket}

	fw, stopEnd, cycle, err := b.walk(seed, links.Right)
	if err != nil {
		return f, err
	}
	path := make([]step, 0, len(fw)+1)
	if cycle {
		f.Circular = true
		path = append(path, step{idx: seed, fwd: true})
		path = append(path, fw...)
	} else {
		bw, startEnd, _, err := b.walk(seed, links.Left)
		if err != nil {
			return f, err
		}
		// the backward walk lists k-mers right to left, and a k-mer entered
		// through its Left side while walking back reads reversed
		for i := len(bw) - 1; i >= 0; i-- {
			path = append(path, step{idx: bw[i].idx, fwd: !bw[i].fwd})
		}
		path = append(path, step{idx: seed, fwd: true})
		path = append(path, fw...)
		f.Ends[Start] = startEnd
		f.Ends[Stop] = stopEnd
	}
	return f, b.spell(&f, path)
}

func (b *builder) spell(f *Fragment, path []step) error {
	k := b.k
	f.Seq = make([]byte, 0, len(path)+k-1)
	f.Colors = make([]colors.ID, len(path))
	f.Counts = make([]uint32, len(path))
	var prev uint64
	for i, s := range path {
		r := b.recs[s.idx]
		v := r.Kmer
		if !s.fwd {
			v = kmer.ReverseComplement(v, k)
		}
		if i == 0 {
			for p := k - 1; p >= 0; p-- {
				f.Seq = append(f.Seq, byte(v>>(uint(p)*bnt.NumBitsInBase))&bnt.BaseMask)
			}
		} else {
			if kmer.Suffix(prev, k) != kmer.Prefix(v, k) {
				return errs.Invariant("unitig.Build", b.bucket, r.Kmer, "consecutive k-mers do not overlap")
			}
			f.Seq = append(f.Seq, kmer.LastBase(v))
		}
		f.Colors[i] = r.Color
		f.Counts[i] = r.Count
		prev = v
	}
	return nil
}
