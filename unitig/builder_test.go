package unitig

import (
	"context"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudesheng/cdbg/bnt"
	"github.com/mudesheng/cdbg/buckets"
	"github.com/mudesheng/cdbg/colors"
	"github.com/mudesheng/cdbg/dedup"
	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/kmer"
	"github.com/mudesheng/cdbg/links"
)

// resolve spreads the k-mers of seqs over nb buckets with home and runs the
// overlap resolution, returning the sorted records and links per bucket.
func resolve(t *testing.T, k, nb int, seqs []string, home func(uint64) int) ([][]dedup.Record, [][]links.Link) {
	t.Helper()
	ctx := context.Background()
	opts := buckets.Options{
		Dir: t.TempDir(), Buckets: nb, QueueCapacity: 4, BatchRecords: 8, SpillThreshold: 1 << 20,
		Retry: buckets.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	}
	ov, err := buckets.New[links.Overlap]("overlap", links.OverlapCodec{}, opts)
	require.NoError(t, err)
	lk, err := buckets.New[links.Link]("link", links.LinkCodec{}, opts)
	require.NoError(t, err)
	ed, err := buckets.New[links.Edge]("edge", links.EdgeCodec{}, opts)
	require.NoError(t, err)
	defer ov.Close()
	defer lk.Close()
	defer ed.Close()

	recs := make([][]dedup.Record, nb)
	seen := map[uint64]bool{}
	s := kmer.NewScanner(k)
	for _, seq := range seqs {
		s.Reset([]byte(seq))
		for s.Next() {
			c := s.Canonical()
			if seen[c] {
				continue
			}
			seen[c] = true
			recs[home(c)] = append(recs[home(c)], dedup.Record{Kmer: c, Count: 1})
		}
	}
	em := links.Emitter{K: k, Hasher: kmer.MixHasher{}, Overlaps: nb}
	w := ov.NewWriter()
	for b := range recs {
		sort.Slice(recs[b], func(i, j int) bool { return recs[b][i].Kmer < recs[b][j].Kmer })
		require.NoError(t, em.Emit(ctx, b, recs[b], w))
	}
	require.NoError(t, w.Flush(ctx))
	require.NoError(t, ov.Seal())
	lw, ew := lk.NewWriter(), ed.NewWriter()
	for b := 0; b < nb; b++ {
		ovs, err := ov.Load(ctx, b)
		require.NoError(t, err)
		_, err = links.Resolve(ctx, b, ovs, lw, ew)
		require.NoError(t, err)
	}
	require.NoError(t, lw.Flush(ctx))
	require.NoError(t, lk.Seal())
	lks := make([][]links.Link, nb)
	for b := 0; b < nb; b++ {
		lks[b], err = lk.Load(ctx, b)
		require.NoError(t, err)
	}
	return recs, lks
}

func spelled(f *Fragment) string {
	return string(bnt.Transform2Char(f.Seq))
}

func revcomp(s string) string {
	seq := []byte(s)
	bnt.Transform2Bnt(seq)
	return string(bnt.Transform2Char(bnt.ReverseComplet(seq)))
}

func TestBuildLinearPathOneBucket(t *testing.T) {
	seq := "CGATTCAAATGACGGCAGCAGGCCGGGAGTCCCT"
	recs, lks := resolve(t, 7, 1, []string{seq}, func(uint64) int { return 0 })
	frags, st, err := Build(context.Background(), 0, 7, recs[0], lks[0])
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, int64(0), st.OpenEnds)

	f := frags[0]
	got := spelled(&f)
	assert.True(t, got == seq || got == revcomp(seq), got)
	assert.Equal(t, len(seq)-6, f.Kmers())
	assert.False(t, f.Ends[Start].Open)
	assert.False(t, f.Ends[Stop].Open)
	first, last := EndKeys(f.Seq, 7)
	assert.Equal(t, first, f.Ends[Start].Key)
	assert.Equal(t, last, f.Ends[Stop].Key)
}

func TestBuildSplitAcrossBuckets(t *testing.T) {
	seq := "CGATTCAAATGACGGCAGCAGGCCGGGAGTCCCT"
	k := 7
	pos := map[uint64]int{}
	s := kmer.NewScanner(k)
	s.Reset([]byte(seq))
	for s.Next() {
		pos[s.Canonical()] = s.Pos()
	}
	// positions 0-9 and 20+ in bucket 0, the middle in bucket 1
	home := func(x uint64) int {
		if p := pos[x]; p >= 10 && p < 20 {
			return 1
		}
		return 0
	}
	recs, lks := resolve(t, k, 2, []string{seq}, home)

	var all []Fragment
	for b := 0; b < 2; b++ {
		frags, _, err := Build(context.Background(), b, k, recs[b], lks[b])
		require.NoError(t, err)
		all = append(all, frags...)
	}
	require.Len(t, all, 3)

	ends := map[EndKey]End{}
	var open int
	for _, f := range all {
		for _, e := range f.Ends {
			ends[e.Key] = e
			if e.Open {
				open++
			}
		}
	}
	assert.Equal(t, 4, open)
	for _, e := range ends {
		if !e.Open {
			continue
		}
		partner, ok := ends[e.Partner]
		require.True(t, ok)
		assert.True(t, partner.Open)
		assert.Equal(t, e.Key, partner.Partner)
	}
}

func TestBuildCycle(t *testing.T) {
	// a circular sequence whose k-mers are all distinct: spell it with the
	// first k-1 bases repeated at the end
	circ := "CGATTCAAATGACGGCAGCA"
	k := 5
	seq := circ + circ[:k-1]
	recs, lks := resolve(t, k, 1, []string{seq}, func(uint64) int { return 0 })
	frags, st, err := Build(context.Background(), 0, k, recs[0], lks[0])
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, int64(1), st.Circular)
	assert.True(t, frags[0].Circular)
	assert.Equal(t, len(circ), frags[0].Kmers())
}

func TestBuildCycleWhateverTheStoredOrientation(t *testing.T) {
	// the k-mer that closes a cycle may be stored reverse-complemented
	k := 9
	rng := rand.New(rand.NewSource(5))
	built := 0
	for n := 0; n < 40; n++ {
		circ := make([]byte, 80)
		for i := range circ {
			circ[i] = "ACGT"[rng.Intn(4)]
		}
		seq := append(append([]byte(nil), circ...), circ[:k-1]...)
		// skip sequences where a (k-1)-mer repeats or is palindromic: they
		// branch
		overlaps := map[uint64]bool{}
		s := kmer.NewScanner(k - 1)
		s.Reset(seq[:len(circ)+k-2])
		unique := true
		for s.Next() {
			if overlaps[s.Canonical()] || kmer.IsPalindrome(s.Canonical(), k-1) {
				unique = false
			}
			overlaps[s.Canonical()] = true
		}
		if !unique {
			continue
		}
		recs, lks := resolve(t, k, 1, []string{string(seq)}, func(uint64) int { return 0 })
		frags, st, err := Build(context.Background(), 0, k, recs[0], lks[0])
		require.NoError(t, err)
		require.Len(t, frags, 1)
		assert.Equal(t, int64(1), st.Circular)
		assert.Equal(t, len(circ), frags[0].Kmers())
		built++
	}
	assert.Greater(t, built, 5)
}

func TestBuildSelfLoop(t *testing.T) {
	recs, lks := resolve(t, 4, 1, []string{"AAAAAA"}, func(uint64) int { return 0 })
	frags, _, err := Build(context.Background(), 0, 4, recs[0], lks[0])
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.True(t, frags[0].Circular)
	assert.Equal(t, "AAAA", spelled(&frags[0]))
}

func TestBuildRejectsLinkToMissingKmer(t *testing.T) {
	recs := []dedup.Record{{Kmer: 1}}
	lks := []links.Link{{Kmer: 2, Side: links.Right, Nbr: 1, NbrSide: links.Left}}
	_, _, err := Build(context.Background(), 3, 4, recs, lks)
	assert.ErrorIs(t, err, errs.ErrInternalInvariantViolation)
}

func TestFragmentReverse(t *testing.T) {
	seq := []byte("AACG")
	bnt.Transform2Bnt(seq)
	f := Fragment{Seq: seq, Colors: []colors.ID{1, 2}, Counts: []uint32{5, 6}}
	f.Ends[Start].Key = EndKey{Kmer: 1}
	f.Reverse()
	assert.Equal(t, "CGTT", spelled(&f))
	assert.Equal(t, uint32(6), f.Counts[0])
	assert.Equal(t, uint64(1), f.Ends[Stop].Key.Kmer)
}
