package links

import (
	"context"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudesheng/cdbg/buckets"
	"github.com/mudesheng/cdbg/dedup"
	"github.com/mudesheng/cdbg/kmer"
)

func enc(t *testing.T, s string) uint64 {
	t.Helper()
	x, ok := kmer.Encode([]byte(s))
	require.True(t, ok)
	return kmer.Canonical(x, len(s))
}

func TestOverlapOfAgreesAcrossNeighbors(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, k := range []int{3, 4, 9, 16, 31} {
		for n := 0; n < 300; n++ {
			x := kmer.Canonical(rng.Uint64()&kmer.Mask(k), k)
			for b := byte(0); b < 4; b++ {
				y := kmer.Append(x, b, k)
				yc := kmer.Canonical(y, k)
				ySide := Left
				if y != yc {
					ySide = Right
				}
				cx, px := OverlapOf(x, Right, k)
				cy, py := OverlapOf(yc, ySide, k)
				require.Equal(t, cx, cy)
				if !kmer.IsPalindrome(cx, k-1) {
					assert.NotEqual(t, px, py, "k=%d x=%s y=%s", k, kmer.Decode(x, k), kmer.Decode(y, k))
				}
			}
		}
	}
}

type stage struct {
	overlaps *buckets.Pool[Overlap]
	links    *buckets.Pool[Link]
	edges    *buckets.Pool[Edge]
}

func newStage(t *testing.T, nb int) *stage {
	opts := buckets.Options{
		Dir: t.TempDir(), Buckets: nb, QueueCapacity: 4, BatchRecords: 8, SpillThreshold: 1 << 20,
		Retry: buckets.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	}
	ov, err := buckets.New[Overlap]("overlap", OverlapCodec{}, opts)
	require.NoError(t, err)
	lk, err := buckets.New[Link]("link", LinkCodec{}, opts)
	require.NoError(t, err)
	ed, err := buckets.New[Edge]("edge", EdgeCodec{}, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ov.Close()
		lk.Close()
		ed.Close()
	})
	return &stage{overlaps: ov, links: lk, edges: ed}
}

func (s *stage) run(t *testing.T, k int, recs []dedup.Record) (Stats, []Link, []Edge) {
	ctx := context.Background()
	em := Emitter{K: k, Hasher: kmer.MixHasher{}, Overlaps: s.overlaps.Buckets()}
	w := s.overlaps.NewWriter()
	require.NoError(t, em.Emit(ctx, 0, recs, w))
	require.NoError(t, w.Flush(ctx))
	require.NoError(t, s.overlaps.Seal())

	lw, ew := s.links.NewWriter(), s.edges.NewWriter()
	var total Stats
	for b := 0; b < s.overlaps.Buckets(); b++ {
		ovs, err := s.overlaps.Load(ctx, b)
		require.NoError(t, err)
		st, err := Resolve(ctx, b, ovs, lw, ew)
		require.NoError(t, err)
		total.Groups += st.Groups
		total.Joins += st.Joins
		total.Unjoined += st.Unjoined
		total.Edges += st.Edges
	}
	require.NoError(t, lw.Flush(ctx))
	require.NoError(t, ew.Flush(ctx))
	require.NoError(t, s.links.Seal())
	require.NoError(t, s.edges.Seal())
	var links []Link
	var edges []Edge
	for b := 0; b < s.links.Buckets(); b++ {
		l, err := s.links.Load(ctx, b)
		require.NoError(t, err)
		links = append(links, l...)
		e, err := s.edges.Load(ctx, b)
		require.NoError(t, err)
		edges = append(edges, e...)
	}
	return total, links, edges
}

func TestResolveBranch(t *testing.T) {
	k := 3
	recs := []dedup.Record{
		{Kmer: enc(t, "AAC")},
		{Kmer: enc(t, "ACA")},
		{Kmer: enc(t, "ACG")},
	}
	st, links, edges := newStage(t, 3).run(t, k, recs)
	assert.Equal(t, int64(0), st.Joins)
	assert.Empty(t, links)
	// AC branches to ACA and ACG; CG is palindromic and turns ACG back on itself
	assert.Equal(t, int64(3), st.Edges)
	assert.Len(t, edges, 3)

	var hairpin bool
	for _, e := range edges {
		if e.A == enc(t, "ACG") && e.B == enc(t, "ACG") {
			hairpin = true
			assert.Equal(t, Right, e.ASide)
			assert.Equal(t, Right, e.BSide)
		}
	}
	assert.True(t, hairpin)
}

func TestResolveLinearPathJoinsEverything(t *testing.T) {
	k := 7
	seq := []byte("CGATTCAAATGACGGCAGCAGGCCGGGAGTCCCT")
	s := kmer.NewScanner(k)
	s.Reset(seq)
	seen := map[uint64]bool{}
	var recs []dedup.Record
	for s.Next() {
		require.False(t, seen[s.Canonical()], "test sequence repeats a k-mer")
		seen[s.Canonical()] = true
		recs = append(recs, dedup.Record{Kmer: s.Canonical()})
	}
	st, links, edges := newStage(t, 4).run(t, k, recs)
	assert.Equal(t, int64(len(recs)-1), st.Joins)
	assert.Len(t, links, 2*(len(recs)-1))
	assert.Empty(t, edges)

	for _, l := range links {
		assert.True(t, seen[l.Kmer])
		assert.True(t, seen[l.Nbr])
	}
}

func TestResolveSelfLoop(t *testing.T) {
	// AAAA overlaps itself through AAA
	st, links, _ := newStage(t, 1).run(t, 4, []dedup.Record{{Kmer: enc(t, "AAAA")}})
	assert.Equal(t, int64(1), st.Joins)
	require.Len(t, links, 2)
	for _, l := range links {
		assert.Equal(t, l.Kmer, l.Nbr)
		assert.NotEqual(t, l.Side, l.NbrSide)
	}
}

func TestResolvePalindromicKmerNeverJoins(t *testing.T) {
	// ACGT is its own reverse complement
	st, links, edges := newStage(t, 2).run(t, 4, []dedup.Record{{Kmer: enc(t, "ACGT")}, {Kmer: enc(t, "CGTA")}})
	assert.Equal(t, int64(0), st.Joins)
	assert.Empty(t, links)
	assert.NotEmpty(t, edges)
}

func TestCodecs(t *testing.T) {
	buf := make([]byte, 32)
	o := Overlap{Overlap: 5, Kmer: 9, Home: 3, Side: Right, Pos: PosLeft, Flags: FlagKmerPalindrome}
	OverlapCodec{}.Put(buf, o)
	assert.Equal(t, o, OverlapCodec{}.Get(buf))

	l := Link{Kmer: 1, Nbr: 2, NbrBucket: 7, Side: Left, NbrSide: Right}
	LinkCodec{}.Put(buf, l)
	assert.Equal(t, l, LinkCodec{}.Get(buf))

	e := Edge{A: 4, B: 6, ASide: Right, BSide: Left}
	EdgeCodec{}.Put(buf, e)
	assert.Equal(t, e, EdgeCodec{}.Get(buf))
}

func TestResolveTwoPalindromesAroundOneOverlap(t *testing.T) {
	// ATAT and TATA both sit on ATA through both of their sides, next to
	// every other extension of ATA: ten sides in one group
	var recs []dedup.Record
	for _, s := range []string{"ATAA", "ATAC", "ATAG", "ATAT", "AATA", "CATA", "GATA", "TATA"} {
		recs = append(recs, dedup.Record{Kmer: enc(t, s)})
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Kmer < recs[j].Kmer })
	_, links, edges := newStage(t, 3).run(t, 4, recs)

	ata := enc(t, "ATA")
	for _, l := range links {
		co, _ := OverlapOf(l.Kmer, l.Side, 4)
		assert.NotEqual(t, ata, co, "join through ATA from %s", kmer.Decode(l.Kmer, 4))
	}
	n := 0
	for _, e := range edges {
		if co, _ := OverlapOf(e.A, e.ASide, 4); co == ata {
			n++
		}
	}
	assert.Equal(t, 25, n)
}
