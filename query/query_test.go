package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudesheng/cdbg/config"
	"github.com/mudesheng/cdbg/graph"
	"github.com/mudesheng/cdbg/kmer"
	"github.com/mudesheng/cdbg/pipeline"
	"github.com/mudesheng/cdbg/seqio"
)

func twoSamples(t *testing.T) *graph.Graph {
	cfg := config.Config{
		K: 4, MinimizerLen: 2, Buckets: 3, SpillThreshold: 1 << 16,
		Workers: 2, ScanWorkers: 1, QueueCapacity: 4, BatchRecords: 8,
		ColorCeiling: 16, MinAbundance: 1, Hasher: kmer.HasherMix,
		TmpDir: t.TempDir(), ProgressInterval: time.Hour, SpillBackoff: time.Millisecond,
	}
	p, err := pipeline.New(cfg, seqio.Slice{
		{Color: 0, Seq: []byte("ACGTACGA")},
		{Color: 1, Seq: []byte("ACGTTCGA")},
	})
	require.NoError(t, err)
	g, _, err := p.Run(context.Background())
	require.NoError(t, err)
	return g
}

func TestLookup(t *testing.T) {
	idx := NewIndex(twoSamples(t))
	acgt, _ := kmer.Encode([]byte("ACGT"))
	h, ok := idx.Lookup(acgt)
	require.True(t, ok)
	assert.Equal(t, []uint32{0, 1}, idx.Graph().ColorSet(h.Color).ToArray())
	assert.Equal(t, uint32(2), h.Count)

	// CGAA is stored as its reverse complement TTCG
	ttcg, _ := kmer.Encode([]byte("TTCG"))
	h, ok = idx.Lookup(ttcg)
	require.True(t, ok)
	assert.Equal(t, []uint32{1}, idx.Graph().ColorSet(h.Color).ToArray())
	u := idx.Graph().Unitig(h.Unitig)
	assert.Equal(t, "CGAACG", string(u.Sequence()))
	assert.Equal(t, uint32(0), h.Offset)

	gggg, _ := kmer.Encode([]byte("GGGG"))
	_, ok = idx.Lookup(gggg)
	assert.False(t, ok)
}

func TestSequence(t *testing.T) {
	idx := NewIndex(twoSamples(t))

	res := idx.Sequence([]byte("ACGTACGA"))
	assert.Equal(t, 5, res.Kmers)
	assert.Equal(t, 5, res.Found)
	assert.Equal(t, map[uint32]int{0: 5, 1: 1}, res.Samples)
	assert.Len(t, res.Unitigs, 4)
	assert.InDelta(t, 1.0, res.Fraction(), 1e-9)

	res = idx.Sequence([]byte("acgtNTTTT"))
	assert.Equal(t, 2, res.Kmers)
	assert.Equal(t, 1, res.Found)
	assert.InDelta(t, 0.5, res.Fraction(), 1e-9)

	assert.Zero(t, idx.Sequence([]byte("AC")).Fraction())
}
