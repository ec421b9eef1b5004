package seqio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudesheng/cdbg/errs"
)

func TestFileFormat(t *testing.T) {
	cases := []struct {
		fn, format, compress string
		bad                  bool
	}{
		{fn: "a.fa", format: FormatFasta},
		{fn: "dir.v2/a.fasta.gz", format: FormatFasta, compress: CompressGzip},
		{fn: "reads.FQ.zst", format: FormatFastq, compress: CompressZstd},
		{fn: "reads.fastq.br", format: FormatFastq, compress: CompressBrotli},
		{fn: "genome.fna", format: FormatFasta},
		{fn: "aln.bam", format: FormatBam},
		{fn: "aln.bam.gz", bad: true},
		{fn: "reads", bad: true},
		{fn: "reads.txt", bad: true},
		{fn: "x.gz", bad: true},
	}
	for _, c := range cases {
		format, compress, err := FileFormat(c.fn)
		if c.bad {
			assert.ErrorIs(t, err, errs.ErrConfiguration, c.fn)
			continue
		}
		require.NoError(t, err, c.fn)
		assert.Equal(t, c.format, format, c.fn)
		assert.Equal(t, c.compress, compress, c.fn)
	}
}

func collect(t *testing.T, src Source) []Record {
	t.Helper()
	var out []Record
	require.NoError(t, src.Each(context.Background(), func(r Record) error {
		out = append(out, r)
		return nil
	}))
	return out
}

func TestFilesReadsAllFormats(t *testing.T) {
	dir := t.TempDir()

	fa := filepath.Join(dir, "s0.fa")
	require.NoError(t, os.WriteFile(fa, []byte(">r1 desc\nACGTAC\nGA\n>r2\nTTTT\n"), 0o644))

	fqgz := filepath.Join(dir, "s1.fq.gz")
	fp, err := os.Create(fqgz)
	require.NoError(t, err)
	gw := gzip.NewWriter(fp)
	_, err = gw.Write([]byte("@q1\nACGTTCGA\n+\nIIIIIIII\n"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, fp.Close())

	fazst := filepath.Join(dir, "s2.fasta.zst")
	fp, err = os.Create(fazst)
	require.NoError(t, err)
	zw, err := zstd.NewWriter(fp)
	require.NoError(t, err)
	_, err = zw.Write([]byte(">z1\nGGGCCC\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, fp.Close())

	src := Files{Inputs: []Input{{Color: 0, Path: fa}, {Color: 1, Path: fqgz}, {Color: 2, Path: fazst}}}
	recs := collect(t, src)
	require.Len(t, recs, 4)
	assert.Equal(t, "ACGTACGA", string(recs[0].Seq))
	assert.Equal(t, "r1", recs[0].Name)
	assert.Equal(t, "TTTT", string(recs[1].Seq))
	assert.Equal(t, uint32(1), recs[2].Color)
	assert.Equal(t, "ACGTTCGA", string(recs[2].Seq))
	assert.Equal(t, uint32(2), recs[3].Color)
	assert.Equal(t, "GGGCCC", string(recs[3].Seq))

	// restartable
	assert.Equal(t, recs, collect(t, src))
}

func TestFilesMissingInput(t *testing.T) {
	src := Files{Inputs: []Input{{Path: filepath.Join(t.TempDir(), "none.fa")}}}
	err := src.Each(context.Background(), func(Record) error { return nil })
	assert.ErrorIs(t, err, errs.ErrFatalIO)
}

func TestSliceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Slice{{Seq: []byte("ACGT")}}.Each(ctx, func(Record) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
