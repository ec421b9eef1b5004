package dump

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/awalterschulze/gographviz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudesheng/cdbg/bnt"
	"github.com/mudesheng/cdbg/colors"
	"github.com/mudesheng/cdbg/graph"
)

func codes(s string) []byte {
	b := []byte(s)
	bnt.Transform2Bnt(b)
	return b
}

// sample is a k=3 graph: two linear unitigs joined end to end and a
// circular one.
func sample(t *testing.T) *graph.Graph {
	dict := colors.New(4)
	both, err := dict.Intern([]uint32{0, 1})
	require.NoError(t, err)
	one, err := dict.Intern([]uint32{1})
	require.NoError(t, err)

	us := []graph.Unitig{
		{ID: 0, Seq: codes("ACGTT"), Colors: []graph.ColorRun{{Color: both, Len: 2}, {Color: one, Len: 1}}, Counts: []uint32{2, 2, 1}},
		{ID: 1, Seq: codes("TTGA"), Colors: []graph.ColorRun{{Color: one, Len: 2}}, Counts: []uint32{4, 4}},
		{ID: 2, Seq: codes("CAGCA"), Colors: []graph.ColorRun{{Color: both, Len: 3}}, Counts: []uint32{3, 3, 3}, Circular: true},
	}
	us[0].Links[graph.Stop] = []graph.Link{{To: 1, ToEnd: graph.Start}}
	us[1].Links[graph.Start] = []graph.Link{{To: 0, ToEnd: graph.Stop}}
	return graph.New(3, us, dict)
}

func TestWriteFasta(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFasta(&buf, sample(t)))
	want := ">0 LN:i:5 KC:i:3 km:f:1.7 CL:Z:0:2,1:1 L:+:1:+\nACGTT\n" +
		">1 LN:i:4 KC:i:2 km:f:4.0 CL:Z:1:2 L:-:0:-\nTTGA\n" +
		">2 LN:i:5 KC:i:3 km:f:3.0 CL:Z:0:3 CI:i:1\nCAGCA\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteGFA(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGFA(&buf, sample(t)))
	want := "H\tVN:Z:1.0\n" +
		"S\t0\tACGTT\tLN:i:5\tKC:i:3\tCL:Z:0:2,1:1\n" +
		"S\t1\tTTGA\tLN:i:4\tKC:i:2\tCL:Z:1:2\n" +
		"S\t2\tCAGCA\tLN:i:5\tKC:i:3\tCL:Z:0:3\n" +
		"L\t0\t+\t1\t+\t2M\n" +
		"L\t2\t+\t2\t+\t2M\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteDot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDot(&buf, sample(t)))
	parsed, err := gographviz.Read(buf.Bytes())
	require.NoError(t, err)
	assert.Len(t, parsed.Nodes.Nodes, 3)
	require.Len(t, parsed.Edges.Edges, 1)
	assert.Equal(t, "0", parsed.Edges.Edges[0].Src)
	assert.Equal(t, "1", parsed.Edges.Edges[0].Dst)
}

func TestParquetRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, sample(t)))
	rows, err := ReadParquet(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, UnitigRecord{
		ID: 0, Sequence: "ACGTT", Length: 5,
		ColorIDs: []uint32{0, 1}, ColorRunLengths: []uint32{2, 1},
		KmerCount: 3, MeanCount: 5.0 / 3, Circular: false,
	}, rows[0])
	assert.True(t, rows[2].Circular)
}

func TestSnapshotRoundTrip(t *testing.T) {
	g := sample(t)
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, g))
	back, err := ReadSnapshot(&buf)
	require.NoError(t, err)

	assert.Equal(t, g.K(), back.K())
	require.Equal(t, g.Len(), back.Len())
	assert.Equal(t, g.Colors().Snapshot(), back.Colors().Snapshot())
	for i := 0; i < g.Len(); i++ {
		a, b := g.Unitig(uint32(i)), back.Unitig(uint32(i))
		assert.Equal(t, a.Sequence(), b.Sequence())
		assert.Equal(t, a.Colors, b.Colors)
		assert.Equal(t, a.Counts, b.Counts)
		assert.Equal(t, a.Circular, b.Circular)
		for e := range a.Links {
			assert.Equal(t, len(a.Links[e]), len(b.Links[e]))
		}
	}
	assert.Equal(t, []graph.Link{{To: 1, ToEnd: graph.Start}}, back.Unitig(0).Links[graph.Stop])

	_, err = ReadSnapshot(bytes.NewReader([]byte("not a snapshot")))
	assert.Error(t, err)
}

func TestToFileCompressed(t *testing.T) {
	g := sample(t)
	fn := filepath.Join(t.TempDir(), "unitigs.fa.zst")
	require.NoError(t, ToFile(fn, g, WriteFasta))

	r, err := Open(fn)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)

	var want bytes.Buffer
	require.NoError(t, WriteFasta(&want, g))
	assert.Equal(t, want.String(), string(got))
}
