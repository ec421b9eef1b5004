package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudesheng/cdbg/colors"
)

func TestRuns(t *testing.T) {
	runs := Runs([]colors.ID{2, 2, 0, 0, 0, 2})
	assert.Equal(t, []ColorRun{{Color: 2, Len: 2}, {Color: 0, Len: 3}, {Color: 2, Len: 1}}, runs)

	u := Unitig{Colors: runs, Counts: []uint32{1, 1, 2, 2, 2, 4}}
	assert.Equal(t, colors.ID(2), u.ColorAt(1))
	assert.Equal(t, colors.ID(0), u.ColorAt(4))
	assert.Equal(t, colors.ID(2), u.ColorAt(5))
	assert.InDelta(t, 2.0, u.MeanCount(), 1e-9)
	assert.Nil(t, Runs(nil))
}

func TestGraphAccessors(t *testing.T) {
	dict := colors.New(4)
	a, err := dict.Intern([]uint32{0, 1})
	require.NoError(t, err)
	b, err := dict.Intern([]uint32{3})
	require.NoError(t, err)

	g := New(3, []Unitig{
		{ID: 0, Seq: []byte{0, 1, 2, 3}, Colors: []ColorRun{{a, 2}}, Counts: []uint32{1, 1}},
		{ID: 1, Seq: []byte{3, 3, 3}, Colors: []ColorRun{{b, 1}}, Counts: []uint32{5}},
	}, dict)

	assert.Equal(t, 3, g.K())
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, int64(3), g.Kmers())
	assert.Equal(t, 3, g.Samples())
	assert.Equal(t, "ACGT", string(g.Unitig(0).Sequence()))
	assert.Equal(t, []uint32{0, 1}, g.ColorSet(a).ToArray())

	var seen []uint32
	g.Each(func(u *Unitig) bool {
		seen = append(seen, u.ID)
		return false
	})
	assert.Equal(t, []uint32{0}, seen)
}

func TestColorsIsReadOnly(t *testing.T) {
	dict := colors.New(4)
	a, err := dict.Intern([]uint32{2, 5})
	require.NoError(t, err)
	g := New(3, nil, dict)

	table := g.Colors()
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, []uint32{2, 5}, table.Set(a))
	assert.Equal(t, [][]uint32{{2, 5}}, table.Snapshot())

	_, canIntern := table.(interface {
		Intern([]uint32) (colors.ID, error)
	})
	assert.False(t, canIntern)

	// results are copies
	table.Set(a)[0] = 9
	assert.Equal(t, []uint32{2, 5}, table.Set(a))
}
