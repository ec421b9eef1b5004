package colors

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudesheng/cdbg/errs"
)

func TestInternSameSetFromTwoBuckets(t *testing.T) {
	d := New(16)
	var fromBucket3, fromBucket9 ID
	var err3, err9 error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); fromBucket3, err3 = d.Intern([]uint32{0, 1, 2}) }()
	go func() { defer wg.Done(); fromBucket9, err9 = d.Intern([]uint32{2, 0, 1, 1}) }()
	wg.Wait()
	require.NoError(t, err3)
	require.NoError(t, err9)
	assert.Equal(t, fromBucket3, fromBucket9)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, []uint32{0, 1, 2}, d.Set(fromBucket3))
}

func TestInternConcurrentUnique(t *testing.T) {
	d := New(1000)
	var wg sync.WaitGroup
	ids := make([][]ID, 8)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id, err := d.Intern([]uint32{uint32(i), uint32(i + 1)})
				require.NoError(t, err)
				ids[w] = append(ids[w], id)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 100, d.Len())
	for w := 1; w < 8; w++ {
		assert.Equal(t, ids[0], ids[w])
	}
	for i, id := range ids[0] {
		assert.Equal(t, []uint32{uint32(i), uint32(i + 1)}, d.Set(id))
	}
}

func TestColorOverflow(t *testing.T) {
	d := New(2)
	_, err := d.Intern([]uint32{0})
	require.NoError(t, err)
	_, err = d.Intern([]uint32{1})
	require.NoError(t, err)
	// known sets still resolve at the ceiling
	_, err = d.Intern([]uint32{0})
	require.NoError(t, err)

	_, err = d.Intern([]uint32{0, 1})
	require.ErrorIs(t, err, errs.ErrColorOverflow)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 2, e.Context["ceiling"])
	assert.Equal(t, 3, e.Context["count"])
	assert.Equal(t, 2, d.Len())
}

func TestSnapshotRoundTrip(t *testing.T) {
	d := New(10)
	for i := 0; i < 5; i++ {
		_, err := d.Intern([]uint32{uint32(i * 2), 100})
		require.NoError(t, err)
	}
	snap := d.Snapshot()
	d2, err := FromSnapshot(snap, 0)
	require.NoError(t, err)
	for i := range snap {
		assert.Equal(t, d.Set(ID(i)), d2.Set(ID(i)), fmt.Sprint(i))
		assert.True(t, d.Bitmap(ID(i)).Equals(d2.Bitmap(ID(i))))
	}
	assert.Nil(t, d2.Set(99))
}

func TestNormalize(t *testing.T) {
	in := []uint32{3, 1, 3, 2}
	assert.Equal(t, []uint32{1, 2, 3}, Normalize(in))
	assert.Equal(t, []uint32{3, 1, 3, 2}, in)
	assert.Empty(t, Normalize(nil))
}
