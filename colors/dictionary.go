// Package colors interns sample presence sets. The dictionary is the only
// structure bucket tasks share; it is append-only, so an ID handed out is
// never changed or reused for the lifetime of the run.
package colors

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash"

	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/metrics"
)

// ID names an interned color set.
type ID uint32

const defaultShards = 64

type shard struct {
	mu  sync.RWMutex
	ids map[string]ID
}

type Dictionary struct {
	ceiling int
	shards  []shard

	mu   sync.RWMutex
	sets []*roaring.Bitmap
}

// New returns an empty dictionary that refuses to hold more than ceiling
// distinct sets.
func New(ceiling int) *Dictionary {
	d := &Dictionary{
		ceiling: ceiling,
		shards:  make([]shard, defaultShards),
	}
	for i := range d.shards {
		d.shards[i].ids = make(map[string]ID)
	}
	return d
}

// Normalize returns set sorted with duplicates removed. set is not modified.
func Normalize(set []uint32) []uint32 {
	sorted := true
	for i := 1; i < len(set); i++ {
		if set[i] <= set[i-1] {
			sorted = false
			break
		}
	}
	if sorted {
		return set
	}
	out := append([]uint32(nil), set...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, c := range out {
		if i == 0 || c != out[n-1] {
			out[n] = c
			n++
		}
	}
	return out[:n]
}

func key(set []uint32) string {
	buf := make([]byte, 4*len(set))
	for i, c := range set {
		binary.LittleEndian.PutUint32(buf[4*i:], c)
	}
	return string(buf)
}

// Intern returns the ID of set, assigning the next free ID if it is new.
// Equal sets get equal IDs whichever goroutine or bucket asks first.
func (d *Dictionary) Intern(set []uint32) (ID, error) {
	set = Normalize(set)
	k := key(set)
	sh := &d.shards[xxhash.Sum64String(k)%uint64(len(d.shards))]

	sh.mu.RLock()
	id, ok := sh.ids[k]
	sh.mu.RUnlock()
	if ok {
		return id, nil
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if id, ok := sh.ids[k]; ok {
		return id, nil
	}
	d.mu.Lock()
	if len(d.sets) >= d.ceiling {
		n := len(d.sets)
		d.mu.Unlock()
		return 0, errs.ColorOverflow("colors.Intern", d.ceiling, n+1)
	}
	id = ID(len(d.sets))
	d.sets = append(d.sets, roaring.BitmapOf(set...))
	n := len(d.sets)
	d.mu.Unlock()
	sh.ids[k] = id
	metrics.ColorSetsInterned.Set(float64(n))
	return id, nil
}

// Len is the number of distinct sets interned so far.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sets)
}

// Set returns the sorted samples of id, or nil for an unknown id.
func (d *Dictionary) Set(id ID) []uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if int(id) >= len(d.sets) {
		return nil
	}
	return d.sets[id].ToArray()
}

// Bitmap returns a copy of the set of id.
func (d *Dictionary) Bitmap(id ID) *roaring.Bitmap {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if int(id) >= len(d.sets) {
		return roaring.New()
	}
	return d.sets[id].Clone()
}

// Snapshot lists every set indexed by its ID.
func (d *Dictionary) Snapshot() [][]uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([][]uint32, len(d.sets))
	for i, bm := range d.sets {
		out[i] = bm.ToArray()
	}
	return out
}

// FromSnapshot rebuilds a dictionary with the IDs of a Snapshot.
func FromSnapshot(sets [][]uint32, ceiling int) (*Dictionary, error) {
	if ceiling < len(sets) {
		ceiling = len(sets)
	}
	d := New(ceiling)
	for i, set := range sets {
		id, err := d.Intern(set)
		if err != nil {
			return nil, err
		}
		if int(id) != i {
			return nil, errs.Newf(errs.KindInvariant, "colors.FromSnapshot", "set %d appears twice in snapshot", i)
		}
	}
	return d, nil
}
