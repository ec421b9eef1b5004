// Package dedup merges the occurrences of each canonical k-mer of a bucket
// into one record carrying its count and interned color set.
package dedup

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/twotwotwo/sorts"

	"github.com/mudesheng/cdbg/colors"
	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/partition"
)

// Record is a distinct k-mer of a bucket.
type Record struct {
	Kmer  uint64
	Count uint32
	Color colors.ID
}

type RecordCodec struct{}

func (RecordCodec) Size() int { return 16 }

func (RecordCodec) Put(dst []byte, r Record) {
	binary.LittleEndian.PutUint64(dst, r.Kmer)
	binary.LittleEndian.PutUint32(dst[8:], r.Count)
	binary.LittleEndian.PutUint32(dst[12:], uint32(r.Color))
}

func (RecordCodec) Get(src []byte) Record {
	return Record{
		Kmer:  binary.LittleEndian.Uint64(src),
		Count: binary.LittleEndian.Uint32(src[8:]),
		Color: colors.ID(binary.LittleEndian.Uint32(src[12:])),
	}
}

type byKmer []partition.Entry

func (s byKmer) Len() int           { return len(s) }
func (s byKmer) Less(i, j int) bool { return s[i].Kmer < s[j].Kmer }
func (s byKmer) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s byKmer) Key(i int) uint64   { return s[i].Kmer }

type Stats struct {
	Occurrences int64
	Distinct    int64
	// Dropped counts occurrences of k-mers below the minimum abundance.
	Dropped int64
}

const checkEvery = 1 << 16

// Bucket sorts entries in place and returns the distinct k-mers in
// ascending order. K-mers seen fewer than minAbundance times are dropped.
func Bucket(ctx context.Context, bucket int, entries []partition.Entry, dict *colors.Dictionary, minAbundance int) ([]Record, Stats, error) {
	st := Stats{Occurrences: int64(len(entries))}
	sorts.ByUint64(byKmer(entries))

	var out []Record
	var counted int64
	var set []uint32
	nextCheck := 0
	for i := 0; i < len(entries); {
		if i >= nextCheck {
			if err := ctx.Err(); err != nil {
				return nil, st, err
			}
			nextCheck = i + checkEvery
		}
		x := entries[i].Kmer
		set = set[:0]
		j := i
		for ; j < len(entries) && entries[j].Kmer == x; j++ {
			set = append(set, entries[j].Color)
		}
		n := j - i
		i = j
		if n < minAbundance {
			st.Dropped += int64(n)
			continue
		}
		id, err := dict.Intern(set)
		if err != nil {
			if e, ok := err.(*errs.Error); ok {
				e.WithBucket(bucket)
			}
			return nil, st, err
		}
		if len(out) > 0 && out[len(out)-1].Kmer >= x {
			return nil, st, errs.Invariant("dedup.Bucket", bucket, x, "records out of order after sort")
		}
		count := uint32(math.MaxUint32)
		if n < math.MaxUint32 {
			count = uint32(n)
		}
		out = append(out, Record{Kmer: x, Count: count, Color: id})
		counted += int64(n)
	}
	if counted+st.Dropped != st.Occurrences {
		var x uint64
		if len(out) > 0 {
			x = out[len(out)-1].Kmer
		}
		return nil, st, errs.Invariant("dedup.Bucket", bucket, x, "merged %d + dropped %d occurrences, loaded %d", counted, st.Dropped, st.Occurrences)
	}
	st.Distinct = int64(len(out))
	return out, st, nil
}
