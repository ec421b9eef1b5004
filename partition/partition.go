// Package partition routes every canonical k-mer of the input to a bucket
// chosen by its minimizer, so all occurrences of a k-mer land in one bucket.
package partition

import (
	"context"
	"encoding/binary"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mudesheng/cdbg/buckets"
	"github.com/mudesheng/cdbg/kmer"
	"github.com/mudesheng/cdbg/metrics"
	"github.com/mudesheng/cdbg/seqio"
)

// Entry is one k-mer occurrence.
type Entry struct {
	Kmer  uint64
	Color uint32
}

type EntryCodec struct{}

func (EntryCodec) Size() int { return 12 }

func (EntryCodec) Put(dst []byte, e Entry) {
	binary.LittleEndian.PutUint64(dst, e.Kmer)
	binary.LittleEndian.PutUint32(dst[8:], e.Color)
}

func (EntryCodec) Get(src []byte) Entry {
	return Entry{Kmer: binary.LittleEndian.Uint64(src), Color: binary.LittleEndian.Uint32(src[8:])}
}

type Options struct {
	K, M    int
	Hasher  kmer.Hasher
	Workers int
	Logger  zerolog.Logger
}

type Stats struct {
	Sequences      int64
	ShortSequences int64
	Kmers          int64
	SkippedWindows int64
}

// BucketOf is the bucket a minimizer hash maps to.
func BucketOf(minimizerHash uint64, nbuckets int) int {
	return int(minimizerHash % uint64(nbuckets))
}

// Run scans src with opts.Workers goroutines and writes every valid k-mer
// to pool. A full bucket queue blocks the scanning worker. The pool is left
// unsealed.
func Run(ctx context.Context, opts Options, src seqio.Source, pool *buckets.Pool[Entry]) (Stats, error) {
	var st Stats
	var seqs, short, kmers, skipped atomic.Int64
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	recs := make(chan seqio.Record, workers*4)
	g.Go(func() error {
		defer close(recs)
		return src.Each(ctx, func(r seqio.Record) error {
			select {
			case recs <- r:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})
	nb := pool.Buckets()
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			wr := pool.NewWriter()
			ms := NewMinimizerScanner(opts.K, opts.M, opts.Hasher)
			for r := range recs {
				seqs.Add(1)
				if len(r.Seq) < opts.K {
					short.Add(1)
					metrics.SequencesSkippedTotal.Inc()
					continue
				}
				ms.Reset(r.Seq)
				for ms.Next() {
					e := Entry{Kmer: ms.Canonical(), Color: r.Color}
					if err := wr.Write(ctx, BucketOf(ms.MinimizerHash(), nb), e); err != nil {
						return err
					}
				}
				kmers.Add(int64(ms.Emitted()))
				skipped.Add(int64(ms.Skipped()))
				metrics.KmersPartitionedTotal.Add(float64(ms.Emitted()))
				metrics.WindowsSkippedTotal.Add(float64(ms.Skipped()))
			}
			return wr.Flush(ctx)
		})
	}
	err := g.Wait()
	st.Sequences, st.ShortSequences = seqs.Load(), short.Load()
	st.Kmers, st.SkippedWindows = kmers.Load(), skipped.Load()
	if err != nil {
		return st, err
	}
	opts.Logger.Info().Int64("sequences", st.Sequences).Int64("kmers", st.Kmers).
		Int64("skipped", st.SkippedWindows).Msg("[partition] input scanned")
	return st, nil
}
