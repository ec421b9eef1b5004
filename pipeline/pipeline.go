// Package pipeline runs the whole construction: partition, dedup with color
// interning, link resolution, unitig extension and compaction, with a
// barrier between stages. All bucket storage lives in a private directory
// that is removed when Run returns.
package pipeline

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mudesheng/cdbg/buckets"
	"github.com/mudesheng/cdbg/colors"
	"github.com/mudesheng/cdbg/compact"
	"github.com/mudesheng/cdbg/config"
	"github.com/mudesheng/cdbg/dedup"
	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/graph"
	"github.com/mudesheng/cdbg/kmer"
	"github.com/mudesheng/cdbg/links"
	"github.com/mudesheng/cdbg/metrics"
	"github.com/mudesheng/cdbg/partition"
	"github.com/mudesheng/cdbg/seqio"
	"github.com/mudesheng/cdbg/unitig"
)

type Stats struct {
	Sequences      int64
	ShortSequences int64
	Kmers          int64
	SkippedWindows int64
	Distinct       int64
	Dropped        int64
	Colors         int
	Joins          int64
	Fragments      int64
	Unitigs        int64
	Circular       int64
	ForcedClosed   int64
	Links          int64
	Spills         int64
	SpillBytes     int64
	Elapsed        time.Duration
}

type Option func(*Pipeline)

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithProgress registers fn to be called after every bucket task. fn runs on
// worker goroutines and must be safe for concurrent use.
func WithProgress(fn func(Progress)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

type Pipeline struct {
	cfg      config.Config
	src      seqio.Source
	hasher   kmer.Hasher
	logger   zerolog.Logger
	progress func(Progress)
}

// New validates cfg; no storage is created until Run.
func New(cfg config.Config, src seqio.Source, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errs.Configuration("pipeline.New", "no sequence source")
	}
	h, err := kmer.NewHasher(cfg.Hasher)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, src: src, hasher: h, logger: zerolog.Nop()}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// run holds the state of one Run.
type run struct {
	*Pipeline
	dir      string
	dict     *colors.Dictionary
	raw      *buckets.Pool[partition.Entry]
	distinct *buckets.Pool[dedup.Record]
	overlaps *buckets.Pool[links.Overlap]
	lks      *buckets.Pool[links.Link]
	edges    *buckets.Pool[links.Edge]
	mu       sync.Mutex
	st       Stats
}

// Run builds the graph. On any failure, cancellation included, it returns
// only an error and leaves no spill storage behind.
func (p *Pipeline) Run(ctx context.Context) (*graph.Graph, Stats, error) {
	t0 := time.Now()
	g, st, err := p.run(ctx)
	st.Elapsed = time.Since(t0)
	if err != nil {
		if ctx.Err() != nil {
			err = errs.Canceled("pipeline.Run", ctx.Err())
		}
		p.logger.Error().Err(err).Dur("elapsed", st.Elapsed).Msg("[Run] construction failed")
		return nil, st, err
	}
	p.logger.Info().
		Int64("kmers", st.Kmers).
		Int64("distinct", st.Distinct).
		Int("colors", st.Colors).
		Int64("unitigs", st.Unitigs).
		Dur("elapsed", st.Elapsed).
		Msg("[Run] construction finished")
	return g, st, nil
}

func (p *Pipeline) run(ctx context.Context) (g *graph.Graph, st Stats, err error) {
	dir, err := os.MkdirTemp(p.cfg.TmpDir, "cdbg-")
	if err != nil {
		return nil, st, errs.Wrap(errors.Wrap(err, "creating spill dir"), errs.KindFatalIO, "pipeline.Run", "spill storage unavailable")
	}
	r := &run{Pipeline: p, dir: dir, dict: colors.New(p.cfg.ColorCeiling)}
	defer func() {
		if cerr := r.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err = r.open(); err != nil {
		return nil, r.st, err
	}
	for _, stage := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{"partition", r.partition},
		{"dedup", r.dedup},
		{"links", r.resolve},
	} {
		if err = r.timed(ctx, stage.name, stage.fn); err != nil {
			return nil, r.st, err
		}
	}
	var frags []unitig.Fragment
	err = r.timed(ctx, "unitig", func(ctx context.Context) error {
		var err error
		frags, err = r.unitigs(ctx)
		return err
	})
	if err != nil {
		return nil, r.st, err
	}
	err = r.timed(ctx, "compact", func(ctx context.Context) error {
		var err error
		g, err = r.compact(ctx, frags)
		return err
	})
	if err != nil {
		return nil, r.st, err
	}
	return g, r.st, nil
}

func (r *run) timed(ctx context.Context, stage string, fn func(context.Context) error) error {
	t0 := time.Now()
	err := fn(ctx)
	metrics.StageDurationSeconds.WithLabelValues(stage).Observe(time.Since(t0).Seconds())
	if err == nil {
		r.logger.Info().Str("stage", stage).Dur("elapsed", time.Since(t0)).Msg("[Run] stage finished")
	}
	return err
}

func (r *run) poolOptions() buckets.Options {
	return buckets.Options{
		Dir:            r.dir,
		Buckets:        r.cfg.Buckets,
		QueueCapacity:  r.cfg.QueueCapacity,
		BatchRecords:   r.cfg.BatchRecords,
		SpillThreshold: r.cfg.SpillThreshold,
		Retry:          r.cfg.RetryPolicy(),
		Logger:         r.logger,
	}
}

func (r *run) open() error {
	var err error
	opts := r.poolOptions()
	if r.raw, err = buckets.New[partition.Entry]("kmer", partition.EntryCodec{}, opts); err != nil {
		return err
	}
	if r.distinct, err = buckets.New[dedup.Record]("distinct", dedup.RecordCodec{}, opts); err != nil {
		return err
	}
	if r.overlaps, err = buckets.New[links.Overlap]("overlap", links.OverlapCodec{}, opts); err != nil {
		return err
	}
	if r.lks, err = buckets.New[links.Link]("link", links.LinkCodec{}, opts); err != nil {
		return err
	}
	r.edges, err = buckets.New[links.Edge]("edge", links.EdgeCodec{}, opts)
	return err
}

func closePool[T any](p *buckets.Pool[T]) error {
	if p == nil {
		return nil
	}
	return p.Close()
}

func (r *run) close() error {
	var first error
	for _, err := range []error{
		closePool(r.raw), closePool(r.distinct), closePool(r.overlaps), closePool(r.lks), closePool(r.edges),
	} {
		if err != nil && first == nil {
			first = errs.Wrap(err, errs.KindFatalIO, "pipeline.Run", "spill storage not removed")
		}
	}
	if err := os.RemoveAll(r.dir); err != nil && first == nil {
		first = errs.Wrap(errors.Wrapf(err, "remove %s", r.dir), errs.KindFatalIO, "pipeline.Run", "spill storage not removed")
	}
	return first
}

func (r *run) spills() {
	r.st.Spills, r.st.SpillBytes = 0, 0
	for _, s := range []interface{ Spills() (int64, int64) }{r.raw, r.distinct, r.overlaps, r.lks, r.edges} {
		f, b := s.Spills()
		r.st.Spills += f
		r.st.SpillBytes += b
	}
}

func (r *run) partition(ctx context.Context) error {
	ps, err := partition.Run(ctx, partition.Options{
		K:       r.cfg.K,
		M:       r.cfg.MinimizerLen,
		Hasher:  r.hasher,
		Workers: r.cfg.ScanWorkers,
		Logger:  r.logger,
	}, r.src, r.raw)
	r.st.Sequences, r.st.ShortSequences = ps.Sequences, ps.ShortSequences
	r.st.Kmers, r.st.SkippedWindows = ps.Kmers, ps.SkippedWindows
	if serr := r.raw.Seal(); err == nil {
		err = serr
	}
	return err
}

// eachBucket runs fn on every bucket with bounded parallelism, in
// size-balanced order.
func (r *run) eachBucket(ctx context.Context, stage string, sizes []int64, fn func(ctx context.Context, bucket int) error) error {
	tr := newTracker(stage, len(sizes), r.cfg.ProgressInterval, r.logger, r.progress)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Workers)
	for _, b := range balanced(sizes) {
		b := b
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, b); err != nil {
				return err
			}
			metrics.BucketsProcessedTotal.WithLabelValues(stage).Inc()
			tr.step(b)
			return nil
		})
	}
	return eg.Wait()
}

func sizesOf[T any](p *buckets.Pool[T]) []int64 {
	sizes := make([]int64, p.Buckets())
	for i := range sizes {
		sizes[i] = p.Size(i)
	}
	return sizes
}

func (r *run) dedup(ctx context.Context) error {
	em := links.Emitter{K: r.cfg.K, Hasher: r.hasher, Overlaps: r.cfg.Buckets}
	err := r.eachBucket(ctx, "dedup", sizesOf(r.raw), func(ctx context.Context, b int) error {
		entries, err := r.raw.Load(ctx, b)
		if err != nil {
			return err
		}
		if err := r.raw.Drop(b); err != nil {
			return errs.Wrap(err, errs.KindFatalIO, "pipeline.dedup", "releasing bucket").WithBucket(b)
		}
		recs, ds, err := dedup.Bucket(ctx, b, entries, r.dict, r.cfg.MinAbundance)
		if err != nil {
			return err
		}
		dw, ow := r.distinct.NewWriter(), r.overlaps.NewWriter()
		for _, rec := range recs {
			if err := dw.Write(ctx, b, rec); err != nil {
				return err
			}
		}
		if err := em.Emit(ctx, b, recs, ow); err != nil {
			return err
		}
		if err := dw.Flush(ctx); err != nil {
			return err
		}
		if err := ow.Flush(ctx); err != nil {
			return err
		}
		r.mu.Lock()
		r.st.Distinct += ds.Distinct
		r.st.Dropped += ds.Dropped
		r.mu.Unlock()
		return nil
	})
	r.st.Colors = r.dict.Len()
	metrics.ColorSetsInterned.Set(float64(r.st.Colors))
	if err != nil {
		return err
	}
	if err := r.distinct.Seal(); err != nil {
		return err
	}
	return r.overlaps.Seal()
}

func (r *run) resolve(ctx context.Context) error {
	err := r.eachBucket(ctx, "links", sizesOf(r.overlaps), func(ctx context.Context, b int) error {
		ovs, err := r.overlaps.Load(ctx, b)
		if err != nil {
			return err
		}
		if err := r.overlaps.Drop(b); err != nil {
			return errs.Wrap(err, errs.KindFatalIO, "pipeline.resolve", "releasing bucket").WithBucket(b)
		}
		lw, ew := r.lks.NewWriter(), r.edges.NewWriter()
		ls, err := links.Resolve(ctx, b, ovs, lw, ew)
		if err != nil {
			return err
		}
		if err := lw.Flush(ctx); err != nil {
			return err
		}
		if err := ew.Flush(ctx); err != nil {
			return err
		}
		r.mu.Lock()
		r.st.Joins += ls.Joins
		r.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}
	if err := r.lks.Seal(); err != nil {
		return err
	}
	return r.edges.Seal()
}

func (r *run) unitigs(ctx context.Context) ([]unitig.Fragment, error) {
	perBucket := make([][]unitig.Fragment, r.cfg.Buckets)
	err := r.eachBucket(ctx, "unitig", sizesOf(r.distinct), func(ctx context.Context, b int) error {
		recs, err := r.distinct.Load(ctx, b)
		if err != nil {
			return err
		}
		for i := 1; i < len(recs); i++ {
			if recs[i-1].Kmer >= recs[i].Kmer {
				return errs.Invariant("pipeline.unitigs", b, recs[i].Kmer, "distinct records out of order")
			}
		}
		lks, err := r.lks.Load(ctx, b)
		if err != nil {
			return err
		}
		frags, _, err := unitig.Build(ctx, b, r.cfg.K, recs, lks)
		if err != nil {
			return err
		}
		if err := r.distinct.Drop(b); err != nil {
			return errs.Wrap(err, errs.KindFatalIO, "pipeline.unitigs", "releasing bucket").WithBucket(b)
		}
		if err := r.lks.Drop(b); err != nil {
			return errs.Wrap(err, errs.KindFatalIO, "pipeline.unitigs", "releasing bucket").WithBucket(b)
		}
		perBucket[b] = frags
		return nil
	})
	if err != nil {
		return nil, err
	}
	var frags []unitig.Fragment
	for _, fs := range perBucket {
		frags = append(frags, fs...)
	}
	return frags, nil
}

func (r *run) compact(ctx context.Context, frags []unitig.Fragment) (*graph.Graph, error) {
	var edges []links.Edge
	for b := 0; b < r.edges.Buckets(); b++ {
		es, err := r.edges.Load(ctx, b)
		if err != nil {
			return nil, err
		}
		edges = append(edges, es...)
		if err := r.edges.Drop(b); err != nil {
			return nil, errs.Wrap(err, errs.KindFatalIO, "pipeline.compact", "releasing bucket").WithBucket(b)
		}
	}
	r.spills()
	g, cs, err := compact.Run(ctx, compact.Options{K: r.cfg.K, Logger: r.logger}, frags, edges, r.dict)
	r.st.Fragments, r.st.Unitigs, r.st.Circular = cs.Fragments, cs.Unitigs, cs.Circular
	r.st.ForcedClosed, r.st.Links = cs.ForcedClosed, cs.Links
	return g, err
}
