// Package buckets is the run-scoped, disk-backed record store the pipeline
// stages hand data through. A Pool owns a fixed number of buckets; each
// bucket has a bounded queue of encoded batches and one spiller goroutine
// that keeps the bucket in memory until it passes the spill threshold and
// then writes it out as zstd chunk files.
package buckets

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/metrics"
)

// Codec encodes a record of type T into exactly Size() bytes.
type Codec[T any] interface {
	Size() int
	Put(dst []byte, v T)
	Get(src []byte) T
}

type Options struct {
	// Dir is created if missing and removed by Close.
	Dir     string
	Buckets int
	// QueueCapacity is the number of batches a bucket queue holds before
	// producers block.
	QueueCapacity int
	// BatchRecords is the number of records a producer buffers per bucket
	// before handing the batch to the queue.
	BatchRecords int
	// SpillThreshold is the number of encoded bytes a bucket keeps in memory
	// before it spills.
	SpillThreshold int
	Retry          RetryPolicy
	Logger         zerolog.Logger
}

type bucket struct {
	queue   chan []byte
	mem     []byte
	files   []string
	records atomic.Int64
}

// Pool is safe for concurrent Writers until Seal; after Seal buckets are
// read with Load and released with Drop.
type Pool[T any] struct {
	name    string
	codec   Codec[T]
	opts    Options
	buckets []*bucket
	batches sync.Pool

	// ctx ends spill retries once the pool is closed
	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	sealOnce sync.Once
	failOnce sync.Once
	failed   chan struct{}
	err      error

	spills     atomic.Int64
	spillBytes atomic.Int64

	create func(name string) (io.WriteCloser, error)
}

// New starts one spiller goroutine per bucket.
func New[T any](name string, codec Codec[T], opts Options) (*Pool[T], error) {
	if opts.Buckets < 1 || opts.QueueCapacity < 1 || opts.BatchRecords < 1 || opts.SpillThreshold < 1 {
		return nil, errs.Configuration("buckets.New", "pool %s: buckets, queue capacity, batch records and spill threshold must be positive", name)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errs.Wrap(errors.Wrapf(err, "creating spill dir %s", opts.Dir), errs.KindFatalIO, "buckets.New", "spill storage unavailable")
	}
	p := &Pool[T]{
		name:    name,
		codec:   codec,
		opts:    opts,
		buckets: make([]*bucket, opts.Buckets),
		failed:  make(chan struct{}),
		create:  func(fn string) (io.WriteCloser, error) { return os.Create(fn) },
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	batchBytes := opts.BatchRecords * codec.Size()
	p.batches.New = func() interface{} {
		return make([]byte, 0, batchBytes)
	}
	for i := range p.buckets {
		p.buckets[i] = &bucket{queue: make(chan []byte, opts.QueueCapacity)}
	}
	p.wg.Add(len(p.buckets))
	for i := range p.buckets {
		go p.spiller(i)
	}
	return p, nil
}

func (p *Pool[T]) Name() string { return p.name }

// Buckets is the fixed bucket count.
func (p *Pool[T]) Buckets() int { return len(p.buckets) }

func (p *Pool[T]) fail(err error) {
	p.failOnce.Do(func() {
		p.err = err
		close(p.failed)
	})
}

func (p *Pool[T]) getBatch() []byte {
	return p.batches.Get().([]byte)[:0]
}

func (p *Pool[T]) putBatch(b []byte) {
	p.batches.Put(b[:0])
}

func (p *Pool[T]) spiller(id int) {
	defer p.wg.Done()
	b := p.buckets[id]
	seq := 0
	for batch := range b.queue {
		select {
		case <-p.failed:
			// keep draining so producers never block on a dead pool
			p.putBatch(batch)
			continue
		default:
		}
		b.mem = append(b.mem, batch...)
		b.records.Add(int64(len(batch) / p.codec.Size()))
		p.putBatch(batch)
		if len(b.mem) >= p.opts.SpillThreshold {
			if err := p.spill(id, seq); err != nil {
				p.fail(err)
				continue
			}
			seq++
		}
	}
}

func (p *Pool[T]) spill(id, seq int) error {
	b := p.buckets[id]
	fn := filepath.Join(p.opts.Dir, fmt.Sprintf("%s.%05d.%04d.zst", p.name, id, seq))
	policy := p.opts.Retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		metrics.SpillRetriesTotal.Inc()
		p.opts.Logger.Warn().Err(err).Str("pool", p.name).Int("bucket", id).Int("attempt", attempt).Msg("[spill] retrying")
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	err := retry(p.ctx, policy, func() error {
		return p.writeChunk(fn, b.mem)
	})
	if err != nil {
		os.Remove(fn)
		spillErr := errs.Wrap(err, errs.KindSpillIO, "spill", fmt.Sprintf("writing %s", fn)).WithBucket(id)
		return errs.Wrap(spillErr, errs.KindFatalIO, "spill", "spill retries exhausted").WithBucket(id)
	}
	metrics.BucketSpillsTotal.Inc()
	metrics.BucketSpillBytesTotal.Add(float64(len(b.mem)))
	p.spills.Add(1)
	p.spillBytes.Add(int64(len(b.mem)))
	b.files = append(b.files, fn)
	b.mem = b.mem[:0]
	return nil
}

func (p *Pool[T]) writeChunk(fn string, data []byte) error {
	outfp, err := p.create(fn)
	if err != nil {
		return errors.Wrapf(err, "create %s", fn)
	}
	zw, err := zstd.NewWriter(outfp, zstd.WithEncoderCRC(false), zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(1))
	if err != nil {
		outfp.Close()
		return errors.Wrapf(err, "zstd writer %s", fn)
	}
	if _, err = zw.Write(data); err != nil {
		zw.Close()
		outfp.Close()
		return errors.Wrapf(err, "write %s", fn)
	}
	if err = zw.Close(); err != nil {
		outfp.Close()
		return errors.Wrapf(err, "flush %s", fn)
	}
	return errors.Wrapf(outfp.Close(), "close %s", fn)
}

// Seal closes every queue and waits for the spillers. No Writer may be used
// afterwards. It returns the first spill failure.
func (p *Pool[T]) Seal() error {
	p.sealOnce.Do(func() {
		for _, b := range p.buckets {
			close(b.queue)
		}
	})
	p.wg.Wait()
	return p.Err()
}

// Err returns the first spill failure, if any.
func (p *Pool[T]) Err() error {
	select {
	case <-p.failed:
		return p.err
	default:
		return nil
	}
}

// Size is the number of records a sealed bucket holds.
func (p *Pool[T]) Size(id int) int64 {
	return p.buckets[id].records.Load()
}

// Total is the number of records in all buckets.
func (p *Pool[T]) Total() (n int64) {
	for _, b := range p.buckets {
		n += b.records.Load()
	}
	return n
}

// Spills reports the number of chunk files written and their raw size.
func (p *Pool[T]) Spills() (files, bytes int64) {
	return p.spills.Load(), p.spillBytes.Load()
}

// Load returns every record of a sealed bucket: spilled chunks first, in
// spill order, then the in-memory tail.
func (p *Pool[T]) Load(ctx context.Context, id int) ([]T, error) {
	b := p.buckets[id]
	out := make([]T, 0, b.records.Load())
	size := p.codec.Size()
	for _, fn := range b.files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		out, err = p.readChunk(fn, out)
		if err != nil {
			return nil, errs.Wrap(err, errs.KindFatalIO, "buckets.Load", "reading spilled bucket").WithBucket(id)
		}
	}
	for i := 0; i+size <= len(b.mem); i += size {
		out = append(out, p.codec.Get(b.mem[i:i+size]))
	}
	if int64(len(out)) != b.records.Load() {
		return nil, errs.Newf(errs.KindInvariant, "buckets.Load", "pool %s loaded %d records, want %d", p.name, len(out), b.records.Load()).WithBucket(id)
	}
	return out, nil
}

func (p *Pool[T]) readChunk(fn string, out []T) ([]T, error) {
	fp, err := os.Open(fn)
	if err != nil {
		return out, errors.Wrapf(err, "open %s", fn)
	}
	defer fp.Close()
	zr, err := zstd.NewReader(fp, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return out, errors.Wrapf(err, "zstd reader %s", fn)
	}
	defer zr.Close()
	br := bufio.NewReaderSize(zr, 1<<16)
	rec := make([]byte, p.codec.Size())
	for {
		if _, err := io.ReadFull(br, rec); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, errors.Wrapf(err, "decode %s", fn)
		}
		out = append(out, p.codec.Get(rec))
	}
}

// Drop releases a bucket's memory and spill files.
func (p *Pool[T]) Drop(id int) error {
	b := p.buckets[id]
	b.mem = nil
	var first error
	for _, fn := range b.files {
		if err := os.Remove(fn); err != nil && !os.IsNotExist(err) && first == nil {
			first = errors.Wrapf(err, "remove %s", fn)
		}
	}
	b.files = nil
	return first
}

// Close stops pending spill retries, seals the pool if needed and deletes
// all of its storage.
func (p *Pool[T]) Close() error {
	p.cancel()
	p.Seal()
	var first error
	for id := range p.buckets {
		if err := p.Drop(id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Writer batches records per bucket for one producer goroutine.
type Writer[T any] struct {
	p    *Pool[T]
	bufs [][]byte
	n    int64
}

func (p *Pool[T]) NewWriter() *Writer[T] {
	return &Writer[T]{p: p, bufs: make([][]byte, len(p.buckets))}
}

// Write appends v to bucket id. It blocks when the bucket queue is full.
func (w *Writer[T]) Write(ctx context.Context, id int, v T) error {
	buf := w.bufs[id]
	if buf == nil {
		buf = w.p.getBatch()
	}
	size := w.p.codec.Size()
	l := len(buf)
	buf = buf[:l+size]
	w.p.codec.Put(buf[l:], v)
	w.n++
	if len(buf) >= w.p.opts.BatchRecords*size {
		w.bufs[id] = nil
		return w.send(ctx, id, buf)
	}
	w.bufs[id] = buf
	return nil
}

func (w *Writer[T]) send(ctx context.Context, id int, buf []byte) error {
	select {
	case w.p.buckets[id].queue <- buf:
		return nil
	case <-w.p.failed:
		return w.p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush hands every partial batch to its queue.
func (w *Writer[T]) Flush(ctx context.Context) error {
	for id, buf := range w.bufs {
		if len(buf) == 0 {
			continue
		}
		w.bufs[id] = nil
		if err := w.send(ctx, id, buf); err != nil {
			return err
		}
	}
	return nil
}

// Written is the number of records passed to Write.
func (w *Writer[T]) Written() int64 { return w.n }
