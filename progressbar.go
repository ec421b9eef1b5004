package main

import (
	"io"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/mudesheng/cdbg/pipeline"
)

// stageBars shows one bar per pipeline stage, counting finished buckets.
type stageBars struct {
	mu    sync.Mutex
	pbs   *mpb.Progress
	bar   *mpb.Bar
	stage string
	done  int
	last  time.Time
}

func newStageBars(w io.Writer) *stageBars {
	return &stageBars{pbs: mpb.New(mpb.WithWidth(40), mpb.WithOutput(w))}
}

func (b *stageBars) update(p pipeline.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.Stage != b.stage {
		b.complete()
		name := p.Stage + ": "
		b.bar = b.pbs.AddBar(int64(p.Total),
			mpb.PrependDecorators(
				decor.Name(name, decor.WC{W: len(name), C: decor.DindentRight}),
				decor.Name("", decor.WCSyncSpaceR),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
				decor.EwmaETA(decor.ET_STYLE_GO, 10),
				decor.OnComplete(decor.Name(""), ". done"),
			),
		)
		b.stage, b.done, b.last = p.Stage, 0, time.Now()
	}
	if p.Done > b.done {
		now := time.Now()
		b.bar.EwmaIncrBy(p.Done-b.done, now.Sub(b.last))
		b.done, b.last = p.Done, now
	}
}

func (b *stageBars) complete() {
	if b.bar != nil && !b.bar.Completed() {
		b.bar.SetTotal(-1, true)
	}
}

// finish completes the current bar, or drops it on failure, and waits for
// the last render.
func (b *stageBars) finish(ok bool) {
	b.mu.Lock()
	if ok {
		b.complete()
	} else if b.bar != nil {
		b.bar.Abort(false)
	}
	b.mu.Unlock()
	b.pbs.Wait()
}
