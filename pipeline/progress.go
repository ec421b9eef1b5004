package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Progress is reported after every finished bucket task.
type Progress struct {
	Stage string
	Done  int
	Total int
}

// tracker logs bucket completion for one stage, at most once per interval,
// with an estimate of the time left.
type tracker struct {
	mu       sync.Mutex
	stage    string
	total    int
	done     int
	start    time.Time
	last     time.Time
	interval time.Duration
	logger   zerolog.Logger
	notify   func(Progress)
}

func newTracker(stage string, total int, interval time.Duration, logger zerolog.Logger, notify func(Progress)) *tracker {
	now := time.Now()
	return &tracker{stage: stage, total: total, start: now, last: now, interval: interval, logger: logger, notify: notify}
}

func (t *tracker) step(bucket int) {
	t.mu.Lock()
	t.done++
	done, now := t.done, time.Now()
	emit := done == t.total || now.Sub(t.last) >= t.interval
	if emit {
		t.last = now
	}
	t.mu.Unlock()

	if t.notify != nil {
		t.notify(Progress{Stage: t.stage, Done: done, Total: t.total})
	}
	if !emit {
		return
	}
	elapsed := now.Sub(t.start)
	eta := time.Duration(float64(elapsed) / float64(done) * float64(t.total-done))
	t.logger.Info().
		Str("stage", t.stage).
		Int("bucket", bucket).
		Int("done", done).
		Int("total", t.total).
		Dur("elapsed", elapsed).
		Dur("eta", eta.Round(time.Second)).
		Msg("[Run] stage progress")
}

// balanced orders bucket ids largest first, alternating with the smallest
// left, so a worker pool does not end on a tail of large buckets.
func balanced(sizes []int64) []int {
	ids := make([]int, len(sizes))
	for i := range ids {
		ids[i] = i
	}
	sort.SliceStable(ids, func(i, j int) bool { return sizes[ids[i]] > sizes[ids[j]] })
	order := make([]int, 0, len(ids))
	for lo, hi := 0, len(ids)-1; lo <= hi; lo++ {
		order = append(order, ids[lo])
		if lo != hi {
			order = append(order, ids[hi])
		}
		hi--
	}
	return order
}
