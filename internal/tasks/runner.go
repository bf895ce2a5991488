package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/shared"
)

// Clock abstracts wall time and sleeping so a stage can be driven deterministically.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Halt asks a running stage to finish the row in flight and stop before the next one.
//
// Cancelling the stage context instead abandons the row in flight. A nil *Halt is never requested.
type Halt struct{ requested atomic.Bool }

// Request marks the stage for stopping. It is safe to call from any goroutine.
func (h *Halt) Request() {
	if h != nil {
		h.requested.Store(true)
	}
}

// Requested reports whether [Halt.Request] has been called.
func (h *Halt) Requested() bool { return h != nil && h.requested.Load() }

// Saver persists the full row set of a stage.
//
// [checkpoint.Store] implements it.
type Saver[T any] interface {
	Save(rows []T) error
	Path() string
}

// Report summarises one stage run.
type Report struct {
	Stage      models.Stage
	Processed  int            // Rows worked on in this run
	Succeeded  int            // Rows that reached a success state in this run
	Failed     int            // Rows that reached a failure state in this run
	Remaining  int            // Rows still needing work after the run
	Statuses   map[string]int // Status counts over the whole row set
	StopReason models.StopReason
	Elapsed    time.Duration
}

// Incomplete reports whether rows were left without a terminal status.
func (r Report) Incomplete() bool {
	return r.Remaining > 0
}

func (r Report) String() string {
	keys := make([]string, 0, len(r.Statuses))
	for k := range r.Statuses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, r.Statuses[k]))
	}
	return fmt.Sprintf("%s %s: processed %d (ok %d, failed %d), remaining %d [%s]",
		r.Stage, r.StopReason, r.Processed, r.Succeeded, r.Failed, r.Remaining, strings.Join(parts, " "))
}

// pacer owns the timing of a stage: randomized delays and the runtime ceiling.
type pacer struct {
	clock      Clock
	rng        *rand.Rand
	start      time.Time
	maxRuntime time.Duration
}

func newPacer(clock Clock, rng *rand.Rand, maxRuntime time.Duration) *pacer {
	if clock == nil {
		clock = SystemClock{}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	return &pacer{clock: clock, rng: rng, start: clock.Now(), maxRuntime: maxRuntime}
}

// between draws a duration uniformly from [lo, hi].
func (p *pacer) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(p.rng.Int64N(int64(hi-lo)+1))
}

func (p *pacer) wait(ctx context.Context, lo, hi time.Duration) error {
	return p.clock.Sleep(ctx, p.between(lo, hi))
}

func (p *pacer) elapsed() time.Duration {
	return p.clock.Now().Sub(p.start)
}

// expired reports whether the runtime ceiling has been reached. A zero ceiling never expires.
func (p *pacer) expired() bool {
	return p.maxRuntime > 0 && p.elapsed() >= p.maxRuntime
}

// retryPolicy bounds the calls a stage makes to an external capability.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
	timeout  time.Duration
}

// callWithRetry invokes fn with a per-call timeout.
//
// Transient failures are tried up to attempts times with exponential backoff; a filesystem failure
// is retried once whatever attempts says. Any other error is returned immediately. A done parent
// context stops the loop and its error is returned.
func callWithRetry[T any](
	ctx context.Context,
	clock Clock,
	policy retryPolicy,
	logger *log.Logger,
	op string,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	attempts := max(policy.attempts, 1)
	filesystemRetried := false

	for attempt := 1; ; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, policy.timeout)
		}
		v, err := fn(callCtx)
		cancel()
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, shared.ErrTimeout) {
			err = fmt.Errorf("%w: %s after %s: %w", shared.ErrTimeout, op, policy.timeout, err)
		}

		kind := shared.Classify(err)
		switch {
		case !kind.Retryable():
			return zero, err
		case kind == shared.KindFilesystem:
			// One retry of its own, outside the transient budget.
			if filesystemRetried {
				return zero, err
			}
			filesystemRetried = true
		case attempt >= attempts:
			return zero, err
		}

		delay := policy.backoff * time.Duration(1<<min(attempt-1, 16))
		logger.Warn("retrying", "op", op, "attempt", attempt, "backoff", delay, "err", err)
		if err := clock.Sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// persist saves rows, retrying once on a filesystem error.
func persist[T any](saver Saver[T], rows []T) error {
	err := saver.Save(rows)
	if err != nil && shared.Classify(err) == shared.KindFilesystem {
		err = saver.Save(rows)
	}
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", saver.Path(), err)
	}
	return nil
}
