// Package orchestrator drains the pending stream set, scores each stream and writes
// the result back. Any number of workers may run against the same store.
package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andresmejia3/rotisserie/internal/store"
	"github.com/andresmejia3/rotisserie/internal/types"
)

// DefaultIdleBackoff is how long a worker sleeps when the pending set is empty.
const DefaultIdleBackoff = 3 * time.Second

// State of a worker loop.
type State int32

const (
	Idle State = iota
	Processing
)

func (s State) String() string {
	if s == Processing {
		return "processing"
	}
	return "idle"
}

// Grabber captures a crop from a named stream. extraction.Source satisfies it.
type Grabber interface {
	Grab(ctx context.Context, channel string, crop types.CropSpec) ([]byte, error)
}

// Submitter turns a capture into a players-remaining reading.
type Submitter interface {
	Submit(ctx context.Context, image []byte) (types.ClassificationResult, error)
}

// Config tunes a worker. Zero values take defaults.
type Config struct {
	IdleBackoff time.Duration
	Crop        types.CropSpec
	// MaxStoreRetry caps a single backoff interval after store failures.
	MaxStoreRetry time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleBackoff <= 0 {
		c.IdleBackoff = DefaultIdleBackoff
	}
	if c.Crop == (types.CropSpec{}) {
		c.Crop = types.PUBGWorkerCrop
	}
	if c.MaxStoreRetry <= 0 {
		c.MaxStoreRetry = 30 * time.Second
	}
	return c
}

// Worker runs the pop, grab, submit, upsert cycle.
type Worker struct {
	ID     int
	queue  store.Queue
	grab   Grabber
	submit Submitter
	cfg    Config
	log    *zap.SugaredLogger

	state  atomic.Int32
	scored atomic.Int64
	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// NewWorker builds a worker.
func NewWorker(id int, q store.Queue, g Grabber, s Submitter, cfg Config, log *zap.SugaredLogger) *Worker {
	return &Worker{
		ID:     id,
		queue:  q,
		grab:   g,
		submit: s,
		cfg:    cfg.withDefaults(),
		log:    log.With("worker", id),
		sleep:  sleepCtx,
	}
}

// State reports what the loop is doing right now.
func (w *Worker) State() State { return State(w.state.Load()) }

// Scored counts results written to the store.
func (w *Worker) Scored() int64 { return w.scored.Load() }

// Run loops until ctx is cancelled. Store outages are retried with exponential backoff;
// per-stream failures are logged and the stream is dropped.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Infow("worker started", "idle_backoff", w.cfg.IdleBackoff)
	defer w.log.Infow("worker stopped", "scored", w.Scored())

	for ctx.Err() == nil {
		worked, err := w.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.log.Warnw("step failed", "error", err)
			w.sleep(ctx, w.cfg.IdleBackoff)
			continue
		}
		if !worked {
			w.sleep(ctx, w.cfg.IdleBackoff)
		}
	}
	return ctx.Err()
}

// Step processes at most one stream. It reports whether a name was popped.
func (w *Worker) Step(ctx context.Context) (bool, error) {
	var name string
	var ok bool
	err := w.retry(ctx, "pop", func() error {
		var err error
		name, ok, err = w.queue.Pop(ctx)
		return err
	})
	if err != nil {
		return false, err
	}
	if !ok {
		w.state.Store(int32(Idle))
		return false, nil
	}

	w.state.Store(int32(Processing))
	defer w.state.Store(int32(Idle))

	image, err := w.grab.Grab(ctx, name, w.cfg.Crop)
	if err != nil {
		w.log.Infow("dropping stream", "stream", name, "error", err)
		return true, nil
	}

	res, err := w.submit.Submit(ctx, image)
	if err != nil {
		w.log.Warnw("extraction failed, dropping stream", "stream", name, "error", err)
		return true, nil
	}

	err = w.retry(ctx, "upsert", func() error {
		return w.queue.Upsert(ctx, name, float64(res.Value))
	})
	if err != nil {
		return true, err
	}
	w.scored.Add(1)
	w.log.Debugw("scored stream", "stream", name, "alive", res.Value, "probability", res.Confidence)
	return true, nil
}

// retry repeats op while it fails with store.ErrUnavailable. Other errors are returned as-is.
func (w *Worker) retry(ctx context.Context, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = w.cfg.MaxStoreRetry
	b.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !errors.Is(err, store.ErrUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		w.log.Warnw("store unavailable, retrying", "op", what, "in", next, "error", err)
	})
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// RunPool runs n workers built by newWorker until ctx is cancelled.
func RunPool(ctx context.Context, n int, newWorker func(id int) *Worker) error {
	if n < 1 {
		n = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		w := newWorker(i)
		g.Go(func() error {
			if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
