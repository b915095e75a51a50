// Package feeder periodically pushes candidate channels into the pending set.
package feeder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DefaultInterval matches the listing refresh of the web front end.
const DefaultInterval = 30 * time.Second

// Source lists candidate channels.
type Source interface {
	Channels(ctx context.Context) ([]string, error)
}

// Static is a fixed channel list.
type Static []string

func (s Static) Channels(context.Context) ([]string, error) { return s, nil }

// Pusher is the part of store.Queue the feeder needs.
type Pusher interface {
	Push(ctx context.Context, names ...string) (int, error)
}

// Filter keeps whitelisted channels (when a whitelist is set) and drops blacklisted ones.
type Filter struct {
	Whitelist []string
	Blacklist []string
}

// ParseList splits a space or comma separated channel list.
func ParseList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\n' || r == '\t' })
	return lo.Uniq(fields)
}

// Apply filters and de-duplicates names, keeping first-seen order.
func (f Filter) Apply(names []string) []string {
	names = lo.Uniq(lo.Compact(names))
	if len(f.Whitelist) > 0 {
		names = lo.Filter(names, func(n string, _ int) bool { return lo.Contains(f.Whitelist, n) })
	}
	return lo.Reject(names, func(n string, _ int) bool { return lo.Contains(f.Blacklist, n) })
}

type Feeder struct {
	source   Source
	filter   Filter
	queue    Pusher
	interval time.Duration
	log      *zap.SugaredLogger
}

func New(source Source, filter Filter, queue Pusher, interval time.Duration, log *zap.SugaredLogger) *Feeder {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Feeder{source: source, filter: filter, queue: queue, interval: interval, log: log}
}

// FeedOnce lists, filters and pushes. It returns how many names were newly queued.
func (f *Feeder) FeedOnce(ctx context.Context) (int, error) {
	names, err := f.source.Channels(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing channels: %w", err)
	}
	names = f.filter.Apply(names)
	if len(names) == 0 {
		return 0, nil
	}
	added, err := f.queue.Push(ctx, names...)
	if err != nil {
		return 0, fmt.Errorf("queueing channels: %w", err)
	}
	f.log.Infow("queued channels", "candidates", len(names), "new", added)
	return added, nil
}

// Run feeds immediately and then every interval until ctx is cancelled.
func (f *Feeder) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(f.interval),
		gocron.NewTask(func() {
			if _, err := f.FeedOnce(ctx); err != nil {
				f.log.Warnw("feed failed", "error", err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		scheduler.Shutdown()
		return err
	}

	scheduler.Start()
	<-ctx.Done()
	if err := scheduler.Shutdown(); err != nil {
		return err
	}
	return ctx.Err()
}
