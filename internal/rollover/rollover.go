package rollover

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/cache"
	"github.com/chatwatch/chatwatch/internal/metrics"
	"github.com/chatwatch/chatwatch/internal/storage"
	"github.com/chatwatch/chatwatch/internal/types"
)

// DefaultPollInterval is how often the watcher compares the calendar date.
const DefaultPollInterval = 10 * time.Second

// Watcher detects the calendar date changing in the business timezone. On
// change it zeroes the active index's day counters in place and queues the
// new date for durable cleanup. Detection and cleanup are split so a slow
// store can never delay the in-memory reset.
type Watcher struct {
	loc      *time.Location
	tracker  *cache.ActiveTracker
	interval time.Duration
	tasks    chan string
	lastDate string
	now      func() time.Time
	logger   zerolog.Logger
}

// NewWatcher creates a rollover watcher.
func NewWatcher(loc *time.Location, tracker *cache.ActiveTracker, interval time.Duration, logger zerolog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		loc:      loc,
		tracker:  tracker,
		interval: interval,
		tasks:    make(chan string, 4),
		now:      time.Now,
		logger:   logger.With().Str("component", "rollover").Logger(),
	}
}

// Tasks returns the channel of new dates awaiting durable cleanup.
func (w *Watcher) Tasks() <-chan string {
	return w.tasks
}

// Run polls for a date change until ctx is cancelled. The reference date is
// captured at start so a watcher launched just before midnight still fires.
func (w *Watcher) Run(ctx context.Context) {
	w.lastDate = types.DateString(w.now(), w.loc)
	w.logger.Info().Str("date", w.lastDate).Dur("interval", w.interval).Msg("rollover watcher started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("rollover watcher stopped")
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check compares the current date against the last seen one and fires the
// rollover when they differ. Returns whether a rollover happened.
func (w *Watcher) Check() bool {
	date := types.DateString(w.now(), w.loc)
	if date == w.lastDate {
		return false
	}

	previous := w.lastDate
	w.lastDate = date

	reset := w.tracker.ResetDay(date)
	w.logger.Info().
		Str("previous", previous).
		Str("date", date).
		Int("reset", reset).
		Msg("day rolled over")

	// Non-blocking: if the cleanup queue is full the date is dropped and
	// the same cleanup is safe to run by hand later.
	select {
	case w.tasks <- date:
	default:
		metrics.Get().RecordRolloverTaskDropped()
		w.logger.Warn().Str("date", date).Msg("cleanup queue full, task dropped")
	}
	return true
}

// SetClock overrides the watcher clock. Test hook.
func (w *Watcher) SetClock(now func() time.Time) {
	w.now = now
}

// Cleaner consumes rollover tasks and scrubs durable state for the new
// day: rows already written under the new date by skewed clients are
// removed, and manual hidden flags from the previous day are cleared.
// Every step is idempotent.
type Cleaner struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewCleaner creates a rollover cleaner.
func NewCleaner(store storage.Store, logger zerolog.Logger) *Cleaner {
	return &Cleaner{
		store:  store,
		logger: logger.With().Str("component", "rollover-cleaner").Logger(),
	}
}

// Run consumes tasks until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context, tasks <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case date := <-tasks:
			if err := c.CleanDate(date); err != nil {
				metrics.Get().RecordRolloverError()
				c.logger.Error().Err(err).Str("date", date).Msg("rollover cleanup failed")
			}
		}
	}
}

// CleanDate performs the durable cleanup for one new date.
func (c *Cleaner) CleanDate(date string) error {
	deleted, err := c.store.DeleteDate(date)
	if err != nil {
		return err
	}

	cleared, err := c.store.ClearManualVisibility()
	if err != nil {
		return err
	}

	metrics.Get().RecordRollover(deleted)
	c.logger.Info().
		Str("date", date).
		Int("rows_deleted", deleted).
		Int("flags_cleared", cleared).
		Msg("rollover cleanup complete")
	return nil
}
