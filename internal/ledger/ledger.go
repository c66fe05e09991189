// Package ledger owns the agent's daily aggregate counters and the
// valid-reply rule.
package ledger

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/types"
)

// DefaultReplyThreshold is the minimum wait for a closed session to count
// as a valid reply.
const DefaultReplyThreshold = 500 * time.Millisecond

// Snapshot is a consistent copy of the ledger's counters.
type Snapshot struct {
	Date           string
	TodayConsult   int
	TodayReplied   int
	TotalReplyTime time.Duration
}

// AvgReplySeconds is the whole-second average reply duration, zero when
// nothing has been replied to yet.
func (s Snapshot) AvgReplySeconds() int {
	if s.TodayReplied == 0 {
		return 0
	}
	return int(s.TotalReplyTime.Seconds()) / s.TodayReplied
}

// Ledger accumulates consultation and reply counters for the current
// calendar day in the collector's canonical timezone.
type Ledger struct {
	mu        sync.Mutex
	loc       *time.Location
	threshold time.Duration
	date      string
	consult   int
	replied   int
	replyTime time.Duration
	flush     func(Snapshot)
	logger    zerolog.Logger
}

// New creates a ledger anchored to the current date in loc.
func New(loc *time.Location, threshold time.Duration, logger zerolog.Logger) *Ledger {
	if threshold <= 0 {
		threshold = DefaultReplyThreshold
	}
	return &Ledger{
		loc:       loc,
		threshold: threshold,
		date:      types.DateString(time.Now(), loc),
		logger:    logger.With().Str("component", "ledger").Logger(),
	}
}

// SetFlushFunc installs the best-effort report flush invoked once per day
// rollover with the outgoing day's totals.
func (l *Ledger) SetFlushFunc(f func(Snapshot)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flush = f
}

// CustomerArrived counts n new consultations. Arrival counts are
// independent of whether the customer is later counted as replied.
func (l *Ledger) CustomerArrived(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consult += n
}

// CustomerClosed records one finished session. Sessions shorter than the
// reply threshold are discarded as noise.
func (l *Ledger) CustomerClosed(shop string, wait time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if wait < l.threshold {
		return
	}
	l.replied++
	l.replyTime += wait
	l.logger.Debug().Str("shop", shop).Dur("wait", wait).Msg("valid reply recorded")
}

// Restore overwrites the counters from a collector bootstrap. Data for a
// different date than today is ignored and the ledger starts from zero.
func (l *Ledger) Restore(now time.Time, date string, consult, replied int, replySeconds float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := types.DateString(now, l.loc)
	if date != today {
		l.logger.Info().Str("dataDate", date).Str("today", today).Msg("stale bootstrap data, starting from zero")
		l.date = today
		l.consult, l.replied, l.replyTime = 0, 0, 0
		return
	}
	l.date = date
	l.consult = consult
	l.replied = replied
	l.replyTime = time.Duration(replySeconds * float64(time.Second))
	l.logger.Info().Int("consult", consult).Int("replied", replied).Msg("counters restored from collector")
}

// CheckRollover resets the counters when the calendar day has changed,
// after handing the outgoing day's totals to the flush callback. The flush
// is best-effort; its failure never blocks the reset. Returns true when a
// rollover happened.
func (l *Ledger) CheckRollover(now time.Time) bool {
	l.mu.Lock()
	today := types.DateString(now, l.loc)
	if l.date == today {
		l.mu.Unlock()
		return false
	}

	outgoing := Snapshot{Date: l.date, TodayConsult: l.consult, TodayReplied: l.replied, TotalReplyTime: l.replyTime}
	l.date = today
	l.consult, l.replied, l.replyTime = 0, 0, 0
	flush := l.flush
	l.mu.Unlock()

	l.logger.Info().Str("from", outgoing.Date).Str("to", today).Msg("day rollover, counters reset")
	if flush != nil && (outgoing.TodayConsult > 0 || outgoing.TodayReplied > 0) {
		flush(outgoing)
	}
	return true
}

// Snapshot returns a consistent copy of the counters.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{Date: l.date, TodayConsult: l.consult, TodayReplied: l.replied, TotalReplyTime: l.replyTime}
}
