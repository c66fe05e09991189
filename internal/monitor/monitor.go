package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/ledger"
	"github.com/chatwatch/chatwatch/internal/tracker"
	"github.com/chatwatch/chatwatch/internal/window"
)

// DefaultScanInterval is how often the desktop is sampled.
const DefaultScanInterval = 100 * time.Millisecond

// Monitor drives the agent's scan loop: sample the window snapshotter and
// feed the result to the tracking engine. A failed snapshot skips the tick
// entirely; an empty successful snapshot is a real observation and clears
// tracked state.
type Monitor struct {
	snapshotter window.Snapshotter
	engine      *tracker.Engine
	ledger      *ledger.Ledger
	interval    time.Duration
	logger      zerolog.Logger
}

func New(snap window.Snapshotter, engine *tracker.Engine, led *ledger.Ledger, interval time.Duration, logger zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &Monitor{
		snapshotter: snap,
		engine:      engine,
		ledger:      led,
		interval:    interval,
		logger:      logger.With().Str("component", "monitor").Logger(),
	}
}

// Run samples on the scan interval until ctx is cancelled. The day rollover
// check runs before each tick so a new day's first observation never lands
// on the old day's counters.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.interval).Msg("monitor started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("monitor stopped")
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	now := time.Now()
	if m.ledger.CheckRollover(now) {
		m.logger.Info().Msg("day rollover")
	}

	windows, err := m.snapshotter.Snapshot()
	if err != nil {
		m.logger.Debug().Err(err).Msg("snapshot unavailable, skipping tick")
		return
	}
	m.engine.Tick(windows, now)
}
