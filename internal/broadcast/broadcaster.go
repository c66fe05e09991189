package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/ingest"
	"github.com/chatwatch/chatwatch/internal/ws"
)

// Broadcaster periodically pushes the merged roster to connected dashboards
type Broadcaster struct {
	service  *ingest.Service
	hub      *ws.Hub
	interval time.Duration
	logger   zerolog.Logger
}

// NewBroadcaster creates a new broadcaster
func NewBroadcaster(service *ingest.Service, hub *ws.Hub, interval time.Duration, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		service:  service,
		hub:      hub,
		interval: interval,
		logger:   logger.With().Str("component", "broadcast").Logger(),
	}
}

// Start begins broadcasting roster snapshots until the context is cancelled
func (b *Broadcaster) Start(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info().Dur("interval", b.interval).Msg("broadcaster started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("broadcaster stopped")
			return

		case <-ticker.C:
			// No dashboards connected, skip the storage round trip
			if b.hub.ClientCount() == 0 {
				continue
			}

			roster, err := b.service.Roster()
			if err != nil {
				b.logger.Error().Err(err).Msg("failed to build roster")
				continue
			}

			data, err := json.Marshal(roster)
			if err != nil {
				b.logger.Error().Err(err).Msg("failed to marshal roster")
				continue
			}

			b.hub.Broadcast(data)

			b.logger.Debug().
				Int("agents", len(roster)).
				Int("clients", b.hub.ClientCount()).
				Msg("roster broadcasted")
		}
	}
}
