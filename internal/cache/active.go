package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/types"
)

// DefaultOnlineWindow is how long an agent stays online after its last
// accepted report.
const DefaultOnlineWindow = 60 * time.Second

// ActiveTracker maintains the in-memory index of agents that reported
// recently. It is rebuilt from scratch after a restart; durable counters
// live in storage.
type ActiveTracker struct {
	agents       map[string]*types.AgentStatus // agentID -> last accepted report
	onlineWindow time.Duration
	mu           sync.RWMutex
}

// NewActiveTracker creates an active-agent tracker.
func NewActiveTracker(onlineWindow time.Duration) *ActiveTracker {
	if onlineWindow <= 0 {
		onlineWindow = DefaultOnlineWindow
	}
	return &ActiveTracker{
		agents:       make(map[string]*types.AgentStatus),
		onlineWindow: onlineWindow,
	}
}

// Update records the latest accepted report for an agent.
func (t *ActiveTracker) Update(status types.AgentStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agents[status.AgentID] = &status
}

// Get returns the last accepted report for an agent, if it is still within
// the online window.
func (t *ActiveTracker) Get(agentID string, now time.Time) (types.AgentStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	agent, exists := t.agents[agentID]
	if !exists || now.Sub(agent.LastSeen) > t.onlineWindow {
		return types.AgentStatus{}, false
	}
	return *agent, true
}

// GetAll returns all agents currently within the online window.
func (t *ActiveTracker) GetAll(now time.Time) []types.AgentStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	states := make([]types.AgentStatus, 0, len(t.agents))
	for _, agent := range t.agents {
		if now.Sub(agent.LastSeen) <= t.onlineWindow {
			states = append(states, *agent)
		}
	}
	return states
}

// Remove drops one agent from the index.
func (t *ActiveTracker) Remove(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.agents, agentID)
}

// ResetDay moves every tracked agent onto the new date with zeroed day
// counters. Entries and their live customer/shop fields are preserved so
// agents stay visible across midnight; only the stale yesterday numbers go.
func (t *ActiveTracker) ResetDay(newDate string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, agent := range t.agents {
		agent.Date = newDate
		agent.TodayConsult = 0
		agent.AvgReply = 0
	}
	return len(t.agents)
}

// ClearToday zeroes the day counters of every tracked agent but keeps the
// entries so online agents stay visible with fresh zeros.
func (t *ActiveTracker) ClearToday() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, agent := range t.agents {
		agent.TodayConsult = 0
		agent.AvgReply = 0
	}
}

// Sweep removes entries older than the online window and returns how many
// were dropped.
func (t *ActiveTracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, agent := range t.agents {
		if now.Sub(agent.LastSeen) > t.onlineWindow {
			delete(t.agents, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs the stale-entry sweep on interval until ctx is
// cancelled.
func (t *ActiveTracker) StartSweeper(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := logger.With().Str("component", "sweeper").Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := t.Sweep(time.Now()); removed > 0 {
				log.Debug().Int("removed", removed).Msg("swept offline agents")
			}
		}
	}
}

// Count returns the number of tracked entries, including ones past the
// online window that have not been swept yet.
func (t *ActiveTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.agents)
}
