package message

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/metrics"
	"github.com/chatwatch/chatwatch/internal/types"
)

// DefaultMaxWait bounds how long a poll blocks before answering empty.
const DefaultMaxWait = 30 * time.Second

// Broker queues operator messages per agent and delivers them over a
// bounded long-poll. Messages are never persisted; a restart drops
// undelivered ones.
type Broker struct {
	mu      sync.Mutex
	queues  map[string][]types.Message
	wake    map[string]chan struct{}
	maxWait time.Duration
	logger  zerolog.Logger
}

// NewBroker creates a message broker.
func NewBroker(maxWait time.Duration, logger zerolog.Logger) *Broker {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Broker{
		queues:  make(map[string][]types.Message),
		wake:    make(map[string]chan struct{}),
		maxWait: maxWait,
		logger:  logger.With().Str("component", "broker").Logger(),
	}
}

// Send queues a message for an agent and wakes its pending poll, if any.
func (b *Broker) Send(agentID, body string) types.Message {
	msg := types.Message{
		ID:     uuid.New().String(),
		Body:   body,
		SentAt: float64(time.Now().UnixMilli()) / 1000,
	}

	b.mu.Lock()
	b.queues[agentID] = append(b.queues[agentID], msg)
	wake := b.wakeChan(agentID)
	b.mu.Unlock()

	// Non-blocking: capacity 1 means one pending wakeup is enough.
	select {
	case wake <- struct{}{}:
	default:
	}

	metrics.Get().RecordMessageQueued()
	b.logger.Debug().Str("agent_id", agentID).Str("id", msg.ID).Msg("message queued")
	return msg
}

// Poll returns the agent's queued messages, blocking up to the broker's
// max wait for the first one. An expired wait returns an empty slice.
func (b *Broker) Poll(ctx context.Context, agentID string) []types.Message {
	if msgs := b.drain(agentID); len(msgs) > 0 {
		metrics.Get().RecordMessagesDelivered(len(msgs))
		return msgs
	}

	b.mu.Lock()
	wake := b.wakeChan(agentID)
	b.mu.Unlock()

	timer := time.NewTimer(b.maxWait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return []types.Message{}
	case <-timer.C:
		return []types.Message{}
	case <-wake:
		msgs := b.drain(agentID)
		metrics.Get().RecordMessagesDelivered(len(msgs))
		return msgs
	}
}

// Pending returns the number of queued messages for an agent.
func (b *Broker) Pending(agentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[agentID])
}

func (b *Broker) drain(agentID string) []types.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := b.queues[agentID]
	if len(msgs) == 0 {
		return nil
	}
	delete(b.queues, agentID)
	return msgs
}

// wakeChan returns the agent's wake channel. Callers must hold b.mu.
func (b *Broker) wakeChan(agentID string) chan struct{} {
	ch, ok := b.wake[agentID]
	if !ok {
		ch = make(chan struct{}, 1)
		b.wake[agentID] = ch
	}
	return ch
}
