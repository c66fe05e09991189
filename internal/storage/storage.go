package storage

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/types"
)

// Store is the durable persistence interface for daily stats rows and
// per-agent metadata. All implementations must keep MergeDaily monotone:
// a merged row's totals never decrease.
type Store interface {
	// PutDaily overwrites the row for (stats.AgentID, stats.Date).
	PutDaily(stats types.DailyStats) error

	// MergeDaily folds stats into the existing row field-wise (maximum per
	// counter) and returns the merged result. Creates the row if absent.
	MergeDaily(stats types.DailyStats) (types.DailyStats, error)

	// GetDaily returns the row for (agentID, date), or nil if absent.
	GetDaily(agentID, date string) (*types.DailyStats, error)

	// QueryAgentRange returns rows for one agent with from <= Date <= to,
	// ordered by date ascending.
	QueryAgentRange(agentID, from, to string) ([]types.DailyStats, error)

	// QueryDate returns all agents' rows for one date.
	QueryDate(date string) ([]types.DailyStats, error)

	// DeleteDate removes every row for the given date and reports how many
	// were removed. Deleting an absent date is not an error.
	DeleteDate(date string) (int, error)

	// DeleteAgent removes rows for one agent. An empty scopeDate removes
	// all dates plus the agent's metadata; otherwise only that date's row.
	DeleteAgent(agentID, scopeDate string) (int, error)

	// GetMeta returns an agent's metadata, or nil if none is stored.
	GetMeta(agentID string) (*types.AgentMeta, error)

	// ListMeta returns all stored agent metadata.
	ListMeta() ([]types.AgentMeta, error)

	// SetDisplayName stores an operator-assigned name for an agent.
	SetDisplayName(agentID, name string) error

	// SetVisibility stores an agent's hidden flag. manual marks the change
	// as operator-made so rollover can tell it apart from automatic hiding.
	SetVisibility(agentID string, hidden, manual bool) error

	// ClearManualVisibility unhides every manually hidden agent and reports
	// how many flags were cleared. Runs on day rollover.
	ClearManualVisibility() (int, error)
}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, logger zerolog.Logger) (Store, error) {
	cfg := LoadDynamoConfig()

	switch cfg.Mode {
	case DynamoModeLocal, DynamoModeAWS:
		return NewDynamoDBStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("DynamoDB disabled (DYNAMO_MODE=memory), using in-memory store")
		return NewMemoryStore(), nil
	}
}
