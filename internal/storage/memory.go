package storage

import (
	"sort"
	"sync"

	"github.com/chatwatch/chatwatch/internal/types"
)

// MemoryStore is an in-process Store for development and tests. Data does
// not survive a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	daily map[string]map[string]types.DailyStats // agentID -> date -> row
	meta  map[string]types.AgentMeta
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		daily: make(map[string]map[string]types.DailyStats),
		meta:  make(map[string]types.AgentMeta),
	}
}

func (s *MemoryStore) PutDaily(stats types.DailyStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.daily[stats.AgentID] == nil {
		s.daily[stats.AgentID] = make(map[string]types.DailyStats)
	}
	s.daily[stats.AgentID][stats.Date] = stats
	return nil
}

func (s *MemoryStore) MergeDaily(stats types.DailyStats) (types.DailyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.daily[stats.AgentID] == nil {
		s.daily[stats.AgentID] = make(map[string]types.DailyStats)
	}
	existing, ok := s.daily[stats.AgentID][stats.Date]
	if !ok {
		existing = types.DailyStats{AgentID: stats.AgentID, Date: stats.Date}
	}
	merged := existing.MergeMax(stats)
	s.daily[stats.AgentID][stats.Date] = merged
	return merged, nil
}

func (s *MemoryStore) GetDaily(agentID, date string) (*types.DailyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.daily[agentID][date]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *MemoryStore) QueryAgentRange(agentID, from, to string) ([]types.DailyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []types.DailyStats
	for date, row := range s.daily[agentID] {
		if date >= from && date <= to {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows, nil
}

func (s *MemoryStore) QueryDate(date string) ([]types.DailyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []types.DailyStats
	for _, dates := range s.daily {
		if row, ok := dates[date]; ok {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].AgentID < rows[j].AgentID })
	return rows, nil
}

func (s *MemoryStore) DeleteDate(date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for agentID, dates := range s.daily {
		if _, ok := dates[date]; ok {
			delete(dates, date)
			deleted++
		}
		if len(dates) == 0 {
			delete(s.daily, agentID)
		}
	}
	return deleted, nil
}

func (s *MemoryStore) DeleteAgent(agentID, scopeDate string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dates, ok := s.daily[agentID]
	if !ok {
		if scopeDate == "" {
			delete(s.meta, agentID)
		}
		return 0, nil
	}

	if scopeDate != "" {
		if _, ok := dates[scopeDate]; !ok {
			return 0, nil
		}
		delete(dates, scopeDate)
		if len(dates) == 0 {
			delete(s.daily, agentID)
		}
		return 1, nil
	}

	deleted := len(dates)
	delete(s.daily, agentID)
	delete(s.meta, agentID)
	return deleted, nil
}

func (s *MemoryStore) GetMeta(agentID string) (*types.AgentMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.meta[agentID]
	if !ok {
		return nil, nil
	}
	return &meta, nil
}

func (s *MemoryStore) ListMeta() ([]types.AgentMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metas := make([]types.AgentMeta, 0, len(s.meta))
	for _, meta := range s.meta {
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].AgentID < metas[j].AgentID })
	return metas, nil
}

func (s *MemoryStore) SetDisplayName(agentID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.meta[agentID]
	meta.AgentID = agentID
	meta.DisplayName = name
	s.meta[agentID] = meta
	return nil
}

func (s *MemoryStore) SetVisibility(agentID string, hidden, manual bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.meta[agentID]
	meta.AgentID = agentID
	meta.Hidden = hidden
	meta.ManualHidden = manual
	s.meta[agentID] = meta
	return nil
}

func (s *MemoryStore) ClearManualVisibility() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := 0
	for agentID, meta := range s.meta {
		if meta.ManualHidden {
			meta.Hidden = false
			meta.ManualHidden = false
			s.meta[agentID] = meta
			cleared++
		}
	}
	return cleared, nil
}
