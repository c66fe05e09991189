package cache

import (
	"testing"
	"time"

	"github.com/chatwatch/chatwatch/internal/types"
)

func statusAt(id string, seen time.Time) types.AgentStatus {
	return types.AgentStatus{
		AgentID:      id,
		Date:         "2025-06-01",
		TodayConsult: 5,
		AvgReply:     3,
		LastSeen:     seen,
	}
}

func TestGetRespectsOnlineWindow(t *testing.T) {
	tracker := NewActiveTracker(60 * time.Second)
	now := time.Now()

	tracker.Update(statusAt("agent-1", now.Add(-30*time.Second)))
	tracker.Update(statusAt("agent-2", now.Add(-90*time.Second)))

	if _, ok := tracker.Get("agent-1", now); !ok {
		t.Error("agent-1 reported 30s ago, expected online")
	}
	if _, ok := tracker.Get("agent-2", now); ok {
		t.Error("agent-2 reported 90s ago, expected offline")
	}
	if _, ok := tracker.Get("agent-3", now); ok {
		t.Error("unknown agent expected offline")
	}
}

func TestGetAllFiltersStaleEntries(t *testing.T) {
	tracker := NewActiveTracker(60 * time.Second)
	now := time.Now()

	tracker.Update(statusAt("agent-1", now))
	tracker.Update(statusAt("agent-2", now.Add(-2*time.Minute)))

	all := tracker.GetAll(now)
	if len(all) != 1 || all[0].AgentID != "agent-1" {
		t.Errorf("expected only agent-1, got %v", all)
	}
}

func TestSweepRemovesOnlyStale(t *testing.T) {
	tracker := NewActiveTracker(60 * time.Second)
	now := time.Now()

	tracker.Update(statusAt("agent-1", now))
	tracker.Update(statusAt("agent-2", now.Add(-2*time.Minute)))
	tracker.Update(statusAt("agent-3", now.Add(-3*time.Minute)))

	removed := tracker.Sweep(now)
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if tracker.Count() != 1 {
		t.Errorf("expected 1 remaining, got %d", tracker.Count())
	}
}

func TestResetDayZeroesCountersInPlace(t *testing.T) {
	tracker := NewActiveTracker(60 * time.Second)
	now := time.Now()

	busy := statusAt("agent-1", now)
	busy.TotalCustomers = 3
	busy.ShopCount = 2
	busy.ShopLines = []string{"alpha-4s"}
	tracker.Update(busy)
	tracker.Update(statusAt("agent-2", now))

	if reset := tracker.ResetDay("2025-06-02"); reset != 2 {
		t.Errorf("expected 2 reset, got %d", reset)
	}
	if tracker.Count() != 2 {
		t.Errorf("entries must survive the rollover, got %d", tracker.Count())
	}

	got, ok := tracker.Get("agent-1", now)
	if !ok {
		t.Fatal("agent-1 should still be online after rollover")
	}
	if got.Date != "2025-06-02" {
		t.Errorf("expected date 2025-06-02, got %s", got.Date)
	}
	if got.TodayConsult != 0 || got.AvgReply != 0 {
		t.Errorf("expected zeroed day counters, got consult=%d avg=%d", got.TodayConsult, got.AvgReply)
	}
	if got.TotalCustomers != 3 || got.ShopCount != 2 || len(got.ShopLines) != 1 {
		t.Errorf("live customer/shop fields must be preserved, got %+v", got)
	}
}

func TestClearTodayZeroesCountersButKeepsEntries(t *testing.T) {
	tracker := NewActiveTracker(60 * time.Second)
	now := time.Now()

	tracker.Update(statusAt("agent-1", now))
	tracker.ClearToday()

	got, ok := tracker.Get("agent-1", now)
	if !ok {
		t.Fatal("agent-1 should survive ClearToday")
	}
	if got.TodayConsult != 0 || got.AvgReply != 0 {
		t.Errorf("expected zeroed counters, got consult=%d avg=%d", got.TodayConsult, got.AvgReply)
	}
}

func TestUpdateOverwritesPreviousReport(t *testing.T) {
	tracker := NewActiveTracker(60 * time.Second)
	now := time.Now()

	tracker.Update(statusAt("agent-1", now.Add(-time.Second)))
	fresh := statusAt("agent-1", now)
	fresh.TodayConsult = 9
	tracker.Update(fresh)

	got, _ := tracker.Get("agent-1", now)
	if got.TodayConsult != 9 {
		t.Errorf("expected latest report to win, got consult=%d", got.TodayConsult)
	}
	if tracker.Count() != 1 {
		t.Errorf("expected single entry, got %d", tracker.Count())
	}
}
