package rollover

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/cache"
	"github.com/chatwatch/chatwatch/internal/storage"
	"github.com/chatwatch/chatwatch/internal/types"
)

var testLoc = time.FixedZone("UTC+8", 8*3600)

func newTestWatcher(tracker *cache.ActiveTracker) *Watcher {
	return NewWatcher(testLoc, tracker, time.Second, zerolog.New(&bytes.Buffer{}))
}

func TestCheckFiresOnDateChange(t *testing.T) {
	tracker := cache.NewActiveTracker(time.Minute)
	watcher := newTestWatcher(tracker)

	now := time.Date(2025, 6, 1, 23, 59, 55, 0, testLoc)
	watcher.SetClock(func() time.Time { return now })
	watcher.lastDate = types.DateString(now, testLoc)

	tracker.Update(types.AgentStatus{
		AgentID:        "a1",
		Date:           "2025-06-01",
		TotalCustomers: 3,
		TodayConsult:   17,
		AvgReply:       4,
		LastSeen:       now,
	})

	if watcher.Check() {
		t.Fatal("no rollover expected before midnight")
	}

	now = time.Date(2025, 6, 2, 0, 0, 5, 0, testLoc)
	if !watcher.Check() {
		t.Fatal("expected rollover after midnight")
	}

	got, ok := tracker.Get("a1", now)
	if !ok {
		t.Fatal("agent must stay in the active index across rollover")
	}
	if got.Date != "2025-06-02" || got.TodayConsult != 0 || got.AvgReply != 0 {
		t.Errorf("expected zeroed counters on the new date, got %+v", got)
	}
	if got.TotalCustomers != 3 {
		t.Errorf("live fields must survive rollover, got customers=%d", got.TotalCustomers)
	}

	select {
	case date := <-watcher.Tasks():
		if date != "2025-06-02" {
			t.Errorf("expected cleanup task for the new date, got %s", date)
		}
	default:
		t.Error("expected a queued cleanup task")
	}

	// Same day again: no second rollover.
	if watcher.Check() {
		t.Error("rollover must fire once per date change")
	}
}

func TestCheckUsesBusinessTimezone(t *testing.T) {
	tracker := cache.NewActiveTracker(time.Minute)
	watcher := newTestWatcher(tracker)

	// 17:00 UTC on June 1 is already 01:00 June 2 in UTC+8.
	now := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	watcher.SetClock(func() time.Time { return now })
	watcher.lastDate = "2025-06-01"

	now = time.Date(2025, 6, 1, 17, 0, 0, 0, time.UTC)
	if !watcher.Check() {
		t.Fatal("expected rollover at UTC+8 midnight despite UTC date")
	}
	if watcher.lastDate != "2025-06-02" {
		t.Errorf("expected new date 2025-06-02, got %s", watcher.lastDate)
	}
}

func TestCleanDateScrubsNewDayAndFlags(t *testing.T) {
	store := storage.NewMemoryStore()
	cleaner := NewCleaner(store, zerolog.New(&bytes.Buffer{}))

	// Rows written under the new date by a skewed client, plus a real row
	// for the closed day.
	store.PutDaily(types.DailyStats{AgentID: "a1", Date: "2025-06-02", TotalConsultations: 3})
	store.PutDaily(types.DailyStats{AgentID: "a2", Date: "2025-06-02", TotalConsultations: 1})
	store.PutDaily(types.DailyStats{AgentID: "a1", Date: "2025-06-01", TotalConsultations: 42})
	store.SetVisibility("a1", true, true)
	store.SetVisibility("a2", true, false)

	if err := cleaner.CleanDate("2025-06-02"); err != nil {
		t.Fatal(err)
	}

	if row, _ := store.GetDaily("a1", "2025-06-02"); row != nil {
		t.Error("new-date rows should be deleted")
	}
	if row, _ := store.GetDaily("a1", "2025-06-01"); row == nil || row.TotalConsultations != 42 {
		t.Error("closed-day rows must survive cleanup")
	}

	m1, _ := store.GetMeta("a1")
	if m1.Hidden || m1.ManualHidden {
		t.Error("manual hidden flag should be cleared")
	}
	m2, _ := store.GetMeta("a2")
	if !m2.Hidden {
		t.Error("automatic hidden flag must survive cleanup")
	}
}

func TestCleanDateIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	cleaner := NewCleaner(store, zerolog.New(&bytes.Buffer{}))

	store.PutDaily(types.DailyStats{AgentID: "a1", Date: "2025-06-02", TotalConsultations: 3})

	if err := cleaner.CleanDate("2025-06-02"); err != nil {
		t.Fatal(err)
	}
	if err := cleaner.CleanDate("2025-06-02"); err != nil {
		t.Errorf("second cleanup must be a no-op, got %v", err)
	}
}
