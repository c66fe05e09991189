package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/ledger"
	"github.com/chatwatch/chatwatch/internal/tracker"
	"github.com/chatwatch/chatwatch/internal/types"
	"github.com/chatwatch/chatwatch/internal/window"
	"github.com/chatwatch/chatwatch/pkg/client"
)

var testLoc = time.FixedZone("UTC+8", 8*3600)

type collectorStub struct {
	mu      sync.Mutex
	reports []types.Report
	stats   types.TodayStats
}

func (c *collectorStub) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		var rep types.Report
		if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
			t.Errorf("bad report payload: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.reports = append(c.reports, rep)
		c.mu.Unlock()
		json.NewEncoder(w).Encode(types.ReportResponse{Status: types.StatusOK})
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(c.stats)
	})
	return mux
}

func (c *collectorStub) received() []types.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Report, len(c.reports))
	copy(out, c.reports)
	return out
}

func newTestReporter(t *testing.T, baseURL string) (*Reporter, *ledger.Ledger) {
	t.Helper()
	logger := zerolog.New(&bytes.Buffer{})
	led := ledger.New(testLoc, ledger.DefaultReplyThreshold, logger)
	engine := tracker.NewEngine(window.DefaultRules(), led, logger)
	c := client.NewClient(baseURL)
	return New(c, engine, led, "desk-7", time.Hour, logger), led
}

func TestSendNowDeliversCounters(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	rep, led := newTestReporter(t, srv.URL)
	led.CustomerArrived(3)
	led.CustomerClosed("alpha", 2*time.Second)

	rep.SendNow(context.Background())

	reports := stub.received()
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	got := reports[0]
	if got.AgentID != "desk-7" {
		t.Errorf("expected agent desk-7, got %s", got.AgentID)
	}
	if got.TodayConsult != 3 {
		t.Errorf("expected 3 consultations, got %d", got.TodayConsult)
	}
	if got.TodayReplied != 1 {
		t.Errorf("expected 1 replied, got %d", got.TodayReplied)
	}
	if !got.Online {
		t.Error("expected online report")
	}
	if got.SentAt == 0 {
		t.Error("expected sentAt to be set")
	}
	if !rep.Connected() {
		t.Error("expected reporter to be connected after successful send")
	}
}

func TestSendFailureFlipsConnected(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub.handler(t))

	rep, _ := newTestReporter(t, srv.URL)
	rep.SendNow(context.Background())
	if !rep.Connected() {
		t.Fatal("expected connected after first send")
	}

	srv.Close()
	rep.SendNow(context.Background())
	if rep.Connected() {
		t.Error("expected disconnected after collector went away")
	}
}

func TestBootstrapRestoresLedger(t *testing.T) {
	today := types.DateString(time.Now().In(testLoc), testLoc)
	stub := &collectorStub{stats: types.TodayStats{
		DataDate:       today,
		TodayConsult:   12,
		RepliedCount:   5,
		TotalReplyTime: 40,
	}}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	rep, led := newTestReporter(t, srv.URL)
	if err := rep.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	snap := led.Snapshot()
	if snap.TodayConsult != 12 {
		t.Errorf("expected 12 consultations restored, got %d", snap.TodayConsult)
	}
	if snap.TodayReplied != 5 {
		t.Errorf("expected 5 replied restored, got %d", snap.TodayReplied)
	}
	if snap.TotalReplyTime != 40*time.Second {
		t.Errorf("expected 40s reply time restored, got %v", snap.TotalReplyTime)
	}
}

func TestFlushSnapshotSendsClosedDay(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	rep, _ := newTestReporter(t, srv.URL)
	rep.FlushSnapshot(ledger.Snapshot{
		Date:           "2025-06-01",
		TodayConsult:   9,
		TodayReplied:   3,
		TotalReplyTime: 10,
	})

	reports := stub.received()
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	got := reports[0]
	if got.ReportDate != "2025-06-01" {
		t.Errorf("expected closed date 2025-06-01, got %s", got.ReportDate)
	}
	if got.TodayConsult != 9 {
		t.Errorf("expected 9 consultations, got %d", got.TodayConsult)
	}
	if got.TotalCustomers != 0 || got.ShopCount != 0 {
		t.Error("expected zeroed live fields on a closed-day flush")
	}
}
