package reporter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/chatwatch/chatwatch/internal/ledger"
	"github.com/chatwatch/chatwatch/internal/tracker"
	"github.com/chatwatch/chatwatch/internal/types"
	"github.com/chatwatch/chatwatch/pkg/client"
)

// DefaultInterval is how often the reporter pushes state to the collector.
const DefaultInterval = 500 * time.Millisecond

// Reporter periodically pushes the agent's live overview and day counters to
// the collector. Send failures are logged and retried on the next cycle; the
// collector's merge rules make duplicate delivery harmless.
type Reporter struct {
	client   *client.Client
	engine   *tracker.Engine
	ledger   *ledger.Ledger
	agentID  string
	interval time.Duration

	connected atomic.Bool
	hostInfo  *types.HostInfo
	logger    zerolog.Logger
}

// New creates a reporter. Host identity is captured once at startup.
func New(c *client.Client, engine *tracker.Engine, led *ledger.Ledger, agentID string, interval time.Duration, logger zerolog.Logger) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r := &Reporter{
		client:   c,
		engine:   engine,
		ledger:   led,
		agentID:  agentID,
		interval: interval,
		logger:   logger.With().Str("component", "reporter").Logger(),
	}
	if info, err := host.Info(); err == nil {
		r.hostInfo = &types.HostInfo{
			Hostname: info.Hostname,
			OS:       info.OS,
			Platform: info.Platform,
		}
	} else {
		r.logger.Warn().Err(err).Msg("could not read host info")
	}
	return r
}

// Connected reports whether the last push reached the collector.
func (r *Reporter) Connected() bool {
	return r.connected.Load()
}

// Bootstrap re-seeds the local day counters from the collector's durable
// row for the current day. A failure is not fatal; the agent simply starts
// counting from zero and the collector's max-merge reconciles later days.
func (r *Reporter) Bootstrap(ctx context.Context) error {
	stats, err := r.client.TodayStats(ctx, r.agentID)
	if err != nil {
		return err
	}
	r.ledger.Restore(time.Now(), stats.DataDate, stats.TodayConsult, stats.RepliedCount, stats.TotalReplyTime)
	r.logger.Info().
		Str("date", stats.DataDate).
		Int("consult", stats.TodayConsult).
		Msg("restored day counters from collector")
	return nil
}

// Run pushes reports on the configured interval until ctx is cancelled,
// then sends one final report so the collector sees the last counters.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("reporter started")
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			r.SendNow(flushCtx)
			cancel()
			r.logger.Info().Msg("reporter stopped")
			return
		case <-ticker.C:
			r.SendNow(ctx)
		}
	}
}

// SendNow builds a report from the current overview and counters and pushes
// it immediately.
func (r *Reporter) SendNow(ctx context.Context) {
	now := time.Now()
	ov := r.engine.Overview(now)
	snap := r.ledger.Snapshot()

	report := &types.Report{
		AgentID:        r.agentID,
		ReportDate:     snap.Date,
		SentAt:         float64(now.UnixMilli()) / 1000,
		TotalCustomers: ov.TotalCustomers,
		ShopCount:      ov.ShopCount,
		ShopLines:      ov.Lines,
		TodayConsult:   snap.TodayConsult,
		TodayReplied:   snap.TodayReplied,
		TotalReplyTime: snap.TotalReplyTime.Seconds(),
		AvgReply:       snap.AvgReplySeconds(),
		Online:         true,
		Host:           r.hostInfo,
	}

	r.send(ctx, report)
}

// FlushSnapshot pushes a final report for a day whose counters are about to
// be reset locally. Live-window fields are zeroed; only the counters matter.
// Registered as the ledger's flush hook.
func (r *Reporter) FlushSnapshot(snap ledger.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report := &types.Report{
		AgentID:        r.agentID,
		ReportDate:     snap.Date,
		SentAt:         float64(time.Now().UnixMilli()) / 1000,
		TodayConsult:   snap.TodayConsult,
		TodayReplied:   snap.TodayReplied,
		TotalReplyTime: snap.TotalReplyTime.Seconds(),
		AvgReply:       snap.AvgReplySeconds(),
		Online:         true,
		Host:           r.hostInfo,
	}

	r.logger.Info().Str("date", snap.Date).Msg("flushing closed day")
	r.send(ctx, report)
}

func (r *Reporter) send(ctx context.Context, report *types.Report) {
	resp, err := r.client.Report(ctx, report)
	if err != nil {
		if r.connected.Swap(false) {
			r.logger.Warn().Err(err).Msg("collector unreachable")
		}
		return
	}
	if !r.connected.Swap(true) {
		r.logger.Info().Msg("collector reachable")
	}
	if resp.Status == types.StatusRejected {
		r.logger.Warn().
			Str("reason", resp.Reason).
			Str("date", report.ReportDate).
			Msg("report rejected")
	}
}

// MessageLoop long-polls the collector for operator messages and hands each
// one to handle. Poll errors back off for 5 seconds.
func (r *Reporter) MessageLoop(ctx context.Context, handle func(types.Message)) {
	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := r.client.PollMessages(ctx, r.agentID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Debug().Err(err).Msg("message poll failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, msg := range messages {
			r.logger.Info().Str("id", msg.ID).Msg("message received")
			handle(msg)
		}
	}
}
