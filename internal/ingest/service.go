package ingest

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/cache"
	"github.com/chatwatch/chatwatch/internal/metrics"
	"github.com/chatwatch/chatwatch/internal/storage"
	"github.com/chatwatch/chatwatch/internal/types"
)

const (
	// DefaultStaleAge rejects reports whose send timestamp is older than
	// this, keeping replayed traffic out of live state.
	DefaultStaleAge = 10 * time.Minute

	// DefaultCrossoverGrace accepts a report for the previous date if it
	// was sent this close to midnight. Covers the agent flushing its last
	// counters just as the day turns.
	DefaultCrossoverGrace = 30 * time.Second
)

// Service validates incoming reports and applies them to the active index
// and durable storage.
type Service struct {
	store    storage.Store
	tracker  *cache.ActiveTracker
	loc      *time.Location
	staleAge time.Duration
	grace    time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates an ingestion service. now is the clock used for all
// date arithmetic; pass nil for the wall clock.
func NewService(store storage.Store, tracker *cache.ActiveTracker, loc *time.Location, staleAge, grace time.Duration, logger zerolog.Logger) *Service {
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}
	if grace <= 0 {
		grace = DefaultCrossoverGrace
	}
	return &Service{
		store:    store,
		tracker:  tracker,
		loc:      loc,
		staleAge: staleAge,
		grace:    grace,
		now:      time.Now,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// Today returns the current calendar date in the business timezone.
func (s *Service) Today() string {
	return types.DateString(s.now(), s.loc)
}

// Process validates one report and applies it. Accepted reports always
// update the active index; storage failures are logged and counted but do
// not fail the request, since the next report carries the same totals.
func (s *Service) Process(report *types.Report) types.ReportResponse {
	m := metrics.Get()
	m.RecordReportReceived()

	now := s.now()
	today := types.DateString(now, s.loc)

	// A missing or malformed report date means the agent's clock is not
	// trustworthy; fall back to the server's date.
	reportDate := report.ReportDate
	if reportDate == "" {
		reportDate = today
	} else if _, err := types.ParseDate(reportDate, s.loc); err != nil {
		s.logger.Warn().
			Str("agent_id", report.AgentID).
			Str("report_date", report.ReportDate).
			Msg("malformed report date, using server date")
		reportDate = today
	}

	age := float64(now.UnixMilli())/1000 - report.SentAt
	if report.SentAt > 0 && age > s.staleAge.Seconds() {
		m.RecordReportRejected(types.ReasonStaleTimestamp)
		s.logger.Warn().
			Str("agent_id", report.AgentID).
			Float64("age_seconds", age).
			Msg("report rejected, stale timestamp")
		return types.ReportResponse{Status: types.StatusRejected, Reason: types.ReasonStaleTimestamp}
	}

	// A report for a past date is only the agent's midnight flush. Anything
	// older is a replay of a closed day and must not resurrect it.
	if reportDate < today {
		if report.SentAt <= 0 || age > s.grace.Seconds() {
			m.RecordReportRejected(types.ReasonStaleDate)
			s.logger.Warn().
				Str("agent_id", report.AgentID).
				Str("report_date", reportDate).
				Str("today", today).
				Msg("report rejected, stale date")
			return types.ReportResponse{Status: types.StatusRejected, Reason: types.ReasonStaleDate}
		}
	}

	// The average is always derived server-side from the raw counters,
	// truncated to whole seconds like the agent's own snapshot.
	avg := 0
	if report.TodayReplied > 0 {
		avg = int(report.TotalReplyTime / float64(report.TodayReplied))
	}

	s.tracker.Update(types.AgentStatus{
		AgentID:        report.AgentID,
		Date:           reportDate,
		TotalCustomers: report.TotalCustomers,
		ShopCount:      report.ShopCount,
		ShopLines:      report.ShopLines,
		TodayConsult:   report.TodayConsult,
		AvgReply:       avg,
		LastSeen:       now,
		Host:           report.Host,
	})

	row := types.DailyStats{
		AgentID:            report.AgentID,
		Date:               reportDate,
		TotalConsultations: report.TodayConsult,
		RepliedCount:       report.TodayReplied,
		TotalReplyTime:     report.TotalReplyTime,
		AvgReply:           float64(avg),
	}

	var err error
	if reportDate == today {
		// The agent owns the current day; its counters are authoritative
		// even when they shrank after a local reset.
		err = s.store.PutDaily(row)
	} else {
		// Closed or future days only ever grow.
		_, err = s.store.MergeDaily(row)
	}
	if err != nil {
		m.RecordStorageError()
		s.logger.Error().Err(err).
			Str("agent_id", report.AgentID).
			Str("date", reportDate).
			Msg("failed to persist report")
	}

	m.RecordReportAccepted()
	return types.ReportResponse{Status: types.StatusOK}
}

// Roster merges the active index with today's durable rows and stored
// metadata. Agents with a durable row but no recent report show offline.
func (s *Service) Roster() ([]types.RosterEntry, error) {
	now := s.now()
	today := types.DateString(now, s.loc)

	online := s.tracker.GetAll(now)
	onlineByID := make(map[string]types.AgentStatus, len(online))
	for _, a := range online {
		onlineByID[a.AgentID] = a
	}
	metrics.Get().UpdateOnlineAgents(len(online))

	durable, err := s.store.QueryDate(today)
	if err != nil {
		return nil, fmt.Errorf("failed to load today's rows: %w", err)
	}

	metas, err := s.store.ListMeta()
	if err != nil {
		return nil, fmt.Errorf("failed to load agent meta: %w", err)
	}
	metaByID := make(map[string]types.AgentMeta, len(metas))
	for _, m := range metas {
		metaByID[m.AgentID] = m
	}

	entries := make([]types.RosterEntry, 0, len(online)+len(durable))
	seen := make(map[string]bool, len(online))

	for _, a := range online {
		entries = append(entries, s.rosterEntry(a.AgentID, a.TotalCustomers, a.ShopCount, a.ShopLines, a.TodayConsult, a.AvgReply, true, metaByID))
		seen[a.AgentID] = true
	}
	for _, row := range durable {
		if seen[row.AgentID] {
			continue
		}
		entries = append(entries, s.rosterEntry(row.AgentID, 0, 0, nil, row.TotalConsultations, int(row.AvgReply), false, metaByID))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].AgentID < entries[j].AgentID })
	return entries, nil
}

func (s *Service) rosterEntry(agentID string, customers, shops int, lines []string, consult, avg int, online bool, metaByID map[string]types.AgentMeta) types.RosterEntry {
	displayName := agentID
	hidden := false
	if meta, ok := metaByID[agentID]; ok {
		if meta.DisplayName != "" {
			displayName = meta.DisplayName
		}
		hidden = meta.Hidden
	}
	if lines == nil {
		lines = []string{}
	}
	return types.RosterEntry{
		AgentID:        agentID,
		DisplayName:    displayName,
		TotalCustomers: customers,
		ShopCount:      shops,
		ShopLines:      lines,
		TodayConsult:   consult,
		AvgReply:       avg,
		Online:         online,
		Hidden:         hidden,
	}
}

// TodayStats returns the durable counters for the current day, for agents
// resuming after a restart. Absent rows come back as zeros.
func (s *Service) TodayStats(agentID string) (types.TodayStats, error) {
	today := types.DateString(s.now(), s.loc)

	row, err := s.store.GetDaily(agentID, today)
	if err != nil {
		return types.TodayStats{}, fmt.Errorf("failed to load today's row: %w", err)
	}
	if row == nil {
		return types.TodayStats{DataDate: today}, nil
	}
	return types.TodayStats{
		DataDate:       today,
		TodayConsult:   row.TotalConsultations,
		RepliedCount:   row.RepliedCount,
		TotalReplyTime: row.TotalReplyTime,
		AvgReply:       int(row.AvgReply),
	}, nil
}

// History returns stored rows for a named range: day, yesterday, week,
// month, or custom with explicit from/to dates.
func (s *Service) History(agentID, rangeName, from, to string) ([]types.HistoryRecord, error) {
	now := s.now().In(s.loc)
	today := types.DateString(now, s.loc)

	switch rangeName {
	case "", "day", "today":
		from, to = today, today
	case "yesterday":
		y := types.DateString(now.AddDate(0, 0, -1), s.loc)
		from, to = y, y
	case "week":
		from, to = types.DateString(now.AddDate(0, 0, -6), s.loc), today
	case "month":
		from, to = types.DateString(now.AddDate(0, 0, -29), s.loc), today
	case "custom":
		if _, err := types.ParseDate(from, s.loc); err != nil {
			return nil, fmt.Errorf("invalid from date %q", from)
		}
		if _, err := types.ParseDate(to, s.loc); err != nil {
			return nil, fmt.Errorf("invalid to date %q", to)
		}
	default:
		return nil, fmt.Errorf("unknown range %q", rangeName)
	}

	rows, err := s.store.QueryAgentRange(agentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	records := make([]types.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, types.HistoryRecord{
			Date:         row.Date,
			TotalConsult: row.TotalConsultations,
			AvgReply:     int(row.AvgReply),
		})
	}
	return records, nil
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}
