package types

import "time"

// DateLayout is the wire format for calendar dates, always rendered in the
// collector's canonical timezone.
const DateLayout = "2006-01-02"

// DateString formats t as a calendar date in loc.
func DateString(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// ParseDate parses a wire date in loc. The zero time and an error are
// returned for malformed input.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

// Report is the payload an agent pushes to the collector on every report
// cycle. Counters are raw; the collector never trusts AvgReply.
type Report struct {
	AgentID        string    `json:"agentId"`
	ReportDate     string    `json:"reportDate,omitempty"` // agent's belief of the data's date
	SentAt         float64   `json:"sentAt"`               // unix seconds
	TotalCustomers int       `json:"totalCustomers"`
	ShopCount      int       `json:"shopCount"`
	ShopLines      []string  `json:"shopDisplayLines"`
	TodayConsult   int       `json:"todayConsult"`
	TodayReplied   int       `json:"todayReplied"`
	TotalReplyTime float64   `json:"totalReplyTime"` // seconds
	AvgReply       int       `json:"avgReply"`
	Online         bool      `json:"online"`
	Host           *HostInfo `json:"host,omitempty"`
}

// HostInfo identifies the machine an agent runs on.
type HostInfo struct {
	Hostname string `json:"hostname"`
	OS       string `json:"os,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// Report submission outcomes.
const (
	StatusOK       = "ok"
	StatusRejected = "rejected"

	ReasonStaleTimestamp = "stale_timestamp"
	ReasonStaleDate      = "stale_date"
)

// ReportResponse is the collector's accept/reject answer to a report.
type ReportResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// DailyStats is the durable per-(agent, date) row. Rows for past dates only
// ever grow (see MergeMax); the current day's row is last-writer-wins.
type DailyStats struct {
	AgentID            string  `json:"agentId" dynamodbav:"AgentID"`
	Date               string  `json:"date" dynamodbav:"Date"`
	TotalConsultations int     `json:"totalConsultations" dynamodbav:"TotalConsultations"`
	RepliedCount       int     `json:"repliedCount" dynamodbav:"RepliedCount"`
	TotalReplyTime     float64 `json:"totalReplyTime" dynamodbav:"TotalReplyTime"`
	AvgReply           float64 `json:"avgReply" dynamodbav:"AvgReply"`
}

// MergeMax returns the field-wise maximum of d and incoming, with the
// average recomputed from the merged totals. Used for historical rows so
// duplicate or reordered delivery can never regress a total.
func (d DailyStats) MergeMax(incoming DailyStats) DailyStats {
	merged := d
	if incoming.TotalConsultations > merged.TotalConsultations {
		merged.TotalConsultations = incoming.TotalConsultations
	}
	if incoming.RepliedCount > merged.RepliedCount {
		merged.RepliedCount = incoming.RepliedCount
	}
	if incoming.TotalReplyTime > merged.TotalReplyTime {
		merged.TotalReplyTime = incoming.TotalReplyTime
	}
	merged.AvgReply = 0
	if merged.RepliedCount > 0 {
		merged.AvgReply = merged.TotalReplyTime / float64(merged.RepliedCount)
	}
	return merged
}

// AgentStatus is one entry of the collector's in-memory active-agent index.
type AgentStatus struct {
	AgentID        string    `json:"agentId"`
	Date           string    `json:"date"`
	TotalCustomers int       `json:"totalCustomers"`
	ShopCount      int       `json:"shopCount"`
	ShopLines      []string  `json:"shopDisplayLines"`
	TodayConsult   int       `json:"todayConsult"`
	AvgReply       int       `json:"avgReply"`
	LastSeen       time.Time `json:"-"`
	Host           *HostInfo `json:"host,omitempty"`
}

// AgentMeta holds per-agent operator settings.
type AgentMeta struct {
	AgentID      string `json:"agentId" dynamodbav:"AgentID"`
	DisplayName  string `json:"displayName" dynamodbav:"DisplayName"`
	Hidden       bool   `json:"hidden" dynamodbav:"Hidden"`
	ManualHidden bool   `json:"manualHidden" dynamodbav:"ManualHidden"`
}

// RosterEntry is one agent in the liveness roster served to dashboards.
// Online agents come from the active index; silent agents with a durable
// current-day row appear with Online=false.
type RosterEntry struct {
	AgentID        string   `json:"agentId"`
	DisplayName    string   `json:"displayName"`
	TotalCustomers int      `json:"totalCustomers"`
	ShopCount      int      `json:"shopCount"`
	ShopLines      []string `json:"shopDisplayLines"`
	TodayConsult   int      `json:"todayConsult"`
	AvgReply       int      `json:"avgReply"`
	Online         bool     `json:"online"`
	Hidden         bool     `json:"hidden"`
}

// TodayStats is the bootstrap payload an agent fetches at startup to resume
// the current day's counters after a restart.
type TodayStats struct {
	DataDate       string  `json:"dataDate"`
	TodayConsult   int     `json:"todayConsult"`
	RepliedCount   int     `json:"repliedCount"`
	TotalReplyTime float64 `json:"totalReplyTime"`
	AvgReply       int     `json:"avgReply"`
}

// HistoryRecord is one row of a historical stats query.
type HistoryRecord struct {
	Date         string `json:"date"`
	TotalConsult int    `json:"totalConsult"`
	AvgReply     int    `json:"avgReply"`
}

// Message is one operator-to-agent notification. Messages are delivered
// over a bounded long-poll and never persisted.
type Message struct {
	ID     string  `json:"id"`
	Body   string  `json:"message"`
	SentAt float64 `json:"timestamp"`
}
