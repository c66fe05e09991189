package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Report ingestion metrics
	ReportsReceivedTotal int64
	ReportsAcceptedTotal int64
	ReportsRejectedTotal map[string]int64 // reason -> count
	StorageErrorsTotal   int64

	// Rollover metrics
	RolloversTotal       int64
	RolloverRowsDeleted  int64
	RolloverErrorsTotal  int64
	RolloverTasksDropped int64

	// Messaging metrics
	MessagesQueuedTotal    int64
	MessagesDeliveredTotal int64

	// WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	WebSocketErrorsTotal         int64
	activeConnections            int64

	// Roster metrics
	onlineAgents int

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			ReportsRejectedTotal: make(map[string]int64),
			startTime:            time.Now(),
		}
	})
	return instance
}

// RecordReportReceived increments the reports received counter
func (m *Metrics) RecordReportReceived() {
	m.mu.Lock()
	m.ReportsReceivedTotal++
	m.mu.Unlock()
}

// RecordReportAccepted increments the accepted report counter
func (m *Metrics) RecordReportAccepted() {
	m.mu.Lock()
	m.ReportsAcceptedTotal++
	m.mu.Unlock()
}

// RecordReportRejected increments the rejection counter for a reason
func (m *Metrics) RecordReportRejected(reason string) {
	m.mu.Lock()
	m.ReportsRejectedTotal[reason]++
	m.mu.Unlock()
}

// RecordStorageError increments the storage error counter
func (m *Metrics) RecordStorageError() {
	m.mu.Lock()
	m.StorageErrorsTotal++
	m.mu.Unlock()
}

// RecordRollover records a completed day rollover cleanup
func (m *Metrics) RecordRollover(rowsDeleted int) {
	m.mu.Lock()
	m.RolloversTotal++
	m.RolloverRowsDeleted += int64(rowsDeleted)
	m.mu.Unlock()
}

// RecordRolloverError increments the rollover error counter
func (m *Metrics) RecordRolloverError() {
	m.mu.Lock()
	m.RolloverErrorsTotal++
	m.mu.Unlock()
}

// RecordRolloverTaskDropped counts cleanup tasks lost to a full queue
func (m *Metrics) RecordRolloverTaskDropped() {
	m.mu.Lock()
	m.RolloverTasksDropped++
	m.mu.Unlock()
}

// RecordMessageQueued increments the queued message counter
func (m *Metrics) RecordMessageQueued() {
	m.mu.Lock()
	m.MessagesQueuedTotal++
	m.mu.Unlock()
}

// RecordMessagesDelivered adds to the delivered message counter
func (m *Metrics) RecordMessagesDelivered(n int) {
	m.mu.Lock()
	m.MessagesDeliveredTotal += int64(n)
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordWebSocketError increments WebSocket error counter
func (m *Metrics) RecordWebSocketError() {
	m.mu.Lock()
	m.WebSocketErrorsTotal++
	m.mu.Unlock()
}

// UpdateOnlineAgents records the current size of the active index
func (m *Metrics) UpdateOnlineAgents(count int) {
	m.mu.Lock()
	m.onlineAgents = count
	m.mu.Unlock()
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("chatwatch_uptime_seconds", time.Since(m.startTime).Seconds())

		// Report metrics
		write("chatwatch_reports_received_total", m.ReportsReceivedTotal)
		write("chatwatch_reports_accepted_total", m.ReportsAcceptedTotal)
		for reason, count := range m.ReportsRejectedTotal {
			write("chatwatch_reports_rejected_total", count, "reason", reason)
		}
		write("chatwatch_storage_errors_total", m.StorageErrorsTotal)

		// Calculate reports per second
		uptimeSeconds := time.Since(m.startTime).Seconds()
		if uptimeSeconds > 0 {
			write("chatwatch_reports_per_second", float64(m.ReportsReceivedTotal)/uptimeSeconds)
		}

		// Rollover metrics
		write("chatwatch_rollovers_total", m.RolloversTotal)
		write("chatwatch_rollover_rows_deleted_total", m.RolloverRowsDeleted)
		write("chatwatch_rollover_errors_total", m.RolloverErrorsTotal)
		write("chatwatch_rollover_tasks_dropped_total", m.RolloverTasksDropped)

		// Messaging metrics
		write("chatwatch_messages_queued_total", m.MessagesQueuedTotal)
		write("chatwatch_messages_delivered_total", m.MessagesDeliveredTotal)

		// WebSocket metrics
		write("chatwatch_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("chatwatch_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("chatwatch_websocket_active_connections", m.activeConnections)
		write("chatwatch_websocket_errors_total", m.WebSocketErrorsTotal)

		// Roster metrics
		write("chatwatch_online_agents", m.onlineAgents)
	}
}
