// Package stats aggregates the lifecycle, message, and handler events
// published on the bus into running counters, and periodically logs a
// human-readable summary.
package stats

import "time"

// ConnectionStats tracks the XMPP session's connection lifecycle.
type ConnectionStats struct {
	ConnectedAt          time.Time
	DisconnectedAt       time.Time
	TotalConnections     int
	TotalDisconnections  int
	ReconnectAttempts    int
	AuthFailures         int
	ConnectionErrors     int
	IsConnected          bool
	LastPingSent         time.Time
	LastPongReceived     time.Time
	OutstandingPings     int
}

// MessageStats tracks products received, processed, failed, and published.
type MessageStats struct {
	TotalReceived            int
	TotalProcessed           int
	TotalFailed              int
	TotalPublished           int
	LastMessageTime          time.Time
	LastGroupchatMessageTime time.Time
	Sources                  map[string]int
	AFOSCodes                map[string]int
	WMOCodes                 map[string]int
	ProcessingErrors         map[string]int
}

// SuccessRate returns the percentage of received messages that were
// processed successfully, or 0 if none have been received.
func (m MessageStats) SuccessRate() float64 {
	if m.TotalReceived == 0 {
		return 0
	}
	return 100 * float64(m.TotalProcessed) / float64(m.TotalReceived)
}

// ErrorRate returns the percentage of received messages that failed.
func (m MessageStats) ErrorRate() float64 {
	if m.TotalReceived == 0 {
		return 0
	}
	return 100 * float64(m.TotalFailed) / float64(m.TotalReceived)
}

// HandlerStats tracks one output sink's publish activity.
type HandlerStats struct {
	HandlerType      string
	TotalPublished   int
	TotalFailed      int
	IsConnected      bool
	ConnectedAt      time.Time
	DisconnectedAt   time.Time
	ConnectionErrors int
	LastPublishTime  time.Time
}

// SuccessRate returns the percentage of publish attempts to this handler
// that succeeded, or 0 if none have been attempted.
func (h HandlerStats) SuccessRate() float64 {
	total := h.TotalPublished + h.TotalFailed
	if total == 0 {
		return 0
	}
	return 100 * float64(h.TotalPublished) / float64(total)
}

// Snapshot is an immutable, deep-copied view of aggregated statistics at a
// point in time.
type Snapshot struct {
	Timestamp  time.Time
	StartTime  time.Time
	Connection ConnectionStats
	Messages   MessageStats
	Handlers   map[string]HandlerStats
}

// UptimeSeconds returns how long the application has been running.
func (s Snapshot) UptimeSeconds() float64 {
	return s.Timestamp.Sub(s.StartTime).Seconds()
}

// ConnectionUptimeSeconds returns how long the current connection has been
// up, or 0 if not connected.
func (s Snapshot) ConnectionUptimeSeconds() float64 {
	if !s.Connection.IsConnected || s.Connection.ConnectedAt.IsZero() {
		return 0
	}
	return s.Timestamp.Sub(s.Connection.ConnectedAt).Seconds()
}

func cloneCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneHandlers(m map[string]HandlerStats) map[string]HandlerStats {
	out := make(map[string]HandlerStats, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
