package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const maxRateSnapshots = 10

// Logger periodically logs a human-readable summary of an Aggregator's
// statistics, including derived per-minute rates computed from a rolling
// window of recent snapshots.
type Logger struct {
	aggregator *Aggregator
	interval   time.Duration

	snapshots []Snapshot
}

// NewLogger returns a Logger that reports every interval.
func NewLogger(aggregator *Aggregator, interval time.Duration) *Logger {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Logger{aggregator: aggregator, interval: interval}
}

// Run logs periodically until ctx is cancelled.
func (l *Logger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.logOnce()
		}
	}
}

// LogNow logs the current statistics immediately, without affecting the
// periodic rate-calculation window.
func (l *Logger) LogNow() {
	l.logSnapshot(l.aggregator.Snapshot(), nil)
}

func (l *Logger) logOnce() {
	snap := l.aggregator.Snapshot()
	rates := l.calculateRates(snap)

	l.snapshots = append(l.snapshots, snap)
	if len(l.snapshots) > maxRateSnapshots {
		l.snapshots = l.snapshots[len(l.snapshots)-maxRateSnapshots:]
	}

	l.logSnapshot(snap, rates)
}

type rates struct {
	messagesPerMinute   float64
	processingPerMinute float64
}

func (l *Logger) calculateRates(current Snapshot) *rates {
	if len(l.snapshots) == 0 {
		return nil
	}

	target := current.Timestamp.Add(-time.Minute)
	previous := l.snapshots[0]
	for i := len(l.snapshots) - 1; i >= 0; i-- {
		if !l.snapshots[i].Timestamp.After(target) {
			previous = l.snapshots[i]
			break
		}
	}

	minutes := current.Timestamp.Sub(previous.Timestamp).Minutes()
	if minutes <= 0 {
		return nil
	}

	return &rates{
		messagesPerMinute:   float64(current.Messages.TotalReceived-previous.Messages.TotalReceived) / minutes,
		processingPerMinute: float64(current.Messages.TotalProcessed-previous.Messages.TotalProcessed) / minutes,
	}
}

func (l *Logger) logSnapshot(snap Snapshot, r *rates) {
	status := "DISCONNECTED"
	if snap.Connection.IsConnected {
		status = "CONNECTED"
	}

	evt := log.Info().
		Str("app_uptime", formatDuration(snap.UptimeSeconds())).
		Str("connection_status", status).
		Str("connection_uptime", formatDuration(snap.ConnectionUptimeSeconds())).
		Int("total_connections", snap.Connection.TotalConnections).
		Int("reconnect_attempts", snap.Connection.ReconnectAttempts).
		Int("outstanding_pings", snap.Connection.OutstandingPings)
	if r != nil {
		evt = evt.Float64("messages_per_minute", round1(r.messagesPerMinute)).
			Float64("processing_per_minute", round1(r.processingPerMinute))
	}
	evt.Msg("nwws-bridge statistics")

	log.Info().
		Int("total_received", snap.Messages.TotalReceived).
		Int("total_processed", snap.Messages.TotalProcessed).
		Int("total_failed", snap.Messages.TotalFailed).
		Str("success_rate", rateString(snap.Messages.TotalReceived, snap.Messages.SuccessRate())).
		Str("error_rate", rateString(snap.Messages.TotalReceived, snap.Messages.ErrorRate())).
		Msg("message processing statistics")

	for name, h := range snap.Handlers {
		status := "DISCONNECTED"
		if h.IsConnected {
			status = "CONNECTED"
		}
		log.Info().
			Str("handler", name).
			Str("type", h.HandlerType).
			Str("status", status).
			Int("published", h.TotalPublished).
			Int("failed", h.TotalFailed).
			Str("success_rate", rateString(h.TotalPublished+h.TotalFailed, h.SuccessRate())).
			Int("connection_errors", h.ConnectionErrors).
			Msg("output handler statistics")
	}
}

func rateString(sampleSize int, rate float64) string {
	if sampleSize == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", rate)
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func formatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.0fs", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%.1fm", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%.1fh", seconds/3600)
	default:
		return fmt.Sprintf("%.1fd", seconds/86400)
	}
}
