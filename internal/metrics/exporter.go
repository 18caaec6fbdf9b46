// Package metrics exports aggregated statistics as Prometheus metrics over
// HTTP, updating counters by delta and gauges absolutely.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/nwws-bridge/nwws-bridge/internal/stats"
)

// Exporter serves a snapshot of an Aggregator's statistics as Prometheus
// metrics on its own HTTP server and registry.
type Exporter struct {
	aggregator *stats.Aggregator
	port       int
	interval   time.Duration

	registry *prometheus.Registry
	server   *http.Server

	appUptime               prometheus.Gauge
	connectionStatus        prometheus.Gauge
	connectionUptime        prometheus.Gauge
	connectionTotal         prometheus.Counter
	disconnectionTotal      prometheus.Counter
	reconnectAttemptsTotal  prometheus.Counter
	authFailuresTotal       prometheus.Counter
	connectionErrorsTotal   prometheus.Counter
	outstandingPings        prometheus.Gauge
	messagesReceivedTotal   prometheus.Counter
	messagesProcessedTotal  prometheus.Counter
	messagesPublishedTotal  prometheus.Counter
	messagesFailedTotal     *prometheus.CounterVec
	successRate             prometheus.Gauge
	errorRate               prometheus.Gauge
	sourcesTotal            *prometheus.CounterVec
	afosCodesTotal          *prometheus.CounterVec
	wmoCodesTotal           *prometheus.CounterVec
	handlerStatus           *prometheus.GaugeVec
	handlerPublishedTotal   *prometheus.CounterVec
	handlerFailedTotal      *prometheus.CounterVec
	handlerConnErrorsTotal  *prometheus.CounterVec
	handlerSuccessRate      *prometheus.GaugeVec

	lastConnectionTotal    int
	lastDisconnectionTotal int
	lastReconnectAttempts  int
	lastAuthFailures       int
	lastConnectionErrors   int
	lastReceived           int
	lastProcessed          int
	lastPublished          int
	lastFailedByKind       map[string]int
	lastBySource           map[string]int
	lastByAFOS             map[string]int
	lastByWMO              map[string]int
	lastHandlerPublished   map[string]int
	lastHandlerFailed      map[string]int
	lastHandlerConnErrors  map[string]int
}

// New constructs an Exporter bound to aggregator, serving on port and
// refreshing its metrics every interval.
func New(aggregator *stats.Aggregator, port int, interval time.Duration) *Exporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	registry := prometheus.NewRegistry()

	e := &Exporter{
		aggregator: aggregator,
		port:       port,
		interval:   interval,
		registry:   registry,

		appUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nwws_bridge_application_uptime_seconds",
			Help: "Application uptime in seconds",
		}),
		connectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nwws_bridge_connection_status",
			Help: "XMPP connection status (1=connected, 0=disconnected)",
		}),
		connectionUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nwws_bridge_connection_uptime_seconds",
			Help: "Current connection uptime in seconds",
		}),
		connectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nwws_bridge_connection_total_connections",
			Help: "Total number of connections made",
		}),
		disconnectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nwws_bridge_connection_total_disconnections",
			Help: "Total number of disconnections",
		}),
		reconnectAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nwws_bridge_connection_reconnect_attempts_total",
			Help: "Total number of reconnection attempts",
		}),
		authFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nwws_bridge_connection_auth_failures_total",
			Help: "Total number of authentication failures",
		}),
		connectionErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nwws_bridge_connection_errors_total",
			Help: "Total number of connection errors",
		}),
		outstandingPings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nwws_bridge_connection_outstanding_pings",
			Help: "Number of outstanding ping requests",
		}),
		messagesReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nwws_bridge_messages_received_total",
			Help: "Total number of messages received",
		}),
		messagesProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nwws_bridge_messages_processed_total",
			Help: "Total number of messages successfully processed",
		}),
		messagesPublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nwws_bridge_messages_published_total",
			Help: "Total number of messages published to output handlers",
		}),
		messagesFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nwws_bridge_messages_failed_total",
			Help: "Total number of messages that failed processing",
		}, []string{"error_kind"}),
		successRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nwws_bridge_message_processing_success_rate",
			Help: "Message processing success rate as a percentage",
		}),
		errorRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nwws_bridge_message_processing_error_rate",
			Help: "Message processing error rate as a percentage",
		}),
		sourcesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nwws_bridge_sources_total",
			Help: "Total count by product source",
		}, []string{"source"}),
		afosCodesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nwws_bridge_afos_codes_total",
			Help: "Total count by AFOS code",
		}, []string{"afos_code"}),
		wmoCodesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nwws_bridge_wmo_codes_total",
			Help: "Total count by WMO code",
		}, []string{"wmo_code"}),
		handlerStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nwws_bridge_output_handler_status",
			Help: "Output handler connection status (1=connected, 0=disconnected)",
		}, []string{"handler_name", "handler_type"}),
		handlerPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nwws_bridge_output_handler_published_total",
			Help: "Total messages published by output handler",
		}, []string{"handler_name", "handler_type"}),
		handlerFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nwws_bridge_output_handler_failed_total",
			Help: "Total failed publishes by output handler",
		}, []string{"handler_name", "handler_type"}),
		handlerConnErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nwws_bridge_output_handler_connection_errors_total",
			Help: "Total connection errors for output handler",
		}, []string{"handler_name", "handler_type"}),
		handlerSuccessRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nwws_bridge_output_handler_success_rate",
			Help: "Output handler success rate as a percentage",
		}, []string{"handler_name", "handler_type"}),

		lastFailedByKind:      make(map[string]int),
		lastBySource:          make(map[string]int),
		lastByAFOS:            make(map[string]int),
		lastByWMO:             make(map[string]int),
		lastHandlerPublished:  make(map[string]int),
		lastHandlerFailed:     make(map[string]int),
		lastHandlerConnErrors: make(map[string]int),
	}

	registry.MustRegister(
		e.appUptime, e.connectionStatus, e.connectionUptime, e.connectionTotal,
		e.disconnectionTotal, e.reconnectAttemptsTotal, e.authFailuresTotal,
		e.connectionErrorsTotal, e.outstandingPings, e.messagesReceivedTotal,
		e.messagesProcessedTotal, e.messagesPublishedTotal, e.messagesFailedTotal,
		e.successRate, e.errorRate, e.sourcesTotal, e.afosCodesTotal, e.wmoCodesTotal,
		e.handlerStatus, e.handlerPublishedTotal, e.handlerFailedTotal,
		e.handlerConnErrorsTotal, e.handlerSuccessRate,
	)

	return e
}

// Start serves /metrics on the configured port and begins the periodic
// update loop, which runs until ctx is cancelled. It returns the listener's
// error if ListenAndServe fails within a 50ms grace period, otherwise nil.
func (e *Exporter) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	e.server = &http.Server{
		Addr:    fmtAddr(e.port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(50 * time.Millisecond):
	}

	go e.runUpdateLoop(ctx)

	log.Info().Int("port", e.port).Msg("metrics exporter started")
	return nil
}

// Stop shuts down the HTTP server.
func (e *Exporter) Stop(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}

func (e *Exporter) runUpdateLoop(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.update()
		}
	}
}

func (e *Exporter) update() {
	snap := e.aggregator.Snapshot()

	e.appUptime.Set(snap.UptimeSeconds())

	status := 0.0
	if snap.Connection.IsConnected {
		status = 1.0
	}
	e.connectionStatus.Set(status)
	e.connectionUptime.Set(snap.ConnectionUptimeSeconds())
	e.outstandingPings.Set(float64(snap.Connection.OutstandingPings))

	addDelta(e.connectionTotal, &e.lastConnectionTotal, snap.Connection.TotalConnections)
	addDelta(e.disconnectionTotal, &e.lastDisconnectionTotal, snap.Connection.TotalDisconnections)
	addDelta(e.reconnectAttemptsTotal, &e.lastReconnectAttempts, snap.Connection.ReconnectAttempts)
	addDelta(e.authFailuresTotal, &e.lastAuthFailures, snap.Connection.AuthFailures)
	addDelta(e.connectionErrorsTotal, &e.lastConnectionErrors, snap.Connection.ConnectionErrors)

	addDelta(e.messagesReceivedTotal, &e.lastReceived, snap.Messages.TotalReceived)
	addDelta(e.messagesProcessedTotal, &e.lastProcessed, snap.Messages.TotalProcessed)
	addDelta(e.messagesPublishedTotal, &e.lastPublished, snap.Messages.TotalPublished)

	e.successRate.Set(snap.Messages.SuccessRate())
	e.errorRate.Set(snap.Messages.ErrorRate())

	for kind, count := range snap.Messages.ProcessingErrors {
		addDeltaByKey(e.lastFailedByKind, kind, count, e.messagesFailedTotal.WithLabelValues(kind))
	}
	for source, count := range snap.Messages.Sources {
		addDeltaByKey(e.lastBySource, source, count, e.sourcesTotal.WithLabelValues(source))
	}
	for afos, count := range snap.Messages.AFOSCodes {
		addDeltaByKey(e.lastByAFOS, afos, count, e.afosCodesTotal.WithLabelValues(afos))
	}
	for wmo, count := range snap.Messages.WMOCodes {
		addDeltaByKey(e.lastByWMO, wmo, count, e.wmoCodesTotal.WithLabelValues(wmo))
	}

	for name, h := range snap.Handlers {
		status := 0.0
		if h.IsConnected {
			status = 1.0
		}
		e.handlerStatus.WithLabelValues(name, h.HandlerType).Set(status)
		e.handlerSuccessRate.WithLabelValues(name, h.HandlerType).Set(h.SuccessRate())

		addDeltaByKey(e.lastHandlerPublished, name, h.TotalPublished, e.handlerPublishedTotal.WithLabelValues(name, h.HandlerType))
		addDeltaByKey(e.lastHandlerFailed, name, h.TotalFailed, e.handlerFailedTotal.WithLabelValues(name, h.HandlerType))
		addDeltaByKey(e.lastHandlerConnErrors, name, h.ConnectionErrors, e.handlerConnErrorsTotal.WithLabelValues(name, h.HandlerType))
	}
}

func fmtAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}

func addDelta(c prometheus.Counter, last *int, current int) {
	if diff := current - *last; diff > 0 {
		c.Add(float64(diff))
		*last = current
	}
}

// addDeltaByKey applies the same last-value delta tracking as addDelta, but
// against a map-of-last-values keyed by a dynamic label (error kind, source,
// handler name) rather than a single struct field.
func addDeltaByKey(last map[string]int, key string, current int, c prometheus.Counter) {
	if diff := current - last[key]; diff > 0 {
		c.Add(float64(diff))
		last[key] = current
	}
}
