package stats

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nwws-bridge/nwws-bridge/internal/bus"
)

// Aggregator is a thread-safe sink for every lifecycle, message, and
// handler event published on the bus, exposing point-in-time Snapshots.
type Aggregator struct {
	mu         sync.Mutex
	startTime  time.Time
	connection ConnectionStats
	messages   MessageStats
	handlers   map[string]HandlerStats
}

// New returns an Aggregator whose uptime is measured from now.
func New() *Aggregator {
	return &Aggregator{
		startTime: time.Now(),
		messages: MessageStats{
			Sources:          make(map[string]int),
			AFOSCodes:        make(map[string]int),
			WMOCodes:         make(map[string]int),
			ProcessingErrors: make(map[string]int),
		},
		handlers: make(map[string]HandlerStats),
	}
}

// Subscribe wires every stats.* and xmpp.* topic to this Aggregator's
// counters. Call once; the handlers are anonymous closures, so there is
// no way to unsubscribe them and they stay registered for the Bus's life.
func (a *Aggregator) Subscribe(b *bus.Bus) {
	b.Subscribe(bus.StatsConnectionAttempt, func(any) { a.onConnectionAttempt() })
	b.Subscribe(bus.StatsConnectionEstablished, func(any) { a.onConnected() })
	b.Subscribe(bus.StatsConnectionLost, func(any) { a.onDisconnected() })
	b.Subscribe(bus.StatsConnectionError, func(any) { a.onConnectionError() })
	b.Subscribe(bus.StatsReconnectAttempt, func(any) { a.onReconnectAttempt() })
	b.Subscribe(bus.StatsAuthFailure, func(any) { a.onAuthFailure() })
	b.Subscribe(bus.StatsPingSent, func(any) { a.onPingSent() })
	b.Subscribe(bus.StatsPongReceived, func(any) { a.onPongReceived() })

	b.Subscribe(bus.XMPPConnected, func(any) { a.onConnected() })
	b.Subscribe(bus.XMPPDisconnected, func(any) { a.onDisconnected() })

	b.Subscribe(bus.StatsMessageReceived, func(any) { a.onMessageReceived() })
	b.Subscribe(bus.StatsMessageGroupchatReceived, func(any) { a.onGroupchatMessageReceived() })
	b.Subscribe(bus.StatsMessageProcessed, func(msg any) {
		m, ok := msg.(bus.MessageStatsMessage)
		if !ok {
			return
		}
		a.onMessageProcessed(m.Source, m.AFOS, m.WMO)
	})
	b.Subscribe(bus.StatsMessageFailed, func(msg any) {
		m, _ := msg.(bus.MessageStatsMessage)
		a.onMessageFailed(m.ErrorKind)
	})
	b.Subscribe(bus.StatsMessagePublished, func(any) { a.onMessagePublished() })

	b.Subscribe(bus.StatsHandlerRegistered, func(msg any) {
		m, ok := msg.(bus.HandlerStatsMessage)
		if !ok {
			return
		}
		a.registerHandler(m.HandlerName, m.HandlerType)
	})
	b.Subscribe(bus.StatsHandlerConnected, func(msg any) { a.onHandlerConnected(handlerName(msg)) })
	b.Subscribe(bus.StatsHandlerDisconnected, func(msg any) { a.onHandlerDisconnected(handlerName(msg)) })
	b.Subscribe(bus.StatsHandlerPublishSuccess, func(msg any) { a.onHandlerPublishSuccess(handlerName(msg)) })
	b.Subscribe(bus.StatsHandlerPublishFailed, func(msg any) { a.onHandlerPublishFailed(handlerName(msg)) })
	b.Subscribe(bus.StatsHandlerConnectionError, func(msg any) { a.onHandlerConnectionError(handlerName(msg)) })
}

func handlerName(msg any) string {
	m, ok := msg.(bus.HandlerStatsMessage)
	if !ok {
		return ""
	}
	return m.HandlerName
}

func (a *Aggregator) onConnectionAttempt() {
	log.Debug().Msg("stats: connection attempt")
}

func (a *Aggregator) onConnected() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	a.connection.ConnectedAt = now
	a.connection.DisconnectedAt = time.Time{}
	a.connection.TotalConnections++
	a.connection.IsConnected = true
}

func (a *Aggregator) onDisconnected() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connection.DisconnectedAt = time.Now()
	a.connection.TotalDisconnections++
	a.connection.IsConnected = false
}

func (a *Aggregator) onReconnectAttempt() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connection.ReconnectAttempts++
}

func (a *Aggregator) onAuthFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connection.AuthFailures++
}

func (a *Aggregator) onConnectionError() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connection.ConnectionErrors++
}

func (a *Aggregator) onPingSent() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connection.LastPingSent = time.Now()
	a.connection.OutstandingPings++
}

func (a *Aggregator) onPongReceived() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connection.LastPongReceived = time.Now()
	if a.connection.OutstandingPings > 0 {
		a.connection.OutstandingPings--
	}
}

func (a *Aggregator) onMessageReceived() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages.TotalReceived++
	a.messages.LastMessageTime = time.Now()
}

func (a *Aggregator) onGroupchatMessageReceived() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages.LastGroupchatMessageTime = time.Now()
}

func (a *Aggregator) onMessageProcessed(source, afos, wmo string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages.TotalProcessed++
	if source != "" {
		a.messages.Sources[source]++
	}
	if afos != "" {
		a.messages.AFOSCodes[afos]++
	}
	if wmo != "" {
		a.messages.WMOCodes[wmo]++
	}
}

func (a *Aggregator) onMessageFailed(errorKind string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages.TotalFailed++
	if errorKind == "" {
		errorKind = "unknown"
	}
	a.messages.ProcessingErrors[errorKind]++
}

func (a *Aggregator) onMessagePublished() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages.TotalPublished++
}

func (a *Aggregator) registerHandler(name, handlerType string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.handlers[name]; exists {
		return
	}
	if handlerType == "" {
		handlerType = name
	}
	a.handlers[name] = HandlerStats{HandlerType: handlerType}
}

func (a *Aggregator) withHandler(name string, fn func(h *HandlerStats)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.handlers[name]
	if !ok {
		return
	}
	fn(&h)
	a.handlers[name] = h
}

func (a *Aggregator) onHandlerConnected(name string) {
	a.withHandler(name, func(h *HandlerStats) {
		h.ConnectedAt = time.Now()
		h.DisconnectedAt = time.Time{}
		h.IsConnected = true
	})
}

func (a *Aggregator) onHandlerDisconnected(name string) {
	a.withHandler(name, func(h *HandlerStats) {
		h.DisconnectedAt = time.Now()
		h.IsConnected = false
	})
}

func (a *Aggregator) onHandlerPublishSuccess(name string) {
	a.withHandler(name, func(h *HandlerStats) {
		h.TotalPublished++
		h.LastPublishTime = time.Now()
	})
}

func (a *Aggregator) onHandlerPublishFailed(name string) {
	a.withHandler(name, func(h *HandlerStats) {
		h.TotalFailed++
	})
}

func (a *Aggregator) onHandlerConnectionError(name string) {
	a.withHandler(name, func(h *HandlerStats) {
		h.ConnectionErrors++
	})
}

// Snapshot returns a deep copy of the current statistics, safe to retain
// and read without further synchronization.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Snapshot{
		Timestamp:  time.Now(),
		StartTime:  a.startTime,
		Connection: a.connection,
		Messages: MessageStats{
			TotalReceived:            a.messages.TotalReceived,
			TotalProcessed:           a.messages.TotalProcessed,
			TotalFailed:              a.messages.TotalFailed,
			TotalPublished:           a.messages.TotalPublished,
			LastMessageTime:          a.messages.LastMessageTime,
			LastGroupchatMessageTime: a.messages.LastGroupchatMessageTime,
			Sources:                  cloneCounts(a.messages.Sources),
			AFOSCodes:                cloneCounts(a.messages.AFOSCodes),
			WMOCodes:                 cloneCounts(a.messages.WMOCodes),
			ProcessingErrors:         cloneCounts(a.messages.ProcessingErrors),
		},
		Handlers: cloneHandlers(a.handlers),
	}
}
