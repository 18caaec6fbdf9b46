package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwws-bridge/nwws-bridge/internal/bus"
)

func TestSnapshotIsIndependentOfLaterMutation(t *testing.T) {
	a := New()
	b := bus.New()
	a.Subscribe(b)

	b.Publish(bus.StatsMessageReceived, nil)
	first := a.Snapshot()

	b.Publish(bus.StatsMessageReceived, nil)
	b.Publish(bus.StatsMessageReceived, nil)

	assert.Equal(t, 1, first.Messages.TotalReceived)
	assert.Equal(t, 3, a.Snapshot().Messages.TotalReceived)
}

func TestConnectionLifecycleCounters(t *testing.T) {
	a := New()
	b := bus.New()
	a.Subscribe(b)

	b.Publish(bus.XMPPConnected, nil)
	b.Publish(bus.StatsReconnectAttempt, nil)
	b.Publish(bus.StatsAuthFailure, nil)
	b.Publish(bus.XMPPDisconnected, nil)

	snap := a.Snapshot()
	require.Equal(t, 1, snap.Connection.TotalConnections)
	require.Equal(t, 1, snap.Connection.TotalDisconnections)
	require.Equal(t, 1, snap.Connection.ReconnectAttempts)
	require.Equal(t, 1, snap.Connection.AuthFailures)
	require.False(t, snap.Connection.IsConnected)
}

func TestPingPongTracksOutstandingPings(t *testing.T) {
	a := New()
	b := bus.New()
	a.Subscribe(b)

	b.Publish(bus.StatsPingSent, nil)
	b.Publish(bus.StatsPingSent, nil)
	b.Publish(bus.StatsPongReceived, nil)

	assert.Equal(t, 1, a.Snapshot().Connection.OutstandingPings)
}

func TestMessageProcessedTracksSourceAFOSAndWMOCode(t *testing.T) {
	a := New()
	b := bus.New()
	a.Subscribe(b)

	b.Publish(bus.StatsMessageProcessed, bus.MessageStatsMessage{
		Source: "NWWS",
		AFOS:   "RR8ARX",
		WMO:    "WFUS54",
	})

	snap := a.Snapshot()
	assert.Equal(t, 1, snap.Messages.TotalProcessed)
	assert.Equal(t, 1, snap.Messages.Sources["NWWS"])
	assert.Equal(t, 1, snap.Messages.AFOSCodes["RR8ARX"])
	assert.Equal(t, 1, snap.Messages.WMOCodes["WFUS54"])
}

func TestMessageFailedDefaultsUnknownErrorKind(t *testing.T) {
	a := New()
	b := bus.New()
	a.Subscribe(b)

	b.Publish(bus.StatsMessageFailed, bus.MessageStatsMessage{})

	snap := a.Snapshot()
	assert.Equal(t, 1, snap.Messages.TotalFailed)
	assert.Equal(t, 1, snap.Messages.ProcessingErrors["unknown"])
}

func TestHandlerLifecycleIsTrackedPerHandler(t *testing.T) {
	a := New()
	b := bus.New()
	a.Subscribe(b)

	b.Publish(bus.StatsHandlerRegistered, bus.HandlerStatsMessage{HandlerName: "console", HandlerType: "console"})
	b.Publish(bus.StatsHandlerConnected, bus.HandlerStatsMessage{HandlerName: "console"})
	b.Publish(bus.StatsHandlerPublishSuccess, bus.HandlerStatsMessage{HandlerName: "console"})
	b.Publish(bus.StatsHandlerPublishFailed, bus.HandlerStatsMessage{HandlerName: "console"})

	snap := a.Snapshot()
	h, ok := snap.Handlers["console"]
	require.True(t, ok)
	assert.True(t, h.IsConnected)
	assert.Equal(t, 1, h.TotalPublished)
	assert.Equal(t, 1, h.TotalFailed)
	assert.Equal(t, 50.0, h.SuccessRate())
}

func TestMessageStatsRates(t *testing.T) {
	m := MessageStats{TotalReceived: 10, TotalProcessed: 8, TotalFailed: 2}
	assert.Equal(t, 80.0, m.SuccessRate())
	assert.Equal(t, 20.0, m.ErrorRate())
}

func TestMessageStatsRatesWithNoMessages(t *testing.T) {
	m := MessageStats{}
	assert.Equal(t, 0.0, m.SuccessRate())
	assert.Equal(t, 0.0, m.ErrorRate())
}
