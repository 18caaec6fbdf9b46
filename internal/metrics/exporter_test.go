package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwws-bridge/nwws-bridge/internal/bus"
	"github.com/nwws-bridge/nwws-bridge/internal/stats"
)

func TestUpdateTracksCounterDeltasNotAbsoluteValues(t *testing.T) {
	agg := stats.New()
	b := bus.New()
	agg.Subscribe(b)

	e := New(agg, 0, time.Minute)

	b.Publish(bus.StatsMessageReceived, nil)
	b.Publish(bus.StatsMessageReceived, nil)
	e.update()

	assert.InDelta(t, 2, testutil.ToFloat64(e.messagesReceivedTotal), 0.001)

	b.Publish(bus.StatsMessageReceived, nil)
	e.update()
	assert.InDelta(t, 3, testutil.ToFloat64(e.messagesReceivedTotal), 0.001)
}

func TestUpdateSetsGaugesAbsolutely(t *testing.T) {
	agg := stats.New()
	b := bus.New()
	agg.Subscribe(b)

	e := New(agg, 0, time.Minute)

	b.Publish(bus.XMPPConnected, nil)
	e.update()
	assert.Equal(t, 1.0, testutil.ToFloat64(e.connectionStatus))

	b.Publish(bus.XMPPDisconnected, nil)
	e.update()
	assert.Equal(t, 0.0, testutil.ToFloat64(e.connectionStatus))
}

func TestUpdateLabelsFailuresByErrorKind(t *testing.T) {
	agg := stats.New()
	b := bus.New()
	agg.Subscribe(b)

	e := New(agg, 0, time.Minute)

	b.Publish(bus.StatsMessageFailed, bus.MessageStatsMessage{ErrorKind: "parse_error"})
	b.Publish(bus.StatsMessageFailed, bus.MessageStatsMessage{ErrorKind: "parse_error"})
	e.update()

	assert.InDelta(t, 2, testutil.ToFloat64(e.messagesFailedTotal.WithLabelValues("parse_error")), 0.001)
}

func TestUpdateLabelsMessagesByWMOCode(t *testing.T) {
	agg := stats.New()
	b := bus.New()
	agg.Subscribe(b)

	e := New(agg, 0, time.Minute)

	b.Publish(bus.StatsMessageProcessed, bus.MessageStatsMessage{WMO: "WFUS54"})
	b.Publish(bus.StatsMessageProcessed, bus.MessageStatsMessage{WMO: "WFUS54"})
	e.update()

	assert.InDelta(t, 2, testutil.ToFloat64(e.wmoCodesTotal.WithLabelValues("WFUS54")), 0.001)
}

func TestUpdateTracksHandlerMetricsPerHandler(t *testing.T) {
	agg := stats.New()
	b := bus.New()
	agg.Subscribe(b)

	e := New(agg, 0, time.Minute)

	b.Publish(bus.StatsHandlerRegistered, bus.HandlerStatsMessage{HandlerName: "mqtt", HandlerType: "mqtt"})
	b.Publish(bus.StatsHandlerConnected, bus.HandlerStatsMessage{HandlerName: "mqtt"})
	b.Publish(bus.StatsHandlerPublishSuccess, bus.HandlerStatsMessage{HandlerName: "mqtt"})
	e.update()

	assert.Equal(t, 1.0, testutil.ToFloat64(e.handlerStatus.WithLabelValues("mqtt", "mqtt")))
	assert.InDelta(t, 1, testutil.ToFloat64(e.handlerPublishedTotal.WithLabelValues("mqtt", "mqtt")), 0.001)
}

func TestNewRegistersWithoutPanicking(t *testing.T) {
	agg := stats.New()
	require.NotPanics(t, func() {
		New(agg, 0, time.Minute)
	})
}
