package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishBeforeSubscribeDoesNotDeliver(t *testing.T) {
	b := New()
	b.Publish(ProductReceived, ProductMessage{})

	var got int
	b.Subscribe(ProductReceived, func(msg any) { got++ })
	require.Equal(t, 0, got)

	b.Publish(ProductReceived, ProductMessage{})
	require.Equal(t, 1, got)
}

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	b := New()
	var order []int
	b.Subscribe(XMPPConnected, func(msg any) { order = append(order, 1) })
	b.Subscribe(XMPPConnected, func(msg any) { order = append(order, 2) })
	b.Subscribe(XMPPConnected, func(msg any) { order = append(order, 3) })

	b.Publish(XMPPConnected, nil)
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestSubscribeIsIdempotentForSameHandler(t *testing.T) {
	b := New()
	var calls int
	h := func(msg any) { calls++ }

	b.Subscribe(XMPPConnected, h)
	b.Subscribe(XMPPConnected, h)
	require.Len(t, b.Subscribers(XMPPConnected), 1)

	b.Publish(XMPPConnected, nil)
	require.Equal(t, 1, calls)
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	b := New()
	var calls int
	h := func(msg any) { calls++ }

	b.Subscribe(XMPPConnected, h)
	b.Unsubscribe(XMPPConnected, h)
	require.Empty(t, b.Subscribers(XMPPConnected))

	b.Publish(XMPPConnected, nil)
	require.Equal(t, 0, calls)
}

func TestUnsubscribeUnknownHandlerIsNoop(t *testing.T) {
	b := New()
	require.NotPanics(t, func() {
		b.Unsubscribe(XMPPConnected, func(msg any) {})
	})
}

func TestPanickingSubscriberDoesNotBlockLaterSubscribers(t *testing.T) {
	b := New()
	var secondRan bool
	b.Subscribe(XMPPError, func(msg any) { panic("boom") })
	b.Subscribe(XMPPError, func(msg any) { secondRan = true })

	require.NotPanics(t, func() {
		b.Publish(XMPPError, ErrorMessage{Text: "bad"})
	})
	require.True(t, secondRan)
}

func TestTopicsAreIndependent(t *testing.T) {
	b := New()
	var aCalls, bCalls int
	b.Subscribe(StatsPingSent, func(msg any) { aCalls++ })
	b.Subscribe(StatsPongReceived, func(msg any) { bCalls++ })

	b.Publish(StatsPingSent, nil)
	require.Equal(t, 1, aCalls)
	require.Equal(t, 0, bCalls)
}
