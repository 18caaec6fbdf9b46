package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nwws-bridge/nwws-bridge/internal/bus"
)

func TestTriggerFatalShutdownIsIdempotent(t *testing.T) {
	s := &Supervisor{bus: bus.New()}
	fatal := make(chan error, 1)

	s.triggerFatalShutdown(fatal, "authentication failure")
	s.triggerFatalShutdown(fatal, "authentication failure")

	select {
	case err := <-fatal:
		assert.Contains(t, err.Error(), "authentication failure")
	case <-time.After(time.Second):
		t.Fatal("expected fatal error to be signalled")
	}

	select {
	case <-fatal:
		t.Fatal("expected only one fatal signal")
	default:
	}
}

func TestWatchForFatalErrorIgnoresNonFatalText(t *testing.T) {
	s := &Supervisor{bus: bus.New()}
	fatal := make(chan error, 1)
	unsubscribe := s.watchForFatalError(fatal)
	defer unsubscribe()

	s.bus.Publish(bus.XMPPError, bus.ErrorMessage{Text: "transient connection error"})

	select {
	case <-fatal:
		t.Fatal("non-fatal error text should not trigger shutdown")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchForFatalErrorTriggersOnAuthFailure(t *testing.T) {
	s := &Supervisor{bus: bus.New()}
	fatal := make(chan error, 1)
	unsubscribe := s.watchForFatalError(fatal)
	defer unsubscribe()

	s.bus.Publish(bus.XMPPError, bus.ErrorMessage{Text: "authentication failure"})

	select {
	case err := <-fatal:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected fatal error to be signalled")
	}
}
