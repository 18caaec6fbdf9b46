// Package supervisor owns the bridge's startup and shutdown ordering,
// ties the bus, statistics, metrics, sink registry, and XMPP session
// together, and reacts to fatal XMPP errors by tearing everything down.
package supervisor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nwws-bridge/nwws-bridge/internal/bus"
	"github.com/nwws-bridge/nwws-bridge/internal/config"
	"github.com/nwws-bridge/nwws-bridge/internal/metrics"
	"github.com/nwws-bridge/nwws-bridge/internal/registry"
	"github.com/nwws-bridge/nwws-bridge/internal/sinks"
	"github.com/nwws-bridge/nwws-bridge/internal/stats"
	"github.com/nwws-bridge/nwws-bridge/internal/wmoparser"
	"github.com/nwws-bridge/nwws-bridge/internal/xmppsession"
)

const stageTimeout = 5 * time.Second

// Supervisor drives the exact startup order: event bus, aggregator
// subscriptions, metrics exporter, handler registry, XMPP session. Shutdown
// runs the exact reverse, each stage bounded by stageTimeout.
type Supervisor struct {
	cfg config.Config

	bus        *bus.Bus
	aggregator *stats.Aggregator
	logger     *stats.Logger
	exporter   *metrics.Exporter
	reg        *registry.Registry
	session    *xmppsession.Session

	mu           sync.Mutex
	shuttingDown bool

	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	sessionDone   chan error
}

// New wires the supervisor's components from cfg but does not start
// anything; call Run to start and block until shutdown.
func New(cfg config.Config) *Supervisor {
	b := bus.New()
	s := &Supervisor{
		cfg:        cfg,
		bus:        b,
		aggregator: stats.New(),
		reg:        registry.New(b),
	}
	s.logger = stats.NewLogger(s.aggregator, time.Duration(cfg.StatsInterval)*time.Second)
	if cfg.MetricsEnabled {
		s.exporter = metrics.New(s.aggregator, cfg.MetricsPort, time.Duration(cfg.MetricsUpdateInterval)*time.Second)
	}

	s.reg.Register("console", func() (sinks.Sink, error) {
		return sinks.NewConsole(), nil
	})
	s.reg.Register("mqtt", func() (sinks.Sink, error) {
		return sinks.NewMQTT(sinks.MQTTConfig{
			Broker:               cfg.MQTT.Broker,
			Port:                 cfg.MQTT.Port,
			Username:             cfg.MQTT.Username,
			Password:             cfg.MQTT.Password,
			ClientID:             cfg.MQTT.ClientID,
			TopicPrefix:          cfg.MQTT.TopicPrefix,
			QoS:                  cfg.MQTT.QoS,
			Retain:               cfg.MQTT.Retain,
			MessageExpiryMinutes: cfg.MQTT.MessageExpiryMinutes,
		}), nil
	})

	s.session = xmppsession.New(xmppsession.Config{
		Username:   cfg.XMPP.Username,
		Password:   cfg.XMPP.Password,
		InstanceID: generateInstanceID(),
	}, b, &wmoparser.Parser{})

	return s
}

// generateInstanceID returns a short random hex suffix for the XMPP
// resource, falling back to a timestamp if the CSPRNG is unavailable.
func generateInstanceID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().Unix()%10000)
	}
	return hex.EncodeToString(buf)
}

// Run starts every component in order, blocks until ctx is cancelled or a
// fatal XMPP error triggers shutdown, and tears everything down in
// reverse before returning. The returned error is non-nil for a startup
// failure of the metrics exporter or handler registry, or for a fatal
// XMPP error (auth failure or reconnect exhaustion) — the caller maps
// either to exit code 1 per the startup contract.
func (s *Supervisor) Run(ctx context.Context) error {
	s.aggregator.Subscribe(s.bus)
	log.Info().Msg("event bus and statistics aggregator started")

	loggerCtx, loggerCancel := context.WithCancel(ctx)
	defer loggerCancel()
	go s.logger.Run(loggerCtx)

	if s.exporter != nil {
		if err := withTimeout(ctx, func(c context.Context) error { return s.exporter.Start(c) }); err != nil {
			return err
		}
		defer func() {
			_ = withTimeout(context.Background(), func(c context.Context) error { return s.exporter.Stop(c) })
		}()
	}

	if err := withTimeout(ctx, func(c context.Context) error { return s.reg.Start(c, s.cfg.EnabledHandlers) }); err != nil {
		return err
	}
	defer func() {
		withTimeoutVoid(context.Background(), func(c context.Context) { s.reg.Stop(c) })
	}()

	fatal := make(chan error, 1)
	unsubscribe := s.watchForFatalError(fatal)
	defer unsubscribe()

	s.sessionCtx, s.sessionCancel = context.WithCancel(context.Background())
	s.sessionDone = make(chan error, 1)
	go func() {
		s.sessionDone <- s.session.Run(s.sessionCtx)
	}()
	defer s.sessionCancel()

	select {
	case <-ctx.Done():
		s.sessionCancel()
		select {
		case <-s.sessionDone:
		case <-time.After(stageTimeout):
		}
		return nil
	case err := <-s.sessionDone:
		return err
	case err := <-fatal:
		s.sessionCancel()
		select {
		case <-s.sessionDone:
		case <-time.After(stageTimeout):
		}
		return err
	}
}

// watchForFatalError subscribes to xmpp.error and signals fatal when the
// payload names an unrecoverable condition, per spec's exit-code contract.
func (s *Supervisor) watchForFatalError(fatal chan<- error) func() {
	handler := func(msg any) {
		m, ok := msg.(bus.ErrorMessage)
		if !ok {
			return
		}
		if strings.Contains(m.Text, "Maximum reconnection attempts reached") ||
			strings.Contains(m.Text, "authentication failure") {
			s.triggerFatalShutdown(fatal, m.Text)
		}
	}
	s.bus.Subscribe(bus.XMPPError, handler)
	return func() { s.bus.Unsubscribe(bus.XMPPError, handler) }
}

func (s *Supervisor) triggerFatalShutdown(fatal chan<- error, text string) {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return
	}
	s.shuttingDown = true
	s.mu.Unlock()

	log.Error().Str("error", text).Msg("fatal XMPP error, shutting down")
	select {
	case fatal <- errFatalXMPP{text: text}:
	default:
	}
}

type errFatalXMPP struct{ text string }

func (e errFatalXMPP) Error() string { return e.text }

func withTimeout(parent context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, stageTimeout)
	defer cancel()
	return fn(ctx)
}

func withTimeoutVoid(parent context.Context, fn func(context.Context)) {
	ctx, cancel := context.WithTimeout(parent, stageTimeout)
	defer cancel()
	fn(ctx)
}
