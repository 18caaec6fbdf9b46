// Package xmppsession implements the long-lived XMPP connection to
// NWWS-OI: connect/auth, MUC join, periodic housekeeping, and
// exponential-backoff reconnection. Results are published onto a Bus
// rather than returned synchronously, since a session outlives any single
// caller.
package xmppsession

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"

	"github.com/nwws-bridge/nwws-bridge/internal/bus"
	"github.com/nwws-bridge/nwws-bridge/internal/product"
)

// NWWS-OI only operates these two sites; a client should always try one
// and fall back to the other. See https://www.weather.gov/nwws/#access
const (
	nwwsCollegePark = "nwws-oi-cprk.weather.gov"
	nwwsBoulder     = "nwws-oi-bldr.weather.gov"
	nwwsPort        = "5222"
	nwwsDomain      = "nwws-oi.weather.gov"
	nwwsResource    = "nwws"
	mucRoom         = "nwws@conference.nwws-oi.weather.gov"

	versionName = "nwws-bridge"
)

var (
	errAuthFailure          = errors.New("xmppsession: authentication failure")
	errForcedReconnect      = errors.New("xmppsession: forced reconnect")
	errMaxReconnectAttempts = errors.New("xmppsession: maximum reconnection attempts reached")
)

// Config holds the NWWS-OI account credentials and instance identity used
// to establish the session.
type Config struct {
	Username       string
	Password       string
	InstanceID     string
	ConnectTimeout time.Duration
	Version        string
}

// Session manages one NWWS-OI XMPP account across its full lifecycle:
// connect, authenticate, join the product room, run housekeeping, and
// reconnect with backoff on failure. It is not safe to call Run more than
// once concurrently on the same Session.
type Session struct {
	cfg    Config
	bus    *bus.Bus
	parser product.Parser
	errCh  chan error

	mu                       sync.Mutex
	outstandingPings         map[string]struct{}
	lastMessageTime          time.Time
	lastGroupchatMessageTime time.Time
	shuttingDown             bool
}

// New returns a Session ready to Run.
func New(cfg Config, b *bus.Bus, parser product.Parser) *Session {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "v0.0.0-dev"
	}
	return &Session{
		cfg:              cfg,
		bus:              b,
		parser:           parser,
		errCh:            make(chan error, 1),
		outstandingPings: make(map[string]struct{}),
	}
}

// Run drives the session until ctx is cancelled (returning nil) or the
// reconnection budget is exhausted or authentication fails permanently
// (returning a non-nil error, after publishing bus.XMPPError).
func (s *Session) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.bus.Publish(bus.StatsConnectionAttempt, nil)
		client, err := s.dial()
		if err != nil {
			log.Error().Err(err).Msg("xmppsession: failed to connect")
			s.bus.Publish(bus.StatsConnectionError, nil)
			attempt++
			if !s.wait(ctx, attempt) {
				return s.giveUp()
			}
			continue
		}

		attempt = 0
		s.bus.Publish(bus.XMPPConnected, nil)
		s.resetOutstandingPings()

		err = s.serve(ctx, client)

		if ctx.Err() != nil {
			return nil
		}
		if s.isShuttingDown() {
			return nil
		}
		if errors.Is(err, errAuthFailure) {
			s.bus.Publish(bus.StatsAuthFailure, nil)
			s.bus.Publish(bus.XMPPError, bus.ErrorMessage{Text: "authentication failure"})
			return err
		}

		log.Warn().Err(err).Msg("xmppsession: disconnected")
		s.bus.Publish(bus.XMPPDisconnected, nil)
		attempt++
		if !s.wait(ctx, attempt) {
			return s.giveUp()
		}
	}
}

// dial tries College Park, then Boulder, returning the first site that
// accepts the connection and authenticates.
func (s *Session) dial() (*xmpp.Client, error) {
	router := xmpp.NewRouter()
	router.HandleFunc("message", s.handleMessage)
	router.HandleFunc("iq", s.handleIQ)
	router.NewRoute().IQNamespaces("jabber:iq:version").HandlerFunc(s.handleVersion)
	router.NewRoute().IQNamespaces("urn:xmpp:ping").HandlerFunc(s.handlePing)

	jid := fmt.Sprintf("%s@%s/%s-%s", s.cfg.Username, nwwsDomain, nwwsResource, s.cfg.InstanceID)

	var lastErr error
	for _, host := range []string{nwwsCollegePark, nwwsBoulder} {
		config := &xmpp.Config{
			Jid:            jid,
			Credential:     xmpp.Password(s.cfg.Password),
			Insecure:       false,
			ConnectTimeout: int(s.cfg.ConnectTimeout.Seconds()),
			TransportConfiguration: xmpp.TransportConfiguration{
				Address: fmt.Sprintf("%s:%s", host, nwwsPort),
				Domain:  nwwsDomain,
			},
		}

		client, err := xmpp.NewClient(config, router, s.errorHandler)
		if err != nil {
			lastErr = err
			continue
		}

		log.Info().Str("site", host).Msg("xmppsession: connecting")
		if err := client.Connect(); err != nil {
			log.Warn().Err(err).Str("site", host).Msg("xmppsession: site unreachable, trying next")
			lastErr = err
			continue
		}

		if err := s.joinMUC(client); err != nil {
			_ = client.Disconnect()
			lastErr = err
			continue
		}

		return client, nil
	}

	return nil, fmt.Errorf("xmppsession: failed to connect to any NWWS-IO site: %w", lastErr)
}

// serve runs housekeeping until the connection ends, for any reason.
func (s *Session) serve(ctx context.Context, client *xmpp.Client) error {
	select {
	case <-s.errCh:
	default:
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown(client)
			return nil
		case err := <-s.errCh:
			if isAuthFailure(err) {
				return errAuthFailure
			}
			return err
		case <-ticker.C:
			if reason := s.housekeeping(client); reason != nil {
				return reason
			}
		}
	}
}

func (s *Session) housekeeping(client *xmpp.Client) error {
	s.mu.Lock()
	silentFor := time.Since(s.lastGroupchatMessageTime)
	outstanding := len(s.outstandingPings)
	s.mu.Unlock()

	if silentFor > groupchatSilenceTimeout {
		log.Warn().Dur("silent_for", silentFor).Msg("xmppsession: no groupchat messages received, forcing reconnect")
		s.bus.Publish(bus.XMPPError, bus.ErrorMessage{Text: "groupchat silence timeout"})
		return errForcedReconnect
	}

	if outstanding > maxUnrespondedPings {
		log.Error().Int("outstanding", outstanding).Msg("xmppsession: too many unresponded pings, forcing reconnect")
		s.bus.Publish(bus.XMPPError, bus.ErrorMessage{Text: "too many unresponded pings"})
		return errForcedReconnect
	}

	s.sendPing(client)
	return nil
}

type pingPayload struct {
	XMLName xml.Name `xml:"urn:xmpp:ping ping"`
}

func (s *Session) sendPing(client *xmpp.Client) {
	id := time.Now().UTC().Format("20060102150405")
	iq, err := stanza.NewIQ(stanza.Attrs{Type: "get", To: nwwsDomain, Id: id})
	if err != nil {
		log.Error().Err(err).Msg("xmppsession: failed to build ping")
		return
	}
	iq.Payload = pingPayload{}

	s.mu.Lock()
	s.outstandingPings[id] = struct{}{}
	s.mu.Unlock()

	if err := client.Send(iq); err != nil {
		log.Warn().Err(err).Msg("xmppsession: failed to send ping")
		return
	}
	log.Debug().Str("ping_id", id).Msg("xmppsession: sent ping")
	s.bus.Publish(bus.StatsPingSent, nil)
}

func (s *Session) handleIQ(_ xmpp.Sender, p stanza.Packet) {
	iq, ok := p.(*stanza.IQ)
	if !ok {
		return
	}
	if iq.Type != "result" {
		return
	}

	s.mu.Lock()
	_, outstanding := s.outstandingPings[iq.Id]
	if outstanding {
		delete(s.outstandingPings, iq.Id)
	}
	s.mu.Unlock()

	if outstanding {
		log.Debug().Str("ping_id", iq.Id).Msg("xmppsession: received pong")
		s.bus.Publish(bus.StatsPongReceived, nil)
	}
}

// handlePing answers a server-initiated XEP-0199 ping (iq type="get"
// carrying <ping xmlns='urn:xmpp:ping'/>) with an empty iq type="result"
// using the original stanza id, mirroring handleVersion.
func (s *Session) handlePing(sender xmpp.Sender, p stanza.Packet) {
	iq, ok := p.(*stanza.IQ)
	if !ok || iq.Type != "get" {
		return
	}

	resp, err := stanza.NewIQ(stanza.Attrs{Type: "result", From: iq.To, To: iq.From, Id: iq.Id})
	if err != nil {
		return
	}
	_ = sender.Send(resp)
}

func (s *Session) handleVersion(sender xmpp.Sender, p stanza.Packet) {
	iq, ok := p.(*stanza.IQ)
	if !ok {
		return
	}

	resp, err := stanza.NewIQ(stanza.Attrs{Type: "result", From: iq.To, To: iq.From, Id: iq.Id, Lang: "en"})
	if err != nil {
		return
	}
	resp.Version().SetInfo(versionName, s.cfg.Version, fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))
	_ = sender.Send(resp)
}

func (s *Session) handleMessage(_ xmpp.Sender, p stanza.Packet) {
	msg, ok := p.(stanza.Message)
	if !ok {
		return
	}

	s.mu.Lock()
	s.lastMessageTime = time.Now()
	s.mu.Unlock()
	s.bus.Publish(bus.StatsMessageReceived, nil)

	if msg.Type != "groupchat" {
		return
	}

	var ext nwwsExtension
	if !msg.Get(&ext) {
		return
	}

	s.mu.Lock()
	s.lastGroupchatMessageTime = time.Now()
	s.mu.Unlock()
	s.bus.Publish(bus.StatsMessageGroupchatReceived, nil)

	noaaport := buildNoaaport(ext.Text)
	prod, err := s.parser.Parse(noaaport)
	if err != nil {
		log.Warn().Err(err).Str("cccc", ext.Cccc).Str("awipsid", ext.AwipsID).Msg("xmppsession: failed to parse product")
		s.bus.Publish(bus.StatsMessageFailed, bus.MessageStatsMessage{
			Source:    ext.Cccc,
			AFOS:      ext.AwipsID,
			WMO:       ext.Ttaaii,
			ErrorKind: parseErrorKind(err),
		})
		return
	}

	log.Info().Str("product_id", prod.ProductID).Str("source", prod.Source).Msg("xmppsession: received product")
	s.bus.Publish(bus.StatsMessageProcessed, bus.MessageStatsMessage{
		Source:    prod.Source,
		AFOS:      prod.AFOS,
		WMO:       prod.WMOHeader,
		ProductID: prod.ProductID,
	})
	s.bus.Publish(bus.ProductReceived, bus.ProductMessage{Product: prod})
	s.bus.Publish(bus.StatsMessagePublished, nil)
}

func parseErrorKind(err error) string {
	var pe *product.ParseError
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	return ""
}

func (s *Session) joinMUC(client *xmpp.Client) error {
	to := fmt.Sprintf("%s/%s", mucRoom, time.Now().UTC().Format("200601021504"))
	log.Info().Str("jid", to).Msg("xmppsession: joining multi-user chat")

	err := client.Send(stanza.Presence{
		Attrs: stanza.Attrs{To: to},
		Extensions: []stanza.PresExtension{
			stanza.MucPresence{History: stanza.History{MaxStanzas: stanza.NewNullableInt(0)}},
		},
	})
	if err != nil {
		return fmt.Errorf("xmppsession: failed to join MUC: %w", err)
	}

	now := time.Now()
	s.mu.Lock()
	s.lastGroupchatMessageTime = now
	s.mu.Unlock()

	go func() {
		time.Sleep(2 * time.Second)
		if s.isShuttingDown() {
			return
		}
		confirmTo := fmt.Sprintf("%s/%s", mucRoom, time.Now().UTC().Format("200601021504"))
		if err := client.Send(stanza.Presence{Attrs: stanza.Attrs{To: confirmTo}}); err != nil {
			log.Debug().Err(err).Msg("xmppsession: failed to send subscription confirmation presence")
		}
	}()

	return nil
}

func (s *Session) shutdown(client *xmpp.Client) {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	to := fmt.Sprintf("%s/%s", mucRoom, time.Now().UTC().Format("200601021504"))
	if err := client.Send(stanza.Presence{Attrs: stanza.Attrs{To: to, Type: stanza.PresenceTypeUnavailable}}); err != nil {
		log.Warn().Err(err).Msg("xmppsession: failed to send presence unavailable")
	}
	if err := client.Disconnect(); err != nil {
		log.Warn().Err(err).Msg("xmppsession: error during disconnect")
	}
}

func (s *Session) errorHandler(err error) {
	log.Error().Err(err).Msg("xmppsession: xmpp stream error")
	select {
	case s.errCh <- err:
	default:
	}
}

func (s *Session) wait(ctx context.Context, attempt int) bool {
	delay, ok := backoffDelay(attempt)
	if !ok {
		return false
	}
	s.bus.Publish(bus.StatsReconnectAttempt, nil)
	log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("xmppsession: scheduling reconnect")

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Session) giveUp() error {
	log.Error().Msg("xmppsession: maximum reconnection attempts reached")
	s.bus.Publish(bus.XMPPError, bus.ErrorMessage{Text: "Maximum reconnection attempts reached"})
	return errMaxReconnectAttempts
}

func (s *Session) resetOutstandingPings() {
	s.mu.Lock()
	s.outstandingPings = make(map[string]struct{})
	s.mu.Unlock()
}

func (s *Session) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "auth")
}
