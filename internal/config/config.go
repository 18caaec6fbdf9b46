// Package config loads and validates the bridge's runtime configuration
// from environment variables, with an optional .env file for local
// development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// XMPP holds NWWS-OI session credentials and connection settings.
type XMPP struct {
	Username       string
	Password       string
	Server         string
	Port           int
	ConnectTimeout time.Duration
}

// MQTT holds the MQTT sink's broker connection and publish settings.
type MQTT struct {
	Broker               string
	Port                 int
	Username             string
	Password             string
	TopicPrefix          string
	QoS                  byte
	Retain               bool
	ClientID             string
	MessageExpiryMinutes int
}

// Config is the fully parsed and validated application configuration.
type Config struct {
	XMPP XMPP
	MQTT MQTT

	LogLevel string
	LogFile  string

	EnabledHandlers []string

	StatsInterval int

	MetricsEnabled        bool
	MetricsPort           int
	MetricsUpdateInterval int
}

// Load reads configuration through lookup (os.Getenv when nil) and
// validates it. It does not load a .env file itself; the entrypoint does
// that before calling Load. A non-nil error is a fatal configuration error per the exit code
// contract: the caller should exit 1 without attempting to start.
func Load(lookup func(string) string) (Config, error) {
	if lookup == nil {
		lookup = os.Getenv
	}

	cfg := Config{
		XMPP: XMPP{
			Username:       lookup("NWWS_USERNAME"),
			Password:       lookup("NWWS_PASSWORD"),
			Server:         orDefault(lookup("NWWS_SERVER"), "nwws-oi.weather.gov"),
			ConnectTimeout: 3 * time.Second,
		},
		MQTT: MQTT{
			Broker:      lookup("MQTT_BROKER"),
			Username:    lookup("MQTT_USERNAME"),
			Password:    lookup("MQTT_PASSWORD"),
			TopicPrefix: orDefault(lookup("MQTT_TOPIC_PREFIX"), "nwws"),
			ClientID:    orDefault(lookup("MQTT_CLIENT_ID"), "nwws-oi-client"),
		},
		LogLevel:              orDefault(lookup("LOG_LEVEL"), "info"),
		LogFile:               lookup("LOG_FILE"),
		StatsInterval:         60,
		MetricsEnabled:        true,
		MetricsPort:           8080,
		MetricsUpdateInterval: 30,
	}

	if err := parseIntDefault(lookup("NWWS_PORT"), 5222, &cfg.XMPP.Port); err != nil {
		return Config{}, fmt.Errorf("NWWS_PORT: %w", err)
	}
	if err := parseIntDefault(lookup("MQTT_PORT"), 1883, &cfg.MQTT.Port); err != nil {
		return Config{}, fmt.Errorf("MQTT_PORT: %w", err)
	}
	if err := parseIntDefault(lookup("STATS_INTERVAL"), 60, &cfg.StatsInterval); err != nil {
		return Config{}, fmt.Errorf("STATS_INTERVAL: %w", err)
	}
	if err := parseIntDefault(lookup("METRICS_PORT"), 8080, &cfg.MetricsPort); err != nil {
		return Config{}, fmt.Errorf("METRICS_PORT: %w", err)
	}
	if err := parseIntDefault(lookup("METRICS_UPDATE_INTERVAL"), 30, &cfg.MetricsUpdateInterval); err != nil {
		return Config{}, fmt.Errorf("METRICS_UPDATE_INTERVAL: %w", err)
	}
	if err := parseIntDefault(lookup("MQTT_MESSAGE_EXPIRY_MINUTES"), 60, &cfg.MQTT.MessageExpiryMinutes); err != nil {
		return Config{}, fmt.Errorf("MQTT_MESSAGE_EXPIRY_MINUTES: %w", err)
	}

	qos, err := parseQoS(lookup("MQTT_QOS"))
	if err != nil {
		return Config{}, fmt.Errorf("MQTT_QOS: %w", err)
	}
	cfg.MQTT.QoS = qos

	cfg.MQTT.Retain = parseBoolDefault(lookup("MQTT_RETAIN"), false)
	cfg.MetricsEnabled = parseBoolDefault(lookup("METRICS_ENABLED"), true)

	cfg.EnabledHandlers = splitCSV(lookup("ENABLED_HANDLERS"))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.XMPP.Username == "" || c.XMPP.Password == "" {
		return fmt.Errorf("NWWS_USERNAME and NWWS_PASSWORD are required")
	}
	if contains(c.EnabledHandlers, "mqtt") && c.MQTT.Broker == "" {
		return fmt.Errorf("MQTT_BROKER is required when the mqtt handler is enabled")
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseIntDefault(v string, def int, out *int) error {
	if v == "" {
		*out = def
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", v, err)
	}
	*out = n
	return nil
}

func parseBoolDefault(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func parseQoS(v string) (byte, error) {
	if v == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 2 {
		return 0, fmt.Errorf("must be 0, 1, or 2, got %q", v)
	}
	return byte(n), nil
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
