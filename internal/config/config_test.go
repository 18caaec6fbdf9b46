package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(lookupFrom(map[string]string{
		"NWWS_USERNAME": "user",
		"NWWS_PASSWORD": "pass",
	}))
	require.NoError(t, err)

	assert.Equal(t, "nwws-oi.weather.gov", cfg.XMPP.Server)
	assert.Equal(t, 5222, cfg.XMPP.Port)
	assert.Equal(t, "nwws", cfg.MQTT.TopicPrefix)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.False(t, cfg.MQTT.Retain)
	assert.Equal(t, 60, cfg.StatsInterval)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, 8080, cfg.MetricsPort)
	assert.Nil(t, cfg.EnabledHandlers)
}

func TestLoadMissingCredentialsIsFatal(t *testing.T) {
	_, err := Load(lookupFrom(map[string]string{}))
	assert.Error(t, err)
}

func TestLoadMqttHandlerRequiresBroker(t *testing.T) {
	_, err := Load(lookupFrom(map[string]string{
		"NWWS_USERNAME":    "user",
		"NWWS_PASSWORD":    "pass",
		"ENABLED_HANDLERS": "console,mqtt",
	}))
	assert.Error(t, err)
}

func TestLoadParsesEnabledHandlersAndMqttOptions(t *testing.T) {
	cfg, err := Load(lookupFrom(map[string]string{
		"NWWS_USERNAME":    "user",
		"NWWS_PASSWORD":    "pass",
		"ENABLED_HANDLERS": " console , mqtt ",
		"MQTT_BROKER":      "mqtt.example.com",
		"MQTT_QOS":         "2",
		"MQTT_RETAIN":      "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"console", "mqtt"}, cfg.EnabledHandlers)
	assert.Equal(t, byte(2), cfg.MQTT.QoS)
	assert.True(t, cfg.MQTT.Retain)
}

func TestLoadRejectsInvalidQoS(t *testing.T) {
	_, err := Load(lookupFrom(map[string]string{
		"NWWS_USERNAME": "user",
		"NWWS_PASSWORD": "pass",
		"MQTT_QOS":      "3",
	}))
	assert.Error(t, err)
}

func TestLoadRejectsUnparseablePort(t *testing.T) {
	_, err := Load(lookupFrom(map[string]string{
		"NWWS_USERNAME": "user",
		"NWWS_PASSWORD": "pass",
		"NWWS_PORT":     "not-a-number",
	}))
	assert.Error(t, err)
}
