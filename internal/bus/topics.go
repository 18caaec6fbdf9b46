package bus

// Topic is a string identifier drawn from the closed set below (spec §6.5).
// Publishing a shape other than the one documented for a topic is a
// programmer error.
type Topic string

const (
	ProductReceived Topic = "product.received"

	XMPPConnected    Topic = "xmpp.connected"
	XMPPDisconnected Topic = "xmpp.disconnected"
	XMPPError        Topic = "xmpp.error"

	StatsConnectionAttempt    Topic = "stats.connection.attempt"
	StatsConnectionEstablished Topic = "stats.connection.established"
	StatsConnectionLost       Topic = "stats.connection.lost"
	StatsConnectionError      Topic = "stats.connection.error"
	StatsReconnectAttempt     Topic = "stats.reconnect.attempt"
	StatsAuthFailure          Topic = "stats.auth.failure"
	StatsPingSent             Topic = "stats.ping.sent"
	StatsPongReceived         Topic = "stats.pong.received"

	StatsMessageReceived           Topic = "stats.message.received"
	StatsMessageGroupchatReceived  Topic = "stats.message.groupchat.received"
	StatsMessageProcessed          Topic = "stats.message.processed"
	StatsMessageFailed             Topic = "stats.message.failed"
	StatsMessagePublished          Topic = "stats.message.published"

	StatsHandlerRegistered       Topic = "stats.handler.registered"
	StatsHandlerConnected        Topic = "stats.handler.connected"
	StatsHandlerDisconnected     Topic = "stats.handler.disconnected"
	StatsHandlerPublishSuccess   Topic = "stats.handler.publish.success"
	StatsHandlerPublishFailed    Topic = "stats.handler.publish.failed"
	StatsHandlerConnectionError  Topic = "stats.handler.connection.error"
)
