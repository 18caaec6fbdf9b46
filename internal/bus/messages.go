package bus

import "github.com/nwws-bridge/nwws-bridge/internal/product"

// ProductMessage is the payload of the ProductReceived topic.
type ProductMessage struct {
	Product *product.Product
}

// MessageStatsMessage is the payload of the stats.message.* topics.
type MessageStatsMessage struct {
	Source    string
	AFOS      string
	WMO       string
	ProductID string
	ErrorKind string
}

// HandlerStatsMessage is the payload of the stats.handler.* topics.
type HandlerStatsMessage struct {
	HandlerName string
	HandlerType string
}

// ErrorMessage is the payload of xmpp.error.
type ErrorMessage struct {
	Text string
}
