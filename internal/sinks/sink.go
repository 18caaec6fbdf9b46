// Package sinks provides the output destinations a received product can be
// delivered to: a console sink for local visibility and an MQTT sink for
// downstream consumers.
package sinks

import (
	"context"

	"github.com/nwws-bridge/nwws-bridge/internal/product"
)

// Sink is a pluggable output destination. Implementations must be safe for
// Publish to be called concurrently with IsConnected, but Start/Stop are
// only ever called sequentially by the registry.
type Sink interface {
	// Name identifies the sink for logging and stats (e.g. "console", "mqtt").
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Publish(ctx context.Context, p *product.Product) error
	IsConnected() bool
}
