package sinks

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/nwws-bridge/nwws-bridge/internal/product"
)

// Console prints each product's canonical JSON representation to a writer,
// one line per product. It is always connected and is the fallback sink
// used when no other sink is configured.
type Console struct {
	out io.Writer
}

// NewConsole returns a Console writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Start(_ context.Context) error {
	log.Info().Msg("sinks/console: starting")
	return nil
}

func (c *Console) Stop(_ context.Context) error {
	log.Info().Msg("sinks/console: stopping")
	return nil
}

func (c *Console) IsConnected() bool { return true }

func (c *Console) Publish(_ context.Context, p *product.Product) error {
	data, err := p.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("sinks/console: %w", err)
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}
