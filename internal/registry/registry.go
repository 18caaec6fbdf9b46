// Package registry owns the set of configured output sinks: starting and
// stopping them, falling back to a console sink when none are configured,
// and fanning out each received product to every connected sink.
package registry

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nwws-bridge/nwws-bridge/internal/bus"
	"github.com/nwws-bridge/nwws-bridge/internal/product"
	"github.com/nwws-bridge/nwws-bridge/internal/sinks"
)

// Factory builds a Sink by name. Registered once per sink type before
// Start is called.
type Factory func() (sinks.Sink, error)

// Registry manages the lifecycle of configured sinks and fans out products
// received on the bus to every sink that reports itself connected. Each
// sink gets its own worker goroutine so one slow or wedged sink never
// blocks delivery to the others; deliveries within a single sink are still
// strictly serialized through that sink's queue.
type Registry struct {
	b *bus.Bus

	factories map[string]Factory

	mu      sync.Mutex
	workers []*sinkWorker
	started bool
}

type sinkWorker struct {
	sink  sinks.Sink
	queue chan *product.Product
	done  chan struct{}
}

// New returns an empty Registry. Call Register for every supported sink
// type before Start.
func New(b *bus.Bus) *Registry {
	return &Registry{b: b, factories: make(map[string]Factory)}
}

// Register associates a sink type name (case-insensitive, e.g. "console",
// "mqtt") with a Factory that constructs it.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[strings.ToLower(name)] = factory
}

// Start instantiates and starts every handler named in enabledHandlers. A
// handler name with no registered factory is skipped with a warning. If no
// handler starts successfully, or enabledHandlers is empty, it falls back
// to a console sink. Starting an already-started registry is a no-op.
func (r *Registry) Start(ctx context.Context, enabledHandlers []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started []*sinkWorker
	)
	for _, name := range enabledHandlers {
		key := strings.ToLower(strings.TrimSpace(name))
		factory, ok := r.factories[key]
		if !ok {
			log.Warn().Str("handler", key).Msg("registry: unknown output handler")
			continue
		}

		wg.Add(1)
		go func(key string, factory Factory) {
			defer wg.Done()

			sink, err := factory()
			if err != nil {
				log.Error().Err(err).Str("handler", key).Msg("registry: failed to construct output handler")
				return
			}

			worker, err := r.startSink(ctx, sink)
			if err != nil {
				return
			}

			mu.Lock()
			started = append(started, worker)
			mu.Unlock()
		}(key, factory)
	}
	wg.Wait()

	if len(started) == 0 {
		log.Warn().Msg("registry: no output handlers configured, falling back to console")
		worker, err := r.startSink(ctx, consoleFallback())
		if err != nil {
			return err
		}
		started = append(started, worker)
	}

	r.workers = started
	r.started = true
	r.b.Subscribe(bus.ProductReceived, r.onProductReceived)
	return nil
}

// consoleFallback builds the sink started when no configured handler
// starts: the real console sink.
var consoleFallback = func() sinks.Sink { return sinks.NewConsole() }

func (r *Registry) startSink(ctx context.Context, sink sinks.Sink) (*sinkWorker, error) {
	name := sink.Name()
	r.b.Publish(bus.StatsHandlerRegistered, bus.HandlerStatsMessage{HandlerName: name, HandlerType: name})

	if err := sink.Start(ctx); err != nil {
		log.Error().Err(err).Str("handler", name).Msg("registry: failed to start output handler")
		r.b.Publish(bus.StatsHandlerConnectionError, bus.HandlerStatsMessage{HandlerName: name})
		return nil, err
	}

	if sink.IsConnected() {
		r.b.Publish(bus.StatsHandlerConnected, bus.HandlerStatsMessage{HandlerName: name})
	}

	worker := &sinkWorker{
		sink:  sink,
		queue: make(chan *product.Product, 64),
		done:  make(chan struct{}),
	}
	go r.runWorker(worker)
	return worker, nil
}

func (r *Registry) runWorker(w *sinkWorker) {
	defer close(w.done)
	name := w.sink.Name()
	for p := range w.queue {
		if !w.sink.IsConnected() {
			log.Warn().Str("handler", name).Msg("registry: handler not connected, skipping")
			continue
		}
		if err := w.sink.Publish(context.Background(), p); err != nil {
			log.Error().Err(err).Str("handler", name).Str("product_id", p.ProductID).Msg("registry: failed to publish to handler")
			r.b.Publish(bus.StatsHandlerPublishFailed, bus.HandlerStatsMessage{HandlerName: name})
			continue
		}
		r.b.Publish(bus.StatsHandlerPublishSuccess, bus.HandlerStatsMessage{HandlerName: name})
	}
}

func (r *Registry) onProductReceived(msg any) {
	pm, ok := msg.(bus.ProductMessage)
	if !ok || pm.Product == nil {
		return
	}

	r.mu.Lock()
	workers := r.workers
	r.mu.Unlock()

	if len(workers) == 0 {
		log.Warn().Msg("registry: no output handlers available")
		return
	}

	for _, w := range workers {
		select {
		case w.queue <- pm.Product:
		default:
			log.Warn().Str("handler", w.sink.Name()).Msg("registry: handler queue full, dropping product")
		}
	}
}

// Stop stops every running sink concurrently and unsubscribes from the
// bus. Stopping a registry that was never started, or stopping twice, is
// a no-op.
func (r *Registry) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	workers := r.workers
	r.workers = nil
	r.started = false
	r.mu.Unlock()

	r.b.Unsubscribe(bus.ProductReceived, r.onProductReceived)

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *sinkWorker) {
			defer wg.Done()
			close(w.queue)
			<-w.done

			name := w.sink.Name()
			if err := w.sink.Stop(ctx); err != nil {
				log.Error().Err(err).Str("handler", name).Msg("registry: failed to stop output handler")
				return
			}
			r.b.Publish(bus.StatsHandlerDisconnected, bus.HandlerStatsMessage{HandlerName: name})
		}(w)
	}
	wg.Wait()
}

// ConnectedCount returns the number of currently connected sinks.
func (r *Registry) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, w := range r.workers {
		if w.sink.IsConnected() {
			count++
		}
	}
	return count
}
