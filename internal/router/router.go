// Package router wires the transport, the bus and its listeners, and the
// HTTP API into one running process.
package router

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ibs-source/iot-router/internal/bus"
	"github.com/ibs-source/iot-router/internal/config"
	"github.com/ibs-source/iot-router/internal/directory"
	"github.com/ibs-source/iot-router/internal/forward"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/ibs-source/iot-router/internal/message"
	"github.com/ibs-source/iot-router/internal/method"
	"github.com/ibs-source/iot-router/internal/mqtt"
	"github.com/ibs-source/iot-router/internal/storage"
	"github.com/ibs-source/iot-router/internal/topic"
)

// StorageGroup is the bus consumer group of the state writer.
const StorageGroup = "storage"

// Transport delivers upstream publishes.
type Transport interface {
	Subscribe(filter string, handler mqtt.Handler) error
	Unsubscribe(filter string) error
}

// Pool is the shared worker pool.
type Pool interface {
	bus.Submitter
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// Deps are the collaborators of a Router. Forwarder and Handler are optional.
type Deps struct {
	Registry   *topic.Registry
	Directory  directory.Directory
	Normalizer *method.Normalizer
	Writer     *storage.Writer
	Forwarder  *forward.Forwarder
	Transport  Transport
	Pool       Pool
	Handler    http.Handler
	ServerID   string
}

// Router runs the inbound pipeline and the HTTP API.
type Router struct {
	deps            Deps
	bus             *bus.Bus
	inbound         *mqtt.Inbound
	subscribeTopic  string
	shutdownTimeout time.Duration
	http            config.HTTPConfig
	log             *log.Logger
}

// New builds the bus and registers every listener.
func New(cfg *config.Config, deps Deps, logger *log.Logger) (*Router, error) {
	r := &Router{
		deps:            deps,
		bus:             bus.New(deps.Registry, deps.Pool, logger),
		subscribeTopic:  cfg.MQTT.SubscribeTopic,
		shutdownTimeout: cfg.Pipeline.ShutdownTimeout,
		http:            cfg.HTTP,
		log:             logger,
	}
	r.inbound = mqtt.NewInbound(deps.Registry, deps.Directory, r.bus, deps.ServerID, cfg.Pipeline.TaskTimeout, logger)

	for _, sub := range r.listeners() {
		if err := r.bus.Register(sub); err != nil {
			return nil, fmt.Errorf("failed to register %s/%s: %w", sub.Kind, sub.Group, err)
		}
	}
	return r, nil
}

// listeners is the startup registry of (kind, group, handler) tuples.
func (r *Router) listeners() []bus.Subscriber {
	var subs []bus.Subscriber
	for _, tpl := range r.deps.Registry.Templates() {
		if tpl.Direction != topic.Upstream {
			continue
		}
		subs = append(subs, bus.Subscriber{Kind: tpl.Kind, Group: StorageGroup, Handler: r.normalized(r.deps.Writer.Store)})
	}
	if r.deps.Forwarder != nil {
		for _, kind := range forward.Kinds {
			subs = append(subs, bus.Subscriber{Kind: kind, Group: forward.Group, Handler: r.normalized(r.deps.Forwarder.Handle)})
		}
	}
	return subs
}

// normalized corrects the method of each subscriber's copy before next
// sees it.
func (r *Router) normalized(next bus.Handler) bus.Handler {
	return func(ctx context.Context, msg message.DeviceMessage, tpl *topic.Template) error {
		r.deps.Normalizer.Normalize(&msg, tpl)
		return next(ctx, msg, tpl)
	}
}

// Bus exposes the message bus for in-process publishers.
func (r *Router) Bus() *bus.Bus {
	return r.bus
}

// startLoop starts a loop goroutine and reports non-canceled errors
func (r *Router) startLoop(
	ctx context.Context,
	wg *sync.WaitGroup,
	name string,
	loop func(context.Context) error,
	errCh chan<- error,
) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("%s loop error: %w", name, err)
		}
	}()
}

// Run starts the pool, the HTTP listener and the upstream subscription,
// and blocks until ctx is done or a loop fails. On return the subscription
// is dropped first, then the HTTP listener, and the pool drains last.
func (r *Router) Run(ctx context.Context) error {
	r.log.Info("Starting router")

	if err := r.deps.Pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	defer func() {
		if err := r.deps.Pool.Stop(r.shutdownTimeout); err != nil {
			r.log.Error("Worker pool did not drain: %v", err)
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)

	if r.deps.Handler != nil {
		ln, err := net.Listen("tcp", r.http.Address)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", r.http.Address, err)
		}
		r.startLoop(ctx, &wg, "http", func(ctx context.Context) error { return r.serve(ctx, ln) }, errCh)
	}

	if err := r.deps.Transport.Subscribe(r.subscribeTopic, func(topicName string, payload []byte) {
		r.inbound.Handle(topicName, payload)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.subscribeTopic, err)
	}
	defer func() {
		if err := r.deps.Transport.Unsubscribe(r.subscribeTopic); err != nil {
			r.log.Warn("Failed to unsubscribe from %s: %v", r.subscribeTopic, err)
		}
	}()

	select {
	case <-ctx.Done():
		r.log.Info("Shutting down router")
		return ctx.Err()
	case err := <-errCh:
		r.log.Error("Router error: %v", err)
		return err
	}
}

// serve runs the API until ctx is done.
func (r *Router) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           r.deps.Handler,
		ReadTimeout:       r.http.ReadTimeout,
		ReadHeaderTimeout: r.http.ReadTimeout,
		WriteTimeout:      r.http.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		r.log.Info("HTTP API listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return ctx.Err()
	}
}

// Close releases the forwarder.
func (r *Router) Close() error {
	if r.deps.Forwarder != nil {
		return r.deps.Forwarder.Close()
	}
	return nil
}
