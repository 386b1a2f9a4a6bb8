// Package transport wraps NATS core (no JetStream) with the three
// messaging primitives the sequencer backbone is built from: fan-in
// pull, fan-out publish, and synchronous request/reply.
package transport

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Conn wraps a single NATS connection shared by every primitive in this
// package. It carries no business logic of its own.
type Conn struct {
	nc     *nats.Conn
	log    *zap.Logger
	closed chan struct{}
}

// Options configures the underlying NATS connection.
type Options struct {
	URL             string
	Name            string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
}

// DefaultOptions returns sane defaults for a long-lived backbone process.
func DefaultOptions(url, name string) Options {
	return Options{
		URL:             url,
		Name:            name,
		MaxReconnects:   -1, // retry forever; the backbone has no fallback transport
		ReconnectWait:   2 * time.Second,
		ReconnectJitter: 500 * time.Millisecond,
	}
}

// Connect dials NATS and installs logging connection-event handlers.
func Connect(opts Options, log *zap.Logger) (*Conn, error) {
	c := &Conn{log: log, closed: make(chan struct{})}

	natsOpts := []nats.Option{
		nats.Name(opts.Name),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.ReconnectJitter(opts.ReconnectJitter, opts.ReconnectJitter),
		nats.ConnectHandler(c.onConnect),
		nats.DisconnectErrHandler(c.onDisconnect),
		nats.ReconnectHandler(c.onReconnect),
		nats.ErrorHandler(c.onError),
		nats.ClosedHandler(c.onClosed),
	}

	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("transport: connect to %s: %w", opts.URL, err)
	}
	c.nc = nc
	return c, nil
}

func (c *Conn) onConnect(nc *nats.Conn) {
	c.log.Info("transport connected", zap.String("url", nc.ConnectedUrl()))
}

func (c *Conn) onDisconnect(nc *nats.Conn, err error) {
	if err != nil {
		c.log.Warn("transport disconnected", zap.Error(err))
		return
	}
	c.log.Info("transport disconnected")
}

func (c *Conn) onReconnect(nc *nats.Conn) {
	c.log.Info("transport reconnected", zap.String("url", nc.ConnectedUrl()))
}

func (c *Conn) onError(nc *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	c.log.Error("transport error", zap.String("subject", subject), zap.Error(err))
}

func (c *Conn) onClosed(nc *nats.Conn) {
	close(c.closed)
}

// IsConnected reports whether the underlying connection is currently up.
func (c *Conn) IsConnected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// Drain flushes in-flight messages and closes the connection, waiting
// for subscriptions to finish processing what they already received.
func (c *Conn) Drain() error {
	if c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}

// Close closes the connection immediately, discarding anything in flight.
func (c *Conn) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}

// Raw exposes the underlying *nats.Conn for callers that need NATS
// features this package doesn't wrap (e.g. JetStream is deliberately
// never exposed here — this backbone has no cross-restart persistence
// requirement).
func (c *Conn) Raw() *nats.Conn {
	return c.nc
}
