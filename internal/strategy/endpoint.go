// Package strategy implements the strategy-side half of the round trip:
// bind a reply endpoint under the sequencer's per-connection subject,
// frame it with CONNECT/DISCONNECT, and dispatch every request to user
// strategy code while enforcing the exactly-one-reply invariant even
// when that code panics.
package strategy

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/odin-trading/sequencer/internal/envelope"
	"github.com/odin-trading/sequencer/internal/metrics"
	"github.com/odin-trading/sequencer/internal/transport"
)

// Handler is user strategy business logic. It is invoked once per
// sequenced request and may call any number of methods on r to append
// follow-up envelopes to the in-flight reply list. It must not block on
// anything the Sequencer itself is waiting on — see transport.Reply.
type Handler interface {
	HandleRequest(ctx context.Context, req envelope.Envelope, r *Replies)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, req envelope.Envelope, r *Replies)

func (f HandlerFunc) HandleRequest(ctx context.Context, req envelope.Envelope, r *Replies) {
	f(ctx, req, r)
}

// Replies is the emit API given to user code: a strategy never builds
// envelope.Envelope values directly, it calls one of these.
type Replies struct {
	envs []envelope.Envelope
}

func (r *Replies) reset() {
	r.envs = r.envs[:0]
}

// Envelopes returns the reply list accumulated so far. Exposed mainly so
// a strategy.Handler implementation's own tests can assert on what it
// emitted without round-tripping through the wire codec.
func (r *Replies) Envelopes() []envelope.Envelope {
	return r.envs
}

// CreateOrder appends a CREATE_ORDER envelope to the in-flight reply
// list. side is normalized via envelope.NormalizeSide.
func (r *Replies) CreateOrder(exchange, symbol, side string, price, quantity float64, clientOrderID string, orderType string, postOnly bool) {
	if orderType == "" {
		orderType = "limit"
	}
	r.envs = append(r.envs, envelope.Envelope{
		MsgType:  envelope.MsgCreateOrder,
		Exchange: exchange,
		Symbol:   symbol,
		Data: envelope.CreateOrderData{
			Symbol: symbol,
			Type:   orderType,
			Side:   envelope.NormalizeSide(side),
			Amount: quantity,
			Price:  price,
			Params: envelope.OrderParams{ClientOrderID: clientOrderID, PostOnly: postOnly},
		},
	})
}

// CancelOrder appends a CANCEL_ORDER envelope to the in-flight reply
// list.
func (r *Replies) CancelOrder(exchange, symbol, orderID, clientOrderID string) {
	r.envs = append(r.envs, envelope.Envelope{
		MsgType:  envelope.MsgCancelOrder,
		Exchange: exchange,
		Symbol:   symbol,
		Data: envelope.CancelOrderData{
			ID:     orderID,
			Params: envelope.OrderParams{ClientOrderID: clientOrderID},
		},
	})
}

// CancelAll appends a CANCEL_ALL_ORDER envelope to the in-flight reply
// list.
func (r *Replies) CancelAll(exchange, symbol string) {
	r.envs = append(r.envs, envelope.Envelope{
		MsgType:  envelope.MsgCancelAllOrder,
		Exchange: exchange,
		Symbol:   symbol,
		Data:     envelope.CancelAllOrderData{Symbol: symbol},
	})
}

// Endpoint owns the per-connection reply-list lifecycle: bind the reply
// channel, frame it with CONNECT/DISCONNECT, and enforce exactly one
// reply per request regardless of what user code does.
type Endpoint struct {
	conn         *transport.Conn
	connectionID string
	handler      Handler
	metrics      *metrics.Registry
	log          *zap.Logger

	replier     *transport.Replier
	virtualTime int64
	mu          sync.Mutex // guards virtualTime; handler calls are serialized by NATS's per-subscription dispatch anyway
}

// New builds an Endpoint bound to connectionID. Call Start to send
// CONNECT and begin accepting requests.
func New(conn *transport.Conn, connectionID string, handler Handler, reg *metrics.Registry, log *zap.Logger) *Endpoint {
	return &Endpoint{
		conn:         conn,
		connectionID: connectionID,
		handler:      handler,
		metrics:      reg,
		log:          log,
	}
}

// Start sends CONNECT upstream and binds the reply endpoint.
func (e *Endpoint) Start(ctx context.Context) error {
	subject := transport.StrategySubject(e.connectionID)
	replier, err := transport.Reply(e.conn, subject, func(data []byte) []byte {
		return e.onRequest(ctx, data)
	})
	if err != nil {
		return fmt.Errorf("strategy: bind reply endpoint: %w", err)
	}
	e.replier = replier

	encoded, err := envelope.Encode(envelope.Connect(e.connectionID))
	if err != nil {
		return fmt.Errorf("strategy: encode CONNECT: %w", err)
	}
	if err := transport.Push(e.conn, transport.IngressSubject, encoded); err != nil {
		return fmt.Errorf("strategy: send CONNECT: %w", err)
	}
	e.log.Info("strategy endpoint started", zap.String("connection_id", e.connectionID))
	return nil
}

// Stop sends DISCONNECT and unbinds the reply endpoint.
func (e *Endpoint) Stop() error {
	encoded, err := envelope.Encode(envelope.Disconnect(e.connectionID))
	if err != nil {
		return fmt.Errorf("strategy: encode DISCONNECT: %w", err)
	}
	if err := transport.Push(e.conn, transport.IngressSubject, encoded); err != nil {
		e.log.Warn("failed to send DISCONNECT", zap.Error(err))
	}
	if e.replier == nil {
		return nil
	}
	return e.replier.Stop()
}

// onRequest decodes the request, updates virtualTime, dispatches to user
// code, and re-encodes whatever reply list resulted — user code panicking
// still yields an (empty) reply rather than crashing the endpoint.
func (e *Endpoint) onRequest(ctx context.Context, data []byte) []byte {
	req, err := envelope.Decode(data)
	if err != nil {
		e.log.Error("failed to decode request, replying empty", zap.Error(err))
		empty, _ := envelope.EncodeReplies(nil)
		return empty
	}

	if req.MsgTime != 0 {
		e.mu.Lock()
		e.virtualTime = req.MsgTime
		e.mu.Unlock()
	}

	replies := &Replies{}
	e.dispatch(ctx, req, replies)

	encoded, err := envelope.EncodeReplies(replies.envs)
	if err != nil {
		e.log.Error("failed to encode reply list, replying empty", zap.Error(err))
		empty, _ := envelope.EncodeReplies(nil)
		return empty
	}
	e.metrics.RepliesSent.Inc()
	return encoded
}

// dispatch calls user code and recovers any panic: on failure it sends
// an empty reply list and logs the exception rather than crashing the
// endpoint. A panic discards whatever the handler had already appended,
// so the reply is unconditionally empty.
func (e *Endpoint) dispatch(ctx context.Context, req envelope.Envelope, replies *Replies) {
	replies.reset()
	defer func() {
		if r := recover(); r != nil {
			replies.reset()
			e.log.Error("strategy handler panicked, sending empty reply list",
				zap.Any("panic", r), zap.String("msg_type", string(req.MsgType)))
		}
	}()
	e.handler.HandleRequest(ctx, req, replies)
}

// VirtualTime returns the most recently observed request's msg_time.
// Safe to call concurrently with onRequest.
func (e *Endpoint) VirtualTime() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.virtualTime
}
