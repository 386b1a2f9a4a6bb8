// Package sequencer implements the total-order point of the backbone:
// it pulls messages from gateway producers, assigns a monotonic virtual
// timestamp, round-trips each message to every connected strategy, folds
// the strategy-emitted follow-ups back into the same sequenced tick, and
// publishes everything on the egress fan-out subject.
package sequencer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/odin-trading/sequencer/internal/config"
	"github.com/odin-trading/sequencer/internal/envelope"
	"github.com/odin-trading/sequencer/internal/metrics"
	"github.com/odin-trading/sequencer/internal/ratelimit"
	"github.com/odin-trading/sequencer/internal/transport"
)

// publisher is the egress capability the Sequencer needs. *transport.Conn
// (via the package-level Publish helper, wrapped below) satisfies it in
// production; tests substitute a recording fake.
type publisher interface {
	Publish(subject string, data []byte) error
}

type connPublisher struct{ conn *transport.Conn }

func (p connPublisher) Publish(subject string, data []byte) error {
	return transport.Publish(p.conn, subject, data)
}

// Sequencer is the single-owner loop at the center of the backbone: it
// owns the ingress queue and the connection table, and every field
// below is touched exclusively by the goroutine running Run, except
// where noted.
type Sequencer struct {
	conn          *transport.Conn
	ingress       *transport.PullConsumer
	ingressCh     chan []byte
	egressSubject string
	pub           publisher
	newRequester  func(subject string) roundTripper

	table *connTable
	guard *ratelimit.QueueGuard

	strategyTimeout time.Duration

	metrics *metrics.Registry
	log     *zap.Logger
}

// New wires a Sequencer to an already-connected transport.Conn. Call
// Start to begin consuming ingress.
func New(conn *transport.Conn, cfg config.QueueConfig, reg *metrics.Registry, guard *ratelimit.QueueGuard, log *zap.Logger) *Sequencer {
	return &Sequencer{
		conn:          conn,
		ingressCh:     make(chan []byte, 4096),
		egressSubject: transport.EgressSubject,
		pub:           connPublisher{conn: conn},
		newRequester: func(subject string) roundTripper {
			return transport.NewRequester(conn, subject)
		},
		table:           newConnTable(),
		guard:           guard,
		strategyTimeout: cfg.StrategyTimeout,
		metrics:         reg,
		log:             log,
	}
}

// Start subscribes the ingress queue group. The handler only hands the
// raw payload to a buffered channel — all decoding and business logic
// happens on Run's single goroutine, preserving the one-event-loop-per-
// process model even though nats.go delivers messages on its own
// goroutine.
func (s *Sequencer) Start() error {
	pc, err := transport.Pull(s.conn, transport.IngressSubject, transport.IngressQueue, func(data []byte) {
		s.ingressCh <- data
	})
	if err != nil {
		return err
	}
	s.ingress = pc
	return nil
}

// Stop unsubscribes ingress. Run's caller should cancel its context
// first so the loop goroutine exits before any in-flight tick is lost.
func (s *Sequencer) Stop() error {
	if s.ingress == nil {
		return nil
	}
	return s.ingress.Stop()
}

// Run is the main loop. It returns when ctx is cancelled.
func (s *Sequencer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-s.ingressCh:
			s.handleIngress(ctx, data)
		}
	}
}

func (s *Sequencer) handleIngress(ctx context.Context, data []byte) {
	m0, err := envelope.Decode(data)
	if err != nil {
		s.log.Error("ingress decode failed, dropping message", zap.Error(err))
		return
	}
	s.metrics.MessagesIngested.Inc()

	switch m0.MsgType {
	case envelope.MsgConnect:
		s.handleConnect(m0)
	case envelope.MsgDisconnect:
		s.handleDisconnect(m0)
	default:
		s.runTick(ctx, m0)
	}
}

// handleConnect opens a request/reply requester to the strategy's
// subject and adds it to the connection table.
func (s *Sequencer) handleConnect(m0 envelope.Envelope) {
	subject := transport.StrategySubject(m0.ConnectionID)
	s.table.add(m0.ConnectionID, s.newRequester(subject))
	s.metrics.Connections.Set(float64(s.table.len()))
	s.log.Info("strategy connected", zap.String("connection_id", m0.ConnectionID))
}

// handleDisconnect removes connection_id from the table.
func (s *Sequencer) handleDisconnect(m0 envelope.Envelope) {
	s.table.remove(m0.ConnectionID)
	s.metrics.Connections.Set(float64(s.table.len()))
	s.log.Info("strategy disconnected", zap.String("connection_id", m0.ConnectionID))
}

// runTick stamps one wall-clock sample shared by the triggering message
// and everything it transitively induces, draining the local queue
// before returning control to Run for the next ingress receive.
func (s *Sequencer) runTick(ctx context.Context, m0 envelope.Envelope) {
	t := time.Now().UnixNano()
	queue := []envelope.Envelope{m0}

	for len(queue) > 0 {
		s.guard.Observe(len(queue))
		s.metrics.QueueDepth.Set(float64(len(queue)))

		m := queue[0]
		queue = queue[1:]
		m.MsgTime = t

		encoded, err := envelope.Encode(m)
		if err != nil {
			// Encode is documented total for well-formed envelopes; a
			// failure here means a handler built an unencodable payload.
			s.log.Error("failed to encode message mid-tick, dropping", zap.Error(err), zap.String("msg_type", string(m.MsgType)))
			continue
		}

		follow := s.fanOut(ctx, encoded)
		for _, replies := range follow {
			queue = append(queue, replies...)
		}

		if err := s.pub.Publish(s.egressSubject, encoded); err != nil {
			s.log.Error("publish failed", zap.Error(err), zap.String("msg_type", string(m.MsgType)))
		} else {
			s.metrics.MessagesPublished.Inc()
		}
	}
}

// fanOut sends m to every connected strategy concurrently and returns
// each strategy's reply list indexed by its fixed fan-out position, so
// the caller can flatten them in deterministic connection order.
func (s *Sequencer) fanOut(ctx context.Context, encoded []byte) [][]envelope.Envelope {
	ids, reqs := s.table.snapshot()
	if len(ids) == 0 {
		return nil
	}

	results := make([][]envelope.Envelope, len(ids))
	failed := make([]bool, len(ids))

	var wg sync.WaitGroup
	wg.Add(len(ids))
	for i := range ids {
		go func(i int) {
			defer wg.Done()
			replyData, err := reqs[i].Request(encoded, s.strategyTimeout)
			if err != nil {
				s.log.Warn("round-trip failed, treating peer as disconnected",
					zap.String("connection_id", ids[i]), zap.Error(err))
				s.metrics.TransportErrors.Inc()
				if err == transport.ErrNoReply {
					s.metrics.RoundTripTimeouts.Inc()
				}
				failed[i] = true
				return
			}

			replies, err := envelope.DecodeReplies(replyData)
			if err != nil {
				s.log.Error("failed to decode reply list", zap.String("connection_id", ids[i]), zap.Error(err))
				return
			}
			results[i] = replies
			s.metrics.RoundTrips.Inc()
		}(i)
	}
	wg.Wait()

	// Remove failed peers from the table now, back on the owning
	// goroutine: a broken round trip is treated as an implicit DISCONNECT.
	for i, id := range ids {
		if failed[i] {
			s.table.remove(id)
			s.metrics.Connections.Set(float64(s.table.len()))
		}
	}

	return results
}
