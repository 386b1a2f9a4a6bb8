package archive

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/odin-trading/sequencer/internal/envelope"
	"github.com/odin-trading/sequencer/internal/metrics"
	"github.com/odin-trading/sequencer/internal/transport"
)

// Subscriber binds the egress fan-out subject to a Writer, ported from
// message_logger.py's receive_and_log loop: every published envelope is
// decoded and appended to the archival log, with no reply or further
// publication of its own.
type Subscriber struct {
	writer  *Writer
	metrics *metrics.Registry
	log     zerolog.Logger

	sub *transport.Subscription
}

// NewSubscriber wires a Writer to the given egress subject.
func NewSubscriber(writer *Writer, reg *metrics.Registry, log zerolog.Logger) *Subscriber {
	return &Subscriber{writer: writer, metrics: reg, log: log}
}

// Start subscribes subject on conn and begins archiving every envelope
// received on it.
func (s *Subscriber) Start(conn *transport.Conn, subject string) error {
	sub, err := transport.Subscribe(conn, subject, func(data []byte) {
		s.handle(data)
	})
	if err != nil {
		return fmt.Errorf("archive: subscribe %s: %w", subject, err)
	}
	s.sub = sub
	return nil
}

// Stop unsubscribes and flushes the writer.
func (s *Subscriber) Stop() error {
	if s.sub != nil {
		if err := s.sub.Stop(); err != nil {
			return fmt.Errorf("archive: unsubscribe: %w", err)
		}
	}
	return s.writer.Close()
}

func (s *Subscriber) handle(data []byte) {
	env, err := envelope.Decode(data)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to decode envelope for archival")
		s.metrics.TransportErrors.Inc()
		return
	}
	if env.IsControl() {
		return
	}
	if err := s.writer.Write(string(env.MsgType), env.MsgTime, env.Exchange, env.Symbol, env.ConnectionID, env.Data); err != nil {
		s.log.Error().Err(err).Msg("failed to write archived envelope")
		return
	}
	s.metrics.MessagesIngested.Inc()
	s.log.Debug().Str("msg_type", string(env.MsgType)).Int64("msg_time", env.MsgTime).Msg("archived envelope")
}
