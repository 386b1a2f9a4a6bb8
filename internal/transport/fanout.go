package transport

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// FanoutHandler processes one published payload delivered to a subscriber.
type FanoutHandler func(data []byte)

// Subscription is a live fan-out subscription.
type Subscription struct {
	sub *nats.Subscription
}

// Subscribe joins subject as a plain (non-queue-group) subscriber: every
// message published after Subscribe returns is delivered to this
// subscriber too, but nothing published before it joined is redelivered
// — there is no backlog for late subscribers.
func Subscribe(conn *Conn, subject string, handler FanoutHandler) (*Subscription, error) {
	sub, err := conn.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("transport: subscribe %s: %w", subject, err)
	}
	return &Subscription{sub: sub}, nil
}

// Stop cancels the subscription.
func (s *Subscription) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

// Publish fans a message out to every current subscriber of subject.
func Publish(conn *Conn, subject string, data []byte) error {
	if err := conn.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("transport: publish to %s: %w", subject, err)
	}
	return nil
}
