package transport

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// PullHandler processes one ingress payload. It must not block the
// caller for long; the sequencer's ingress queue group has exactly one
// member in this design, so a slow handler stalls the entire backbone.
type PullHandler func(data []byte)

// PullConsumer is the fan-in primitive: every producer publishes to the
// same subject, and every process in the named queue group receives a
// disjoint subset of messages. With a single queue member (the normal
// deployment here) that reduces to "every message, exactly once."
type PullConsumer struct {
	sub *nats.Subscription
}

// Pull subscribes subject under the given queue group and invokes
// handler for every message received.
func Pull(conn *Conn, subject, queueGroup string, handler PullHandler) (*PullConsumer, error) {
	sub, err := conn.nc.QueueSubscribe(subject, queueGroup, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("transport: queue-subscribe %s/%s: %w", subject, queueGroup, err)
	}
	return &PullConsumer{sub: sub}, nil
}

// Stop unsubscribes, releasing this process's share of the queue group.
func (p *PullConsumer) Stop() error {
	if p.sub == nil {
		return nil
	}
	return p.sub.Unsubscribe()
}

// Push publishes one message onto the fan-in subject. Any number of
// producers may call Push concurrently; ordering across producers is
// not guaranteed, matching the fan-in primitive's contract.
func Push(conn *Conn, subject string, data []byte) error {
	if err := conn.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("transport: push to %s: %w", subject, err)
	}
	return nil
}
