package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// ErrNoReply distinguishes a request/reply timeout from other transport
// failures so callers (the Sequencer) can treat it as an implicit
// DISCONNECT rather than a hard error.
var ErrNoReply = errors.New("transport: no reply before deadline")

// Requester issues synchronous round trips to a single peer's subject.
// The Sequencer holds one Requester per connected strategy, opened on
// CONNECT and closed on DISCONNECT.
type Requester struct {
	conn    *Conn
	subject string
}

// NewRequester binds a Requester to subject. It does not itself open any
// network resource — NATS request/reply needs none beyond the shared
// connection — so construction cannot fail.
func NewRequester(conn *Conn, subject string) *Requester {
	return &Requester{conn: conn, subject: subject}
}

// Request sends data and blocks for a reply. If timeout is zero, it
// waits indefinitely (the default — reply timeouts are opt-in per the
// sequencer's configuration). On timeout it returns ErrNoReply.
func (r *Requester) Request(data []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = 365 * 24 * time.Hour // "indefinite" without blocking forever in nats.go's API
	}
	msg, err := r.conn.nc.Request(r.subject, data, timeout)
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return nil, ErrNoReply
		}
		return nil, fmt.Errorf("transport: request to %s: %w", r.subject, err)
	}
	return msg.Data, nil
}

// ReplyHandler produces exactly one reply payload for a request payload.
type ReplyHandler func(data []byte) []byte

// Replier answers requests sent to a subject, used by a strategy
// endpoint to implement its half of the round trip.
type Replier struct {
	sub *nats.Subscription
}

// Reply subscribes subject and invokes handler for each request,
// publishing its return value back to the requester. A handler must
// never block waiting on anything the Sequencer itself is waiting on,
// or the round trip deadlocks.
func Reply(conn *Conn, subject string, handler ReplyHandler) (*Replier, error) {
	sub, err := conn.nc.Subscribe(subject, func(msg *nats.Msg) {
		reply := handler(msg.Data)
		if msg.Reply == "" {
			return
		}
		_ = conn.nc.Publish(msg.Reply, reply)
	})
	if err != nil {
		return nil, fmt.Errorf("transport: reply-subscribe %s: %w", subject, err)
	}
	return &Replier{sub: sub}, nil
}

// Stop cancels the reply subscription.
func (r *Replier) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}
