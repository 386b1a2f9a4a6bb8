package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/odin-trading/sequencer/internal/envelope"
	"github.com/odin-trading/sequencer/internal/metrics"
	"github.com/odin-trading/sequencer/internal/ratelimit"
	"github.com/odin-trading/sequencer/internal/transport"
)

// fakeStrategy stands in for a connected strategy's request/reply
// binding: handle computes the reply list for one request, broken
// simulates a dead peer (S5).
type fakeStrategy struct {
	handle func(req envelope.Envelope) []envelope.Envelope
	broken bool
}

func (f *fakeStrategy) Request(data []byte, timeout time.Duration) ([]byte, error) {
	if f.broken {
		return nil, errors.New("connection refused")
	}
	req, err := envelope.Decode(data)
	if err != nil {
		return nil, err
	}
	var replies []envelope.Envelope
	if f.handle != nil {
		replies = f.handle(req)
	}
	return envelope.EncodeReplies(replies)
}

// recordingPublisher captures decoded envelopes in the order Publish
// was called.
type recordingPublisher struct {
	mu        sync.Mutex
	published []envelope.Envelope
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	m, err := envelope.Decode(data)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, m)
	return nil
}

func (p *recordingPublisher) snapshot() []envelope.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]envelope.Envelope, len(p.published))
	copy(out, p.published)
	return out
}

func newTestSequencer(t *testing.T, strategies map[string]*fakeStrategy) (*Sequencer, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	s := &Sequencer{
		egressSubject: transport.EgressSubject,
		pub:           pub,
		newRequester: func(subject string) roundTripper {
			for id, fs := range strategies {
				if transport.StrategySubject(id) == subject {
					return fs
				}
			}
			t.Fatalf("no fake strategy registered for subject %s", subject)
			return nil
		},
		table:   newConnTable(),
		guard:   ratelimit.NewQueueGuard(0, nil),
		metrics: metrics.NewRegistry("test_" + t.Name()),
		log:     zap.NewNop(),
	}
	return s, pub
}

func orderBookEnvelope(exchange, symbol string) envelope.Envelope {
	return envelope.Envelope{
		MsgType:  envelope.MsgOrderBook,
		Exchange: exchange,
		Symbol:   symbol,
		Data: envelope.OrderBookData{
			Bids: []envelope.PriceLevel{{100, 1}},
			Asks: []envelope.PriceLevel{{101, 1}},
		},
	}
}

func createOrderEnvelope(clientOrderID string, price, amount float64) envelope.Envelope {
	return envelope.Envelope{
		MsgType: envelope.MsgCreateOrder,
		Data: envelope.CreateOrderData{
			Symbol: "BTC/USD",
			Type:   "limit",
			Side:   "buy",
			Amount: amount,
			Price:  price,
			Params: envelope.OrderParams{ClientOrderID: clientOrderID},
		},
	}
}

func cancelOrderEnvelope(id string) envelope.Envelope {
	return envelope.Envelope{
		MsgType: envelope.MsgCancelOrder,
		Data:    envelope.CancelOrderData{ID: id},
	}
}

// S1 — pass-through: connected strategy replies empty, only the
// ingress message itself is published.
func TestS1_PassThrough(t *testing.T) {
	x := &fakeStrategy{handle: func(envelope.Envelope) []envelope.Envelope { return nil }}
	s, pub := newTestSequencer(t, map[string]*fakeStrategy{"X": x})

	s.handleConnect(envelope.Connect("X"))
	s.runTick(context.Background(), orderBookEnvelope("ex", "BTC/USD"))

	got := pub.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 published envelope, got %d", len(got))
	}
	if got[0].MsgType != envelope.MsgOrderBook {
		t.Fatalf("expected ORDER_BOOK, got %s", got[0].MsgType)
	}
}

// S2 — emit one order: X emits a CREATE_ORDER; expected publish order
// is ORDER_BOOK then CREATE_ORDER, sharing msg_time.
func TestS2_EmitOneOrder(t *testing.T) {
	x := &fakeStrategy{handle: func(req envelope.Envelope) []envelope.Envelope {
		if req.MsgType != envelope.MsgOrderBook {
			return nil
		}
		return []envelope.Envelope{createOrderEnvelope("c1", 100.5, 2)}
	}}
	s, pub := newTestSequencer(t, map[string]*fakeStrategy{"X": x})

	s.handleConnect(envelope.Connect("X"))
	s.runTick(context.Background(), orderBookEnvelope("ex", "BTC/USD"))

	got := pub.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 published envelopes, got %d", len(got))
	}
	if got[0].MsgType != envelope.MsgOrderBook || got[1].MsgType != envelope.MsgCreateOrder {
		t.Fatalf("unexpected publish order: %s, %s", got[0].MsgType, got[1].MsgType)
	}
	if got[0].MsgTime != got[1].MsgTime {
		t.Fatalf("expected shared msg_time, got %d vs %d", got[0].MsgTime, got[1].MsgTime)
	}
	create, ok := got[1].Data.(envelope.CreateOrderData)
	if !ok || create.Params.ClientOrderID != "c1" {
		t.Fatalf("unexpected CREATE_ORDER payload: %#v", got[1].Data)
	}
}

// S3 — two strategies, one emits each: publish order must be
// ORDER_BOOK, A's replies, then B's replies, in connection order.
func TestS3_TwoStrategiesFanOutOrder(t *testing.T) {
	a := &fakeStrategy{handle: func(req envelope.Envelope) []envelope.Envelope {
		if req.MsgType != envelope.MsgOrderBook {
			return nil
		}
		return []envelope.Envelope{createOrderEnvelope("c_a1", 100, 1)}
	}}
	b := &fakeStrategy{handle: func(req envelope.Envelope) []envelope.Envelope {
		if req.MsgType != envelope.MsgOrderBook {
			return nil
		}
		return []envelope.Envelope{cancelOrderEnvelope("42")}
	}}
	s, pub := newTestSequencer(t, map[string]*fakeStrategy{"A": a, "B": b})

	s.handleConnect(envelope.Connect("A"))
	s.handleConnect(envelope.Connect("B"))
	s.runTick(context.Background(), orderBookEnvelope("ex", "BTC/USD"))

	got := pub.snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 published envelopes, got %d", len(got))
	}
	if got[0].MsgType != envelope.MsgOrderBook {
		t.Fatalf("expected ORDER_BOOK first, got %s", got[0].MsgType)
	}
	if got[1].MsgType != envelope.MsgCreateOrder {
		t.Fatalf("expected A's CREATE_ORDER second, got %s", got[1].MsgType)
	}
	if got[2].MsgType != envelope.MsgCancelOrder {
		t.Fatalf("expected B's CANCEL_ORDER third, got %s", got[2].MsgType)
	}
	for i := 1; i < len(got); i++ {
		if got[i].MsgTime != got[0].MsgTime {
			t.Fatalf("envelope %d does not share the tick's msg_time", i)
		}
	}
}

// S4 — connect/disconnect mid-stream: after DISCONNECT, no fan-out is
// attempted to the departed connection.
func TestS4_ConnectDisconnectMidStream(t *testing.T) {
	calls := 0
	x := &fakeStrategy{handle: func(envelope.Envelope) []envelope.Envelope {
		calls++
		return nil
	}}
	s, pub := newTestSequencer(t, map[string]*fakeStrategy{"X": x})

	s.handleConnect(envelope.Connect("X"))
	s.runTick(context.Background(), orderBookEnvelope("ex", "BTC/USD"))
	s.handleDisconnect(envelope.Disconnect("X"))
	s.runTick(context.Background(), orderBookEnvelope("ex", "BTC/USD"))

	if calls != 1 {
		t.Fatalf("expected exactly 1 fan-out call before disconnect, got %d", calls)
	}
	if s.table.has("X") {
		t.Fatalf("expected X removed from connection table after DISCONNECT")
	}
	got := pub.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected both ORDER_BOOK messages published, got %d", len(got))
	}
}

// S5 — misbehaving peer: a broken round trip silently removes the
// peer from the connection table but the triggering message still
// publishes.
func TestS5_MisbehavingPeerRemoved(t *testing.T) {
	y := &fakeStrategy{broken: true}
	s, pub := newTestSequencer(t, map[string]*fakeStrategy{"Y": y})

	s.handleConnect(envelope.Connect("Y"))
	s.runTick(context.Background(), orderBookEnvelope("ex", "BTC/USD"))

	got := pub.snapshot()
	if len(got) != 1 || got[0].MsgType != envelope.MsgOrderBook {
		t.Fatalf("expected ORDER_BOOK published despite broken peer, got %#v", got)
	}
	if s.table.has("Y") {
		t.Fatalf("expected Y removed from connection table after failed round trip")
	}
}

// Property 2 — monotonic publication across ticks.
func TestMonotonicPublicationAcrossTicks(t *testing.T) {
	s, pub := newTestSequencer(t, nil)

	s.runTick(context.Background(), orderBookEnvelope("ex", "BTC/USD"))
	time.Sleep(time.Millisecond)
	s.runTick(context.Background(), orderBookEnvelope("ex", "ETH/USD"))

	got := pub.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 published envelopes, got %d", len(got))
	}
	if got[1].MsgTime < got[0].MsgTime {
		t.Fatalf("msg_time must be non-decreasing across ticks: %d then %d", got[0].MsgTime, got[1].MsgTime)
	}
}
