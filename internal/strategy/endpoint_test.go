package strategy

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/odin-trading/sequencer/internal/envelope"
	"github.com/odin-trading/sequencer/internal/metrics"
)

func newTestEndpoint(t *testing.T, h Handler) *Endpoint {
	t.Helper()
	return &Endpoint{
		connectionID: "test-strategy",
		handler:      h,
		metrics:      metrics.NewRegistry("test_" + t.Name()),
		log:          zap.NewNop(),
	}
}

func encodeRequest(t *testing.T, m envelope.Envelope) []byte {
	t.Helper()
	b, err := envelope.Encode(m)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	return b
}

func TestOnRequest_EmptyReplyWhenHandlerEmitsNothing(t *testing.T) {
	e := newTestEndpoint(t, HandlerFunc(func(ctx context.Context, req envelope.Envelope, r *Replies) {}))
	reply := e.onRequest(context.Background(), encodeRequest(t, envelope.Envelope{MsgType: envelope.MsgOrderBook, MsgTime: 42}))

	replies, err := envelope.DecodeReplies(reply)
	if err != nil {
		t.Fatalf("decode reply list: %v", err)
	}
	if len(replies) != 0 {
		t.Fatalf("expected empty reply list, got %d", len(replies))
	}
	if e.VirtualTime() != 42 {
		t.Fatalf("expected virtual time updated to 42, got %d", e.VirtualTime())
	}
}

func TestOnRequest_EmitCreateOrder(t *testing.T) {
	e := newTestEndpoint(t, HandlerFunc(func(ctx context.Context, req envelope.Envelope, r *Replies) {
		r.CreateOrder("cryptocom", "BTC/USD", "BUY", 100, 2, "c1", "", true)
	}))
	reply := e.onRequest(context.Background(), encodeRequest(t, envelope.Envelope{MsgType: envelope.MsgOrderBook}))

	replies, err := envelope.DecodeReplies(reply)
	if err != nil {
		t.Fatalf("decode reply list: %v", err)
	}
	if len(replies) != 1 || replies[0].MsgType != envelope.MsgCreateOrder {
		t.Fatalf("expected one CREATE_ORDER reply, got %#v", replies)
	}
	data, ok := replies[0].Data.(envelope.CreateOrderData)
	if !ok {
		t.Fatalf("unexpected reply payload type %T", replies[0].Data)
	}
	if data.Side != "buy" || data.Type != "limit" || !data.Params.PostOnly {
		t.Fatalf("unexpected CREATE_ORDER payload: %#v", data)
	}
}

func TestOnRequest_MultipleEmits(t *testing.T) {
	e := newTestEndpoint(t, HandlerFunc(func(ctx context.Context, req envelope.Envelope, r *Replies) {
		r.CancelAll("cryptocom", "BTC/USD")
		r.CreateOrder("cryptocom", "BTC/USD", "sell", 101, 1, "c2", "limit", false)
	}))
	reply := e.onRequest(context.Background(), encodeRequest(t, envelope.Envelope{MsgType: envelope.MsgOrderBook}))

	replies, err := envelope.DecodeReplies(reply)
	if err != nil {
		t.Fatalf("decode reply list: %v", err)
	}
	if len(replies) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(replies))
	}
	if replies[0].MsgType != envelope.MsgCancelAllOrder || replies[1].MsgType != envelope.MsgCreateOrder {
		t.Fatalf("unexpected reply order: %s, %s", replies[0].MsgType, replies[1].MsgType)
	}
}

func TestOnRequest_PanicYieldsEmptyReply(t *testing.T) {
	e := newTestEndpoint(t, HandlerFunc(func(ctx context.Context, req envelope.Envelope, r *Replies) {
		r.CreateOrder("cryptocom", "BTC/USD", "buy", 100, 1, "c3", "limit", true)
		panic("boom")
	}))
	reply := e.onRequest(context.Background(), encodeRequest(t, envelope.Envelope{MsgType: envelope.MsgOrderBook}))

	replies, err := envelope.DecodeReplies(reply)
	if err != nil {
		t.Fatalf("decode reply list: %v", err)
	}
	if len(replies) != 0 {
		t.Fatalf("expected empty reply list after panic, got %d", len(replies))
	}
}

func TestOnRequest_MalformedRequestYieldsEmptyReply(t *testing.T) {
	e := newTestEndpoint(t, HandlerFunc(func(ctx context.Context, req envelope.Envelope, r *Replies) {
		t.Fatalf("handler must not be called for an undecodable request")
	}))
	reply := e.onRequest(context.Background(), []byte{0xff, 0x00, 0x01})

	replies, err := envelope.DecodeReplies(reply)
	if err != nil {
		t.Fatalf("decode reply list: %v", err)
	}
	if len(replies) != 0 {
		t.Fatalf("expected empty reply list for malformed request, got %d", len(replies))
	}
}
