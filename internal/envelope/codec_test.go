package envelope

import (
	"errors"
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip_OrderBook(t *testing.T) {
	in := Envelope{
		MsgType:      MsgOrderBook,
		MsgTime:      1_700_000_000_000,
		Exchange:     "cryptocom",
		Symbol:       "BTC/USD",
		ConnectionID: "md-1",
		Data: OrderBookData{
			Timestamp: 1_699_999_999_000,
			Bids:      []PriceLevel{{60000, 1.5}, {59990, 2}},
			Asks:      []PriceLevel{{60010, 0.75}},
		},
	}

	b, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if out.MsgType != in.MsgType || out.MsgTime != in.MsgTime || out.Exchange != in.Exchange ||
		out.Symbol != in.Symbol || out.ConnectionID != in.ConnectionID {
		t.Fatalf("envelope fields mismatch: got %+v, want %+v", out, in)
	}
	if !reflect.DeepEqual(out.Data, in.Data) {
		t.Fatalf("data mismatch: got %#v, want %#v", out.Data, in.Data)
	}
}

func TestEncodeDecodeRoundTrip_CreateOrder(t *testing.T) {
	in := Envelope{
		MsgType:      MsgCreateOrder,
		MsgTime:      42,
		ConnectionID: "strat-1",
		Data: CreateOrderData{
			Symbol: "BTC/USD",
			Type:   "limit",
			Side:   "buy",
			Amount: 0.01,
			Price:  60000,
			Params: OrderParams{ClientOrderID: "abc123", PostOnly: true},
		},
	}

	b, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(out.Data, in.Data) {
		t.Fatalf("data mismatch: got %#v, want %#v", out.Data, in.Data)
	}
}

func TestEncodeDecodeRoundTrip_Control(t *testing.T) {
	in := Connect("gw-1")
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
	if !out.IsControl() {
		t.Fatalf("expected control message")
	}
	if out.MsgTime != 0 {
		t.Fatalf("expected zero MsgTime on control message, got %d", out.MsgTime)
	}
}

func TestDecode_Truncated(t *testing.T) {
	_, err := Decode([]byte{0xc1, 0xff})
	if err == nil {
		t.Fatal("expected error decoding truncated bytes")
	}
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected *DecodeError, got %T: %v", err, err)
	}
}

func TestDecode_EmptyData(t *testing.T) {
	b, err := Encode(Envelope{MsgType: MsgCancelAllOrder, ConnectionID: "strat-1"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Data != nil {
		t.Fatalf("expected nil Data, got %#v", out.Data)
	}
}
