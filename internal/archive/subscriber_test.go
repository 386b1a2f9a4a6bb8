package archive

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/odin-trading/sequencer/internal/envelope"
	"github.com/odin-trading/sequencer/internal/metrics"
)

func TestSubscriberHandle_SkipsControlMessages(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "test")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	reg := metrics.NewRegistry("test_" + t.Name())
	s := NewSubscriber(w, reg, zerolog.Nop())

	env := envelope.Connect("conn-1")
	encoded, err := envelope.Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	s.handle(encoded)

	if w.currentDate != "" {
		t.Fatalf("expected no file rotation for a control message, got date %q", w.currentDate)
	}
}

func TestSubscriberHandle_ArchivesDataMessage(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "test")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	reg := metrics.NewRegistry("test_" + t.Name())
	s := NewSubscriber(w, reg, zerolog.Nop())

	env := envelope.Envelope{
		MsgType:  envelope.MsgOrderBook,
		MsgTime:  time.Now().UnixNano(),
		Exchange: "cryptocom",
		Symbol:   "BTC_USD",
		Data: envelope.OrderBookData{
			Bids: []envelope.PriceLevel{{100, 1}},
		},
	}
	encoded, err := envelope.Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	s.handle(encoded)

	if w.currentDate == "" {
		t.Fatalf("expected the writer to have rotated into an open file")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSubscriberHandle_MalformedPayload_DoesNotPanic(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "test")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	reg := metrics.NewRegistry("test_" + t.Name())
	s := NewSubscriber(w, reg, zerolog.Nop())

	s.handle([]byte("not msgpack"))
}
