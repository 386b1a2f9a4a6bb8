package optitrade

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/odin-trading/sequencer/internal/config"
	"github.com/odin-trading/sequencer/internal/envelope"
	"github.com/odin-trading/sequencer/internal/strategy"
)

func testConfig() config.OptiTradeConfig {
	return config.OptiTradeConfig{
		Exchange:            "cryptocom",
		Symbol:              "BTC/USD",
		Side:                "buy",
		OrderSize:           1,
		TickSize:            0.5,
		ExecMode:            "tob",
		SleepTimeMs:         0,
		PostOnly:            true,
		ClientOrderIDPrefix: "opti-",
	}
}

func orderBookReq(t int64, bids, asks []envelope.PriceLevel) envelope.Envelope {
	return envelope.Envelope{
		MsgType:  envelope.MsgOrderBook,
		Exchange: "cryptocom",
		Symbol:   "BTC/USD",
		MsgTime:  t,
		Data:     envelope.OrderBookData{Bids: bids, Asks: asks},
	}
}

func TestNoOpenOrders_PlacesOne(t *testing.T) {
	s := New(testConfig(), zap.NewNop())
	r := &strategy.Replies{}
	s.HandleRequest(context.Background(), orderBookReq(1, []envelope.PriceLevel{{100, 1}}, []envelope.PriceLevel{{101, 1}}), r)

	replies := exported(r)
	if len(replies) != 1 || replies[0].MsgType != envelope.MsgCreateOrder {
		t.Fatalf("expected one CREATE_ORDER, got %#v", replies)
	}
	data := replies[0].Data.(envelope.CreateOrderData)
	if data.Price != 100 {
		t.Fatalf("expected TOB buy price 100, got %v", data.Price)
	}
	if data.Params.ClientOrderID != "opti-1" {
		t.Fatalf("expected client order id opti-1, got %s", data.Params.ClientOrderID)
	}
}

func TestWrongExchangeOrSymbol_Ignored(t *testing.T) {
	s := New(testConfig(), zap.NewNop())
	r := &strategy.Replies{}
	req := orderBookReq(1, []envelope.PriceLevel{{100, 1}}, []envelope.PriceLevel{{101, 1}})
	req.Symbol = "ETH/USD"
	s.HandleRequest(context.Background(), req, r)

	if len(exported(r)) != 0 {
		t.Fatalf("expected no replies for a mismatched symbol")
	}
}

func TestPendingNewBlocksSecondPlacement(t *testing.T) {
	s := New(testConfig(), zap.NewNop())
	r1 := &strategy.Replies{}
	s.HandleRequest(context.Background(), orderBookReq(1, []envelope.PriceLevel{{100, 1}}, []envelope.PriceLevel{{101, 1}}), r1)
	if len(exported(r1)) != 1 {
		t.Fatalf("expected first tick to place an order")
	}

	// Book moves again before any ORDER_UPDATE confirms the first order;
	// pending_new must block a second placement.
	r2 := &strategy.Replies{}
	s.HandleRequest(context.Background(), orderBookReq(2, []envelope.PriceLevel{{99, 1}}, []envelope.PriceLevel{{102, 1}}), r2)
	if len(exported(r2)) != 0 {
		t.Fatalf("expected second placement deferred while pending_new is non-empty, got %#v", exported(r2))
	}
}

func TestOrderUpdateOpen_TracksOrderThenRequote(t *testing.T) {
	s := New(testConfig(), zap.NewNop())
	r1 := &strategy.Replies{}
	s.HandleRequest(context.Background(), orderBookReq(1, []envelope.PriceLevel{{100, 1}}, []envelope.PriceLevel{{101, 1}}), r1)
	clientOrderID := exported(r1)[0].Data.(envelope.CreateOrderData).Params.ClientOrderID

	confirm := &strategy.Replies{}
	s.HandleRequest(context.Background(), envelope.Envelope{
		MsgType:  envelope.MsgOrderUpdate,
		Exchange: "cryptocom",
		Symbol:   "BTC/USD",
		MsgTime:  2,
		Data: envelope.OrderUpdateData{
			ID: "exch-1", ClientOrderID: clientOrderID, Price: 100, Status: "open",
		},
	}, confirm)
	if len(exported(confirm)) != 0 {
		t.Fatalf("ORDER_UPDATE should never itself emit a reply")
	}

	// Book's best bid moves away from our resting order's price — expect
	// a cancel of the stale order followed by a fresh placement.
	r2 := &strategy.Replies{}
	s.HandleRequest(context.Background(), orderBookReq(3, []envelope.PriceLevel{{105, 1}}, []envelope.PriceLevel{{106, 1}}), r2)
	got := exported(r2)
	if len(got) != 2 {
		t.Fatalf("expected cancel+place, got %d replies: %#v", len(got), got)
	}
	if got[0].MsgType != envelope.MsgCancelOrder || got[1].MsgType != envelope.MsgCreateOrder {
		t.Fatalf("expected cancel then create, got %s then %s", got[0].MsgType, got[1].MsgType)
	}
}

func TestMidExecMode_RoundsToTickSize(t *testing.T) {
	cfg := testConfig()
	cfg.ExecMode = "mid"
	cfg.TickSize = 1
	s := New(cfg, zap.NewNop())
	r := &strategy.Replies{}
	// mid = (100 + 103) / 2 = 101.5, buy rounds down to nearest tick (1) -> 101
	s.HandleRequest(context.Background(), orderBookReq(1, []envelope.PriceLevel{{100, 1}}, []envelope.PriceLevel{{103, 1}}), r)

	data := exported(r)[0].Data.(envelope.CreateOrderData)
	if data.Price != 101 {
		t.Fatalf("expected MID buy price rounded down to 101, got %v", data.Price)
	}
}

func TestQuoteQuantity_RoundsDownToQtyStep(t *testing.T) {
	cfg := testConfig()
	cfg.OrderSize = 1.2347
	cfg.QtyStep = 0.001
	s := New(cfg, zap.NewNop())
	r := &strategy.Replies{}
	s.HandleRequest(context.Background(), orderBookReq(1, []envelope.PriceLevel{{100, 1}}, []envelope.PriceLevel{{101, 1}}), r)

	data := exported(r)[0].Data.(envelope.CreateOrderData)
	if data.Amount < 1.234 || data.Amount > 1.2341 {
		t.Fatalf("expected quantity floored to ~1.234, got %v", data.Amount)
	}
}

func TestQuoteQuantity_ZeroStepLeavesSizeUnrounded(t *testing.T) {
	cfg := testConfig()
	cfg.OrderSize = 1.2347
	cfg.QtyStep = 0
	s := New(cfg, zap.NewNop())
	r := &strategy.Replies{}
	s.HandleRequest(context.Background(), orderBookReq(1, []envelope.PriceLevel{{100, 1}}, []envelope.PriceLevel{{101, 1}}), r)

	data := exported(r)[0].Data.(envelope.CreateOrderData)
	if data.Amount != 1.2347 {
		t.Fatalf("expected unrounded order size 1.2347, got %v", data.Amount)
	}
}

func exported(r *strategy.Replies) []envelope.Envelope {
	return r.Envelopes()
}
