// Package optitrade implements a top-of-book-following quoter: it keeps
// at most one resting order on its configured side, replacing it
// whenever the book's best price on that side moves, throttled by a
// minimum re-quote interval measured in virtual time. It is the reference
// strategy.Handler implementation for the backbone, ported from the
// original opti_trade.py reference strategy.
package optitrade

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/odin-trading/sequencer/internal/config"
	"github.com/odin-trading/sequencer/internal/envelope"
	"github.com/odin-trading/sequencer/internal/strategy"
)

// execMode selects how try_place_order picks its quote price.
type execMode string

const (
	execTOB execMode = "tob"
	execMID execMode = "mid"
)

type openOrder struct {
	id            string
	clientOrderID string
	price         float64
}

// Strategy holds the per-connection OptiTrade state described by
// opti_trade.py: the last-seen order book, the set of resting orders it
// believes are open, and the pending-new/pending-cancel sets that guard
// against issuing a second action before the exchange gateway confirms
// the first.
type Strategy struct {
	cfg config.OptiTradeConfig
	log *zap.Logger

	mu            sync.Mutex
	book          *envelope.OrderBookData
	openOrders    map[string]openOrder // clientOrderID -> order
	pendingNew    map[string]struct{}
	pendingCancel map[string]struct{}
	sequenceNum   int
	lastOrderTime int64
	virtualTime   int64
}

// New builds an OptiTrade strategy.Handler from cfg.
func New(cfg config.OptiTradeConfig, log *zap.Logger) *Strategy {
	return &Strategy{
		cfg:           cfg,
		log:           log,
		openOrders:    make(map[string]openOrder),
		pendingNew:    make(map[string]struct{}),
		pendingCancel: make(map[string]struct{}),
	}
}

// HandleRequest implements strategy.Handler. NATS dispatches one reply
// subscription's handler at a time, so the mutex only protects against
// the off-chance of a misconfigured endpoint calling concurrently.
func (s *Strategy) HandleRequest(ctx context.Context, req envelope.Envelope, r *strategy.Replies) {
	if req.Exchange != s.cfg.Exchange || req.Symbol != s.cfg.Symbol {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.MsgTime != 0 {
		s.virtualTime = req.MsgTime
	}

	switch req.MsgType {
	case envelope.MsgOrderBook:
		book, ok := req.Data.(envelope.OrderBookData)
		if !ok {
			s.log.Warn("ORDER_BOOK envelope missing expected payload shape")
			return
		}
		s.book = &book
		s.manageOrders(r)

	case envelope.MsgOrderUpdate:
		update, ok := req.Data.(envelope.OrderUpdateData)
		if !ok {
			return
		}
		s.applyOrderUpdate(update)

	case envelope.MsgCreateOrderReject:
		reject, ok := req.Data.(envelope.CreateOrderRejectData)
		if !ok {
			return
		}
		id := reject.Params.ClientOrderID
		if _, pending := s.pendingNew[id]; pending {
			delete(s.pendingNew, id)
			s.log.Info("order rejected, removed from pending_new", zap.String("client_order_id", id))
		}
	}
}

func (s *Strategy) applyOrderUpdate(update envelope.OrderUpdateData) {
	switch update.Status {
	case "open":
		s.openOrders[update.ClientOrderID] = openOrder{
			id:            update.ID,
			clientOrderID: update.ClientOrderID,
			price:         update.Price,
		}
	case "closed", "canceled", "expired", "rejected":
		delete(s.openOrders, update.ClientOrderID)
		if _, pending := s.pendingCancel[update.ClientOrderID]; pending {
			delete(s.pendingCancel, update.ClientOrderID)
			s.log.Info("order removed from pending_cancel", zap.String("client_order_id", update.ClientOrderID))
		}
	}
	if _, pending := s.pendingNew[update.ClientOrderID]; pending {
		delete(s.pendingNew, update.ClientOrderID)
		s.log.Info("order removed from pending_new", zap.String("client_order_id", update.ClientOrderID))
	}
}

// manageOrders ports opti_trade.py's manage_orders: quote-replace logic
// gated by the minimum re-quote interval in virtual time.
func (s *Strategy) manageOrders(r *strategy.Replies) {
	if s.book == nil {
		return
	}
	elapsed := s.virtualTime - s.lastOrderTime
	if s.lastOrderTime != 0 && elapsed < s.cfg.SleepTimeMs*int64(1_000_000) {
		return
	}

	ours := s.ordersWithPrefix()
	if len(ours) == 0 {
		s.log.Info("no open orders found, placing a new order")
		s.tryPlaceOrder(r)
		s.lastOrderTime = s.virtualTime
		return
	}

	// Cancel every resting order but the lowest-priced one.
	for _, o := range ours[:len(ours)-1] {
		s.tryCancelOrder(o, r)
	}

	last := ours[len(ours)-1]
	levels := s.book.Bids
	if envelope.NormalizeSide(s.cfg.Side) == "sell" {
		levels = s.book.Asks
	}
	best, hasBest := s.bestPrice(levels)
	if hasBest && last.price != best {
		s.tryCancelOrder(last, r)
		s.log.Info("placing a new order after cancellation")
		s.tryPlaceOrder(r)
		s.lastOrderTime = s.virtualTime
	}
}

// ordersWithPrefix returns orders carrying this strategy's client-order-id
// prefix, sorted by price descending, matching opti_trade.py's
// filtered_sorted_orders.
func (s *Strategy) ordersWithPrefix() []openOrder {
	var out []openOrder
	for _, o := range s.openOrders {
		if len(o.clientOrderID) >= len(s.cfg.ClientOrderIDPrefix) && o.clientOrderID[:len(s.cfg.ClientOrderIDPrefix)] == s.cfg.ClientOrderIDPrefix {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].price > out[j].price })
	return out
}

func (s *Strategy) tryCancelOrder(o openOrder, r *strategy.Replies) {
	if _, pending := s.pendingCancel[o.clientOrderID]; pending {
		s.log.Info("order already pending cancellation, skipping", zap.String("client_order_id", o.clientOrderID))
		return
	}
	s.pendingCancel[o.clientOrderID] = struct{}{}
	r.CancelOrder(s.cfg.Exchange, s.cfg.Symbol, o.id, o.clientOrderID)
	s.log.Info("cancellation request sent", zap.String("client_order_id", o.clientOrderID))
}

// tryPlaceOrder ports opti_trade.py's try_place_order, including its
// TOB/MID price selection and tick-size rounding.
func (s *Strategy) tryPlaceOrder(r *strategy.Replies) {
	if len(s.pendingNew) > 0 {
		s.log.Info("new order placement deferred due to pending new orders")
		return
	}

	price, ok := s.quotePrice()
	if !ok {
		s.log.Error("order placement failed: price is unavailable")
		return
	}

	s.sequenceNum++
	clientOrderID := fmt.Sprintf("%s%d", s.cfg.ClientOrderIDPrefix, s.sequenceNum)
	quantity := s.quoteQuantity()
	s.pendingNew[clientOrderID] = struct{}{}
	r.CreateOrder(s.cfg.Exchange, s.cfg.Symbol, s.cfg.Side, price, quantity, clientOrderID, "limit", s.cfg.PostOnly)
	s.log.Info("new order placement request sent",
		zap.String("client_order_id", clientOrderID), zap.Float64("price", price), zap.Float64("quantity", quantity), zap.String("side", s.cfg.Side))
}

// quoteQuantity rounds the configured order size down to the nearest
// QtyStep, the quantity-side counterpart of quotePrice's tick rounding.
// A non-positive QtyStep leaves the configured size unrounded.
func (s *Strategy) quoteQuantity() float64 {
	if s.cfg.QtyStep <= 0 {
		return s.cfg.OrderSize
	}
	return math.Floor(s.cfg.OrderSize/s.cfg.QtyStep) * s.cfg.QtyStep
}

func (s *Strategy) quotePrice() (float64, bool) {
	switch execMode(s.cfg.ExecMode) {
	case execTOB:
		if envelope.NormalizeSide(s.cfg.Side) == "sell" {
			return s.bestPrice(s.book.Asks)
		}
		return s.bestPrice(s.book.Bids)

	case execMID:
		bestBid, hasBid := s.bestPrice(s.book.Bids)
		bestAsk, hasAsk := s.bestPrice(s.book.Asks)
		if !hasBid || !hasAsk {
			return 0, false
		}
		mid := (bestBid + bestAsk) / 2
		if envelope.NormalizeSide(s.cfg.Side) == "sell" {
			return math.Ceil(mid/s.cfg.TickSize) * s.cfg.TickSize, true
		}
		return math.Floor(mid/s.cfg.TickSize) * s.cfg.TickSize, true

	default:
		s.log.Error("invalid execution mode", zap.String("exec_mode", s.cfg.ExecMode))
		return 0, false
	}
}

func (s *Strategy) bestPrice(levels []envelope.PriceLevel) (float64, bool) {
	if len(levels) == 0 {
		return 0, false
	}
	return levels[0][0], true
}
