// Package cryptocom implements a Crypto.com Exchange-style market-data
// and order-execution gateway: it dials the exchange's market and user
// WebSocket feeds, normalizes book/order updates into envelopes pushed
// onto the backbone's ingress fan-in, and executes CREATE_ORDER and
// CANCEL_ORDER commands it receives off the egress fan-out.
// CANCEL_ALL_ORDER envelopes are received but not acted on.
package cryptocom

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/odin-trading/sequencer/internal/config"
	"github.com/odin-trading/sequencer/internal/envelope"
	"github.com/odin-trading/sequencer/internal/logging"
	"github.com/odin-trading/sequencer/internal/metrics"
	"github.com/odin-trading/sequencer/internal/ratelimit"
	"github.com/odin-trading/sequencer/internal/transport"
)

// Gateway owns the two exchange WebSocket connections and the two
// backbone-facing transport bindings (ingress push, egress subscribe).
type Gateway struct {
	cfg  config.CryptocomConfig
	conn *transport.Conn
	log  zerolog.Logger

	instruments map[string]Instrument
	marketConn  net.Conn
	userConn    net.Conn

	limiter *ratelimit.OrderLimiter
	metrics *metrics.Registry

	egressSub *transport.Subscription

	nonceMu sync.Mutex
	nonce   int64
}

// New builds a Gateway. Call Start to fetch instrument metadata, dial
// both WebSocket feeds, and begin consuming egress commands.
func New(cfg config.CryptocomConfig, conn *transport.Conn, reg *metrics.Registry, log zerolog.Logger) *Gateway {
	return &Gateway{
		cfg:     cfg,
		conn:    conn,
		log:     log,
		limiter: ratelimit.NewOrderLimiter(cfg.OrdersPerSecond, cfg.OrdersBurst),
		metrics: reg,
	}
}

// Start runs the full startup sequence from cdc_gateway.py's post_start:
// fetch instruments, dial market/user feeds, authenticate, subscribe,
// and start the read loops plus the command consumer.
func (g *Gateway) Start(ctx context.Context) error {
	instruments, err := fetchInstruments(ctx, g.cfg.RESTBaseURL)
	if err != nil {
		return fmt.Errorf("cryptocom: %w", err)
	}
	g.instruments = instruments
	g.log.Info().Int("count", len(instruments)).Msg("instruments map updated")

	marketConn, _, _, err := ws.Dial(ctx, g.cfg.WSMarketURL)
	if err != nil {
		return fmt.Errorf("cryptocom: dial market websocket: %w", err)
	}
	g.marketConn = marketConn
	g.log.Info().Str("url", g.cfg.WSMarketURL).Msg("connected to market data websocket")
	if err := g.subscribeMarketChannels(); err != nil {
		return err
	}

	userConn, _, _, err := ws.Dial(ctx, g.cfg.WSUserURL)
	if err != nil {
		return fmt.Errorf("cryptocom: dial user websocket: %w", err)
	}
	g.userConn = userConn
	g.log.Info().Str("url", g.cfg.WSUserURL).Msg("connected to user data websocket")
	if err := g.authenticateUserWebsocket(); err != nil {
		return err
	}
	if err := g.subscribeUserChannels(); err != nil {
		return err
	}

	sub, err := transport.Subscribe(g.conn, transport.EgressSubject, func(data []byte) {
		g.handleCommand(data)
	})
	if err != nil {
		return fmt.Errorf("cryptocom: subscribe egress: %w", err)
	}
	g.egressSub = sub

	go g.marketDataLoop(ctx)
	go g.userDataLoop(ctx)
	return nil
}

// Stop cancels the egress subscription and closes both exchange
// connections, mirroring cdc_gateway.py's pre_stop.
func (g *Gateway) Stop() error {
	if g.egressSub != nil {
		_ = g.egressSub.Stop()
	}
	if g.marketConn != nil {
		_ = g.marketConn.Close()
	}
	if g.userConn != nil {
		_ = g.userConn.Close()
	}
	return nil
}

func (g *Gateway) nextNonce() int64 {
	g.nonceMu.Lock()
	defer g.nonceMu.Unlock()
	g.nonce = time.Now().UnixMilli()
	return g.nonce
}

func (g *Gateway) subscribeMarketChannels() error {
	channel := fmt.Sprintf("book.%s.%s", g.cfg.Symbols, "10")
	req := subscribeRequest{
		ID:     g.nextNonce(),
		Method: "subscribe",
		Params: subscribeParams{Channels: []string{channel}},
	}
	return g.writeJSON(g.marketConn, req)
}

func (g *Gateway) authenticateUserWebsocket() error {
	nonce := g.nextNonce()
	sig := signAuthPayload("public/auth", g.cfg.APIKey, g.cfg.APISecret, nonce)
	req := authRequest{ID: nonce, Method: "public/auth", APIKey: g.cfg.APIKey, Sig: sig, Nonce: nonce}
	if err := g.writeJSON(g.userConn, req); err != nil {
		return err
	}

	data, _, err := wsutil.ReadServerData(g.userConn)
	if err != nil {
		return fmt.Errorf("cryptocom: read auth response: %w", err)
	}
	var resp inboundMessage
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("cryptocom: decode auth response: %w", err)
	}
	if resp.Code == nil || *resp.Code != 0 {
		return fmt.Errorf("cryptocom: authentication failed")
	}
	return nil
}

func (g *Gateway) subscribeUserChannels() error {
	req := subscribeRequest{
		ID:     g.nextNonce(),
		Method: "subscribe",
		Params: subscribeParams{Channels: []string{"user.order"}},
	}
	return g.writeJSON(g.userConn, req)
}

func (g *Gateway) writeJSON(conn net.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cryptocom: marshal request: %w", err)
	}
	if err := wsutil.WriteClientMessage(conn, ws.OpText, b); err != nil {
		return fmt.Errorf("cryptocom: write websocket frame: %w", err)
	}
	return nil
}

// marketDataLoop ports cdc_gateway.py's market_data_handler.
func (g *Gateway) marketDataLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		data, _, err := wsutil.ReadServerData(g.marketConn)
		if err != nil {
			g.log.Error().Err(err).Msg("market websocket read failed")
			g.metrics.TransportErrors.Inc()
			return
		}
		g.handleMarketMessage(data)
	}
}

func (g *Gateway) handleMarketMessage(data []byte) {
	defer logging.RecoverPanic(g.log, "market-data-handler", map[string]any{"exchange": g.cfg.Exchange})

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Method == "public/heartbeat" {
		g.respondHeartbeat(g.marketConn, msg.ID)
		return
	}
	if msg.Method != "subscribe" || msg.Result == nil {
		return
	}

	var result subscribeResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		return
	}
	if result.Channel != "book" {
		return
	}

	var snapshots []orderBookSnapshot
	if err := json.Unmarshal(result.Data, &snapshots); err != nil || len(snapshots) == 0 {
		return
	}
	book := snapshots[0]

	env := envelope.Envelope{
		MsgType:  envelope.MsgOrderBook,
		Exchange: g.cfg.Exchange,
		Symbol:   result.InstrumentName,
		Data: envelope.OrderBookData{
			Timestamp: book.Timestamp,
			Bids:      parseLevels(book.Bids),
			Asks:      parseLevels(book.Asks),
		},
	}
	g.push(env)
}

func parseLevels(raw [][]string) []envelope.PriceLevel {
	out := make([]envelope.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		if len(lvl) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(lvl[0], 64)
		qty, err2 := strconv.ParseFloat(lvl[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, envelope.PriceLevel{price, qty})
	}
	return out
}

// userDataLoop ports cdc_gateway.py's user_data_handler.
func (g *Gateway) userDataLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		data, _, err := wsutil.ReadServerData(g.userConn)
		if err != nil {
			g.log.Error().Err(err).Msg("user websocket read failed")
			g.metrics.TransportErrors.Inc()
			return
		}
		g.handleUserMessage(data)
	}
}

func (g *Gateway) handleUserMessage(data []byte) {
	defer logging.RecoverPanic(g.log, "user-data-handler", map[string]any{"exchange": g.cfg.Exchange})

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Method == "public/heartbeat" {
		g.respondHeartbeat(g.userConn, msg.ID)
		return
	}

	if msg.Method == "private/create-order" {
		if msg.Code != nil && *msg.Code != 0 {
			var result createOrderResult
			_ = json.Unmarshal(msg.Result, &result)
			g.log.Error().Str("client_order_id", result.ClientOID).Msg("create order rejected")
			g.push(envelope.Envelope{
				MsgType:  envelope.MsgCreateOrderReject,
				Exchange: g.cfg.Exchange,
				Data: envelope.CreateOrderRejectData{
					Params: envelope.OrderParams{ClientOrderID: result.ClientOID},
				},
			})
		}
		return
	}

	if msg.Method != "subscribe" || msg.Result == nil {
		return
	}
	var result subscribeResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		return
	}
	if len(result.Channel) < len("user.order") || result.Channel[:len("user.order")] != "user.order" {
		return
	}

	var orders []userOrder
	if err := json.Unmarshal(result.Data, &orders); err != nil {
		return
	}
	for _, o := range orders {
		price, _ := strconv.ParseFloat(o.Price, 64)
		qty, _ := strconv.ParseFloat(o.Quantity, 64)
		g.log.Info().Str("symbol", o.InstrumentName).Str("client_order_id", o.ClientOID).Msg("sending order update")
		g.push(envelope.Envelope{
			MsgType:  envelope.MsgOrderUpdate,
			Exchange: g.cfg.Exchange,
			Symbol:   o.InstrumentName,
			Data: envelope.OrderUpdateData{
				ID:            o.OrderID,
				ClientOrderID: o.ClientOID,
				Symbol:        o.InstrumentName,
				Side:          envelope.NormalizeSide(o.Side),
				Price:         price,
				Amount:        qty,
				Status:        o.Status,
			},
		})
	}
}

func (g *Gateway) respondHeartbeat(conn net.Conn, id int64) {
	if err := g.writeJSON(conn, heartbeatReply{ID: id, Method: "public/respond-heartbeat"}); err != nil {
		g.log.Warn().Err(err).Msg("failed to respond to heartbeat")
	}
}

// handleCommand ports cdc_gateway.py's command_message_handler: only
// envelopes addressed to this gateway's exchange are acted on.
func (g *Gateway) handleCommand(data []byte) {
	defer logging.RecoverPanic(g.log, "command-handler", map[string]any{"exchange": g.cfg.Exchange})

	env, err := envelope.Decode(data)
	if err != nil {
		return
	}
	if env.Exchange != g.cfg.Exchange {
		return
	}

	switch env.MsgType {
	case envelope.MsgCreateOrder:
		create, ok := env.Data.(envelope.CreateOrderData)
		if !ok {
			return
		}
		g.createOrder(create)
	case envelope.MsgCancelOrder:
		cancel, ok := env.Data.(envelope.CancelOrderData)
		if !ok {
			return
		}
		g.cancelOrder(cancel)
	}
}

func (g *Gateway) createOrder(o envelope.CreateOrderData) {
	if !g.limiter.Allow() {
		g.log.Warn().Str("client_order_id", o.Params.ClientOrderID).Msg("order-entry rate limit exceeded, dropping create order")
		return
	}

	instrument, ok := g.instruments[o.Symbol]
	if !ok {
		g.log.Error().Str("symbol", o.Symbol).Msg("unknown instrument, cannot place order")
		return
	}
	side := strings.ToUpper(o.Side)
	price := instrument.roundPrice(side, o.Price)
	qty := instrument.roundQty(o.Amount)

	execInst := []string{}
	if o.Params.PostOnly {
		execInst = append(execInst, "POST_ONLY")
	}

	req := struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
		Params struct {
			InstrumentName string   `json:"instrument_name"`
			Side           string   `json:"side"`
			Type           string   `json:"type"`
			Price          string   `json:"price"`
			Quantity       string   `json:"quantity"`
			ClientOID      string   `json:"client_oid"`
			ExecInst       []string `json:"exec_inst"`
		} `json:"params"`
	}{ID: g.nextNonce(), Method: "private/create-order"}
	req.Params.InstrumentName = o.Symbol
	req.Params.Side = side
	req.Params.Type = strings.ToUpper(o.Type)
	req.Params.Price = strconv.FormatFloat(price, 'f', instrument.QuoteDecimals, 64)
	req.Params.Quantity = strconv.FormatFloat(qty, 'f', instrument.QuantityDecimals, 64)
	req.Params.ClientOID = o.Params.ClientOrderID
	req.Params.ExecInst = execInst

	if err := g.writeJSON(g.userConn, req); err != nil {
		g.log.Error().Err(err).Str("client_order_id", o.Params.ClientOrderID).Msg("failed to send create order")
		return
	}
	g.metrics.OrdersSubmitted.WithLabelValues("create").Inc()
	g.log.Info().Str("client_order_id", o.Params.ClientOrderID).Float64("price", price).Msg("create order request sent")
}

func (g *Gateway) cancelOrder(o envelope.CancelOrderData) {
	if !g.limiter.Allow() {
		g.log.Warn().Str("order_id", o.ID).Msg("order-entry rate limit exceeded, dropping cancel order")
		return
	}

	req := struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
		Params struct {
			ClientOID string `json:"client_oid,omitempty"`
			OrderID   string `json:"order_id,omitempty"`
		} `json:"params"`
	}{ID: g.nextNonce(), Method: "private/cancel-order"}
	if o.Params.ClientOrderID != "" {
		req.Params.ClientOID = o.Params.ClientOrderID
	} else {
		req.Params.OrderID = o.ID
	}

	if err := g.writeJSON(g.userConn, req); err != nil {
		g.log.Error().Err(err).Str("order_id", o.ID).Msg("failed to send cancel order")
		return
	}
	g.metrics.OrdersSubmitted.WithLabelValues("cancel").Inc()
}

func (g *Gateway) push(env envelope.Envelope) {
	encoded, err := envelope.Encode(env)
	if err != nil {
		g.log.Error().Err(err).Msg("failed to encode outbound envelope")
		return
	}
	if err := transport.Push(g.conn, transport.IngressSubject, encoded); err != nil {
		g.log.Error().Err(err).Msg("failed to push envelope to ingress")
		g.metrics.TransportErrors.Inc()
	}
}
