package cryptocom

import "encoding/json"

// These mirror the subset of Crypto.com Exchange's WebSocket JSON
// protocol that cdc_gateway.py depends on: subscribe requests, the
// heartbeat ping/pong, order-book snapshots, and user order updates.

type subscribeRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params subscribeParams `json:"params"`
}

type subscribeParams struct {
	Channels []string `json:"channels"`
}

type authRequest struct {
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	APIKey  string `json:"api_key"`
	Sig     string `json:"sig"`
	Nonce   int64  `json:"nonce"`
}

type heartbeatReply struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
}

// inboundMessage is the envelope every WebSocket frame arrives in;
// Result/Code are interpreted once Method (and, for results, Channel)
// are known.
type inboundMessage struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Code   *int            `json:"code"`
	Result json.RawMessage `json:"result"`
}

type subscribeResult struct {
	Channel       string          `json:"channel"`
	InstrumentName string         `json:"instrument_name"`
	Data          json.RawMessage `json:"data"`
}

type orderBookSnapshot struct {
	Timestamp int64      `json:"t"`
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
}

type createOrderResult struct {
	ClientOID string `json:"client_oid"`
}

type userOrder struct {
	OrderID       string `json:"order_id"`
	ClientOID     string `json:"client_oid"`
	InstrumentName string `json:"instrument_name"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	Status        string `json:"status"`
}
