package envelope

import "strings"

// PriceLevel is a single [price, quantity] entry in an order book side.
type PriceLevel [2]float64

// OrderBookData is the ORDER_BOOK payload shape. Exchange and Symbol live
// at the envelope level, not here.
type OrderBookData struct {
	Timestamp int64        `msgpack:"timestamp,omitempty"`
	Bids      []PriceLevel `msgpack:"bids"`
	Asks      []PriceLevel `msgpack:"asks"`
}

// OrderParams carries the client-assigned order identifiers and flags
// nested under CREATE_ORDER/CANCEL_ORDER/CREATE_ORDER_REJECT payloads.
type OrderParams struct {
	ClientOrderID string `msgpack:"clientOrderId,omitempty"`
	PostOnly      bool   `msgpack:"postOnly,omitempty"`
}

// CreateOrderData is the CREATE_ORDER payload shape.
type CreateOrderData struct {
	Symbol string      `msgpack:"symbol"`
	Type   string      `msgpack:"type"` // "limit" | "market"
	Side   string      `msgpack:"side"` // normalized to "buy" | "sell"
	Amount float64     `msgpack:"amount"`
	Price  float64     `msgpack:"price"`
	Params OrderParams `msgpack:"params"`
}

// CreateOrderRejectData is the CREATE_ORDER_REJECT payload shape,
// normalized on the nested {params:{clientOrderId}} form.
type CreateOrderRejectData struct {
	Params OrderParams    `msgpack:"params"`
	Extra  map[string]any `msgpack:"extra,omitempty"`
}

// CancelOrderData is the CANCEL_ORDER payload shape.
type CancelOrderData struct {
	ID     string      `msgpack:"id,omitempty"`
	Params OrderParams `msgpack:"params"`
}

// CancelAllOrderData is the CANCEL_ALL_ORDER payload shape.
type CancelAllOrderData struct {
	Symbol string `msgpack:"symbol"`
}

// OrderUpdateData is the ORDER_UPDATE payload shape.
type OrderUpdateData struct {
	ID            string  `msgpack:"id"`
	ClientOrderID string  `msgpack:"clientOrderId"`
	Symbol        string  `msgpack:"symbol"`
	Side          string  `msgpack:"side"`
	Price         float64 `msgpack:"price"`
	Amount        float64 `msgpack:"amount"`
	Status        string  `msgpack:"status"` // open|closed|canceled|expired|rejected
}

// TradeExecutionData is the TRADE_EXECUTION payload shape.
type TradeExecutionData struct {
	ID     string  `msgpack:"id"`
	Symbol string  `msgpack:"symbol"`
	Side   string  `msgpack:"side"`
	Price  float64 `msgpack:"price"`
	Amount float64 `msgpack:"amount"`
}

// NormalizeSide lower-cases an order side so "BUY"/"SELL" from a gateway
// and "buy"/"sell" from a strategy compare equal downstream.
func NormalizeSide(side string) string {
	return strings.ToLower(strings.TrimSpace(side))
}
