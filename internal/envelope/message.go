// Package envelope defines the tagged message envelope exchanged on every
// transport hop in the sequencer backbone, and the MessagePack codec used
// to serialize it.
package envelope

// MsgType identifies the shape of an envelope's Data payload.
type MsgType string

const (
	MsgConnect           MsgType = "CONNECT"
	MsgDisconnect        MsgType = "DISCONNECT"
	MsgOrderBook         MsgType = "ORDER_BOOK"
	MsgCreateOrder       MsgType = "CREATE_ORDER"
	MsgCreateOrderReject MsgType = "CREATE_ORDER_REJECT"
	MsgCancelOrder       MsgType = "CANCEL_ORDER"
	MsgCancelOrderReject MsgType = "CANCEL_ORDER_REJECT"
	MsgCancelAllOrder    MsgType = "CANCEL_ALL_ORDER"
	MsgOrderUpdate       MsgType = "ORDER_UPDATE"
	MsgTradeExecution    MsgType = "TRADE_EXECUTION"
)

// Envelope is the tagged record exchanged between gateways, the sequencer,
// and strategies. MsgTime is stamped exactly once by the Sequencer, on the
// first observation of a non-control message; it is absent on ingress.
type Envelope struct {
	MsgType      MsgType `msgpack:"msg_type"`
	MsgTime      int64   `msgpack:"msg_time,omitempty"`
	Exchange     string  `msgpack:"exchange,omitempty"`
	Symbol       string  `msgpack:"symbol,omitempty"`
	ConnectionID string  `msgpack:"connection_id,omitempty"`
	Data         any     `msgpack:"data,omitempty"`
}

// IsControl reports whether m is a CONNECT/DISCONNECT control message,
// which never carries Data and is never stamped with MsgTime.
func (m Envelope) IsControl() bool {
	return m.MsgType == MsgConnect || m.MsgType == MsgDisconnect
}

// Connect builds a CONNECT control envelope for the given connection id.
func Connect(connectionID string) Envelope {
	return Envelope{MsgType: MsgConnect, ConnectionID: connectionID}
}

// Disconnect builds a DISCONNECT control envelope for the given connection id.
func Disconnect(connectionID string) Envelope {
	return Envelope{MsgType: MsgDisconnect, ConnectionID: connectionID}
}
