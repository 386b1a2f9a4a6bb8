package envelope

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// DecodeError wraps a failure to decode a wire envelope, whether from
// truncated bytes or a structural mismatch in the Data payload.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("envelope: decode failed: %s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// wireEnvelope mirrors Envelope but keeps Data as a raw msgpack blob so
// Decode can defer typing it until MsgType is known.
type wireEnvelope struct {
	MsgType      MsgType            `msgpack:"msg_type"`
	MsgTime      int64              `msgpack:"msg_time,omitempty"`
	Exchange     string             `msgpack:"exchange,omitempty"`
	Symbol       string             `msgpack:"symbol,omitempty"`
	ConnectionID string             `msgpack:"connection_id,omitempty"`
	Data         msgpack.RawMessage `msgpack:"data,omitempty"`
}

// Encode is total: every valid Envelope value serializes without error.
func Encode(m Envelope) ([]byte, error) {
	w := wireEnvelope{
		MsgType:      m.MsgType,
		MsgTime:      m.MsgTime,
		Exchange:     m.Exchange,
		Symbol:       m.Symbol,
		ConnectionID: m.ConnectionID,
	}
	if m.Data != nil {
		raw, err := msgpack.Marshal(m.Data)
		if err != nil {
			return nil, fmt.Errorf("envelope: encode data: %w", err)
		}
		w.Data = raw
	}
	b, err := msgpack.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode: %w", err)
	}
	return b, nil
}

// Decode fails with *DecodeError on truncated bytes or a Data payload
// that doesn't match the shape its MsgType implies.
func Decode(b []byte) (Envelope, error) {
	var w wireEnvelope
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return Envelope{}, &DecodeError{Reason: "truncated or malformed envelope", Err: err}
	}

	m := Envelope{
		MsgType:      w.MsgType,
		MsgTime:      w.MsgTime,
		Exchange:     w.Exchange,
		Symbol:       w.Symbol,
		ConnectionID: w.ConnectionID,
	}
	if len(w.Data) == 0 {
		return m, nil
	}

	payload, err := decodePayload(w.MsgType, w.Data)
	if err != nil {
		return Envelope{}, &DecodeError{Reason: fmt.Sprintf("data payload for %s", w.MsgType), Err: err}
	}
	m.Data = payload
	return m, nil
}

// EncodeReplies serializes the ordered list of follow-up envelopes a
// strategy returns for one request — possibly empty, never nil on the
// wire, so an empty reply list round-trips to an empty (not nil) slice.
func EncodeReplies(replies []Envelope) ([]byte, error) {
	if replies == nil {
		replies = []Envelope{}
	}
	b, err := msgpack.Marshal(replies)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode reply list: %w", err)
	}
	return b, nil
}

// DecodeReplies parses a reply-list payload sent by a strategy endpoint.
func DecodeReplies(b []byte) ([]Envelope, error) {
	var wire []wireEnvelope
	if err := msgpack.Unmarshal(b, &wire); err != nil {
		return nil, &DecodeError{Reason: "reply list", Err: err}
	}
	out := make([]Envelope, 0, len(wire))
	for _, w := range wire {
		m := Envelope{
			MsgType:      w.MsgType,
			MsgTime:      w.MsgTime,
			Exchange:     w.Exchange,
			Symbol:       w.Symbol,
			ConnectionID: w.ConnectionID,
		}
		if len(w.Data) > 0 {
			payload, err := decodePayload(w.MsgType, w.Data)
			if err != nil {
				return nil, &DecodeError{Reason: fmt.Sprintf("reply list data for %s", w.MsgType), Err: err}
			}
			m.Data = payload
		}
		out = append(out, m)
	}
	return out, nil
}

func decodePayload(t MsgType, raw msgpack.RawMessage) (any, error) {
	switch t {
	case MsgOrderBook:
		var p OrderBookData
		err := msgpack.Unmarshal(raw, &p)
		return p, err
	case MsgCreateOrder:
		var p CreateOrderData
		err := msgpack.Unmarshal(raw, &p)
		return p, err
	case MsgCreateOrderReject:
		var p CreateOrderRejectData
		err := msgpack.Unmarshal(raw, &p)
		return p, err
	case MsgCancelOrder:
		var p CancelOrderData
		err := msgpack.Unmarshal(raw, &p)
		return p, err
	case MsgCancelAllOrder:
		var p CancelAllOrderData
		err := msgpack.Unmarshal(raw, &p)
		return p, err
	case MsgOrderUpdate:
		var p OrderUpdateData
		err := msgpack.Unmarshal(raw, &p)
		return p, err
	case MsgTradeExecution:
		var p TradeExecutionData
		err := msgpack.Unmarshal(raw, &p)
		return p, err
	default:
		var p map[string]any
		err := msgpack.Unmarshal(raw, &p)
		return p, err
	}
}
