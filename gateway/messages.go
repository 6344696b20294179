package gateway

import (
	"encoding/json"
	"fmt"
)

// Client message types. Frames are binary-encoded JSON; text frames are
// rejected without closing the socket.
type InboundType string

const (
	InPlaceBet InboundType = "place_bet"
	InCashout  InboundType = "cashout"
	InPing     InboundType = "ping"
	InReAuth   InboundType = "re_auth"
)

type PlaceBetPayload struct {
	IdempotencyKey string  `json:"idempotencyKey"`
	RoundID        string  `json:"roundId"`
	AmountCents    int64   `json:"amountCents"`
	AutoCashout    float64 `json:"autoCashout,omitempty"`
}

type CashoutPayload struct {
	RoundID string `json:"roundId"`
	BetID   string `json:"betId"`
}

type InboundMessage struct {
	Type     InboundType
	PlaceBet *PlaceBetPayload
	Cashout  *CashoutPayload
}

// DecodeInbound parses one client frame. A decode failure is a client
// error, never a reason to close the connection.
func DecodeInbound(data []byte) (InboundMessage, error) {
	var head struct {
		Type InboundType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return InboundMessage{}, fmt.Errorf("gateway: malformed frame: %w", err)
	}
	msg := InboundMessage{Type: head.Type}
	switch head.Type {
	case InPlaceBet:
		var p PlaceBetPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return InboundMessage{}, fmt.Errorf("gateway: malformed place_bet: %w", err)
		}
		msg.PlaceBet = &p
	case InCashout:
		var p CashoutPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return InboundMessage{}, fmt.Errorf("gateway: malformed cashout: %w", err)
		}
		msg.Cashout = &p
	case InPing, InReAuth:
		// no payload of interest
	default:
		return InboundMessage{}, fmt.Errorf("gateway: unknown message type %q", head.Type)
	}
	return msg, nil
}

// serverFrame encodes one outbound frame: the payload's fields flattened
// next to a "type" discriminator.
func serverFrame(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode %s: %w", typ, err)
	}
	fields := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("gateway: encode %s: %w", typ, err)
		}
	}
	fields["type"] = typ
	return json.Marshal(fields)
}

func errorFrame(code, message string) []byte {
	b, _ := json.Marshal(map[string]string{
		"type":    "error",
		"code":    code,
		"message": message,
	})
	return b
}

func pongFrame() []byte {
	return []byte(`{"type":"pong"}`)
}
