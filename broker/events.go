package broker

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventVersion is bumped whenever a payload shape changes incompatibly.
// Consumers drop envelopes with a version they do not understand.
const EventVersion = 1

type EventKind string

const (
	EventRoundNew     EventKind = "round_new"
	EventRoundBetting EventKind = "round_betting"
	EventRoundStarted EventKind = "round_started"
	EventRoundCrashed EventKind = "round_crashed"
	EventTick         EventKind = "tick"
	EventBetPlaced    EventKind = "bet_placed"
	EventBetWon       EventKind = "bet_won"
	EventBetLost      EventKind = "bet_lost"
	EventBetRejected  EventKind = "bet_rejected"
	EventCreditFailed EventKind = "credit_failed"

	CommandPlaceBet EventKind = "cmd_place_bet"
	CommandCashout  EventKind = "cmd_cashout"
)

// Envelope wraps every payload crossing the broker.
type Envelope struct {
	Version    int             `json:"v"`
	Kind       EventKind       `json:"kind"`
	OperatorID string          `json:"operatorId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(kind EventKind, operatorID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("broker: marshal %s payload: %w", kind, err)
	}
	return Envelope{
		Version:    EventVersion,
		Kind:       kind,
		OperatorID: operatorID,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// DecodeEnvelope parses and version-checks an envelope off the wire.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("broker: decode envelope: %w", err)
	}
	if env.Version != EventVersion {
		return Envelope{}, fmt.Errorf("broker: unsupported envelope version %d", env.Version)
	}
	return env, nil
}

// Outbound game events (engine -> gateway).

type RoundNewEvent struct {
	RoundID    string `json:"roundId"`
	HashedSeed string `json:"hashedSeed"`
}

type RoundBettingEvent struct {
	RoundID string    `json:"roundId"`
	EndsAt  time.Time `json:"endsAt"`
}

type RoundStartedEvent struct {
	RoundID string `json:"roundId"`
}

type RoundCrashedEvent struct {
	RoundID    string  `json:"roundId"`
	CrashPoint float64 `json:"crashPoint"`
	ServerSeed string  `json:"serverSeed"`
	Nonce      int64   `json:"nonce"`
}

type TickEvent struct {
	RoundID    string  `json:"roundId"`
	Multiplier float64 `json:"multiplier"`
	ElapsedMs  int64   `json:"elapsedMs"`
}

type BetPlacedEvent struct {
	BetID       string  `json:"betId"`
	PlayerID    string  `json:"playerId"`
	RoundID     string  `json:"roundId"`
	AmountCents int64   `json:"amountCents"`
	AutoCashout float64 `json:"autoCashout,omitempty"`
}

type BetWonEvent struct {
	BetID             string  `json:"betId"`
	PlayerID          string  `json:"playerId"`
	RoundID           string  `json:"roundId"`
	CashoutMultiplier float64 `json:"cashoutMultiplier"`
	PayoutCents       int64   `json:"payoutCents"`
}

type BetLostEvent struct {
	BetID      string  `json:"betId"`
	PlayerID   string  `json:"playerId"`
	RoundID    string  `json:"roundId"`
	CrashPoint float64 `json:"crashPoint"`
}

type BetRejectedEvent struct {
	PlayerID    string `json:"playerId"`
	RoundID     string `json:"roundId"`
	AmountCents int64  `json:"amountCents"`
	Error       string `json:"error"`
}

type CreditFailedEvent struct {
	PlayerID    string `json:"playerId"`
	RoundID     string `json:"roundId"`
	BetID       string `json:"betId"`
	PayoutCents int64  `json:"payoutCents"`
	Reason      string `json:"reason"`
}

// Inbound commands (gateway -> engine).

type PlaceBetCommand struct {
	IdempotencyKey string  `json:"idempotencyKey"`
	PlayerID       string  `json:"playerId"`
	OperatorID     string  `json:"operatorId"`
	RoundID        string  `json:"roundId"`
	AmountCents    int64   `json:"amountCents"`
	AutoCashout    float64 `json:"autoCashout,omitempty"`
	Token          string  `json:"token"`
}

type CashoutCommand struct {
	PlayerID   string `json:"playerId"`
	OperatorID string `json:"operatorId"`
	RoundID    string `json:"roundId"`
	BetID      string `json:"betId"`
	Token      string `json:"token"`
}
