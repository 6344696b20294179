package gateway

import (
	"go.uber.org/zap"

	"github.com/novaplay-gaming/crash-server/broker"
)

// Sender pushes frames to a live socket. Implemented by the websocket
// transport; faked in tests.
type Sender interface {
	Send(connID string, data []byte) error
	Close(connID string, code int, reason string) error
}

// CommandPublisher is the slice of the broker the gateway needs for
// forwarding client intents. *broker.Bus satisfies it.
type CommandPublisher interface {
	Publish(kind broker.EventKind, payload any) error
}

// ForwardBetCommandUseCase validates a place_bet intent and hands it to the
// broker. All game rules live engine-side; the gateway only checks shape,
// rate, and room membership.
type ForwardBetCommandUseCase struct {
	limiter   RateLimiter
	publisher CommandPublisher
	log       *zap.Logger
}

func NewForwardBetCommandUseCase(limiter RateLimiter, publisher CommandPublisher, log *zap.Logger) *ForwardBetCommandUseCase {
	return &ForwardBetCommandUseCase{limiter: limiter, publisher: publisher, log: log}
}

func (uc *ForwardBetCommandUseCase) Execute(conn *Connection, p PlaceBetPayload) error {
	if p.IdempotencyKey == "" || p.RoundID == "" || p.AmountCents <= 0 {
		return fail(CodeInvalidCommand, "place_bet requires idempotencyKey, roundId and a positive amount")
	}
	if p.AutoCashout != 0 && p.AutoCashout < 1.01 {
		return fail(CodeInvalidCommand, "autoCashout must be at least 1.01")
	}
	if !uc.limiter.Allow(conn.PlayerID, "place_bet") {
		return fail(CodeRateLimited, "too many bet attempts")
	}
	if conn.State() != StateJoined {
		return fail(CodeNotJoined, "join the room before betting")
	}
	cmd := broker.PlaceBetCommand{
		IdempotencyKey: p.IdempotencyKey,
		PlayerID:       conn.PlayerID,
		OperatorID:     conn.OperatorID,
		RoundID:        p.RoundID,
		AmountCents:    p.AmountCents,
		AutoCashout:    p.AutoCashout,
		Token:          conn.Token,
	}
	if err := uc.publisher.Publish(broker.CommandPlaceBet, cmd); err != nil {
		uc.log.Error("publish place_bet command failed",
			zap.String("player_id", conn.PlayerID), zap.Error(err))
		return fail(CodePublishFailed, "command could not be delivered")
	}
	return nil
}

// ForwardCashoutCommandUseCase mirrors the bet path for cashout intents.
type ForwardCashoutCommandUseCase struct {
	limiter   RateLimiter
	publisher CommandPublisher
	log       *zap.Logger
}

func NewForwardCashoutCommandUseCase(limiter RateLimiter, publisher CommandPublisher, log *zap.Logger) *ForwardCashoutCommandUseCase {
	return &ForwardCashoutCommandUseCase{limiter: limiter, publisher: publisher, log: log}
}

func (uc *ForwardCashoutCommandUseCase) Execute(conn *Connection, p CashoutPayload) error {
	if p.RoundID == "" || p.BetID == "" {
		return fail(CodeInvalidCommand, "cashout requires roundId and betId")
	}
	if !uc.limiter.Allow(conn.PlayerID, "cashout") {
		return fail(CodeRateLimited, "too many cashout attempts")
	}
	if conn.State() != StateJoined {
		return fail(CodeNotJoined, "join the room before cashing out")
	}
	cmd := broker.CashoutCommand{
		PlayerID:   conn.PlayerID,
		OperatorID: conn.OperatorID,
		RoundID:    p.RoundID,
		BetID:      p.BetID,
		Token:      conn.Token,
	}
	if err := uc.publisher.Publish(broker.CommandCashout, cmd); err != nil {
		uc.log.Error("publish cashout command failed",
			zap.String("player_id", conn.PlayerID), zap.Error(err))
		return fail(CodePublishFailed, "command could not be delivered")
	}
	return nil
}
