package engine

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/novaplay-gaming/crash-server/broker"
)

const commandTimeout = 15 * time.Second

// CommandHandler consumes gateway commands off the broker and runs them
// through the use cases. Rejections become bet_rejected events routed back to
// the originating player; the command subject itself carries no reply.
type CommandHandler struct {
	placeBet *PlaceBetUseCase
	cashout  *CashoutUseCase
	pub      EventPublisher
	log      *zap.Logger
}

func NewCommandHandler(placeBet *PlaceBetUseCase, cashout *CashoutUseCase, pub EventPublisher, log *zap.Logger) *CommandHandler {
	return &CommandHandler{placeBet: placeBet, cashout: cashout, pub: pub, log: log}
}

func (h *CommandHandler) Handle(env broker.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch env.Kind {
	case broker.CommandPlaceBet:
		var cmd broker.PlaceBetCommand
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			h.log.Warn("malformed place-bet command dropped", zap.Error(err))
			return
		}
		if _, err := h.placeBet.Execute(ctx, cmd); err != nil {
			h.rejectBet(cmd.PlayerID, cmd.RoundID, cmd.AmountCents, err)
		}

	case broker.CommandCashout:
		var cmd broker.CashoutCommand
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			h.log.Warn("malformed cashout command dropped", zap.Error(err))
			return
		}
		if _, err := h.cashout.Execute(ctx, cmd); err != nil {
			h.rejectBet(cmd.PlayerID, cmd.RoundID, 0, err)
		}

	default:
		h.log.Warn("unexpected command kind", zap.String("kind", string(env.Kind)))
	}
}

func (h *CommandHandler) rejectBet(playerID, roundID string, amountCents int64, cause error) {
	code := RejectionCode(cause)
	if code == "" {
		// Domain invariant violations and infrastructure faults surface as a
		// generic refusal; details stay in the engine log.
		h.log.Error("command failed", zap.String("playerId", playerID), zap.Error(cause))
		code = CodeInvalidBet
	}
	if err := h.pub.Publish(broker.EventBetRejected, broker.BetRejectedEvent{
		PlayerID:    playerID,
		RoundID:     roundID,
		AmountCents: amountCents,
		Error:       string(code),
	}); err != nil {
		h.log.Warn("bet_rejected publish failed", zap.String("playerId", playerID), zap.Error(err))
	}
}
