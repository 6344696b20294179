package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/novaplay-gaming/crash-server/broker"
	"github.com/novaplay-gaming/crash-server/game"
)

// CashoutUseCase locks in a payout synchronously against the in-memory round
// and settles the wallet asynchronously. The player's in-round WON state is
// authoritative before the wallet confirms; a failed credit becomes a
// FailedCredit audit record, never a rollback.
type CashoutUseCase struct {
	wallet  Wallet
	rounds  CurrentRoundStore
	pub     EventPublisher
	tracker *Tracker
	failed  FailedCreditStore
	roundMu *sync.Mutex
	log     *zap.Logger
}

func NewCashoutUseCase(
	wallet Wallet,
	rounds CurrentRoundStore,
	pub EventPublisher,
	tracker *Tracker,
	failed FailedCreditStore,
	roundMu *sync.Mutex,
	log *zap.Logger,
) *CashoutUseCase {
	return &CashoutUseCase{
		wallet:  wallet,
		rounds:  rounds,
		pub:     pub,
		tracker: tracker,
		failed:  failed,
		roundMu: roundMu,
		log:     log,
	}
}

func (uc *CashoutUseCase) Execute(ctx context.Context, cmd broker.CashoutCommand) (*game.Bet, error) {
	uc.roundMu.Lock()
	round := uc.rounds.Get()
	if round == nil || round.ID != cmd.RoundID {
		uc.roundMu.Unlock()
		return nil, reject(CodeRoundMismatch, "round %q is not current", cmd.RoundID)
	}
	bet, ok := round.Bets().Get(cmd.BetID)
	if !ok {
		uc.roundMu.Unlock()
		return nil, reject(CodeBetNotFound, "bet %q not found in round %q", cmd.BetID, cmd.RoundID)
	}
	if bet.PlayerID != cmd.PlayerID {
		uc.roundMu.Unlock()
		return nil, reject(CodeNotBetOwner, "bet %q does not belong to player", cmd.BetID)
	}
	if _, err := round.Cashout(cmd.BetID); err != nil {
		uc.roundMu.Unlock()
		return nil, reject(CodeRoundNotRunning, "cashout refused: %v", err)
	}
	uc.roundMu.Unlock()

	if err := uc.pub.Publish(broker.EventBetWon, broker.BetWonEvent{
		BetID:             bet.ID,
		PlayerID:          bet.PlayerID,
		RoundID:           bet.RoundID,
		CashoutMultiplier: bet.CashoutMultiplier(),
		PayoutCents:       bet.Payout().Cents(),
	}); err != nil {
		uc.log.Warn("bet_won publish failed", zap.String("betId", bet.ID), zap.Error(err))
	}

	// The wallet settles after the caller already has success.
	uc.creditAsync(cmd.Token, bet)
	return bet, nil
}

// CreditWin issues the payout credit for a bet settled outside this use case
// (auto-cashouts driven by the tick loop).
func (uc *CashoutUseCase) CreditWin(token string, bet *game.Bet) {
	uc.creditAsync(token, bet)
}

func (uc *CashoutUseCase) creditAsync(token string, bet *game.Bet) {
	payout := bet.Payout()
	uc.tracker.Go("payout-credit", func() error {
		cctx, cancel := context.WithTimeout(context.Background(), creditTimeout)
		defer cancel()
		err := uc.wallet.Credit(cctx, token, bet.PlayerID, payout, bet.ID)
		if err == nil {
			return nil
		}
		uc.recordFailedCredit(bet, fmt.Sprintf("payout credit failed: %v", err))
		return err
	})
}

func (uc *CashoutUseCase) recordFailedCredit(bet *game.Bet, reason string) {
	// Fresh deadline: the failed credit has typically burned its own
	// context already, and the audit record must outlive that failure.
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	fc := FailedCredit{
		ID:          uuid.New().String(),
		PlayerID:    bet.PlayerID,
		RoundID:     bet.RoundID,
		BetID:       bet.ID,
		PayoutCents: bet.Payout().Cents(),
		Reason:      reason,
		OccurredAt:  time.Now().UTC(),
	}
	if err := uc.failed.Save(ctx, fc); err != nil {
		uc.log.Error("failed credit audit record not persisted",
			zap.String("betId", bet.ID), zap.Error(err))
	}
	if err := uc.pub.Publish(broker.EventCreditFailed, broker.CreditFailedEvent{
		PlayerID:    bet.PlayerID,
		RoundID:     bet.RoundID,
		BetID:       bet.ID,
		PayoutCents: bet.Payout().Cents(),
		Reason:      reason,
	}); err != nil {
		uc.log.Warn("credit_failed publish failed", zap.String("betId", bet.ID), zap.Error(err))
	}
}
