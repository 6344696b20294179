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
	"github.com/novaplay-gaming/crash-server/money"
)

// WalletErrorKind classifies wallet adapter failures so use cases can map
// them to caller-visible codes.
type WalletErrorKind string

const (
	WalletInsufficientFunds WalletErrorKind = "INSUFFICIENT_FUNDS"
	WalletTimeout           WalletErrorKind = "TIMEOUT"
	WalletUnavailable       WalletErrorKind = "UNAVAILABLE"
)

type WalletError struct {
	Kind WalletErrorKind
	Err  error
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("wallet %s: %v", e.Kind, e.Err)
}

func (e *WalletError) Unwrap() error { return e.Err }

// creditTimeout bounds each asynchronous wallet credit attempt. A var so
// tests can run the timeout path without waiting it out.
var creditTimeout = 10 * time.Second

// auditTimeout bounds the FailedCredit write that follows a failed credit.
const auditTimeout = 5 * time.Second

type PlaceBetConfig struct {
	MinBetCents int64
	MaxBetCents int64
}

// PlaceBetUseCase validates a stake, debits the wallet, and enters the bet
// into the current round. If the round refuses the bet after the debit
// landed, a compensating credit is issued asynchronously and the caller gets
// ROUND_NOT_BETTING immediately.
type PlaceBetUseCase struct {
	cfg     PlaceBetConfig
	wallet  Wallet
	rounds  CurrentRoundStore
	pub     EventPublisher
	tracker *Tracker
	failed  FailedCreditStore
	roundMu *sync.Mutex
	tokens  *TokenIndex
	log     *zap.Logger

	mu   sync.Mutex
	seen map[string]*game.Bet // idempotency key -> accepted bet
}

func NewPlaceBetUseCase(
	cfg PlaceBetConfig,
	wallet Wallet,
	rounds CurrentRoundStore,
	pub EventPublisher,
	tracker *Tracker,
	failed FailedCreditStore,
	roundMu *sync.Mutex,
	tokens *TokenIndex,
	log *zap.Logger,
) *PlaceBetUseCase {
	return &PlaceBetUseCase{
		cfg:     cfg,
		wallet:  wallet,
		rounds:  rounds,
		pub:     pub,
		tracker: tracker,
		failed:  failed,
		roundMu: roundMu,
		tokens:  tokens,
		log:     log,
		seen:    make(map[string]*game.Bet),
	}
}

func (uc *PlaceBetUseCase) Execute(ctx context.Context, cmd broker.PlaceBetCommand) (*game.Bet, error) {
	// Stake bounds are checked before any I/O.
	if cmd.AmountCents < uc.cfg.MinBetCents {
		return nil, reject(CodeBelowMinBet, "stake %d below minimum %d", cmd.AmountCents, uc.cfg.MinBetCents)
	}
	if cmd.AmountCents > uc.cfg.MaxBetCents {
		return nil, reject(CodeAboveMaxBet, "stake %d above maximum %d", cmd.AmountCents, uc.cfg.MaxBetCents)
	}
	amount, err := money.FromCents(cmd.AmountCents)
	if err != nil {
		return nil, reject(CodeInvalidBet, "invalid amount: %v", err)
	}

	// Retried submissions with the same idempotency key return the original
	// bet without touching the wallet again.
	if cmd.IdempotencyKey != "" {
		uc.mu.Lock()
		prior, ok := uc.seen[cmd.IdempotencyKey]
		uc.mu.Unlock()
		if ok {
			return prior, nil
		}
	}

	betID := uuid.New().String()
	if err := uc.wallet.Debit(ctx, cmd.Token, cmd.PlayerID, amount, betID); err != nil {
		return nil, mapWalletError(err)
	}

	bet, err := game.NewBet(betID, cmd.PlayerID, cmd.RoundID, amount, cmd.AutoCashout)
	if err != nil {
		uc.compensate(cmd, amount, betID, "invalid bet after debit")
		return nil, reject(CodeInvalidBet, "%v", err)
	}

	uc.roundMu.Lock()
	round := uc.rounds.Get()
	if round == nil || round.ID != cmd.RoundID {
		uc.roundMu.Unlock()
		uc.compensate(cmd, amount, betID, "round no longer current")
		return nil, reject(CodeRoundNotBetting, "round %q is not accepting bets", cmd.RoundID)
	}
	if err := round.AddBet(bet); err != nil {
		uc.roundMu.Unlock()
		uc.compensate(cmd, amount, betID, "round rejected bet")
		return nil, reject(CodeRoundNotBetting, "round %q is not accepting bets", cmd.RoundID)
	}
	uc.roundMu.Unlock()

	if cmd.IdempotencyKey != "" {
		uc.mu.Lock()
		uc.seen[cmd.IdempotencyKey] = bet
		uc.mu.Unlock()
	}
	uc.tokens.Put(bet.ID, cmd.Token)

	if err := uc.pub.Publish(broker.EventBetPlaced, broker.BetPlacedEvent{
		BetID:       bet.ID,
		PlayerID:    bet.PlayerID,
		RoundID:     bet.RoundID,
		AmountCents: bet.Amount.Cents(),
		AutoCashout: bet.AutoCashout,
	}); err != nil {
		uc.log.Warn("bet_placed publish failed", zap.String("betId", bet.ID), zap.Error(err))
	}
	return bet, nil
}

// ResetIdempotency clears the per-round dedup index. Called by the
// orchestrator when a new round opens.
func (uc *PlaceBetUseCase) ResetIdempotency() {
	uc.mu.Lock()
	uc.seen = make(map[string]*game.Bet)
	uc.mu.Unlock()
}

// compensate issues the corrective credit without blocking the caller.
// Credit failure is persisted as a FailedCredit and notified, never
// re-thrown.
func (uc *PlaceBetUseCase) compensate(cmd broker.PlaceBetCommand, amount money.Money, betID, why string) {
	uc.tracker.Go("compensating-credit", func() error {
		cctx, cancel := context.WithTimeout(context.Background(), creditTimeout)
		defer cancel()
		err := uc.wallet.Credit(cctx, cmd.Token, cmd.PlayerID, amount, betID)
		if err == nil {
			return nil
		}
		uc.recordFailedCredit(cmd.PlayerID, cmd.RoundID, betID, amount.Cents(),
			fmt.Sprintf("%s; credit failed: %v", why, err))
		return err
	})
}

func (uc *PlaceBetUseCase) recordFailedCredit(playerID, roundID, betID string, cents int64, reason string) {
	// The credit's own context is usually already exhausted when a failure
	// lands here; the audit write gets a fresh deadline so the record is
	// never lost to the timeout that caused it.
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	fc := FailedCredit{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		RoundID:     roundID,
		BetID:       betID,
		PayoutCents: cents,
		Reason:      reason,
		OccurredAt:  time.Now().UTC(),
	}
	if err := uc.failed.Save(ctx, fc); err != nil {
		uc.log.Error("failed credit audit record not persisted",
			zap.String("betId", betID), zap.Error(err))
	}
	if err := uc.pub.Publish(broker.EventCreditFailed, broker.CreditFailedEvent{
		PlayerID:    playerID,
		RoundID:     roundID,
		BetID:       betID,
		PayoutCents: cents,
		Reason:      reason,
	}); err != nil {
		uc.log.Warn("credit_failed publish failed", zap.String("betId", betID), zap.Error(err))
	}
}

func mapWalletError(err error) error {
	if we, ok := err.(*WalletError); ok {
		switch we.Kind {
		case WalletInsufficientFunds:
			return reject(CodeInsufficientFunds, "insufficient funds")
		case WalletTimeout, WalletUnavailable:
			return reject(CodeWalletUnavailable, "wallet unavailable")
		}
	}
	return reject(CodeWalletUnavailable, "wallet error: %v", err)
}
