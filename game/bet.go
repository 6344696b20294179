// Package game holds the per-round domain entities: the Round state machine,
// its bets, and the transition tables that are the single source of truth for
// lifecycle legality.
package game

import (
	"fmt"
	"time"

	"github.com/novaplay-gaming/crash-server/money"
)

type BetStatus string

const (
	BetPending BetStatus = "PENDING"
	BetActive  BetStatus = "ACTIVE"
	BetWon     BetStatus = "WON"
	BetLost    BetStatus = "LOST"
)

// ErrBetTransition signals an illegal bet lifecycle move. Contract violation,
// never swallowed.
type ErrBetTransition struct {
	From, To BetStatus
}

func (e ErrBetTransition) Error() string {
	return fmt.Sprintf("game: illegal bet transition %s -> %s", e.From, e.To)
}

// Bet is one player's stake in one round. Amount is immutable; payout and
// cashoutMultiplier are set exactly once when the bet settles.
type Bet struct {
	ID          string
	PlayerID    string
	RoundID     string
	Amount      money.Money
	AutoCashout float64 // 0 means no auto-cashout
	PlacedAt    time.Time

	status            BetStatus
	cashoutMultiplier float64
	payout            money.Money
}

func NewBet(id, playerID, roundID string, amount money.Money, autoCashout float64) (*Bet, error) {
	if id == "" || playerID == "" || roundID == "" {
		return nil, fmt.Errorf("game: bet requires id, playerId and roundId")
	}
	if autoCashout != 0 && autoCashout < 1.01 {
		return nil, fmt.Errorf("game: auto-cashout %v must be at least 1.01", autoCashout)
	}
	return &Bet{
		ID:          id,
		PlayerID:    playerID,
		RoundID:     roundID,
		Amount:      amount,
		AutoCashout: autoCashout,
		PlacedAt:    time.Now(),
		status:      BetPending,
	}, nil
}

func (b *Bet) Status() BetStatus { return b.status }

func (b *Bet) CashoutMultiplier() float64 { return b.cashoutMultiplier }

func (b *Bet) Payout() money.Money { return b.payout }

// Activate marks a pending bet as live in its round.
func (b *Bet) Activate() error {
	if b.status != BetPending {
		return ErrBetTransition{From: b.status, To: BetActive}
	}
	b.status = BetActive
	return nil
}

// Cashout settles an active bet as WON at the given multiplier. The payout is
// floor(amount * multiplier) in cents.
func (b *Bet) Cashout(multiplier float64) error {
	if b.status != BetActive {
		return ErrBetTransition{From: b.status, To: BetWon}
	}
	b.status = BetWon
	b.cashoutMultiplier = multiplier
	b.payout = b.Amount.MultiplyByMultiplier(multiplier)
	return nil
}

// Lose settles an active bet as LOST with zero payout.
func (b *Bet) Lose() error {
	if b.status != BetActive {
		return ErrBetTransition{From: b.status, To: BetLost}
	}
	b.status = BetLost
	b.payout = money.Zero()
	return nil
}
