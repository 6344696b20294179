package game

import (
	"fmt"

	"github.com/novaplay-gaming/crash-server/money"
)

type RoundState string

const (
	RoundWaiting RoundState = "WAITING"
	RoundBetting RoundState = "BETTING"
	RoundRunning RoundState = "RUNNING"
	RoundCrashed RoundState = "CRASHED"
)

// roundTransitions is the single source of truth for lifecycle legality:
// WAITING -> BETTING -> RUNNING -> CRASHED, nothing skipped or reversed.
var roundTransitions = map[RoundState]RoundState{
	RoundWaiting: RoundBetting,
	RoundBetting: RoundRunning,
	RoundRunning: RoundCrashed,
}

// CanTransition reports whether from -> to is a legal round move.
func CanTransition(from, to RoundState) bool {
	return roundTransitions[from] == to
}

type ErrRoundTransition struct {
	From, To RoundState
}

func (e ErrRoundTransition) Error() string {
	return fmt.Sprintf("game: illegal round transition %s -> %s", e.From, e.To)
}

type ErrRoundState struct {
	Op       string
	Expected RoundState
	Actual   RoundState
}

func (e ErrRoundState) Error() string {
	return fmt.Sprintf("game: %s requires round state %s, round is %s", e.Op, e.Expected, e.Actual)
}

// Round is the per-round state machine. It owns its BetCollection and the
// pre-committed crash point; the crash point stays hidden until the crash
// transition reveals it alongside the server seed.
type Round struct {
	ID         string
	HashedSeed string
	Nonce      int64

	serverSeed        string
	crashPoint        money.CrashPoint
	state             RoundState
	currentMultiplier float64
	bets              *BetCollection
}

func NewRound(id, serverSeed, hashedSeed string, nonce int64, crashPoint money.CrashPoint) (*Round, error) {
	if id == "" || serverSeed == "" || hashedSeed == "" {
		return nil, fmt.Errorf("game: round requires id and seed pair")
	}
	return &Round{
		ID:                id,
		HashedSeed:        hashedSeed,
		Nonce:             nonce,
		serverSeed:        serverSeed,
		crashPoint:        crashPoint,
		state:             RoundWaiting,
		currentMultiplier: 1.00,
		bets:              NewBetCollection(),
	}, nil
}

func (r *Round) State() RoundState { return r.state }

func (r *Round) CurrentMultiplier() float64 { return r.currentMultiplier }

func (r *Round) Bets() *BetCollection { return r.bets }

// CrashPoint is only meaningful to callers once the round has crashed; the
// engine uses it internally before then.
func (r *Round) CrashPoint() money.CrashPoint { return r.crashPoint }

// ServerSeed reveals the committed seed. Empty until the round has crashed.
func (r *Round) ServerSeed() string {
	if r.state != RoundCrashed {
		return ""
	}
	return r.serverSeed
}

// TransitionTo advances the lifecycle by exactly one legal step.
func (r *Round) TransitionTo(to RoundState) error {
	if !CanTransition(r.state, to) {
		return ErrRoundTransition{From: r.state, To: to}
	}
	r.state = to
	return nil
}

// AddBet activates a pending bet and inserts it. Legal only while BETTING.
func (r *Round) AddBet(b *Bet) error {
	if r.state != RoundBetting {
		return ErrRoundState{Op: "addBet", Expected: RoundBetting, Actual: r.state}
	}
	if err := b.Activate(); err != nil {
		return err
	}
	return r.bets.Insert(b)
}

// Tick advances the multiplier. When the multiplier reaches the crash point
// the round transitions to CRASHED and every still-active bet settles LOST
// with zero payout; the returned flag is true exactly once, on that tick, so
// the caller can broadcast settlement once.
func (r *Round) Tick(multiplier float64) (crashed bool, err error) {
	if r.state != RoundRunning {
		return false, ErrRoundState{Op: "tick", Expected: RoundRunning, Actual: r.state}
	}
	if multiplier > r.currentMultiplier {
		r.currentMultiplier = multiplier
	}
	if !r.crashPoint.ReachedBy(multiplier) {
		return false, nil
	}

	// Crash settlement is atomic with the transition: no bet can cash out
	// between the state change and the loss marking.
	if err := r.TransitionTo(RoundCrashed); err != nil {
		return false, err
	}
	r.currentMultiplier = r.crashPoint.Value()
	for _, b := range r.bets.ActiveBets() {
		if err := b.Lose(); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Cashout settles a bet as WON at the current multiplier. Legal only while
// RUNNING and only for an active bet.
func (r *Round) Cashout(betID string) (*Bet, error) {
	if r.state != RoundRunning {
		return nil, ErrRoundState{Op: "cashout", Expected: RoundRunning, Actual: r.state}
	}
	b, ok := r.bets.Get(betID)
	if !ok {
		return nil, fmt.Errorf("game: bet %q not in round %q", betID, r.ID)
	}
	if err := b.Cashout(r.currentMultiplier); err != nil {
		return nil, err
	}
	return b, nil
}

// CashoutAt settles a bet as WON at an explicit multiplier. Used for
// auto-cashouts so the lock-in happens at the threshold, not at whatever the
// tick has since advanced to.
func (r *Round) CashoutAt(betID string, multiplier float64) (*Bet, error) {
	if r.state != RoundRunning {
		return nil, ErrRoundState{Op: "cashout", Expected: RoundRunning, Actual: r.state}
	}
	b, ok := r.bets.Get(betID)
	if !ok {
		return nil, fmt.Errorf("game: bet %q not in round %q", betID, r.ID)
	}
	if err := b.Cashout(multiplier); err != nil {
		return nil, err
	}
	return b, nil
}
