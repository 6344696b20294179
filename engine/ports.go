// Package engine coordinates the round lifecycle: provably-fair seed
// consumption, bet placement and cashout against the wallet, and event
// publication toward the gateway. All round mutation is serialized through a
// single mutex so a round only ever has one logical writer.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/novaplay-gaming/crash-server/broker"
	"github.com/novaplay-gaming/crash-server/game"
	"github.com/novaplay-gaming/crash-server/money"
)

// Wallet is the external money ledger. Debit is called synchronously before a
// bet enters the round; Credit is fire-and-forget (payouts, compensation).
type Wallet interface {
	Debit(ctx context.Context, token, playerID string, amount money.Money, ref string) error
	Credit(ctx context.Context, token, playerID string, amount money.Money, ref string) error
}

// EventPublisher emits domain events toward the broker. Implementations map
// the event kind to its operator-scoped topic. PublishEnvelope exists for the
// tick path, where envelopes are batched before shipping.
type EventPublisher interface {
	Publish(kind broker.EventKind, payload any) error
	PublishEnvelope(env broker.Envelope) error
}

// FailedCredit is the audit record written whenever an asynchronous wallet
// credit could not be confirmed. Never silently discarded.
type FailedCredit struct {
	ID          string
	PlayerID    string
	RoundID     string
	BetID       string
	PayoutCents int64
	Reason      string
	OccurredAt  time.Time
	RetryCount  int
	Resolved    bool
}

type FailedCreditStore interface {
	Save(ctx context.Context, fc FailedCredit) error
}

// RoundRecord is the settled-round history row: everything a player needs to
// verify the outcome after the seed is revealed.
type RoundRecord struct {
	RoundID    string
	CrashPoint float64
	ServerSeed string
	HashedSeed string
	Nonce      int64
	Bets       int
	SettledAt  time.Time
}

type RoundHistoryStore interface {
	Append(ctx context.Context, rec RoundRecord) error
}

// CurrentRoundStore holds the singleton "current round" reference for one
// operator. Its lifetime is owned by the Orchestrator.
type CurrentRoundStore interface {
	Get() *game.Round
	Set(r *game.Round)
}

// TokenIndex maps accepted bet ids to the wallet session token that placed
// them, so tick-driven auto-cashouts can credit the right session later.
type TokenIndex struct {
	m sync.Map
}

func (t *TokenIndex) Put(betID, token string) { t.m.Store(betID, token) }

func (t *TokenIndex) Get(betID string) string {
	if v, ok := t.m.Load(betID); ok {
		return v.(string)
	}
	return ""
}

func (t *TokenIndex) Delete(betID string) { t.m.Delete(betID) }

type currentRound struct {
	mu sync.RWMutex
	r  *game.Round
}

// NewCurrentRoundStore returns the in-memory cell the orchestrator advances.
func NewCurrentRoundStore() CurrentRoundStore {
	return &currentRound{}
}

func (c *currentRound) Get() *game.Round {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.r
}

func (c *currentRound) Set(r *game.Round) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.r = r
}
