package game

import "fmt"

// BetCollection is the in-round index of bets, keyed by bet id with a
// per-player lookup. Owned exclusively by one Round; not safe for concurrent
// use on its own.
type BetCollection struct {
	byID     map[string]*Bet
	byPlayer map[string]*Bet
	order    []*Bet
}

func NewBetCollection() *BetCollection {
	return &BetCollection{
		byID:     make(map[string]*Bet),
		byPlayer: make(map[string]*Bet),
	}
}

// Insert adds a bet. A duplicate bet id is a hard error.
func (c *BetCollection) Insert(b *Bet) error {
	if _, ok := c.byID[b.ID]; ok {
		return fmt.Errorf("game: duplicate bet id %q", b.ID)
	}
	c.byID[b.ID] = b
	c.byPlayer[b.PlayerID] = b
	c.order = append(c.order, b)
	return nil
}

func (c *BetCollection) Get(id string) (*Bet, bool) {
	b, ok := c.byID[id]
	return b, ok
}

func (c *BetCollection) GetByPlayer(playerID string) (*Bet, bool) {
	b, ok := c.byPlayer[playerID]
	return b, ok
}

func (c *BetCollection) Len() int { return len(c.order) }

// ForEach visits bets in insertion order.
func (c *BetCollection) ForEach(fn func(*Bet)) {
	for _, b := range c.order {
		fn(b)
	}
}

// ForEachAutoCashout visits every still-active bet whose auto-cashout
// threshold is met by the given multiplier, in insertion order. The engine
// force-cashes these out before the next tick broadcast.
func (c *BetCollection) ForEachAutoCashout(multiplier float64, fn func(*Bet)) {
	for _, b := range c.order {
		if b.Status() == BetActive && b.AutoCashout != 0 && multiplier >= b.AutoCashout {
			fn(b)
		}
	}
}

// ActiveBets returns the bets still in play.
func (c *BetCollection) ActiveBets() []*Bet {
	var out []*Bet
	for _, b := range c.order {
		if b.Status() == BetActive {
			out = append(out, b)
		}
	}
	return out
}
