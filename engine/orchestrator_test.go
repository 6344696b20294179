package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/novaplay-gaming/crash-server/broker"
	"github.com/novaplay-gaming/crash-server/fair"
	"github.com/novaplay-gaming/crash-server/game"
	"github.com/novaplay-gaming/crash-server/money"
)

type memHistory struct {
	mu   sync.Mutex
	recs []RoundRecord
}

func (h *memHistory) Append(_ context.Context, rec RoundRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs = append(h.recs, rec)
	return nil
}

func newTestOrchestrator(t *testing.T, f *fixture, history *memHistory) *Orchestrator {
	t.Helper()
	seeds, err := fair.NewRotatingProvider(8, nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := OrchestratorConfig{
		OperatorID:       "acme",
		ClientSeed:       "test-client-seed",
		HouseEdgePercent: 4,
		BettingWindow:    20 * time.Millisecond,
		TickInterval:     2 * time.Millisecond,
		CrashPause:       time.Millisecond,
		GrowthRate:       0.01, // fast curve so rounds crash quickly
	}
	return NewOrchestrator(cfg, seeds, f.rounds, f.bus, f.place, f.cash,
		history, f.tracker, f.tokens, f.roundMu, zap.NewNop())
}

func TestOrchestrator_FullRoundLifecycle(t *testing.T) {
	f := newFixture(t)
	history := &memHistory{}
	o := newTestOrchestrator(t, f, history)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = o.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		crashed := false
		for _, k := range f.bus.kinds() {
			if k == broker.EventRoundCrashed {
				crashed = true
			}
		}
		if crashed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no round crashed within 5s")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	kinds := f.bus.kinds()
	order := map[broker.EventKind]int{}
	for i, k := range kinds {
		if _, seen := order[k]; !seen {
			order[k] = i
		}
	}
	for _, pair := range [][2]broker.EventKind{
		{broker.EventRoundNew, broker.EventRoundBetting},
		{broker.EventRoundBetting, broker.EventRoundStarted},
		{broker.EventRoundStarted, broker.EventRoundCrashed},
	} {
		a, okA := order[pair[0]]
		b, okB := order[pair[1]]
		if !okA || !okB {
			t.Fatalf("missing lifecycle event %v or %v in %v", pair[0], pair[1], kinds)
		}
		if a >= b {
			t.Errorf("%v (index %d) should precede %v (index %d)", pair[0], a, pair[1], b)
		}
	}

	history.mu.Lock()
	defer history.mu.Unlock()
	if len(history.recs) == 0 {
		t.Fatal("settled round should be appended to history")
	}
	rec := history.recs[0]
	if rec.ServerSeed == "" || rec.HashedSeed == "" {
		t.Fatal("history record must carry the revealed seed pair")
	}
	if fair.HashServerSeed(rec.ServerSeed) != rec.HashedSeed {
		t.Error("history seed does not match its commitment")
	}
	if !fair.Verify(rec.ServerSeed, "test-client-seed", rec.Nonce, rec.CrashPoint, 4) {
		t.Error("recorded crash point fails provably-fair verification")
	}
}

func TestOrchestrator_TickAutoCashoutBeforeBroadcast(t *testing.T) {
	f := newFixture(t)
	o := newTestOrchestrator(t, f, &memHistory{})

	seed, _ := fair.GenerateServerSeed()
	cp, _ := money.NewCrashPoint(10.00)
	round, err := game.NewRound("round-1", seed, fair.HashServerSeed(seed), 1, cp)
	if err != nil {
		t.Fatal(err)
	}
	_ = round.TransitionTo(game.RoundBetting)
	bet, _ := game.NewBet("b1", "p1", "round-1", money.MustFromCents(1000), 1.50)
	if err := round.AddBet(bet); err != nil {
		t.Fatal(err)
	}
	_ = round.TransitionTo(game.RoundRunning)
	f.rounds.Set(round)
	f.tokens.Put("b1", "tok")

	// Elapsed time chosen so the curve multiplier passes the 1.50 threshold.
	o.tick(round, 55*time.Millisecond)

	if bet.Status() != game.BetWon {
		t.Fatalf("auto-cashout bet status = %s, want WON", bet.Status())
	}
	// Locked in at the threshold, not at the tick's higher multiplier.
	if bet.CashoutMultiplier() != 1.50 {
		t.Errorf("cashout multiplier = %v, want 1.50", bet.CashoutMultiplier())
	}
	if bet.Payout().Cents() != 1500 {
		t.Errorf("payout = %d, want 1500", bet.Payout().Cents())
	}

	batch := o.tickBuf.Swap()
	if len(batch) < 2 {
		t.Fatalf("tick batch has %d events, want bet_won then tick", len(batch))
	}
	if batch[0].Kind != broker.EventBetWon {
		t.Errorf("first buffered event = %v, want bet_won", batch[0].Kind)
	}
	if batch[len(batch)-1].Kind != broker.EventTick {
		t.Errorf("last buffered event = %v, want tick", batch[len(batch)-1].Kind)
	}

	f.drain(t)
	credits := f.wallet.creditCalls()
	if len(credits) != 1 || credits[0].cents != 1500 {
		t.Errorf("credits = %+v, want one payout of 1500", credits)
	}
}

func TestOrchestrator_AutoCashoutAboveCrashPointLoses(t *testing.T) {
	f := newFixture(t)
	o := newTestOrchestrator(t, f, &memHistory{})

	seed, _ := fair.GenerateServerSeed()
	cp, _ := money.NewCrashPoint(1.20)
	round, _ := game.NewRound("round-1", seed, fair.HashServerSeed(seed), 1, cp)
	_ = round.TransitionTo(game.RoundBetting)
	bet, _ := game.NewBet("b1", "p1", "round-1", money.MustFromCents(1000), 1.50)
	_ = round.AddBet(bet)
	_ = round.TransitionTo(game.RoundRunning)
	f.rounds.Set(round)
	f.tokens.Put("b1", "tok")

	// One tick carries the curve past both the crash point and the
	// threshold. The multiplier never reached 1.50, so the bet must lose.
	crashed := o.tick(round, time.Second)
	if !crashed {
		t.Fatal("tick past the crash point should report crashed")
	}
	if bet.Status() != game.BetLost {
		t.Fatalf("bet status = %s, want LOST (threshold above crash point)", bet.Status())
	}
	if bet.Payout().Cents() != 0 {
		t.Errorf("payout = %d, want 0", bet.Payout().Cents())
	}

	for _, env := range o.tickBuf.Swap() {
		if env.Kind == broker.EventBetWon {
			t.Error("bet_won buffered for a bet the round never reached")
		}
	}

	f.drain(t)
	if credits := f.wallet.creditCalls(); len(credits) != 0 {
		t.Errorf("credits = %+v, want none", credits)
	}
}

func TestOrchestrator_AutoCashoutExactlyAtCrashPointWins(t *testing.T) {
	f := newFixture(t)
	o := newTestOrchestrator(t, f, &memHistory{})

	seed, _ := fair.GenerateServerSeed()
	cp, _ := money.NewCrashPoint(1.20)
	round, _ := game.NewRound("round-1", seed, fair.HashServerSeed(seed), 1, cp)
	_ = round.TransitionTo(game.RoundBetting)
	bet, _ := game.NewBet("b1", "p1", "round-1", money.MustFromCents(1000), 1.20)
	_ = round.AddBet(bet)
	_ = round.TransitionTo(game.RoundRunning)
	f.rounds.Set(round)
	f.tokens.Put("b1", "tok")

	// The multiplier reaches exactly the crash point, so a threshold at
	// that value locks in before the crash settles the rest.
	o.tick(round, time.Second)

	if bet.Status() != game.BetWon {
		t.Fatalf("bet status = %s, want WON at the crash point", bet.Status())
	}
	if bet.CashoutMultiplier() != 1.20 {
		t.Errorf("cashout multiplier = %v, want 1.20", bet.CashoutMultiplier())
	}
}

func TestOrchestrator_TickCrashBuffersSettlement(t *testing.T) {
	f := newFixture(t)
	o := newTestOrchestrator(t, f, &memHistory{})

	seed, _ := fair.GenerateServerSeed()
	cp, _ := money.NewCrashPoint(1.20)
	round, _ := game.NewRound("round-1", seed, fair.HashServerSeed(seed), 1, cp)
	_ = round.TransitionTo(game.RoundBetting)
	bet, _ := game.NewBet("b1", "p1", "round-1", money.MustFromCents(500), 0)
	_ = round.AddBet(bet)
	_ = round.TransitionTo(game.RoundRunning)
	f.rounds.Set(round)

	crashed := o.tick(round, time.Second) // curve far past 1.20
	if !crashed {
		t.Fatal("tick past the crash point should report crashed")
	}
	if bet.Status() != game.BetLost {
		t.Errorf("bet status = %s, want LOST", bet.Status())
	}

	batch := o.tickBuf.Swap()
	var kinds []broker.EventKind
	for _, env := range batch {
		kinds = append(kinds, env.Kind)
	}
	if len(kinds) != 2 || kinds[0] != broker.EventBetLost || kinds[1] != broker.EventRoundCrashed {
		t.Errorf("buffered kinds = %v, want [bet_lost round_crashed]", kinds)
	}
}
