package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/novaplay-gaming/crash-server/broker"
	"github.com/novaplay-gaming/crash-server/fair"
	"github.com/novaplay-gaming/crash-server/game"
	"github.com/novaplay-gaming/crash-server/money"
)

type walletCall struct {
	playerID string
	cents    int64
	ref      string
}

type fakeWallet struct {
	mu         sync.Mutex
	debits     []walletCall
	credits    []walletCall
	debitErr   error
	creditErr  error
	creditWait bool // block Credit until its context expires
}

func (w *fakeWallet) Debit(_ context.Context, _, playerID string, amount money.Money, ref string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debitErr != nil {
		return w.debitErr
	}
	w.debits = append(w.debits, walletCall{playerID, amount.Cents(), ref})
	return nil
}

func (w *fakeWallet) Credit(ctx context.Context, _, playerID string, amount money.Money, ref string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.creditWait {
		<-ctx.Done()
		return ctx.Err()
	}
	if w.creditErr != nil {
		return w.creditErr
	}
	w.credits = append(w.credits, walletCall{playerID, amount.Cents(), ref})
	return nil
}

func (w *fakeWallet) creditCalls() []walletCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]walletCall(nil), w.credits...)
}

type published struct {
	kind    broker.EventKind
	payload any
}

type fakeBus struct {
	mu     sync.Mutex
	events []published
}

func (b *fakeBus) Publish(kind broker.EventKind, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{kind, payload})
	return nil
}

func (b *fakeBus) PublishEnvelope(env broker.Envelope) error {
	return b.Publish(env.Kind, env.Payload)
}

func (b *fakeBus) kinds() []broker.EventKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broker.EventKind
	for _, e := range b.events {
		out = append(out, e.kind)
	}
	return out
}

type fakeFailedStore struct {
	mu    sync.Mutex
	saved []FailedCredit
}

// Save refuses dead contexts the way a DB-backed store would.
func (s *fakeFailedStore) Save(ctx context.Context, fc FailedCredit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, fc)
	return nil
}

func (s *fakeFailedStore) records() []FailedCredit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FailedCredit(nil), s.saved...)
}

type fixture struct {
	wallet  *fakeWallet
	bus     *fakeBus
	failed  *fakeFailedStore
	rounds  CurrentRoundStore
	tracker *Tracker
	tokens  *TokenIndex
	roundMu *sync.Mutex
	place   *PlaceBetUseCase
	cash    *CashoutUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		wallet:  &fakeWallet{},
		bus:     &fakeBus{},
		failed:  &fakeFailedStore{},
		rounds:  NewCurrentRoundStore(),
		tracker: NewTracker(16, zap.NewNop()),
		tokens:  &TokenIndex{},
		roundMu: &sync.Mutex{},
	}
	cfg := PlaceBetConfig{MinBetCents: 100, MaxBetCents: 100_000}
	f.place = NewPlaceBetUseCase(cfg, f.wallet, f.rounds, f.bus, f.tracker, f.failed, f.roundMu, f.tokens, zap.NewNop())
	f.cash = NewCashoutUseCase(f.wallet, f.rounds, f.bus, f.tracker, f.failed, f.roundMu, zap.NewNop())
	return f
}

func (f *fixture) startRound(t *testing.T, state game.RoundState, crashAt float64) *game.Round {
	t.Helper()
	seed, _ := fair.GenerateServerSeed()
	cp, _ := money.NewCrashPoint(crashAt)
	r, err := game.NewRound("round-1", seed, fair.HashServerSeed(seed), 1, cp)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []game.RoundState{game.RoundBetting, game.RoundRunning} {
		if r.State() == state {
			break
		}
		if err := r.TransitionTo(s); err != nil {
			t.Fatal(err)
		}
	}
	f.rounds.Set(r)
	return r
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.tracker.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func placeBetCmd(cents int64) broker.PlaceBetCommand {
	return broker.PlaceBetCommand{
		IdempotencyKey: "",
		PlayerID:       "p1",
		OperatorID:     "acme",
		RoundID:        "round-1",
		AmountCents:    cents,
		Token:          "tok",
	}
}

func TestPlaceBet_BelowMinNeverCallsWallet(t *testing.T) {
	f := newFixture(t)
	f.startRound(t, game.RoundBetting, 2.00)

	_, err := f.place.Execute(context.Background(), placeBetCmd(50))
	if RejectionCode(err) != CodeBelowMinBet {
		t.Fatalf("got %v, want BELOW_MIN_BET", err)
	}
	if len(f.wallet.debits) != 0 {
		t.Fatal("wallet debit must not be called for an out-of-bounds stake")
	}
}

func TestPlaceBet_AboveMaxRejected(t *testing.T) {
	f := newFixture(t)
	f.startRound(t, game.RoundBetting, 2.00)
	_, err := f.place.Execute(context.Background(), placeBetCmd(1_000_000))
	if RejectionCode(err) != CodeAboveMaxBet {
		t.Fatalf("got %v, want ABOVE_MAX_BET", err)
	}
}

func TestPlaceBet_Success(t *testing.T) {
	f := newFixture(t)
	r := f.startRound(t, game.RoundBetting, 2.00)

	bet, err := f.place.Execute(context.Background(), placeBetCmd(500))
	if err != nil {
		t.Fatal(err)
	}
	if bet.Status() != game.BetActive {
		t.Errorf("status = %s, want ACTIVE", bet.Status())
	}
	if r.Bets().Len() != 1 {
		t.Errorf("round has %d bets, want 1", r.Bets().Len())
	}
	if len(f.wallet.debits) != 1 || f.wallet.debits[0].cents != 500 {
		t.Errorf("debits = %+v, want one of 500", f.wallet.debits)
	}
	kinds := f.bus.kinds()
	if len(kinds) != 1 || kinds[0] != broker.EventBetPlaced {
		t.Errorf("published %v, want [bet_placed]", kinds)
	}
}

func TestPlaceBet_WalletFailureMapped(t *testing.T) {
	f := newFixture(t)
	f.startRound(t, game.RoundBetting, 2.00)
	f.wallet.debitErr = &WalletError{Kind: WalletInsufficientFunds}

	_, err := f.place.Execute(context.Background(), placeBetCmd(500))
	if RejectionCode(err) != CodeInsufficientFunds {
		t.Fatalf("got %v, want INSUFFICIENT_FUNDS", err)
	}
}

func TestPlaceBet_RoundClosedIssuesCompensatingCredit(t *testing.T) {
	f := newFixture(t)
	f.startRound(t, game.RoundRunning, 2.00) // betting window already closed

	_, err := f.place.Execute(context.Background(), placeBetCmd(700))
	if RejectionCode(err) != CodeRoundNotBetting {
		t.Fatalf("got %v, want ROUND_NOT_BETTING", err)
	}
	f.drain(t)

	credits := f.wallet.creditCalls()
	if len(credits) != 1 {
		t.Fatalf("credits = %+v, want exactly one compensation", credits)
	}
	if credits[0].playerID != "p1" || credits[0].cents != 700 {
		t.Errorf("compensation = %+v, want p1/700", credits[0])
	}
	if len(f.failed.records()) != 0 {
		t.Error("successful compensation must not produce a FailedCredit")
	}
}

func TestPlaceBet_CompensationFailurePersistedNotRethrown(t *testing.T) {
	f := newFixture(t)
	f.startRound(t, game.RoundRunning, 2.00)
	f.wallet.creditErr = &WalletError{Kind: WalletTimeout}

	_, err := f.place.Execute(context.Background(), placeBetCmd(700))
	if RejectionCode(err) != CodeRoundNotBetting {
		t.Fatalf("got %v, want ROUND_NOT_BETTING", err)
	}
	f.drain(t)

	recs := f.failed.records()
	if len(recs) != 1 {
		t.Fatalf("failed credits = %d, want 1", len(recs))
	}
	if recs[0].PlayerID != "p1" || recs[0].PayoutCents != 700 {
		t.Errorf("record = %+v", recs[0])
	}
	found := false
	for _, k := range f.bus.kinds() {
		if k == broker.EventCreditFailed {
			found = true
		}
	}
	if !found {
		t.Error("credit_failed event should be published")
	}
}

func TestPlaceBet_CompensationDeadlineStillPersistsAudit(t *testing.T) {
	f := newFixture(t)
	old := creditTimeout
	creditTimeout = 20 * time.Millisecond
	defer func() { creditTimeout = old }()

	f.startRound(t, game.RoundRunning, 2.00)
	f.wallet.creditWait = true

	_, err := f.place.Execute(context.Background(), placeBetCmd(700))
	if RejectionCode(err) != CodeRoundNotBetting {
		t.Fatalf("got %v, want ROUND_NOT_BETTING", err)
	}
	f.drain(t)

	// The compensation burned its whole deadline; the audit record must be
	// written anyway.
	recs := f.failed.records()
	if len(recs) != 1 {
		t.Fatalf("failed credits = %d, want 1", len(recs))
	}
	if recs[0].PlayerID != "p1" || recs[0].PayoutCents != 700 {
		t.Errorf("record = %+v", recs[0])
	}
}

func TestPlaceBet_Idempotency(t *testing.T) {
	f := newFixture(t)
	f.startRound(t, game.RoundBetting, 2.00)

	cmd := placeBetCmd(500)
	cmd.IdempotencyKey = "key-1"
	first, err := f.place.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.place.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Error("retried submission should return the original bet")
	}
	if len(f.wallet.debits) != 1 {
		t.Errorf("debits = %d, want 1 (no double debit)", len(f.wallet.debits))
	}
}

func TestCashout_SyncLockInAsyncCredit(t *testing.T) {
	f := newFixture(t)
	r := f.startRound(t, game.RoundBetting, 5.00)
	bet, err := f.place.Execute(context.Background(), placeBetCmd(333))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.TransitionTo(game.RoundRunning); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Tick(1.50); err != nil {
		t.Fatal(err)
	}

	got, err := f.cash.Execute(context.Background(), broker.CashoutCommand{
		PlayerID: "p1", OperatorID: "acme", RoundID: "round-1", BetID: bet.ID, Token: "tok",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status() != game.BetWon {
		t.Errorf("status = %s, want WON", got.Status())
	}
	if got.Payout().Cents() != 499 { // floor(333 * 1.5)
		t.Errorf("payout = %d, want 499", got.Payout().Cents())
	}
	f.drain(t)
	credits := f.wallet.creditCalls()
	if len(credits) != 1 || credits[0].cents != 499 {
		t.Errorf("credits = %+v, want one of 499", credits)
	}
}

func TestCashout_OwnershipAndIdentityChecks(t *testing.T) {
	f := newFixture(t)
	r := f.startRound(t, game.RoundBetting, 5.00)
	bet, _ := f.place.Execute(context.Background(), placeBetCmd(100))
	_ = r.TransitionTo(game.RoundRunning)

	_, err := f.cash.Execute(context.Background(), broker.CashoutCommand{
		PlayerID: "intruder", RoundID: "round-1", BetID: bet.ID,
	})
	if RejectionCode(err) != CodeNotBetOwner {
		t.Fatalf("got %v, want NOT_BET_OWNER", err)
	}
	_, err = f.cash.Execute(context.Background(), broker.CashoutCommand{
		PlayerID: "p1", RoundID: "stale-round", BetID: bet.ID,
	})
	if RejectionCode(err) != CodeRoundMismatch {
		t.Fatalf("got %v, want ROUND_MISMATCH", err)
	}
	_, err = f.cash.Execute(context.Background(), broker.CashoutCommand{
		PlayerID: "p1", RoundID: "round-1", BetID: "missing",
	})
	if RejectionCode(err) != CodeBetNotFound {
		t.Fatalf("got %v, want BET_NOT_FOUND", err)
	}
}

func TestCashout_CreditFailureKeepsWonStatus(t *testing.T) {
	f := newFixture(t)
	r := f.startRound(t, game.RoundBetting, 5.00)
	bet, _ := f.place.Execute(context.Background(), placeBetCmd(200))
	_ = r.TransitionTo(game.RoundRunning)
	_, _ = r.Tick(2.00)
	f.wallet.creditErr = &WalletError{Kind: WalletUnavailable}

	got, err := f.cash.Execute(context.Background(), broker.CashoutCommand{
		PlayerID: "p1", RoundID: "round-1", BetID: bet.ID, Token: "tok",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	if got.Status() != game.BetWon {
		t.Error("WON status must not be rolled back on credit failure")
	}
	recs := f.failed.records()
	if len(recs) != 1 || recs[0].BetID != bet.ID {
		t.Fatalf("failed credits = %+v, want one for the bet", recs)
	}
}

func TestCashout_CreditDeadlineStillPersistsAudit(t *testing.T) {
	f := newFixture(t)
	old := creditTimeout
	creditTimeout = 20 * time.Millisecond
	defer func() { creditTimeout = old }()

	r := f.startRound(t, game.RoundBetting, 5.00)
	bet, _ := f.place.Execute(context.Background(), placeBetCmd(200))
	_ = r.TransitionTo(game.RoundRunning)
	_, _ = r.Tick(2.00)
	f.wallet.creditWait = true

	got, err := f.cash.Execute(context.Background(), broker.CashoutCommand{
		PlayerID: "p1", RoundID: "round-1", BetID: bet.ID, Token: "tok",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	if got.Status() != game.BetWon {
		t.Error("WON status must not be rolled back on credit timeout")
	}
	recs := f.failed.records()
	if len(recs) != 1 {
		t.Fatalf("failed credits = %d, want 1 (audit must survive the credit's dead context)", len(recs))
	}
	if recs[0].BetID != bet.ID || recs[0].PayoutCents != 400 {
		t.Errorf("record = %+v, want bet %s payout 400", recs[0], bet.ID)
	}
	found := false
	for _, k := range f.bus.kinds() {
		if k == broker.EventCreditFailed {
			found = true
		}
	}
	if !found {
		t.Error("credit_failed event should be published")
	}
}

func TestTracker_DrainWaitsForTasks(t *testing.T) {
	tr := NewTracker(4, zap.NewNop())
	done := make(chan struct{})
	tr.Go("slow", func() error {
		time.Sleep(50 * time.Millisecond)
		close(done)
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.Drain(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	default:
		t.Fatal("drain returned before the task completed")
	}
	if tr.InFlight() != 0 {
		t.Errorf("inFlight = %d after drain", tr.InFlight())
	}
}

func TestTracker_ContainsPanics(t *testing.T) {
	tr := NewTracker(4, zap.NewNop())
	tr.Go("boom", func() error { panic("boom") })
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.Drain(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestTickEventBuffer_SwapRotates(t *testing.T) {
	buf := NewTickEventBuffer(4)
	envA, _ := broker.NewEnvelope(broker.EventTick, "acme", broker.TickEvent{RoundID: "r", Multiplier: 1.1})
	envB, _ := broker.NewEnvelope(broker.EventTick, "acme", broker.TickEvent{RoundID: "r", Multiplier: 1.2})

	buf.Push(envA)
	first := buf.Swap()
	if len(first) != 1 {
		t.Fatalf("first swap returned %d events, want 1", len(first))
	}

	buf.Push(envB)
	second := buf.Swap()
	if len(second) != 1 {
		t.Fatalf("second swap returned %d events, want 1", len(second))
	}
	var tick broker.TickEvent
	if err := json.Unmarshal(second[0].Payload, &tick); err != nil {
		t.Fatal(err)
	}
	if tick.Multiplier != 1.2 {
		t.Errorf("second batch multiplier = %v, want 1.2", tick.Multiplier)
	}

	if got := buf.Swap(); len(got) != 0 {
		t.Errorf("empty swap returned %d events", len(got))
	}
}
