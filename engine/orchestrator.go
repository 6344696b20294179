package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/novaplay-gaming/crash-server/broker"
	"github.com/novaplay-gaming/crash-server/fair"
	"github.com/novaplay-gaming/crash-server/game"
	"github.com/novaplay-gaming/crash-server/money"
)

type OrchestratorConfig struct {
	OperatorID       string
	ClientSeed       string
	HouseEdgePercent float64
	BettingWindow    time.Duration
	TickInterval     time.Duration
	CrashPause       time.Duration
	GrowthRate       float64
}

func (c *OrchestratorConfig) applyDefaults() {
	if c.HouseEdgePercent == 0 {
		c.HouseEdgePercent = 4
	}
	if c.BettingWindow == 0 {
		c.BettingWindow = 6 * time.Second
	}
	if c.TickInterval == 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.CrashPause == 0 {
		c.CrashPause = 3 * time.Second
	}
}

// Orchestrator advances rounds on a fixed cadence: consume a seed, open the
// betting window, run ticks until the pre-committed crash point, settle, and
// repeat. It owns the current-round cell and the round mutex; every mutation
// of a round goes through that mutex, here or in the use cases.
type Orchestrator struct {
	cfg      OrchestratorConfig
	curve    money.Curve
	seeds    *fair.RotatingProvider
	rounds   CurrentRoundStore
	pub      EventPublisher
	placeBet *PlaceBetUseCase
	cashout  *CashoutUseCase
	history  RoundHistoryStore
	tickBuf  *TickEventBuffer
	tracker  *Tracker
	tokens   *TokenIndex
	roundMu  *sync.Mutex
	log      *zap.Logger

	nonce atomic.Int64
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	seeds *fair.RotatingProvider,
	rounds CurrentRoundStore,
	pub EventPublisher,
	placeBet *PlaceBetUseCase,
	cashout *CashoutUseCase,
	history RoundHistoryStore,
	tracker *Tracker,
	tokens *TokenIndex,
	roundMu *sync.Mutex,
	log *zap.Logger,
) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		cfg:      cfg,
		curve:    money.NewCurve(cfg.GrowthRate),
		seeds:    seeds,
		rounds:   rounds,
		pub:      pub,
		placeBet: placeBet,
		cashout:  cashout,
		history:  history,
		tickBuf:  NewTickEventBuffer(64),
		tracker:  tracker,
		tokens:   tokens,
		roundMu:  roundMu,
		log:      log,
	}
}

// Run advances rounds until the context is canceled, then drains in-flight
// wallet tasks.
func (o *Orchestrator) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := o.runRound(ctx); err != nil && ctx.Err() == nil {
			o.log.Error("round aborted", zap.Error(err))
			if !sleepCtx(ctx, time.Second) {
				break
			}
		}
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return o.tracker.Drain(drainCtx)
}

func (o *Orchestrator) runRound(ctx context.Context) error {
	seed, err := o.seeds.Next()
	if err != nil {
		return err
	}
	nonce := o.nonce.Add(1)
	cp, err := fair.CalculateCrashPoint(seed, o.cfg.ClientSeed, nonce, o.cfg.HouseEdgePercent)
	if err != nil {
		return err
	}
	hashed := fair.HashServerSeed(seed)
	round, err := game.NewRound(uuid.New().String(), seed, hashed, nonce, cp)
	if err != nil {
		return err
	}

	o.roundMu.Lock()
	o.rounds.Set(round)
	o.roundMu.Unlock()
	o.placeBet.ResetIdempotency()

	if err := o.pub.Publish(broker.EventRoundNew, broker.RoundNewEvent{
		RoundID:    round.ID,
		HashedSeed: hashed,
	}); err != nil {
		o.log.Warn("round_new publish failed", zap.Error(err))
	}

	endsAt := time.Now().Add(o.cfg.BettingWindow)
	o.roundMu.Lock()
	err = round.TransitionTo(game.RoundBetting)
	o.roundMu.Unlock()
	if err != nil {
		return err
	}
	if err := o.pub.Publish(broker.EventRoundBetting, broker.RoundBettingEvent{
		RoundID: round.ID,
		EndsAt:  endsAt,
	}); err != nil {
		o.log.Warn("round_betting publish failed", zap.Error(err))
	}

	if !sleepCtx(ctx, o.cfg.BettingWindow) {
		return ctx.Err()
	}

	o.roundMu.Lock()
	err = round.TransitionTo(game.RoundRunning)
	o.roundMu.Unlock()
	if err != nil {
		return err
	}
	if err := o.pub.Publish(broker.EventRoundStarted, broker.RoundStartedEvent{RoundID: round.ID}); err != nil {
		o.log.Warn("round_started publish failed", zap.Error(err))
	}

	start := time.Now()
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		elapsed := time.Since(start)
		crashed := o.tick(round, elapsed)

		// Publishing happens outside the round mutex so broadcast delivery
		// can never block the game.
		for _, env := range o.tickBuf.Swap() {
			if err := o.pub.PublishEnvelope(env); err != nil {
				o.log.Warn("event publish failed", zap.String("kind", string(env.Kind)), zap.Error(err))
			}
		}
		if crashed {
			break
		}
	}

	o.recordHistory(round)
	sleepCtx(ctx, o.cfg.CrashPause)
	return nil
}

// tick advances one multiplier step under the round mutex: auto-cashouts lock
// in first at their thresholds, then the round ticks, then settlement or tick
// events are buffered for publication.
func (o *Orchestrator) tick(round *game.Round, elapsed time.Duration) bool {
	multiplier := o.curve.At(elapsed)

	o.roundMu.Lock()
	defer o.roundMu.Unlock()

	// The curve can step past the crash point within a single tick. The
	// multiplier never actually exceeds the crash point, so thresholds are
	// only reachable up to it; anything above settles LOST with the round.
	scan := multiplier
	if cp := round.CrashPoint().Value(); scan > cp {
		scan = cp
	}
	round.Bets().ForEachAutoCashout(scan, func(b *game.Bet) {
		if _, err := round.CashoutAt(b.ID, b.AutoCashout); err != nil {
			o.log.Error("auto-cashout failed", zap.String("betId", b.ID), zap.Error(err))
			return
		}
		o.buffer(broker.EventBetWon, broker.BetWonEvent{
			BetID:             b.ID,
			PlayerID:          b.PlayerID,
			RoundID:           b.RoundID,
			CashoutMultiplier: b.CashoutMultiplier(),
			PayoutCents:       b.Payout().Cents(),
		})
		o.cashout.CreditWin(o.tokens.Get(b.ID), b)
	})

	crashed, err := round.Tick(multiplier)
	if err != nil {
		o.log.Error("tick failed", zap.Error(err))
		return true
	}
	if !crashed {
		o.buffer(broker.EventTick, broker.TickEvent{
			RoundID:    round.ID,
			Multiplier: round.CurrentMultiplier(),
			ElapsedMs:  elapsed.Milliseconds(),
		})
		return false
	}

	round.Bets().ForEach(func(b *game.Bet) {
		if b.Status() != game.BetLost {
			return
		}
		o.buffer(broker.EventBetLost, broker.BetLostEvent{
			BetID:      b.ID,
			PlayerID:   b.PlayerID,
			RoundID:    b.RoundID,
			CrashPoint: round.CrashPoint().Value(),
		})
	})
	o.buffer(broker.EventRoundCrashed, broker.RoundCrashedEvent{
		RoundID:    round.ID,
		CrashPoint: round.CrashPoint().Value(),
		ServerSeed: round.ServerSeed(),
		Nonce:      round.Nonce,
	})
	return true
}

func (o *Orchestrator) buffer(kind broker.EventKind, payload any) {
	env, err := broker.NewEnvelope(kind, o.cfg.OperatorID, payload)
	if err != nil {
		o.log.Error("envelope build failed", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	o.tickBuf.Push(env)
}

func (o *Orchestrator) recordHistory(round *game.Round) {
	rec := RoundRecord{
		RoundID:    round.ID,
		CrashPoint: round.CrashPoint().Value(),
		ServerSeed: round.ServerSeed(),
		HashedSeed: round.HashedSeed,
		Nonce:      round.Nonce,
		Bets:       round.Bets().Len(),
		SettledAt:  time.Now().UTC(),
	}
	o.tracker.Go("round-history", func() error {
		hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return o.history.Append(hctx, rec)
	})
}

// sleepCtx sleeps for d, returning false if the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
