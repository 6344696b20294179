package main

import (
	"context"
	"log"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/novaplay-gaming/crash-server/broker"
	"github.com/novaplay-gaming/crash-server/config"
	"github.com/novaplay-gaming/crash-server/engine"
	"github.com/novaplay-gaming/crash-server/fair"
	"github.com/novaplay-gaming/crash-server/logging"
	"github.com/novaplay-gaming/crash-server/store"
	"github.com/novaplay-gaming/crash-server/wallet"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	cfg := config.LoadEngine()

	logger, err := logging.New("crash-engine", cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	amqpOpts := broker.Options{
		Host:     cfg.Broker.Host,
		Port:     strconv.Itoa(cfg.Broker.Port),
		Username: cfg.Broker.Username,
		Password: cfg.Broker.Password,
		VHost:    cfg.Broker.VHost,
	}
	pub, err := broker.NewPublisher(amqpOpts)
	if err != nil {
		logger.Fatal("broker connect failed", zap.Error(err))
	}
	bus, err := broker.NewBus(cfg.OperatorID, pub)
	if err != nil {
		logger.Fatal("bad operator id", zap.Error(err))
	}

	var failedCredits engine.FailedCreditStore
	if cfg.DatabaseURL != "" {
		db, err := store.OpenDB(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connect failed", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		failedCredits = store.NewPgFailedCreditStore(db)
	} else {
		logger.Warn("DATABASE_URL unset, failed credits held in memory only")
		failedCredits = store.NewMemFailedCreditStore()
	}

	seeds, err := fair.NewRotatingProvider(cfg.SeedChainLength, func(firstSeedHash string) {
		logger.Info("seed chain rotated", zap.String("first_seed_hash", firstSeedHash))
	})
	if err != nil {
		logger.Fatal("seed chain init failed", zap.Error(err))
	}

	walletClient := wallet.NewClient(cfg.WalletURL, cfg.GameCode).WithSecret(cfg.WalletSecret)
	tracker := engine.NewTracker(100, logger)
	rounds := engine.NewCurrentRoundStore()
	tokens := &engine.TokenIndex{}
	roundMu := &sync.Mutex{}

	placeBet := engine.NewPlaceBetUseCase(
		engine.PlaceBetConfig{MinBetCents: cfg.MinBetCents, MaxBetCents: cfg.MaxBetCents},
		walletClient, rounds, bus, tracker, failedCredits, roundMu, tokens, logger,
	)
	cashout := engine.NewCashoutUseCase(walletClient, rounds, bus, tracker, failedCredits, roundMu, logger)

	orch := engine.NewOrchestrator(
		engine.OrchestratorConfig{
			OperatorID:       cfg.OperatorID,
			ClientSeed:       cfg.ClientSeed,
			HouseEdgePercent: cfg.HouseEdgePercent,
			BettingWindow:    cfg.BettingWindow,
			TickInterval:     cfg.TickInterval,
			CrashPause:       cfg.CrashPause,
			GrowthRate:       cfg.GrowthRate,
		},
		seeds, rounds, bus, placeBet, cashout,
		store.NewHistoryStore(cfg.DataDir),
		tracker, tokens, roundMu, logger,
	)

	commands := engine.NewCommandHandler(placeBet, cashout, bus, logger)
	sub := broker.NewSubscriber(
		amqpOpts,
		"crash-engine-commands",
		broker.TopicAllCommands(cfg.OperatorID),
		commands.Handle,
		logger,
	)
	sub.Start()
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("engine starting",
		zap.String("operator_id", cfg.OperatorID),
		zap.Float64("house_edge_percent", cfg.HouseEdgePercent))
	if err := orch.Run(ctx); err != nil {
		logger.Warn("wallet task drain incomplete", zap.Error(err))
	}
	logger.Info("engine stopped")
}
