package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/novaplay-gaming/crash-server/broker"
	"github.com/novaplay-gaming/crash-server/config"
	"github.com/novaplay-gaming/crash-server/gateway"
	"github.com/novaplay-gaming/crash-server/logging"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	cfg := config.LoadGateway()

	logger, err := logging.New("crash-gateway", cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	auth, err := loadVerifier(cfg)
	if err != nil {
		logger.Fatal("jwt key load failed", zap.Error(err))
	}

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

	pool, err := ants.NewPool(cfg.BroadcastPoolSize, ants.WithNonblocking(true))
	if err != nil {
		logger.Fatal("broadcast pool init failed", zap.Error(err))
	}
	defer pool.Release()

	store := gateway.NewConnectionStore()
	transport := gateway.NewWebsocketTransport(logger)
	limiter := gateway.NewInMemoryRateLimiter(cfg.BetLimit, cfg.BetWindow)

	router := gateway.NewRouteClientMessageUseCase(
		store,
		gateway.NewForwardBetCommandUseCase(limiter, bus, logger),
		gateway.NewForwardCashoutCommandUseCase(limiter, bus, logger),
		transport,
		logger,
	)
	broadcast := gateway.NewBroadcastGameEventUseCase(store, transport, pool, logger)

	sub := broker.NewSubscriber(
		amqpOpts,
		"", // exclusive auto-delete queue, every gateway sees every event
		broker.TopicAllGameEvents(cfg.OperatorID),
		broadcast.Execute,
		logger,
	)
	sub.Start()
	defer sub.Close()

	srv := gateway.NewServer(
		gateway.ServerConfig{
			Addr:           cfg.Addr,
			MaxConnections: cfg.MaxConnections,
			FrameRate:      cfg.FrameRate,
			FrameBurst:     cfg.FrameBurst,
		},
		auth,
		store,
		transport,
		router,
		gateway.NewHandleConnectionUseCase(cfg.OperatorID, store, transport, logger),
		gateway.NewHandleDisconnectionUseCase(store, logger),
		pub,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	logger.Info("gateway stopped")
}

func loadVerifier(cfg *config.Gateway) (*gateway.JWTVerifier, error) {
	var rsaKey *rsa.PublicKey
	var edKey ed25519.PublicKey

	if cfg.JWTRSAPublicKeyFile != "" {
		pem, err := os.ReadFile(cfg.JWTRSAPublicKeyFile)
		if err != nil {
			return nil, err
		}
		if rsaKey, err = gateway.ParseRSAPublicKey(pem); err != nil {
			return nil, err
		}
	}
	if cfg.JWTEdPublicKeyFile != "" {
		pem, err := os.ReadFile(cfg.JWTEdPublicKeyFile)
		if err != nil {
			return nil, err
		}
		if edKey, err = gateway.ParseEdPublicKey(pem); err != nil {
			return nil, err
		}
	}
	if rsaKey == nil && edKey == nil {
		return nil, errNoKeys
	}
	return gateway.NewJWTVerifier(rsaKey, edKey), nil
}

var errNoKeys = errors.New("set JWT_RSA_PUBLIC_KEY_FILE or JWT_ED_PUBLIC_KEY_FILE")
