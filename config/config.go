// Package config reads process configuration from the environment. Every
// knob has a development-friendly default so a bare `go run` comes up
// against local services.
package config

import (
	"os"
	"strconv"
	"time"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Broker holds the RabbitMQ connection settings shared by both processes.
type Broker struct {
	Host     string
	Port     int
	Username string
	Password string
	VHost    string
}

func loadBroker() Broker {
	return Broker{
		Host:     getenv("AMQP_HOST", "localhost"),
		Port:     getenvInt("AMQP_PORT", 5672),
		Username: getenv("AMQP_USERNAME", "guest"),
		Password: getenv("AMQP_PASSWORD", "guest"),
		VHost:    getenv("AMQP_VHOST", "/"),
	}
}

// Engine is the round/bet engine process configuration.
type Engine struct {
	OperatorID       string
	ClientSeed       string
	HouseEdgePercent float64
	GrowthRate       float64
	BettingWindow    time.Duration
	TickInterval     time.Duration
	CrashPause       time.Duration
	SeedChainLength  int

	MinBetCents int64
	MaxBetCents int64

	WalletURL    string
	WalletSecret string
	GameCode     string

	DatabaseURL string
	DataDir     string
	LogLevel    string

	Broker Broker
}

func LoadEngine() *Engine {
	return &Engine{
		OperatorID:       getenv("OPERATOR_ID", "demo"),
		ClientSeed:       getenv("CLIENT_SEED", "crash-v1"),
		HouseEdgePercent: getenvFloat("HOUSE_EDGE_PERCENT", 4),
		GrowthRate:       getenvFloat("GROWTH_RATE", 6.0e-5),
		BettingWindow:    getenvDuration("BETTING_WINDOW", 6*time.Second),
		TickInterval:     getenvDuration("TICK_INTERVAL", 100*time.Millisecond),
		CrashPause:       getenvDuration("CRASH_PAUSE", 3*time.Second),
		SeedChainLength:  getenvInt("SEED_CHAIN_LENGTH", 1000),
		MinBetCents:      getenvInt64("MIN_BET_CENTS", 100),
		MaxBetCents:      getenvInt64("MAX_BET_CENTS", 1_000_000),
		WalletURL:        getenv("WALLET_URL", "http://localhost:3000"),
		WalletSecret:     getenv("WALLET_SECRET", ""),
		GameCode:         getenv("GAME_CODE", "crash"),
		DatabaseURL:      getenv("DATABASE_URL", ""),
		DataDir:          getenv("DATA_DIR", "data"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		Broker:           loadBroker(),
	}
}

// Gateway is the realtime distribution process configuration.
type Gateway struct {
	OperatorID     string
	Addr           string
	MaxConnections int
	FrameRate      float64
	FrameBurst     int

	BetLimit  int
	BetWindow time.Duration

	JWTRSAPublicKeyFile string
	JWTEdPublicKeyFile  string

	BroadcastPoolSize int
	LogLevel          string

	Broker Broker
}

func LoadGateway() *Gateway {
	return &Gateway{
		OperatorID:          getenv("OPERATOR_ID", "demo"),
		Addr:                getenv("LISTEN_ADDR", ":"+getenv("PORT", "8081")),
		MaxConnections:      getenvInt("MAX_CONNECTIONS", 10000),
		FrameRate:           getenvFloat("FRAME_RATE", 20),
		FrameBurst:          getenvInt("FRAME_BURST", 40),
		BetLimit:            getenvInt("ACTION_RATE_LIMIT", 3),
		BetWindow:           getenvDuration("ACTION_RATE_WINDOW", time.Second),
		JWTRSAPublicKeyFile: getenv("JWT_RSA_PUBLIC_KEY_FILE", ""),
		JWTEdPublicKeyFile:  getenv("JWT_ED_PUBLIC_KEY_FILE", ""),
		BroadcastPoolSize:   getenvInt("BROADCAST_POOL_SIZE", 256),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		Broker:              loadBroker(),
	}
}
