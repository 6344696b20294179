package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BrokerStatus exposes broker connectivity for the health endpoint.
type BrokerStatus interface {
	Connected() bool
}

type ServerConfig struct {
	Addr           string
	MaxConnections int
	// per-connection inbound admission: token bucket refilled at
	// FrameRate frames/sec with FrameBurst capacity
	FrameRate  float64
	FrameBurst int
}

func (c *ServerConfig) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8081"
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10000
	}
	if c.FrameRate <= 0 {
		c.FrameRate = 20
	}
	if c.FrameBurst <= 0 {
		c.FrameBurst = 40
	}
}

// Server terminates WebSocket upgrades and runs the per-connection read
// loops. One Server serves one operator.
type Server struct {
	cfg        ServerConfig
	auth       AuthGateway
	store      *ConnectionStore
	transport  *WebsocketTransport
	router     *RouteClientMessageUseCase
	admit      *HandleConnectionUseCase
	drop       *HandleDisconnectionUseCase
	brokerStat BrokerStatus
	log        *zap.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	started  time.Time
}

func NewServer(
	cfg ServerConfig,
	auth AuthGateway,
	store *ConnectionStore,
	transport *WebsocketTransport,
	router *RouteClientMessageUseCase,
	admit *HandleConnectionUseCase,
	drop *HandleDisconnectionUseCase,
	brokerStat BrokerStatus,
	log *zap.Logger,
) *Server {
	cfg.applyDefaults()
	return &Server{
		cfg:        cfg,
		auth:       auth,
		store:      store,
		transport:  transport,
		router:     router,
		admit:      admit,
		drop:       drop,
		brokerStat: brokerStat,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Run() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/health", s.handleHealth)

	s.started = time.Now()
	s.httpSrv = &http.Server{Addr: s.cfg.Addr, Handler: mux}
	s.log.Info("gateway listening", zap.String("addr", s.cfg.Addr))
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting upgrades and tells every live client to go away.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, conn := range s.store.Joined() {
		_ = s.transport.Close(conn.ID, websocket.CloseGoingAway, "server shutting down")
		s.drop.Execute(conn.ID)
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.store.Len() >= s.cfg.MaxConnections {
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	identity, err := s.auth.Verify(token)
	if err != nil {
		s.log.Info("upgrade rejected", zap.Error(err))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(identity.PlayerID, identity.OperatorID, token)
	s.transport.Register(conn.ID, ws)

	if err := s.admit.Execute(conn); err != nil {
		s.log.Info("connection refused",
			zap.String("player_id", identity.PlayerID),
			zap.Error(err))
		_ = s.transport.Close(conn.ID, websocket.ClosePolicyViolation, FailureCode(err))
		return
	}
	s.log.Info("player joined",
		zap.String("conn_id", conn.ID),
		zap.String("player_id", conn.PlayerID))

	go s.readLoop(conn.ID, ws)
}

// readLoop pulls frames off one socket until it dies. Admission control is
// a per-connection token bucket; routing and game rules live elsewhere.
func (s *Server) readLoop(connID string, ws *websocket.Conn) {
	defer func() {
		s.drop.Execute(connID)
		_ = s.transport.Close(connID, websocket.CloseNormalClosure, "")
	}()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.FrameRate), s.cfg.FrameBurst)
	ws.SetReadLimit(MaxBufferedBytes)

	for {
		msgType, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("read failed", zap.String("conn_id", connID), zap.Error(err))
			}
			return
		}
		if !limiter.Allow() {
			_ = s.transport.Send(connID, errorFrame(CodeRateLimited, "frame rate exceeded"))
			continue
		}
		if isKeepalive(frame) {
			_ = s.transport.Send(connID, pongFrame())
			continue
		}
		binary := msgType == websocket.BinaryMessage
		if err := s.router.Execute(connID, frame, binary); err != nil {
			// CONNECTION_NOT_FOUND: evicted while frames were in flight
			s.log.Debug("route failed", zap.String("conn_id", connID), zap.Error(err))
			return
		}
	}
}

// isKeepalive cheaply spots ping frames so they never enter the router.
func isKeepalive(frame []byte) bool {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return false
	}
	return head.Type == string(InPing)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":        "ok",
		"connections":   s.store.Len(),
		"brokerOnline":  s.brokerStat.Connected(),
		"uptimeSeconds": int(time.Since(s.started).Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
