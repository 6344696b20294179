package gateway

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MaxBufferedBytes is the per-connection outbound ceiling. A socket whose
// un-flushed backlog would exceed it is force-closed as a slow consumer so
// one stalled client cannot hold memory hostage during tick fan-out.
const MaxBufferedBytes = 64 * 1024

const (
	sendQueueDepth = 256
	writeTimeout   = 10 * time.Second
)

// WebsocketTransport owns the sockets and their write pumps. Reads stay in
// the server's per-connection loop; all writes funnel through here so the
// buffered-amount accounting sees every frame.
type WebsocketTransport struct {
	log     *zap.Logger
	sockets sync.Map // connID -> *socket
}

type socket struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	buffered  atomic.Int64
	closeOnce sync.Once
}

func NewWebsocketTransport(log *zap.Logger) *WebsocketTransport {
	return &WebsocketTransport{log: log}
}

// Register takes ownership of a raw websocket connection and starts its
// write pump.
func (t *WebsocketTransport) Register(connID string, conn *websocket.Conn) {
	s := &socket{
		conn: conn,
		send: make(chan []byte, sendQueueDepth),
		done: make(chan struct{}),
	}
	t.sockets.Store(connID, s)
	go t.writePump(connID, s)
}

func (t *WebsocketTransport) Send(connID string, data []byte) error {
	v, ok := t.sockets.Load(connID)
	if !ok {
		return fmt.Errorf("gateway: no socket for connection %s", connID)
	}
	s := v.(*socket)

	if s.buffered.Add(int64(len(data))) > MaxBufferedBytes {
		s.buffered.Add(int64(-len(data)))
		t.log.Warn("slow consumer, closing",
			zap.String("conn_id", connID),
			zap.Int64("buffered_bytes", s.buffered.Load()))
		t.closeSocket(connID, s, CloseSlowConsumer, "outbound buffer exceeded")
		return fmt.Errorf("gateway: connection %s exceeded buffer ceiling", connID)
	}

	select {
	case s.send <- data:
		return nil
	case <-s.done:
		s.buffered.Add(int64(-len(data)))
		return fmt.Errorf("gateway: connection %s is closed", connID)
	default:
		// queue full counts as a slow consumer even under the byte ceiling
		s.buffered.Add(int64(-len(data)))
		t.closeSocket(connID, s, CloseSlowConsumer, "send queue full")
		return fmt.Errorf("gateway: connection %s send queue full", connID)
	}
}

func (t *WebsocketTransport) Close(connID string, code int, reason string) error {
	v, ok := t.sockets.Load(connID)
	if !ok {
		return nil
	}
	t.closeSocket(connID, v.(*socket), code, reason)
	return nil
}

// Buffered reports the outbound backlog in bytes. Zero for unknown ids.
func (t *WebsocketTransport) Buffered(connID string) int64 {
	v, ok := t.sockets.Load(connID)
	if !ok {
		return 0
	}
	return v.(*socket).buffered.Load()
}

func (t *WebsocketTransport) closeSocket(connID string, s *socket, code int, reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(code, reason)
		deadline := time.Now().Add(writeTimeout)
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			t.log.Debug("close frame write failed", zap.String("conn_id", connID), zap.Error(err))
		}
		_ = s.conn.Close()
		t.sockets.Delete(connID)
	})
}

func (t *WebsocketTransport) writePump(connID string, s *socket) {
	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := s.conn.WriteMessage(websocket.BinaryMessage, data)
			s.buffered.Add(int64(-len(data)))
			if err != nil {
				t.log.Debug("write failed", zap.String("conn_id", connID), zap.Error(err))
				t.closeSocket(connID, s, websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-s.done:
			return
		}
	}
}
