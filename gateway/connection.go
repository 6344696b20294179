// Package gateway is the realtime front door: it authenticates WebSocket
// upgrades, tracks live connections, forwards client intents to the broker,
// and fans broker events back out to joined players.
package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ConnectionState string

const (
	StateAuthenticated ConnectionState = "AUTHENTICATED"
	StateJoined        ConnectionState = "JOINED"
	StateDisconnected  ConnectionState = "DISCONNECTED"
)

// connTransitions is the single source of truth for connection lifecycle
// legality. DISCONNECTED is terminal and never reused.
var connTransitions = map[ConnectionState]map[ConnectionState]bool{
	StateAuthenticated: {StateJoined: true, StateDisconnected: true},
	StateJoined:        {StateDisconnected: true},
}

func CanTransitionConn(from, to ConnectionState) bool {
	return connTransitions[from][to]
}

type ErrConnTransition struct {
	From, To ConnectionState
}

func (e ErrConnTransition) Error() string {
	return fmt.Sprintf("gateway: illegal connection transition %s -> %s", e.From, e.To)
}

// Connection is one player's live socket session. At most one exists per
// player within an operator; a newer connection evicts the older one.
type Connection struct {
	ID          string
	PlayerID    string
	OperatorID  string
	Token       string // session bearer, forwarded on wallet-affecting commands
	ConnectedAt time.Time

	mu    sync.Mutex
	state ConnectionState
}

func NewConnection(playerID, operatorID, token string) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		OperatorID:  operatorID,
		Token:       token,
		ConnectedAt: time.Now(),
		state:       StateAuthenticated,
	}
}

func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// JoinRoom moves the connection into the game room. Legal only from
// AUTHENTICATED.
func (c *Connection) JoinRoom() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !CanTransitionConn(c.state, StateJoined) {
		return ErrConnTransition{From: c.state, To: StateJoined}
	}
	c.state = StateJoined
	return nil
}

// MarkDisconnected moves to the terminal state. Returns false if the
// connection was already disconnected.
func (c *Connection) MarkDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return false
	}
	c.state = StateDisconnected
	return true
}
