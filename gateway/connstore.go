package gateway

import "sync"

// ConnectionStore indexes live connections by connection id and by player.
// The per-player index is what enforces the one-live-connection-per-player
// rule: callers look up the incumbent before admitting a newcomer.
type ConnectionStore struct {
	mu       sync.RWMutex
	byID     map[string]*Connection
	byPlayer map[string]*Connection
}

func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{
		byID:     make(map[string]*Connection),
		byPlayer: make(map[string]*Connection),
	}
}

func (s *ConnectionStore) Add(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[c.ID] = c
	s.byPlayer[c.PlayerID] = c
}

func (s *ConnectionStore) Get(id string) *Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

func (s *ConnectionStore) GetByPlayer(playerID string) *Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byPlayer[playerID]
}

// Remove drops the connection from both indexes. The player index is only
// cleared when it still points at this connection, so removing a superseded
// connection never evicts its replacement.
func (s *ConnectionStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	if s.byPlayer[c.PlayerID] == c {
		delete(s.byPlayer, c.PlayerID)
	}
}

func (s *ConnectionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Joined returns a snapshot of connections currently in the game room.
func (s *ConnectionStore) Joined() []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Connection, 0, len(s.byID))
	for _, c := range s.byID {
		if c.State() == StateJoined {
			out = append(out, c)
		}
	}
	return out
}
