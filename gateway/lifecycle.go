package gateway

import (
	"go.uber.org/zap"
)

// CloseEvicted is sent to a connection superseded by a newer one from the
// same player. CloseSlowConsumer is sent when a socket's outbound backlog
// exceeds the buffering ceiling.
const (
	CloseEvicted      = 4001
	CloseSlowConsumer = 4008
)

// HandleConnectionUseCase admits an authenticated connection into the game
// room, evicting any older connection held by the same player.
type HandleConnectionUseCase struct {
	operatorID string
	store      *ConnectionStore
	sender     Sender
	log        *zap.Logger
}

func NewHandleConnectionUseCase(operatorID string, store *ConnectionStore, sender Sender, log *zap.Logger) *HandleConnectionUseCase {
	return &HandleConnectionUseCase{operatorID: operatorID, store: store, sender: sender, log: log}
}

func (uc *HandleConnectionUseCase) Execute(conn *Connection) error {
	// rejected before storage: a token for another operator never enters
	// the room
	if conn.OperatorID != uc.operatorID {
		return fail(CodeOperatorMismatch, "token was issued for operator "+conn.OperatorID)
	}

	if existing := uc.store.GetByPlayer(conn.PlayerID); existing != nil {
		uc.log.Info("evicting superseded connection",
			zap.String("player_id", conn.PlayerID),
			zap.String("old_conn_id", existing.ID),
			zap.String("new_conn_id", conn.ID))
		existing.MarkDisconnected()
		uc.store.Remove(existing.ID)
		if err := uc.sender.Close(existing.ID, CloseEvicted, "superseded by newer connection"); err != nil {
			uc.log.Warn("eviction close failed", zap.String("conn_id", existing.ID), zap.Error(err))
		}
	}

	if err := conn.JoinRoom(); err != nil {
		return err
	}
	uc.store.Add(conn)
	return nil
}

// HandleDisconnectionUseCase tears down a connection. Safe to call more
// than once for the same id; transports fire it from several paths.
type HandleDisconnectionUseCase struct {
	store *ConnectionStore
	log   *zap.Logger
}

func NewHandleDisconnectionUseCase(store *ConnectionStore, log *zap.Logger) *HandleDisconnectionUseCase {
	return &HandleDisconnectionUseCase{store: store, log: log}
}

func (uc *HandleDisconnectionUseCase) Execute(connID string) {
	conn := uc.store.Get(connID)
	if conn == nil {
		return
	}
	if conn.MarkDisconnected() {
		uc.log.Info("connection closed",
			zap.String("conn_id", connID),
			zap.String("player_id", conn.PlayerID))
	}
	uc.store.Remove(connID)
}
