package gateway

import (
	"encoding/json"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/novaplay-gaming/crash-server/broker"
)

// BroadcastGameEventUseCase relays engine events to joined players.
// Rejections and credit failures are private and go only to the player they
// concern; everything else is the public game feed.
type BroadcastGameEventUseCase struct {
	store  *ConnectionStore
	sender Sender
	pool   *ants.Pool
	log    *zap.Logger
}

func NewBroadcastGameEventUseCase(store *ConnectionStore, sender Sender, pool *ants.Pool, log *zap.Logger) *BroadcastGameEventUseCase {
	return &BroadcastGameEventUseCase{store: store, sender: sender, pool: pool, log: log}
}

func (uc *BroadcastGameEventUseCase) Execute(env broker.Envelope) {
	switch env.Kind {
	case broker.CommandPlaceBet, broker.CommandCashout:
		// engine-bound; a catch-all subscription sees these too
		return
	}
	frame, err := serverFrame(string(env.Kind), env.Payload)
	if err != nil {
		uc.log.Error("encode event frame failed", zap.String("kind", string(env.Kind)), zap.Error(err))
		return
	}

	switch env.Kind {
	case broker.EventBetRejected, broker.EventCreditFailed:
		uc.unicast(env, frame)
	default:
		uc.fanOut(env.Kind, frame)
	}
}

func (uc *BroadcastGameEventUseCase) unicast(env broker.Envelope, frame []byte) {
	var who struct {
		PlayerID string `json:"playerId"`
	}
	if err := json.Unmarshal(env.Payload, &who); err != nil || who.PlayerID == "" {
		uc.log.Warn("private event without playerId dropped", zap.String("kind", string(env.Kind)))
		return
	}
	conn := uc.store.GetByPlayer(who.PlayerID)
	if conn == nil || conn.State() != StateJoined {
		uc.log.Warn("private event dropped, player not joined",
			zap.String("kind", string(env.Kind)),
			zap.String("player_id", who.PlayerID))
		return
	}
	if err := uc.sender.Send(conn.ID, frame); err != nil {
		uc.log.Warn("private event send failed", zap.String("conn_id", conn.ID), zap.Error(err))
	}
}

func (uc *BroadcastGameEventUseCase) fanOut(kind broker.EventKind, frame []byte) {
	for _, conn := range uc.store.Joined() {
		connID := conn.ID
		task := func() {
			if err := uc.sender.Send(connID, frame); err != nil {
				uc.log.Debug("broadcast send failed", zap.String("conn_id", connID), zap.Error(err))
			}
		}
		if uc.pool == nil {
			task()
			continue
		}
		if err := uc.pool.Submit(task); err != nil {
			// pool saturated or released; deliver inline rather than drop
			task()
		}
	}
}
