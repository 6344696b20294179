package gateway

import (
	"go.uber.org/zap"
)

// RouteClientMessageUseCase dispatches one decoded client frame. Routing
// failures answer the player with an error frame and leave the socket open;
// only the transport decides to close connections.
type RouteClientMessageUseCase struct {
	store      *ConnectionStore
	forwardBet *ForwardBetCommandUseCase
	forwardOut *ForwardCashoutCommandUseCase
	sender     Sender
	log        *zap.Logger
}

func NewRouteClientMessageUseCase(
	store *ConnectionStore,
	forwardBet *ForwardBetCommandUseCase,
	forwardOut *ForwardCashoutCommandUseCase,
	sender Sender,
	log *zap.Logger,
) *RouteClientMessageUseCase {
	return &RouteClientMessageUseCase{
		store:      store,
		forwardBet: forwardBet,
		forwardOut: forwardOut,
		sender:     sender,
		log:        log,
	}
}

// Execute routes one frame from connID. binary reports the websocket frame
// type; text frames are answered with a typed error and otherwise ignored.
func (uc *RouteClientMessageUseCase) Execute(connID string, frame []byte, binary bool) error {
	conn := uc.store.Get(connID)
	if conn == nil {
		return fail(CodeConnectionNotFound, "unknown connection "+connID)
	}
	if !binary {
		uc.reply(connID, errorFrame(CodeTextUnsupported, "frames must be binary-encoded JSON"))
		return nil
	}

	msg, err := DecodeInbound(frame)
	if err != nil {
		uc.reply(connID, errorFrame(CodeMalformedMessage, err.Error()))
		return nil
	}

	switch msg.Type {
	case InPlaceBet:
		if err := uc.forwardBet.Execute(conn, *msg.PlaceBet); err != nil {
			uc.replyFailure(connID, err)
		}
	case InCashout:
		if err := uc.forwardOut.Execute(conn, *msg.Cashout); err != nil {
			uc.replyFailure(connID, err)
		}
	case InPing:
		// keepalive is answered by the transport before routing; reaching
		// here means a transport without ping handling, so answer anyway
		uc.reply(connID, pongFrame())
	case InReAuth:
		// token refresh over an open socket is not offered; the client
		// must reconnect with a fresh token
		uc.reply(connID, errorFrame(CodeReAuthUnsupported, "reconnect with a new token"))
	}
	return nil
}

func (uc *RouteClientMessageUseCase) replyFailure(connID string, err error) {
	code := FailureCode(err)
	if code == "" {
		code = CodeInvalidCommand
	}
	uc.reply(connID, errorFrame(code, err.Error()))
}

func (uc *RouteClientMessageUseCase) reply(connID string, frame []byte) {
	if err := uc.sender.Send(connID, frame); err != nil {
		uc.log.Warn("reply send failed", zap.String("conn_id", connID), zap.Error(err))
	}
}
