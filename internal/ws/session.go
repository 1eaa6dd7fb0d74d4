package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/codelobby/internal/lobby"
	"github.com/DoyleJ11/codelobby/internal/store"
	"github.com/DoyleJ11/codelobby/internal/types"
	"go.uber.org/zap"
)

var (
	ErrUnknownEvent      = errors.New("unknown event")
	ErrGameLobbyMismatch = errors.New("game does not belong to this lobby")
)

const opTimeout = 10 * time.Second

// Lobbies is the part of the hub a connection talks to.
type Lobbies interface {
	Join(ctx context.Context, connID string, lobbyID int, username string, sub *lobby.Subscriber) error
	Leave(ctx context.Context, connID string, lobbyID int, username string) error
	Disconnect(ctx context.Context, connID string) error
	Lobby(ctx context.Context, id int) (*lobby.Lobby, error)
	View(ctx context.Context, id int) (lobby.View, error)
}

type Games interface {
	Game(ctx context.Context, id int) (store.Game, error)
}

// Session dispatches one connection's inbound events. Replies meant only for
// this connection go through its subscriber.
type Session struct {
	connID  string
	sub     *lobby.Subscriber
	lobbies Lobbies
	games   Games
	log     *zap.Logger
}

func NewSession(connID string, sub *lobby.Subscriber, lobbies Lobbies, games Games, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		connID:  connID,
		sub:     sub,
		lobbies: lobbies,
		games:   games,
		log:     log.With(zap.String("conn_id", connID)),
	}
}

// Handle runs one event. Failures are reported to this connection only.
func (s *Session) Handle(ctx context.Context, msg types.ClientMessage) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.handle(ctx, msg); err != nil {
		s.log.Debug("event rejected", zap.String("event", msg.Event), zap.Error(err))
		s.sub.Offer(types.ServerMessage{
			Event: types.EvtError,
			Data:  types.ErrorPayload{Event: msg.Event, Message: err.Error()},
		})
	}
}

// Close removes the connection from whatever lobby it is in.
func (s *Session) Close(ctx context.Context) {
	if err := s.lobbies.Disconnect(ctx, s.connID); err != nil {
		s.log.Warn("disconnect", zap.Error(err))
	}
	s.sub.Close()
}

func (s *Session) handle(ctx context.Context, msg types.ClientMessage) error {
	switch msg.Event {
	case types.EvtJoinLobby:
		var in types.JoinLobby
		if err := types.Decode(msg.Data, &in); err != nil {
			return err
		}
		return s.lobbies.Join(ctx, s.connID, int(in.LobbyID), in.Username, s.sub)

	case types.EvtLeaveLobby:
		var in types.LeaveLobby
		if err := types.Decode(msg.Data, &in); err != nil {
			return err
		}
		return s.lobbies.Leave(ctx, s.connID, int(in.LobbyID), in.Username)

	case types.EvtGetLobbyUsers:
		id, err := decodeLobbyID(msg.Data)
		if err != nil {
			return err
		}
		v, err := s.lobbies.View(ctx, id)
		if err != nil {
			return err
		}
		s.sub.Offer(types.ServerMessage{Event: types.EvtLobbyUpdate, Data: v.Roster})
		return nil

	case types.EvtGetReadyStatus:
		id, err := decodeLobbyID(msg.Data)
		if err != nil {
			return err
		}
		v, err := s.lobbies.View(ctx, id)
		if err != nil {
			return err
		}
		s.sub.Offer(types.ServerMessage{Event: types.EvtReadyUpdate, Data: types.ReadyUpdate{ReadyUsers: v.Ready}})
		return nil

	case types.EvtToggleReady:
		var in types.ToggleReady
		if err := types.Decode(msg.Data, &in); err != nil {
			return err
		}
		lb, err := s.lobbies.Lobby(ctx, int(in.LobbyID))
		if err != nil {
			return err
		}
		return lb.Send(ctx, lobby.ToggleReady{Username: in.Username, IsReady: in.IsReady})

	case types.EvtChatMessage:
		var in types.PostChat
		if err := types.Decode(msg.Data, &in); err != nil {
			return err
		}
		lb, err := s.lobbies.Lobby(ctx, int(in.LobbyID))
		if err != nil {
			return err
		}
		if err := lb.PostChat(ctx, in.MessageData.Username, in.MessageData.Content); err != nil {
			return fmt.Errorf("message not sent: %w", err)
		}
		return nil

	case types.EvtSettingsUpdated:
		var in types.UpdateSettings
		if err := types.Decode(msg.Data, &in); err != nil {
			return err
		}
		lb, err := s.lobbies.Lobby(ctx, int(in.LobbyID))
		if err != nil {
			return err
		}
		return lb.Send(ctx, lobby.UpdateSettings{Settings: in.Settings})

	case types.EvtStartGame:
		var in types.StartGame
		if err := types.Decode(msg.Data, &in); err != nil {
			return err
		}
		g, err := s.games.Game(ctx, int(in.GameID))
		if err != nil {
			return err
		}
		if g.LobbyID != int(in.LobbyID) {
			return ErrGameLobbyMismatch
		}
		lb, err := s.lobbies.Lobby(ctx, int(in.LobbyID))
		if err != nil {
			return err
		}
		return lb.StartGame(ctx, int(in.GameID))

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Event)
	}
}

// decodeLobbyID accepts a bare id or {"lobbyId": id}.
func decodeLobbyID(data json.RawMessage) (int, error) {
	var id types.ID
	if err := json.Unmarshal(data, &id); err == nil {
		return int(id), nil
	}
	var wrapped struct {
		LobbyID types.ID `json:"lobbyId" validate:"required"`
	}
	if err := types.Decode(data, &wrapped); err != nil {
		return 0, err
	}
	return int(wrapped.LobbyID), nil
}
