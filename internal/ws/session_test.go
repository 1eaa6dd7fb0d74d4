package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DoyleJ11/codelobby/internal/hub"
	"github.com/DoyleJ11/codelobby/internal/lobby"
	"github.com/DoyleJ11/codelobby/internal/store"
	"github.com/DoyleJ11/codelobby/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGames map[int]store.Game

func (f fakeGames) Game(_ context.Context, id int) (store.Game, error) {
	g, ok := f[id]
	if !ok {
		return store.Game{}, store.ErrGameNotFound
	}
	return g, nil
}

func newTestHub(t *testing.T, opts lobby.Options) *hub.Hub {
	t.Helper()
	h := hub.NewHub(context.Background(), hub.Options{Lobby: opts})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h
}

func newSession(h *hub.Hub, connID string, games Games) (*Session, *lobby.Subscriber) {
	sub := lobby.NewSubscriber(connID, 32)
	return NewSession(connID, sub, h, games, nil), sub
}

func frame(event string, data any) types.ClientMessage {
	b, _ := json.Marshal(data)
	return types.ClientMessage{Event: event, Data: b}
}

func next(t *testing.T, sub *lobby.Subscriber, event string) types.ServerMessage {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case msg := <-sub.Send():
			if msg.Event == event {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
			return types.ServerMessage{}
		}
	}
}

func TestSession_JoinAndQueryLobbyUsers(t *testing.T) {
	h := newTestHub(t, lobby.Options{})
	ana, anaSub := newSession(h, "c1", nil)
	ben, benSub := newSession(h, "c2", nil)
	ctx := context.Background()

	ana.Handle(ctx, frame(types.EvtJoinLobby, map[string]any{"lobbyId": "7", "username": "ana"}))
	ben.Handle(ctx, frame(types.EvtJoinLobby, map[string]any{"lobbyId": 7, "username": "ben"}))

	want := []types.Member{{ID: "c1", Name: "ana"}, {ID: "c2", Name: "ben"}}
	assert.Equal(t, want, next(t, benSub, types.EvtLobbyUpdate).Data)

	// drain ana's broadcasts, then ask directly
	next(t, anaSub, types.EvtLobbyUpdate)
	next(t, anaSub, types.EvtLobbyUpdate)
	ana.Handle(ctx, types.ClientMessage{Event: types.EvtGetLobbyUsers, Data: json.RawMessage(`7`)})
	assert.Equal(t, want, next(t, anaSub, types.EvtLobbyUpdate).Data)

	select {
	case msg := <-benSub.Send():
		t.Fatalf("query reply leaked to another member: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_ToggleReadyAndGetStatus(t *testing.T) {
	h := newTestHub(t, lobby.Options{})
	s, sub := newSession(h, "c1", nil)
	ctx := context.Background()

	s.Handle(ctx, frame(types.EvtJoinLobby, map[string]any{"lobbyId": 2, "username": "ana"}))
	s.Handle(ctx, frame(types.EvtToggleReady, map[string]any{"lobbyId": 2, "username": "ana", "isReady": true}))

	broadcast := next(t, sub, types.EvtReadyUpdate)
	assert.Equal(t, types.ReadyUpdate{ReadyUsers: []types.ReadyRecord{{Name: "ana", IsReady: true}}}, broadcast.Data)

	s.Handle(ctx, frame(types.EvtGetReadyStatus, map[string]any{"lobbyId": 2}))
	reply := next(t, sub, types.EvtReadyUpdate)
	assert.Equal(t, broadcast.Data, reply.Data)
}

func TestSession_GetLobbyUsers_UnknownLobbyIsEmpty(t *testing.T) {
	h := newTestHub(t, lobby.Options{})
	s, sub := newSession(h, "c1", nil)

	s.Handle(context.Background(), types.ClientMessage{Event: types.EvtGetLobbyUsers, Data: json.RawMessage(`"404"`)})
	assert.Equal(t, []types.Member{}, next(t, sub, types.EvtLobbyUpdate).Data)
}

func TestSession_ValidationErrorsGoToCallerOnly(t *testing.T) {
	h := newTestHub(t, lobby.Options{})
	s, sub := newSession(h, "c1", nil)
	other, otherSub := newSession(h, "c2", nil)
	ctx := context.Background()
	other.Handle(ctx, frame(types.EvtJoinLobby, map[string]any{"lobbyId": 1, "username": "ben"}))
	next(t, otherSub, types.EvtLobbyUpdate)

	cases := []types.ClientMessage{
		frame(types.EvtJoinLobby, map[string]any{"lobbyId": 1}),
		frame(types.EvtJoinLobby, map[string]any{"lobbyId": "abc", "username": "ana"}),
		frame(types.EvtChatMessage, map[string]any{"lobbyId": 1, "messageData": map[string]any{"username": "ana"}}),
		{Event: "jump", Data: json.RawMessage(`{}`)},
	}
	for _, c := range cases {
		s.Handle(ctx, c)
		got := next(t, sub, types.EvtError)
		assert.Equal(t, c.Event, got.Data.(types.ErrorPayload).Event)
	}

	select {
	case msg := <-otherSub.Send():
		t.Fatalf("other member got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_SettingsBroadcast(t *testing.T) {
	h := newTestHub(t, lobby.Options{})
	s, sub := newSession(h, "c1", nil)
	ctx := context.Background()

	s.Handle(ctx, frame(types.EvtJoinLobby, map[string]any{"lobbyId": 1, "username": "host"}))
	s.Handle(ctx, frame(types.EvtSettingsUpdated, map[string]any{"lobbyId": 1, "settings": map[string]any{"difficulty": "easy"}}))

	got := next(t, sub, types.EvtSettingsUpdated)
	assert.Equal(t, types.Settings{"difficulty": "easy"}, got.Data)
}

func TestSession_StartGame_ChecksOwnership(t *testing.T) {
	h := newTestHub(t, lobby.Options{Countdown: 10 * time.Millisecond})
	games := fakeGames{5: {ID: 5, LobbyID: 1}, 6: {ID: 6, LobbyID: 2}}
	s, sub := newSession(h, "c1", games)
	ctx := context.Background()
	s.Handle(ctx, frame(types.EvtJoinLobby, map[string]any{"lobbyId": 1, "username": "host"}))

	s.Handle(ctx, frame(types.EvtStartGame, map[string]any{"lobbyId": 1, "gameId": 6}))
	assert.Equal(t, ErrGameLobbyMismatch.Error(), next(t, sub, types.EvtError).Data.(types.ErrorPayload).Message)

	s.Handle(ctx, frame(types.EvtStartGame, map[string]any{"lobbyId": 1, "gameId": 99}))
	assert.Equal(t, store.ErrGameNotFound.Error(), next(t, sub, types.EvtError).Data.(types.ErrorPayload).Message)

	s.Handle(ctx, frame(types.EvtStartGame, map[string]any{"lobbyId": 1, "gameId": "5"}))
	next(t, sub, types.EvtGameCountdown)
	started := next(t, sub, types.EvtGameStarted)
	assert.Equal(t, types.GameStarted{GameID: 5}, started.Data)
}

func TestSession_Close_LeavesLobby(t *testing.T) {
	h := newTestHub(t, lobby.Options{})
	s, sub := newSession(h, "c1", nil)
	ctx := context.Background()
	s.Handle(ctx, frame(types.EvtJoinLobby, map[string]any{"lobbyId": 3, "username": "ana"}))

	s.Close(ctx)
	<-sub.Done()

	v, err := h.View(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, v.Roster)
}
