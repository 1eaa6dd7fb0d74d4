package hub

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/codelobby/internal/lobby"
)

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ask[T any](ctx context.Context, h *Hub, m HubMsg, reply <-chan T) (T, error) {
	var zero T
	if err := h.send(ctx, m); err != nil {
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Hub) Join(ctx context.Context, connID string, lobbyID int, username string, sub *lobby.Subscriber) error {
	return h.send(ctx, JoinLobby{ConnID: connID, LobbyID: lobbyID, Username: username, Sub: sub})
}

func (h *Hub) Leave(ctx context.Context, connID string, lobbyID int, username string) error {
	return h.send(ctx, LeaveLobby{ConnID: connID, LobbyID: lobbyID, Username: username})
}

func (h *Hub) Disconnect(ctx context.Context, connID string) error {
	return h.send(ctx, Disconnect{ConnID: connID})
}

// Lobby returns the lobby with id, creating it if needed.
func (h *Hub) Lobby(ctx context.Context, id int) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return ask(ctx, h, EnsureLobby{LobbyID: id, Reply: reply}, reply)
}

// Find returns the lobby with id, or nil if it does not exist.
func (h *Hub) Find(ctx context.Context, id int) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return ask(ctx, h, GetLobby{LobbyID: id, Reply: reply}, reply)
}

// View snapshots a lobby. Unknown lobbies read as empty.
func (h *Hub) View(ctx context.Context, id int) (lobby.View, error) {
	lb, err := h.Find(ctx, id)
	if err != nil {
		return lobby.View{}, err
	}
	if lb == nil {
		return lobby.EmptyView(id), nil
	}
	v, err := lb.View(ctx)
	if errors.Is(err, lobby.ErrLobbyClosed) {
		return lobby.EmptyView(id), nil
	}
	return v, err
}

func (h *Hub) InitialRoster(ctx context.Context, id int) ([]string, error) {
	v, err := h.View(ctx, id)
	if err != nil {
		return nil, err
	}
	return v.InitialRoster, nil
}

func (h *Hub) ClearInitialRoster(ctx context.Context, id int) error {
	lb, err := h.Find(ctx, id)
	if err != nil || lb == nil {
		return err
	}
	if err := lb.Send(ctx, lobby.ClearInitialRoster{}); err != nil && !errors.Is(err, lobby.ErrLobbyClosed) {
		return err
	}
	return nil
}

func (h *Hub) Remove(ctx context.Context, id int) error {
	return h.send(ctx, RemoveLobby{LobbyID: id})
}

func (h *Hub) Sweep(ctx context.Context, idleFor time.Duration) (int, error) {
	reply := make(chan int, 1)
	return ask(ctx, h, Sweep{IdleFor: idleFor, Reply: reply}, reply)
}

// Shutdown stops the hub and every lobby and waits for the hub loop to exit.
func (h *Hub) Shutdown(ctx context.Context) error {
	if err := h.send(ctx, ShutdownHub{}); err != nil && !errors.Is(err, ErrHubClosed) {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
