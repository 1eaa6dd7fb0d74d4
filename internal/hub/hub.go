package hub

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/codelobby/internal/lobby"
	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// JoinLobby puts a connection in a lobby. A connection that is already in a
// different lobby is taken out of that one first.
type JoinLobby struct {
	ConnID   string
	LobbyID  int
	Username string
	Sub      *lobby.Subscriber
}

type LeaveLobby struct {
	ConnID   string
	LobbyID  int
	Username string
}

type Disconnect struct {
	ConnID string
}

type GetLobby struct {
	LobbyID int
	Reply   chan *lobby.Lobby
}

type EnsureLobby struct {
	LobbyID int
	Reply   chan *lobby.Lobby
}

type RemoveLobby struct {
	LobbyID int
}

// Sweep drops lobbies nobody is connected to that have not been touched for
// IdleFor, replying with how many went.
type Sweep struct {
	IdleFor time.Duration
	Reply   chan int
}

type ShutdownHub struct{}

func (JoinLobby) isHubMsg()   {}
func (LeaveLobby) isHubMsg()  {}
func (Disconnect) isHubMsg()  {}
func (GetLobby) isHubMsg()    {}
func (EnsureLobby) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (Sweep) isHubMsg()       {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	Lobby  lobby.Options
	Logger *zap.Logger
}

type entry struct {
	lb      *lobby.Lobby
	touched time.Time
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[int]*entry
	conns   map[string]int // connection id -> lobby id
	opts    Options
	log     *zap.Logger
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Lobby.Logger == nil {
		opts.Lobby.Logger = opts.Logger
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[int]*entry),
		conns:   make(map[string]int),
		opts:    opts,
		log:     opts.Logger.Named("hub"),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub and all of its lobbies have been told to stop.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case JoinLobby:
				if prev, ok := h.conns[msg.ConnID]; ok && prev != msg.LobbyID {
					if e := h.lobbies[prev]; e != nil {
						h.forward(e, lobby.Disconnect{ConnID: msg.ConnID})
					}
				}
				e := h.ensure(msg.LobbyID)
				h.conns[msg.ConnID] = msg.LobbyID
				h.forward(e, lobby.Join{ConnID: msg.ConnID, Username: msg.Username, Sub: msg.Sub})

			case LeaveLobby:
				if h.conns[msg.ConnID] == msg.LobbyID {
					delete(h.conns, msg.ConnID)
				}
				if e := h.lobbies[msg.LobbyID]; e != nil {
					h.forward(e, lobby.Leave{ConnID: msg.ConnID, Username: msg.Username})
				}

			case Disconnect:
				id, ok := h.conns[msg.ConnID]
				if !ok {
					break
				}
				delete(h.conns, msg.ConnID)
				if e := h.lobbies[id]; e != nil {
					h.forward(e, lobby.Disconnect{ConnID: msg.ConnID})
				}

			case GetLobby:
				if e := h.lobbies[msg.LobbyID]; e != nil {
					msg.Reply <- e.lb
					break
				}
				msg.Reply <- nil

			case EnsureLobby:
				msg.Reply <- h.ensure(msg.LobbyID).lb

			case RemoveLobby:
				h.remove(msg.LobbyID)

			case Sweep:
				msg.Reply <- h.sweep(msg.IdleFor)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) ensure(id int) *entry {
	e := h.lobbies[id]
	if e == nil {
		e = &entry{lb: lobby.NewLobby(h.ctx, id, h.opts.Lobby)}
		h.lobbies[id] = e
		h.log.Debug("lobby created", zap.Int("lobby_id", id))
	}
	e.touched = h.now()
	return e
}

func (h *Hub) forward(e *entry, m lobby.Msg) {
	e.touched = h.now()
	if err := e.lb.Send(h.ctx, m); err != nil {
		h.log.Warn("lobby unreachable", zap.Int("lobby_id", e.lb.ID()), zap.Error(err))
	}
}

func (h *Hub) remove(id int) {
	e := h.lobbies[id]
	if e == nil {
		return
	}
	for conn, lobbyID := range h.conns {
		if lobbyID == id {
			delete(h.conns, conn)
		}
	}
	delete(h.lobbies, id)
	_ = e.lb.Send(h.ctx, lobby.Shutdown{})
	h.log.Debug("lobby removed", zap.Int("lobby_id", id))
}

func (h *Hub) sweep(idleFor time.Duration) int {
	occupied := make(map[int]bool, len(h.lobbies))
	for _, id := range h.conns {
		occupied[id] = true
	}
	cutoff := h.now().Add(-idleFor)
	removed := 0
	for id, e := range h.lobbies {
		if occupied[id] || e.touched.After(cutoff) {
			continue
		}
		h.remove(id)
		removed++
	}
	return removed
}

func (h *Hub) shutdown() {
	for _, e := range h.lobbies {
		select {
		case e.lb.Inbox() <- lobby.Shutdown{}:
		default:
		}
	}
	clear(h.lobbies)
	clear(h.conns)
	// cancelling the hub context also stops any lobby whose inbox was full
	h.cancel()
}
