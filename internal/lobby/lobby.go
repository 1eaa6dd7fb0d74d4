package lobby

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/DoyleJ11/codelobby/internal/types"
	"go.uber.org/zap"
)

var (
	ErrLobbyClosed = errors.New("lobby closed")
	ErrNoChatStore = errors.New("chat is not configured")
	ErrChatBacklog = errors.New("too many chat messages pending")
)

const (
	DefaultCountdown   = 3 * time.Second
	DefaultChatTimeout = 5 * time.Second
)

// ChatStore persists chat messages. The returned record carries the
// server-assigned id and timestamp.
type ChatStore interface {
	SaveMessage(ctx context.Context, lobbyID int, username, content string) (types.ChatMessage, error)
}

// PlayerRecorder copies InitialRoster additions somewhere other server
// processes can read them.
type PlayerRecorder interface {
	AddPlayer(ctx context.Context, lobbyID int, username string) error
}

type Options struct {
	Countdown   time.Duration
	ChatTimeout time.Duration
	Chat        ChatStore
	Players     PlayerRecorder
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Countdown <= 0 {
		o.Countdown = DefaultCountdown
	}
	if o.ChatTimeout <= 0 {
		o.ChatTimeout = DefaultChatTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type Msg interface{ isLobbyMsg() }

type Join struct {
	ConnID   string
	Username string
	Sub      *Subscriber
}

type Leave struct {
	ConnID   string
	Username string
}

// Disconnect is a transport teardown; the username is looked up from the
// roster.
type Disconnect struct{ ConnID string }

type ToggleReady struct {
	Username string
	IsReady  bool
}

type UpdateSettings struct{ Settings types.Settings }

type PostChat struct {
	Username string
	Content  string
	Reply    chan error
}

type StartGame struct {
	GameID int
	Reply  chan error
}

type GetState struct{ Reply chan View }

type ClearInitialRoster struct{}

type Shutdown struct{}

type chatPersisted struct {
	msg   types.ChatMessage
	reply chan error
}

type countdownElapsed struct{ gen uint64 }

func (Join) isLobbyMsg()               {}
func (Leave) isLobbyMsg()              {}
func (Disconnect) isLobbyMsg()         {}
func (ToggleReady) isLobbyMsg()        {}
func (UpdateSettings) isLobbyMsg()     {}
func (PostChat) isLobbyMsg()           {}
func (StartGame) isLobbyMsg()          {}
func (GetState) isLobbyMsg()           {}
func (ClearInitialRoster) isLobbyMsg() {}
func (Shutdown) isLobbyMsg()           {}
func (chatPersisted) isLobbyMsg()      {}
func (countdownElapsed) isLobbyMsg()   {}

// View is a point-in-time copy of a lobby's state.
type View struct {
	LobbyID        int                 `json:"lobbyId"`
	Roster         []types.Member      `json:"roster"`
	Ready          []types.ReadyRecord `json:"readyUsers"`
	ReadyPercent   float64             `json:"readyPercent"`
	InitialRoster  []string            `json:"initialRoster"`
	Settings       types.Settings      `json:"settings"`
	Phase          Phase               `json:"phase"`
	GameID         int                 `json:"gameId,omitempty"`
	NumSubscribers int                 `json:"-"`
}

// EmptyView is what queries about an unknown lobby return.
func EmptyView(lobbyID int) View {
	return View{
		LobbyID:       lobbyID,
		Roster:        []types.Member{},
		Ready:         []types.ReadyRecord{},
		InitialRoster: []string{},
		Settings:      types.Settings{},
		Phase:         PhaseIdle,
	}
}

type Lobby struct {
	id       int
	inbox    chan Msg
	chatq    chan PostChat
	roster   roster
	initial  map[string]struct{}
	ready    readySet
	settings types.Settings
	seq      Sequencer
	subs     map[string]*Subscriber
	opts     Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewLobby(parent context.Context, id int, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	opts = opts.withDefaults()

	l := &Lobby{
		id:       id,
		inbox:    make(chan Msg, 256),
		chatq:    make(chan PostChat, 64),
		initial:  make(map[string]struct{}),
		settings: types.Settings{},
		subs:     make(map[string]*Subscriber),
		opts:     opts,
		log:      opts.Logger.With(zap.Int("lobby_id", id)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go l.loop()
	go l.chatLoop()
	return l
}

func (l *Lobby) ID() int { return l.id }

// Inbox exposes the lobby's message queue to the hub and tests.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby loop has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) Send(ctx context.Context, m Msg) error {
	select {
	case l.inbox <- m:
		return nil
	case <-l.done:
		return ErrLobbyClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lobby) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := l.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return View{}, ErrLobbyClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// PostChat persists and broadcasts a message, returning once it has been
// broadcast or has failed.
func (l *Lobby) PostChat(ctx context.Context, username, content string) error {
	reply := make(chan error, 1)
	if err := l.Send(ctx, PostChat{Username: username, Content: content, Reply: reply}); err != nil {
		return err
	}
	return l.await(ctx, reply)
}

func (l *Lobby) StartGame(ctx context.Context, gameID int) error {
	reply := make(chan error, 1)
	if err := l.Send(ctx, StartGame{GameID: gameID, Reply: reply}); err != nil {
		return err
	}
	return l.await(ctx, reply)
}

func (l *Lobby) await(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-l.done:
		return ErrLobbyClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				if old, ok := l.subs[msg.ConnID]; ok && old != msg.Sub {
					old.Close()
				}
				if msg.Sub != nil {
					l.subs[msg.ConnID] = msg.Sub
				}
				l.roster.add(msg.ConnID, msg.Username)
				l.initial[msg.Username] = struct{}{}
				l.recordPlayer(msg.Username)
				l.log.Debug("joined", zap.String("conn_id", msg.ConnID), zap.String("username", msg.Username))
				l.broadcastRoster()

			case Leave:
				delete(l.subs, msg.ConnID)
				l.roster.remove(msg.ConnID, msg.Username)
				l.ready.remove(msg.Username)
				l.log.Debug("left", zap.String("conn_id", msg.ConnID), zap.String("username", msg.Username))
				l.broadcastRoster()
				l.broadcastReady()

			case Disconnect:
				delete(l.subs, msg.ConnID)
				name, ok := l.roster.nameOf(msg.ConnID)
				if !ok {
					break
				}
				l.roster.remove(msg.ConnID, "")
				l.ready.remove(name)
				l.log.Debug("disconnected", zap.String("conn_id", msg.ConnID), zap.String("username", name))
				l.broadcastRoster()
				l.broadcastReady()

			case ToggleReady:
				l.ready.set(msg.Username, msg.IsReady)
				l.broadcastReady()

			case UpdateSettings:
				l.settings = mergeSettings(l.settings, msg.Settings)
				l.broadcast(types.ServerMessage{Event: types.EvtSettingsUpdated, Data: copySettings(l.settings)})

			case PostChat:
				if l.opts.Chat == nil {
					reply(msg.Reply, ErrNoChatStore)
					break
				}
				select {
				case l.chatq <- msg:
				default:
					reply(msg.Reply, ErrChatBacklog)
				}

			case chatPersisted:
				l.broadcast(types.ServerMessage{Event: types.EvtChatMessage, Data: msg.msg})
				reply(msg.reply, nil)

			case StartGame:
				gen, err := l.seq.Begin(msg.GameID)
				if err != nil {
					reply(msg.Reply, err)
					break
				}
				l.broadcast(types.ServerMessage{
					Event: types.EvtGameCountdown,
					Data:  types.Countdown{Seconds: int(math.Ceil(l.opts.Countdown.Seconds()))},
				})
				l.seq.Arm(time.AfterFunc(l.opts.Countdown, func() {
					select {
					case l.inbox <- countdownElapsed{gen: gen}:
					case <-l.ctx.Done():
					}
				}))
				l.log.Info("countdown started", zap.Int("game_id", msg.GameID))
				reply(msg.Reply, nil)

			case countdownElapsed:
				gameID, ok := l.seq.Fire(msg.gen)
				if !ok {
					break
				}
				l.log.Info("game started", zap.Int("game_id", gameID))
				l.broadcast(types.ServerMessage{Event: types.EvtGameStarted, Data: types.GameStarted{GameID: gameID}})

			case GetState:
				msg.Reply <- l.view()

			case ClearInitialRoster:
				clear(l.initial)

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

// chatLoop persists messages one at a time, so the order they re-enter the
// inbox is the order they were stored in.
func (l *Lobby) chatLoop() {
	for {
		select {
		case <-l.ctx.Done():
			return
		case req := <-l.chatq:
			ctx, cancel := context.WithTimeout(l.ctx, l.opts.ChatTimeout)
			msg, err := l.opts.Chat.SaveMessage(ctx, l.id, req.Username, req.Content)
			cancel()
			if err != nil {
				l.log.Error("failed to store chat message", zap.String("username", req.Username), zap.Error(err))
				reply(req.Reply, err)
				continue
			}
			select {
			case l.inbox <- chatPersisted{msg: msg, reply: req.Reply}:
			case <-l.ctx.Done():
				return
			}
		}
	}
}

// recordPlayer mirrors a join to the PlayerRecorder off the lobby loop.
func (l *Lobby) recordPlayer(username string) {
	if l.opts.Players == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(l.ctx, l.opts.ChatTimeout)
		defer cancel()
		if err := l.opts.Players.AddPlayer(ctx, l.id, username); err != nil {
			l.log.Error("failed to record player", zap.String("username", username), zap.Error(err))
		}
	}()
}

func (l *Lobby) view() View {
	members := l.roster.snapshot()
	ready := l.ready.snapshot()
	return View{
		LobbyID:        l.id,
		Roster:         members,
		Ready:          ready,
		ReadyPercent:   ReadyPercent(ready, members),
		InitialRoster:  sortedNames(l.initial),
		Settings:       copySettings(l.settings),
		Phase:          l.seq.Phase(),
		GameID:         l.seq.GameID(),
		NumSubscribers: len(l.subs),
	}
}

func (l *Lobby) shutdown() {
	l.seq.Cancel()
	for id, sub := range l.subs {
		sub.Close()
		delete(l.subs, id)
	}
	l.cancel()
}

func (l *Lobby) broadcastRoster() {
	l.broadcast(types.ServerMessage{Event: types.EvtLobbyUpdate, Data: l.roster.snapshot()})
}

func (l *Lobby) broadcastReady() {
	l.broadcast(types.ServerMessage{Event: types.EvtReadyUpdate, Data: types.ReadyUpdate{ReadyUsers: l.ready.snapshot()}})
}

func (l *Lobby) broadcast(msg types.ServerMessage) {
	for id, sub := range l.subs {
		if !sub.Offer(msg) {
			// Slow or gone; the socket layer sees Done and tears down.
			sub.Close()
			delete(l.subs, id)
			l.log.Warn("dropped subscriber", zap.String("conn_id", id), zap.String("event", msg.Event))
		}
	}
}

func reply(ch chan error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}
