package types

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Inbound event names.
const (
	EvtJoinLobby       = "join-lobby"
	EvtLeaveLobby      = "leave-lobby"
	EvtGetLobbyUsers   = "get-lobby-users"
	EvtGetReadyStatus  = "get-ready-status"
	EvtToggleReady     = "toggle-ready"
	EvtChatMessage     = "chat-message"
	EvtSettingsUpdated = "settings-updated"
	EvtStartGame       = "start-game"
)

// Outbound event names. chat-message and settings-updated are echoed back
// under the same name they arrive with.
const (
	EvtLobbyUpdate   = "lobby-update"
	EvtReadyUpdate   = "ready-update"
	EvtGameCountdown = "game-countdown"
	EvtGameStarted   = "game-started"
	EvtError         = "error"
)

var ErrBadID = errors.New("id must be a positive integer")

// ClientMessage is one frame read from a socket.
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerMessage is one frame written to a socket.
type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ID is an integer identifier that browsers send either as a number or as a
// numeric string.
type ID int

func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return ErrBadID
	}
	*id = ID(n)
	return nil
}

// Member is one Roster entry; ID is the connection id.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ReadyRecord struct {
	Name    string `json:"name"`
	IsReady bool   `json:"isReady"`
}

type ReadyUpdate struct {
	ReadyUsers []ReadyRecord `json:"readyUsers"`
}

// Settings is a sparse lobby configuration (difficulty, numProblems,
// privacy, maxPeople, problemTypes, ...).
type Settings map[string]any

type Countdown struct {
	Seconds int `json:"seconds"`
}

type GameStarted struct {
	GameID int `json:"gameId"`
}

// ChatMessage is a persisted chat record as broadcast to a lobby.
type ChatMessage struct {
	ID        uint      `json:"id"`
	LobbyID   int       `json:"lobbyId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type ErrorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

type JoinLobby struct {
	LobbyID  ID     `json:"lobbyId" validate:"required"`
	Username string `json:"username" validate:"required,max=64"`
}

type LeaveLobby struct {
	LobbyID  ID     `json:"lobbyId" validate:"required"`
	Username string `json:"username" validate:"required,max=64"`
}

type ToggleReady struct {
	LobbyID  ID     `json:"lobbyId" validate:"required"`
	Username string `json:"username" validate:"required,max=64"`
	IsReady  bool   `json:"isReady"`
}

type MessageData struct {
	Username string `json:"username" validate:"required,max=64"`
	Content  string `json:"content" validate:"required,max=2000"`
}

type PostChat struct {
	LobbyID     ID          `json:"lobbyId" validate:"required"`
	MessageData MessageData `json:"messageData"`
}

type UpdateSettings struct {
	LobbyID  ID       `json:"lobbyId" validate:"required"`
	Settings Settings `json:"settings" validate:"required"`
}

type StartGame struct {
	LobbyID ID `json:"lobbyId" validate:"required"`
	GameID  ID `json:"gameId" validate:"required"`
}
