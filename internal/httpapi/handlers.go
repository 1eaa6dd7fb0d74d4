package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/DoyleJ11/codelobby/internal/finalize"
	"github.com/DoyleJ11/codelobby/internal/lobby"
	"github.com/DoyleJ11/codelobby/internal/scoring"
	"github.com/DoyleJ11/codelobby/internal/store"
	"github.com/DoyleJ11/codelobby/internal/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Store interface {
	History(ctx context.Context, lobbyID int) ([]types.ChatMessage, error)
	CreateGame(ctx context.Context, ng store.NewGame) (store.Game, error)
	GameQuestions(ctx context.Context, gameID int) ([]store.Question, error)
	SaveSolution(ctx context.Context, ns store.NewSolution) (store.Solution, error)
	GameSubmissions(ctx context.Context, gameID int) ([]scoring.Submission, error)
	Leaderboard(ctx context.Context) ([]store.LeaderboardEntry, error)
	UserStats(ctx context.Context, username string) (store.UserStats, error)
}

type Lobbies interface {
	View(ctx context.Context, id int) (lobby.View, error)
}

type Rosters interface {
	InitialRoster(ctx context.Context, lobbyID int) ([]string, error)
}

type Finalizer interface {
	Finalize(ctx context.Context, gameID, lobbyID int) (finalize.Outcome, error)
}

type API struct {
	store     Store
	lobbies   Lobbies
	rosters   Rosters
	finalizer Finalizer
	log       *zap.Logger
}

func NewAPI(st Store, lobbies Lobbies, rosters Rosters, finalizer Finalizer, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{store: st, lobbies: lobbies, rosters: rosters, finalizer: finalizer, log: log.Named("http")}
}

type createGameRequest struct {
	Difficulty   string   `json:"difficulty" validate:"required"`
	ProblemTypes []string `json:"problemTypes" validate:"required,min=1,dive,required"`
	NumProblems  int      `json:"numProblems" validate:"required,min=1,max=50"`
}

type solutionRequest struct {
	QuestionID    int       `json:"qid" validate:"required,min=1"`
	GameID        int       `json:"gid" validate:"required,min=1"`
	Username      string    `json:"username" validate:"required,max=64"`
	Code          string    `json:"code"`
	Output        string    `json:"output"`
	Language      string    `json:"language" validate:"max=32"`
	Points        int       `json:"points" validate:"min=0"`
	ExecutionTime float64   `json:"executionTime" validate:"gte=0"`
	TimeStart     time.Time `json:"timeStart" validate:"required"`
	TimeEnd       time.Time `json:"timeEnd" validate:"required"`
}

type finalizeResponse struct {
	Message   string  `json:"message"`
	Winner    *string `json:"winner"`
	Submitted *int    `json:"submitted,omitempty"`
	Expected  *int    `json:"expected,omitempty"`
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) Messages(w http.ResponseWriter, r *http.Request) {
	lobbyID, ok := pathID(w, r, "lobbyId")
	if !ok {
		return
	}
	msgs, err := a.store.History(r.Context(), lobbyID)
	if err != nil {
		a.fail(w, "Failed to fetch messages", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (a *API) InitialRoomUsers(w http.ResponseWriter, r *http.Request) {
	lobbyID, ok := pathID(w, r, "lobbyId")
	if !ok {
		return
	}
	names, err := a.rosters.InitialRoster(r.Context(), lobbyID)
	if err != nil {
		a.fail(w, "Internal server error", err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (a *API) LobbyState(w http.ResponseWriter, r *http.Request) {
	lobbyID, ok := pathID(w, r, "lobbyId")
	if !ok {
		return
	}
	v, err := a.lobbies.View(r.Context(), lobbyID)
	if err != nil {
		a.fail(w, "Internal server error", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) CreateGame(w http.ResponseWriter, r *http.Request) {
	lobbyID, ok := pathID(w, r, "lobbyId")
	if !ok {
		return
	}
	var req createGameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g, err := a.store.CreateGame(r.Context(), store.NewGame{
		LobbyID:    lobbyID,
		Difficulty: req.Difficulty,
		Topics:     req.ProblemTypes,
		Count:      req.NumProblems,
	})
	if errors.Is(err, store.ErrNoQuestions) {
		writeError(w, http.StatusNotFound, "No questions found")
		return
	}
	if err != nil {
		a.fail(w, "Failed to start game", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Game started successfully!", "gameId": g.ID})
}

func (a *API) GameQuestions(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r, "gameId")
	if !ok {
		return
	}
	qs, err := a.store.GameQuestions(r.Context(), gameID)
	if errors.Is(err, store.ErrGameNotFound) {
		writeError(w, http.StatusNotFound, "Game not found")
		return
	}
	if err != nil {
		a.fail(w, "Failed to fetch game questions", err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (a *API) SaveSolution(w http.ResponseWriter, r *http.Request) {
	var req solutionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sol, err := a.store.SaveSolution(r.Context(), store.NewSolution{
		GameID:        req.GameID,
		QuestionID:    req.QuestionID,
		Username:      req.Username,
		Code:          req.Code,
		Output:        req.Output,
		Language:      req.Language,
		BasePoints:    req.Points,
		ExecutionTime: req.ExecutionTime,
		TimeStart:     req.TimeStart,
		TimeEnd:       req.TimeEnd,
	})
	if errors.Is(err, store.ErrGameNotFound) {
		writeError(w, http.StatusNotFound, "Game not found")
		return
	}
	if err != nil {
		a.fail(w, "Failed to save solution", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Solution saved!", "solution": sol})
}

func (a *API) GameScoreboard(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r, "gameId")
	if !ok {
		return
	}
	subs, err := a.store.GameSubmissions(r.Context(), gameID)
	if err != nil {
		a.fail(w, "Failed to fetch scoreboard", err)
		return
	}
	writeJSON(w, http.StatusOK, scoring.Rank(subs))
}

func (a *API) Scoreboard(w http.ResponseWriter, r *http.Request) {
	rows, err := a.store.Leaderboard(r.Context())
	if err != nil {
		a.fail(w, "Failed to fetch scoreboard", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) FinalizeGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r, "gameId")
	if !ok {
		return
	}
	lobbyID, ok := pathID(w, r, "lobbyId")
	if !ok {
		return
	}

	out, err := a.finalizer.Finalize(r.Context(), gameID, lobbyID)
	switch {
	case errors.Is(err, store.ErrGameNotFound):
		writeError(w, http.StatusNotFound, "Game not found")
		return
	case errors.Is(err, finalize.ErrNoParticipants):
		writeError(w, http.StatusConflict, "No players recorded for this lobby")
		return
	case err != nil:
		a.fail(w, "Failed to finalize game", err)
		return
	}

	switch out.Status {
	case finalize.StatusCompleted:
		writeJSON(w, http.StatusOK, finalizeResponse{
			Message: "Game finalized after all players finished.",
			Winner:  &out.Winner,
		})
	case finalize.StatusIncomplete:
		writeJSON(w, http.StatusBadRequest, finalizeResponse{
			Message:   fmt.Sprintf("Not all players have finished yet. (%d/%d)", out.Submitted, out.Expected),
			Submitted: &out.Submitted,
			Expected:  &out.Expected,
		})
	default:
		resp := finalizeResponse{Message: "Game finalization already in progress or completed."}
		if out.Status == finalize.StatusAlreadyCompleted {
			resp.Winner = &out.Winner
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "Username is required")
		return
	}
	stats, err := a.store.UserStats(r.Context(), username)
	if errors.Is(err, store.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		a.fail(w, "Failed to fetch user stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) fail(w http.ResponseWriter, msg string, err error) {
	a.log.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	if err := types.Validate(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
