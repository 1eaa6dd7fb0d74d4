// Package finalize decides a game's winner exactly once, no matter how many
// clients ask at the same time.
package finalize

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/codelobby/internal/scoring"
	"github.com/DoyleJ11/codelobby/internal/store"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrNoParticipants = errors.New("no participants recorded for this lobby")

type Status string

const (
	StatusCompleted        Status = "completed"
	StatusInProgress       Status = "in-progress"
	StatusAlreadyCompleted Status = "already-completed"
	StatusIncomplete       Status = "incomplete"
)

type Outcome struct {
	Status    Status
	Winner    string
	Submitted int
	Expected  int
}

type Store interface {
	GameResult(ctx context.Context, gameID int) (winner string, finalized bool, err error)
	CountSubmitters(ctx context.Context, gameID int) (int, error)
	GameSubmissions(ctx context.Context, gameID int) ([]scoring.Submission, error)
	RecordResult(ctx context.Context, gameID int, winner string, losers []string) error
}

// Rosters gives access to the usernames that have ever joined a lobby.
type Rosters interface {
	InitialRoster(ctx context.Context, lobbyID int) ([]string, error)
	ClearInitialRoster(ctx context.Context, lobbyID int) error
}

type Guard struct {
	ledger  Ledger
	store   Store
	rosters Rosters
	log     *zap.Logger
}

func NewGuard(ledger Ledger, st Store, rosters Rosters, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{ledger: ledger, store: st, rosters: rosters, log: log.Named("finalize")}
}

// Finalize scores gameID and records the winner if every player that joined
// lobbyID has submitted. Only one caller ever performs the scoring; the others
// see in-progress or already-completed.
func (g *Guard) Finalize(ctx context.Context, gameID, lobbyID int) (Outcome, error) {
	rec, ok, err := g.ledger.Acquire(ctx, gameID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		if rec.State == StateCompleted {
			return Outcome{Status: StatusAlreadyCompleted, Winner: rec.Winner}, nil
		}
		return Outcome{Status: StatusInProgress}, nil
	}

	out, err := g.finalize(ctx, gameID, lobbyID)
	if err != nil || (out.Status != StatusCompleted && out.Status != StatusAlreadyCompleted) {
		if rerr := g.ledger.Release(context.WithoutCancel(ctx), gameID, rec.Token); rerr != nil {
			err = multierr.Append(err, rerr)
		}
	}
	if err != nil {
		g.log.Error("finalize failed", zap.Int("game_id", gameID), zap.Int("lobby_id", lobbyID), zap.Error(err))
		return Outcome{}, err
	}
	return out, nil
}

func (g *Guard) finalize(ctx context.Context, gameID, lobbyID int) (Outcome, error) {
	winner, done, err := g.store.GameResult(ctx, gameID)
	if err != nil {
		return Outcome{}, err
	}
	if done {
		// finished by an earlier attempt; bring the ledger up to date
		return g.settled(ctx, gameID, lobbyID, winner)
	}

	expected, err := g.rosters.InitialRoster(ctx, lobbyID)
	if err != nil {
		return Outcome{}, fmt.Errorf("initial roster: %w", err)
	}
	submitted, err := g.store.CountSubmitters(ctx, gameID)
	if err != nil {
		return Outcome{}, fmt.Errorf("count submitters: %w", err)
	}
	if len(expected) == 0 && submitted == 0 {
		return Outcome{}, ErrNoParticipants
	}
	if submitted != len(expected) {
		return Outcome{Status: StatusIncomplete, Submitted: submitted, Expected: len(expected)}, nil
	}

	subs, err := g.store.GameSubmissions(ctx, gameID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load submissions: %w", err)
	}
	standings := scoring.Rank(subs)
	if len(standings) == 0 {
		return Outcome{}, ErrNoParticipants
	}
	top := standings[0].Username
	losers := make([]string, 0, len(standings)-1)
	for _, s := range standings[1:] {
		losers = append(losers, s.Username)
	}

	err = g.store.RecordResult(ctx, gameID, top, losers)
	if errors.Is(err, store.ErrAlreadyFinalized) {
		winner, _, rerr := g.store.GameResult(ctx, gameID)
		if rerr != nil {
			return Outcome{}, rerr
		}
		return g.settled(ctx, gameID, lobbyID, winner)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("record result: %w", err)
	}

	if err := g.ledger.Complete(ctx, gameID, top); err != nil {
		return Outcome{}, err
	}
	g.clearRoster(ctx, lobbyID)
	g.log.Info("game finalized", zap.Int("game_id", gameID), zap.String("winner", top), zap.Int("players", len(standings)))
	return Outcome{Status: StatusCompleted, Winner: top}, nil
}

// settled finishes the bookkeeping for a game whose result is already in the
// database.
func (g *Guard) settled(ctx context.Context, gameID, lobbyID int, winner string) (Outcome, error) {
	if err := g.ledger.Complete(ctx, gameID, winner); err != nil {
		return Outcome{}, err
	}
	g.clearRoster(ctx, lobbyID)
	return Outcome{Status: StatusAlreadyCompleted, Winner: winner}, nil
}

func (g *Guard) clearRoster(ctx context.Context, lobbyID int) {
	if err := g.rosters.ClearInitialRoster(ctx, lobbyID); err != nil {
		g.log.Warn("clear initial roster", zap.Int("lobby_id", lobbyID), zap.Error(err))
	}
}
