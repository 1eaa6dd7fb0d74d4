package store

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/codelobby/internal/scoring"
	"gorm.io/gorm"
)

type NewSolution struct {
	GameID        int
	QuestionID    int
	Username      string
	Code          string
	Output        string
	Language      string
	BasePoints    int
	ExecutionTime float64
	TimeStart     time.Time
	TimeEnd       time.Time
}

type LeaderboardEntry struct {
	Username string `json:"username"`
	Points   int    `json:"points"`
}

type UserStats struct {
	TotalWins   int `json:"totalWins"`
	TotalLosses int `json:"totalLosses"`
	TotalGames  int `json:"totalGames"`
}

// SaveSolution scores and stores a solution. The correct-answer bonus is not
// stored; readers add it when aggregating.
func (s *Store) SaveSolution(ctx context.Context, ns NewSolution) (Solution, error) {
	if _, err := s.Game(ctx, ns.GameID); err != nil {
		return Solution{}, err
	}
	sol := Solution{
		GameID:        uint(ns.GameID),
		QuestionID:    uint(ns.QuestionID),
		Username:      ns.Username,
		Code:          ns.Code,
		Output:        ns.Output,
		Language:      ns.Language,
		Points:        scoring.SolutionPoints(ns.BasePoints, ns.TimeStart, ns.TimeEnd, ns.ExecutionTime),
		ExecutionTime: ns.ExecutionTime,
		TimeStart:     ns.TimeStart,
		TimeEnd:       ns.TimeEnd,
	}
	if err := s.db.WithContext(ctx).Create(&sol).Error; err != nil {
		return Solution{}, err
	}
	return sol, nil
}

func (s *Store) GameSubmissions(ctx context.Context, gameID int) ([]scoring.Submission, error) {
	var rows []Solution
	err := s.db.WithContext(ctx).
		Select("username", "points", "created_at").
		Where("game_id = ?", gameID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]scoring.Submission, len(rows))
	for i, r := range rows {
		out[i] = scoring.Submission{Username: r.Username, Points: r.Points, SubmittedAt: r.CreatedAt}
	}
	return out, nil
}

// CountSubmitters is the number of distinct users with at least one solution
// in the game.
func (s *Store) CountSubmitters(ctx context.Context, gameID int) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&Solution{}).
		Where("game_id = ?", gameID).
		Distinct("username").
		Count(&n).Error
	return int(n), err
}

// RecordResult marks the game finalized and updates every participant's
// totals in one transaction. It fails with ErrAlreadyFinalized if another
// writer got there first.
func (s *Store) RecordResult(ctx context.Context, gameID int, winner string, losers []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Game{}).
			Where("id = ? AND finalized_at IS NULL", gameID).
			Updates(map[string]any{"winner_username": winner, "finalized_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&Game{}).Where("id = ?", gameID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrGameNotFound
			}
			return ErrAlreadyFinalized
		}

		if err := bump(tx, winner, "total_wins"); err != nil {
			return err
		}
		for _, name := range losers {
			if err := bump(tx, name, "total_losses"); err != nil {
				return err
			}
		}
		return nil
	})
}

func bump(tx *gorm.DB, username, column string) error {
	var u User
	if err := tx.Where(User{Username: username}).FirstOrCreate(&u).Error; err != nil {
		return err
	}
	return tx.Model(&User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			column:        gorm.Expr(column + " + 1"),
			"total_games": gorm.Expr("total_games + 1"),
		}).Error
}

// Leaderboard is the all-time points table, bonus included.
func (s *Store) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var out []LeaderboardEntry
	err := s.db.WithContext(ctx).
		Model(&Solution{}).
		Select("username, SUM(points) + SUM(CASE WHEN points > 0 THEN ? ELSE 0 END) AS points", scoring.CorrectBonus).
		Group("username").
		Order("points DESC, username ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []LeaderboardEntry{}
	}
	return out, nil
}

func (s *Store) UserStats(ctx context.Context, username string) (UserStats, error) {
	var u User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return UserStats{}, ErrUserNotFound
	}
	if err != nil {
		return UserStats{}, err
	}
	return UserStats{TotalWins: u.TotalWins, TotalLosses: u.TotalLosses, TotalGames: u.TotalGames}, nil
}
