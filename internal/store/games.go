package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"gorm.io/gorm"
)

// NewGame asks for Count questions of one difficulty drawn from Topics.
type NewGame struct {
	LobbyID    int
	Difficulty string
	Topics     []string
	Count      int
}

func (s *Store) Game(ctx context.Context, id int) (Game, error) {
	var g Game
	err := s.db.WithContext(ctx).First(&g, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Game{}, ErrGameNotFound
	}
	return g, err
}

// CreateGame picks a shuffled set of distinct-title questions and stores the
// game with them in order.
func (s *Store) CreateGame(ctx context.Context, ng NewGame) (Game, error) {
	var pool []Question
	err := s.db.WithContext(ctx).
		Where("difficulty = ? AND topic IN ?", ng.Difficulty, ng.Topics).
		Order("id ASC").
		Find(&pool).Error
	if err != nil {
		return Game{}, err
	}

	seen := make(map[string]bool, len(pool))
	distinct := pool[:0]
	for _, q := range pool {
		if seen[q.Title] {
			continue
		}
		seen[q.Title] = true
		distinct = append(distinct, q)
	}
	if len(distinct) == 0 {
		return Game{}, ErrNoQuestions
	}

	rand.Shuffle(len(distinct), func(i, j int) { distinct[i], distinct[j] = distinct[j], distinct[i] })
	if ng.Count < len(distinct) {
		distinct = distinct[:ng.Count]
	}

	g := Game{LobbyID: ng.LobbyID, NumQuestions: ng.Count}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&g).Error; err != nil {
			return err
		}
		links := make([]GameQuestion, len(distinct))
		for i, q := range distinct {
			links[i] = GameQuestion{GameID: g.ID, Position: i, QuestionID: q.ID}
		}
		return tx.Create(&links).Error
	})
	if err != nil {
		return Game{}, fmt.Errorf("create game: %w", err)
	}
	return g, nil
}

// GameQuestions returns a game's questions in their stored order.
func (s *Store) GameQuestions(ctx context.Context, gameID int) ([]Question, error) {
	if _, err := s.Game(ctx, gameID); err != nil {
		return nil, err
	}
	var links []GameQuestion
	err := s.db.WithContext(ctx).
		Preload("Question").
		Where("game_id = ?", gameID).
		Order("position ASC").
		Find(&links).Error
	if err != nil {
		return nil, err
	}
	out := make([]Question, len(links))
	for i, l := range links {
		out[i] = l.Question
	}
	return out, nil
}

// GameResult reports whether a game has been finalized and who won.
func (s *Store) GameResult(ctx context.Context, gameID int) (string, bool, error) {
	g, err := s.Game(ctx, gameID)
	if err != nil {
		return "", false, err
	}
	if g.FinalizedAt == nil {
		return "", false, nil
	}
	winner := ""
	if g.WinnerUsername != nil {
		winner = *g.WinnerUsername
	}
	return winner, true, nil
}
