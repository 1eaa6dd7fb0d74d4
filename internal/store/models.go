package store

import (
	"time"

	"github.com/DoyleJ11/codelobby/internal/types"
)

type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	TotalWins   int       `gorm:"not null;default:0" json:"totalWins"`
	TotalLosses int       `gorm:"not null;default:0" json:"totalLosses"`
	TotalGames  int       `gorm:"not null;default:0" json:"totalGames"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Game is one GameSession. WinnerUsername and FinalizedAt are set together,
// exactly once.
type Game struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	LobbyID        int        `gorm:"not null;index" json:"lobbyId"`
	NumQuestions   int        `gorm:"not null" json:"numQuestions"`
	WinnerUsername *string    `gorm:"size:64" json:"winner"`
	FinalizedAt    *time.Time `json:"finalizedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type Question struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Difficulty  string `gorm:"size:20;not null;index" json:"difficulty"`
	Topic       string `gorm:"size:64;not null;index" json:"topic"`
}

type GameQuestion struct {
	ID         uint     `gorm:"primaryKey"`
	GameID     uint     `gorm:"not null;uniqueIndex:idx_game_question_position"`
	Position   int      `gorm:"not null;uniqueIndex:idx_game_question_position"`
	QuestionID uint     `gorm:"not null"`
	Question   Question `gorm:"foreignKey:QuestionID"`
}

type Solution struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	GameID        uint      `gorm:"not null;index" json:"gid"`
	QuestionID    uint      `gorm:"not null" json:"qid"`
	Username      string    `gorm:"size:64;not null;index" json:"username"`
	Code          string    `gorm:"type:text" json:"code"`
	Output        string    `gorm:"type:text" json:"output"`
	Language      string    `gorm:"size:32" json:"language"`
	Points        int       `gorm:"not null;default:0" json:"points"`
	ExecutionTime float64   `json:"executionTime"`
	TimeStart     time.Time `json:"timeStart"`
	TimeEnd       time.Time `json:"timeEnd"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Message struct {
	ID        uint      `gorm:"primaryKey"`
	LobbyID   int       `gorm:"not null;index"`
	Username  string    `gorm:"size:64;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index"`
}

func (m Message) chat() types.ChatMessage {
	return types.ChatMessage{
		ID:        m.ID,
		LobbyID:   m.LobbyID,
		Username:  m.Username,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
