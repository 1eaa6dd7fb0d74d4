package store

import (
	"context"

	"github.com/DoyleJ11/codelobby/internal/types"
)

func (s *Store) SaveMessage(ctx context.Context, lobbyID int, username, content string) (types.ChatMessage, error) {
	m := Message{LobbyID: lobbyID, Username: username, Content: content}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return types.ChatMessage{}, err
	}
	return m.chat(), nil
}

// History returns a lobby's chat oldest first.
func (s *Store) History(ctx context.Context, lobbyID int) ([]types.ChatMessage, error) {
	var rows []Message
	err := s.db.WithContext(ctx).
		Where("lobby_id = ?", lobbyID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.ChatMessage, len(rows))
	for i, m := range rows {
		out[i] = m.chat()
	}
	return out, nil
}
