package repository

import (
	"context"
	"fmt"

	"github.com/ridesplit/ridesplit/internal/model"
)

// CreateMessage stores a chat message.
func (r *Repository) CreateMessage(ctx context.Context, m *model.Message) error {
	query := `
		INSERT INTO messages (id, car_id, user_id, content, sent_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.pool.Exec(ctx, query, m.ID, m.GroupID, m.UserID, m.Content, m.SentAt); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListMessages returns a group's messages, oldest first.
func (r *Repository) ListMessages(ctx context.Context, groupID string, limit int) ([]*model.Message, error) {
	query := `
		SELECT id, car_id, user_id, content, sent_at
		FROM (
			SELECT id, car_id, user_id, content, sent_at
			FROM messages
			WHERE car_id = $1
			ORDER BY sent_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY sent_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Content, &m.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
