package storage

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/cloudzz-dev/cldzchat/internal/models"
)

// ChatRoomID returns the room shared by a and b in either order, creating it
// on first use.
func (s *Store) ChatRoomID(ctx context.Context, a, b string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, s.rebind(`
		SELECT id FROM chat_rooms
		WHERE (first_user_id = ? AND second_user_id = ?)
		   OR (first_user_id = ? AND second_user_id = ?)
		LIMIT 1
	`), a, b, b, a).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	id = newID()
	_, err = tx.ExecContext(ctx, s.rebind(
		"INSERT INTO chat_rooms (id, first_user_id, second_user_id, created_at) VALUES (?, ?, ?, ?)"),
		id, a, b, s.now(),
	)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// SaveMessage stores a message from sender to receiver and stamps it with
// the room id and the current time.
func (s *Store) SaveMessage(ctx context.Context, payload models.ChatPayload) (*models.Message, error) {
	chatID, err := s.ChatRoomID(ctx, payload.SenderID, payload.ReceiverID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	msg := &models.Message{
		ID:         newID(),
		ChatID:     chatID,
		SenderID:   payload.SenderID,
		ReceiverID: payload.ReceiverID,
		Content:    payload.Content,
		Timestamp:  &now,
	}
	_, err = s.exec(ctx,
		"INSERT INTO messages (id, chat_id, sender_id, receiver_id, content, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ChatID, msg.SenderID, msg.ReceiverID, msg.Content, now,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Messages returns the history between a and b, oldest first.
func (s *Store) Messages(ctx context.Context, a, b string) ([]models.Message, error) {
	chatID, err := s.ChatRoomID(ctx, a, b)
	if err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, `
		SELECT id, chat_id, sender_id, receiver_id, content, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		var ts sql.NullTime
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.ReceiverID, &m.Content, &ts); err != nil {
			return nil, err
		}
		if ts.Valid {
			t := ts.Time.UTC()
			m.Timestamp = &t
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Conversations lists everyone userID shares a room with, with the room's
// last message, most recent first. Rooms without messages sort last.
func (s *Store) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := s.query(ctx, `
		SELECT u.id, u.name, u.username, u.avatar_url,
			m.content, m.created_at, m.sender_id
		FROM chat_rooms r
		JOIN users u ON u.id = CASE WHEN r.first_user_id = ? THEN r.second_user_id ELSE r.first_user_id END
		LEFT JOIN messages m ON m.id = (
			SELECT id FROM messages WHERE chat_id = r.id ORDER BY created_at DESC LIMIT 1
		)
		WHERE r.first_user_id = ? OR r.second_user_id = ?
	`, userID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []models.Conversation{}
	for rows.Next() {
		var c models.Conversation
		var content, sender sql.NullString
		var ts sql.NullTime
		if err := rows.Scan(&c.PeerUserID, &c.Name, &c.Username, &c.AvatarURL, &content, &ts, &sender); err != nil {
			log.Errorf("error scanning conversation: %v", err)
			continue
		}
		if ts.Valid {
			t := ts.Time.UTC()
			c.LastMessage = content.String
			c.LastMessageTime = &t
			c.LastMessageSenderID = sender.String
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(convs, func(i, j int) bool {
		ti, tj := convs[i].LastMessageTime, convs[j].LastMessageTime
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	return convs, nil
}
