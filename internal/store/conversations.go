package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/massy-ia/citydesk/internal/apperr"
)

// ChatTurn is one user message and the reply generated for it.
type ChatTurn struct {
	UserID      string
	NewTitle    string
	UserMessage string
	BotMessage  string
	MetaInfo    *string
}

// RecordChatTurn appends a turn to the caller's most recently updated
// conversation, creating one titled NewTitle when the caller has none.
// Two first turns racing for the same user may each create a conversation.
func (s *SQLiteStore) RecordChatTurn(ctx context.Context, turn ChatTurn) (*Conversation, error) {
	var conv Conversation
	err := s.withTx(ctx, "failed to record chat turn", func(tx *sql.Tx) error {
		now := s.now()
		err := tx.QueryRowContext(ctx, `SELECT id, user_id, title, created_at, updated_at
            FROM conversations WHERE user_id = ? ORDER BY updated_at DESC LIMIT 1`, turn.UserID).
			Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
		switch {
		case err == sql.ErrNoRows:
			conv = Conversation{ID: uuid.NewString(), UserID: turn.UserID, Title: turn.NewTitle, CreatedAt: now}
			if _, err := tx.ExecContext(ctx, `INSERT INTO conversations (id, user_id, title, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?)`, conv.ID, conv.UserID, conv.Title, now, now); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if _, err := tx.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?", now, conv.ID); err != nil {
				return err
			}
		}
		conv.UpdatedAt = now

		messages := []Message{
			{ID: uuid.NewString(), ConversationID: conv.ID, Sender: SenderUser, Content: turn.UserMessage, CreatedAt: now},
			{ID: uuid.NewString(), ConversationID: conv.ID, Sender: SenderBot, Content: turn.BotMessage, CreatedAt: now, MetaInfo: turn.MetaInfo},
		}
		// The bot reply sorts after the user message.
		messages[1].CreatedAt = now.Add(1)
		for _, msg := range messages {
			if _, err := tx.ExecContext(ctx, `INSERT INTO messages (id, conversation_id, sender, content, created_at, meta_info)
                VALUES (?, ?, ?, ?, ?, ?)`, msg.ID, msg.ConversationID, msg.Sender, msg.Content, msg.CreatedAt,
				nullString(msg.MetaInfo)); err != nil {
				return err
			}
		}
		conv.Messages = messages
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, most recently updated first,
// each with its messages.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, title, created_at, updated_at
        FROM conversations WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, mapError("failed to query conversations", err)
	}
	conversations := []Conversation{}
	index := map[string]int{}
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			rows.Close()
			return nil, mapError("failed to scan conversation row", err)
		}
		conv.Messages = []Message{}
		index[conv.ID] = len(conversations)
		conversations = append(conversations, conv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapError("failed to iterate conversations", err)
	}
	if len(conversations) == 0 {
		return conversations, nil
	}

	messages, err := s.queryMessages(ctx, `SELECT m.id, m.conversation_id, m.sender, m.content, m.created_at, m.meta_info
        FROM messages m JOIN conversations c ON c.id = m.conversation_id
        WHERE c.user_id = ? ORDER BY m.created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	for _, msg := range messages {
		if i, ok := index[msg.ConversationID]; ok {
			conversations[i].Messages = append(conversations[i].Messages, msg)
		}
	}
	return conversations, nil
}

// GetConversation only returns a conversation owned by userID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id, userID string) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRowContext(ctx, `SELECT id, user_id, title, created_at, updated_at
        FROM conversations WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, mapError("failed to query conversation", err)
	}

	conv.Messages, err = s.queryMessages(ctx, `SELECT id, conversation_id, sender, content, created_at, meta_info
        FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`, conv.ID)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// DeleteConversation removes an owned conversation and its messages.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id, userID string) error {
	return s.withTx(ctx, "failed to delete conversation", func(tx *sql.Tx) error {
		var found string
		err := tx.QueryRowContext(ctx, "SELECT id FROM conversations WHERE id = ? AND user_id = ?", id, userID).Scan(&found)
		if err == sql.ErrNoRows {
			return apperr.NotFound("conversation not found")
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
		return err
	})
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("failed to query messages", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var (
			msg  Message
			meta sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &msg.CreatedAt, &meta); err != nil {
			return nil, mapError("failed to scan message row", err)
		}
		msg.MetaInfo = stringPtr(meta)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed to iterate messages", err)
	}
	return messages, nil
}
