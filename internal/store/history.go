package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Message is one chat history record inside a scope.
type Message struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	SessionID string    `json:"session_id"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionInfo summarizes one conversation session.
type SessionInfo struct {
	SessionID       string    `json:"session_id"`
	LastMessageTime time.Time `json:"last_message_time"`
	MessageCount    int       `json:"message_count"`
}

// AppendMessage stores a chat message. Metadata is a JSON document or
// empty.
func (s *Store) AppendMessage(ctx context.Context, scope, sessionID, role, content, metadata string) (*Message, error) {
	var meta interface{}
	if metadata != "" {
		meta = metadata
	}

	msg := Message{Role: role, Content: content, SessionID: sessionID, Metadata: metadata}
	err := s.db.QueryRow(ctx, `
		INSERT INTO messages (scope, session_id, role, content, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		scope, sessionID, role, content, meta,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return &msg, nil
}

// History retrieves a scope's messages oldest first, optionally filtered
// by session.
func (s *Store) History(ctx context.Context, scope, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, role, content, session_id, COALESCE(metadata::text, ''), created_at
		FROM messages
		WHERE scope = $1`
	args := []interface{}{scope}
	if sessionID != "" {
		query += ` AND session_id = $2`
		args = append(args, sessionID)
	}
	query += fmt.Sprintf(` ORDER BY created_at ASC LIMIT %d`, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.SessionID, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Sessions lists a scope's sessions, most recently active first.
func (s *Store) Sessions(ctx context.Context, scope string, limit int) ([]SessionInfo, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT session_id, max(created_at) AS last_message_time, count(*) AS message_count
		FROM messages
		WHERE scope = $1
		GROUP BY session_id
		ORDER BY max(created_at) DESC
		LIMIT $2`, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var si SessionInfo
		if err := rows.Scan(&si.SessionID, &si.LastMessageTime, &si.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, si)
	}
	return sessions, rows.Err()
}

// ClearHistory deletes a scope's messages, optionally only one session.
// Returns the number of messages removed.
func (s *Store) ClearHistory(ctx context.Context, scope, sessionID string) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if sessionID != "" {
		tag, err = s.db.Exec(ctx, `DELETE FROM messages WHERE scope = $1 AND session_id = $2`, scope, sessionID)
	} else {
		tag, err = s.db.Exec(ctx, `DELETE FROM messages WHERE scope = $1`, scope)
	}
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return tag.RowsAffected(), nil
}
