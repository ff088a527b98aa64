package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertChat inserts or updates a chat record. The last-message fields only
// move forward in time.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, sender_id, receiver_id, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			unread_count = excluded.unread_count,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at > chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			updated_at = excluded.updated_at`,
		c.ChatID, c.SenderID, c.ReceiverID, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// GetChat returns a single chat by its derived id, or nil if not cached.
func (db *DB) GetChat(chatID string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT id, chat_id, sender_id, receiver_id, unread_count, last_message_at, last_message_preview
		FROM chats WHERE chat_id = ?`, chatID).
		Scan(&c.ID, &c.ChatID, &c.SenderID, &c.ReceiverID, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChats returns chats sorted by last message timestamp descending, with
// peer names resolved via v_chats_latest.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, chat_id, sender_id, receiver_id, unread_count, last_message_at, last_message_preview
		FROM v_chats_latest
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.ChatID, &c.SenderID, &c.ReceiverID, &c.UnreadCount,
			&c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat and all of its messages in one transaction.
// Returns the number of deleted messages.
func (db *DB) DeleteChat(chatID string) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM chats WHERE chat_id = ?`, chatID); err != nil {
		return 0, fmt.Errorf("delete chat: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return res.RowsAffected()
}

// DeleteChatsWithUser removes every chat involving the given user, with all
// messages, in one transaction. Used when the local user blocks a peer.
func (db *DB) DeleteChatsWithUser(userID string) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		DELETE FROM messages WHERE chat_id IN
			(SELECT chat_id FROM chats WHERE sender_id = ? OR receiver_id = ?)`,
		userID, userID); err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM chats WHERE sender_id = ? OR receiver_id = ?`, userID, userID)
	if err != nil {
		return 0, fmt.Errorf("delete chats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return res.RowsAffected()
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}
