package store

import "time"

// InsertMessage appends a message and returns its local surrogate id.
func (db *DB) InsertMessage(m *Message) (int64, error) {
	now := time.Now().UnixMilli()
	if m.Timestamp == 0 {
		m.Timestamp = now
	}
	res, err := db.Exec(`
		INSERT INTO messages (chat_id, client_msg_id, sender_id, receiver_id, body, sent_at, timestamp, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ChatID, m.ClientMsgID, m.SenderID, m.ReceiverID, m.Body, m.SentAt, m.Timestamp, m.Status, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateMessageStatus sets the delivery status of a locally originated
// message, addressed by its client id.
func (db *DB) UpdateMessageStatus(clientMsgID, status string) error {
	_, err := db.Exec(`UPDATE messages SET status = ? WHERE client_msg_id = ?`, status, clientMsgID)
	return err
}

// ListMessages returns messages for a chat using keyset pagination by timestamp.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, chat_id, client_msg_id, sender_id, receiver_id, body, sent_at, timestamp, status
		FROM messages
		WHERE chat_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.ClientMsgID, &m.SenderID, &m.ReceiverID,
			&m.Body, &m.SentAt, &m.Timestamp, &m.Status); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageWithUsers is a row from v_messages_users.
type MessageWithUsers struct {
	Message      Message
	SenderName   string
	ReceiverName string
}

// ListMessagesWithUsers returns a chat's messages joined with sender and
// receiver names, oldest first.
func (db *DB) ListMessagesWithUsers(chatID string, limit int) ([]MessageWithUsers, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, chat_id, client_msg_id, sender_id, receiver_id, body, sent_at, timestamp, status,
			TRIM(COALESCE(sender_first_name, '') || ' ' || COALESCE(sender_last_name, '')),
			TRIM(COALESCE(receiver_first_name, '') || ' ' || COALESCE(receiver_last_name, ''))
		FROM v_messages_users
		WHERE chat_id = ?
		ORDER BY timestamp ASC
		LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []MessageWithUsers
	for rows.Next() {
		var m MessageWithUsers
		if err := rows.Scan(&m.Message.ID, &m.Message.ChatID, &m.Message.ClientMsgID,
			&m.Message.SenderID, &m.Message.ReceiverID, &m.Message.Body, &m.Message.SentAt,
			&m.Message.Timestamp, &m.Message.Status, &m.SenderName, &m.ReceiverName); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
