package store

import (
	"database/sql"
	"time"
)

// UpsertUser inserts or updates a user keyed by its server id. Empty incoming
// fields do not clobber known values.
func (db *DB) UpsertUser(u *User) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO users (user_id, first_name, last_name, profile_picture, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			first_name = CASE WHEN excluded.first_name != '' THEN excluded.first_name ELSE users.first_name END,
			last_name = CASE WHEN excluded.last_name != '' THEN excluded.last_name ELSE users.last_name END,
			profile_picture = CASE WHEN excluded.profile_picture != '' THEN excluded.profile_picture ELSE users.profile_picture END,
			updated_at = excluded.updated_at`,
		u.UserID, u.FirstName, u.LastName, u.ProfilePicture, now)
	return err
}

// GetUser returns a user by its server id, or nil if not cached.
func (db *DB) GetUser(userID string) (*User, error) {
	var u User
	err := db.QueryRow(`SELECT id, user_id, first_name, last_name, profile_picture FROM users WHERE user_id = ?`, userID).
		Scan(&u.ID, &u.UserID, &u.FirstName, &u.LastName, &u.ProfilePicture)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
