package store

import (
	"database/sql"
	"fmt"
	"time"
)

func bookTable(table string) error {
	if table != TableBooksSearch && table != TableBooksOwned {
		return fmt.Errorf("not a book table: %s", table)
	}
	return nil
}

// UpsertBook inserts or updates a book keyed by its server id. table selects
// the search-result or owned variant.
func (db *DB) UpsertBook(table string, b *Book) error {
	if err := bookTable(table); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(fmt.Sprintf(`
		INSERT INTO %s (book_id, isbn_10, isbn_13, title, author, description, barter_type,
			owner_id, location_id, image_url, pub_year, pub_month, price, condition, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(book_id) DO UPDATE SET
			isbn_10 = excluded.isbn_10,
			isbn_13 = excluded.isbn_13,
			title = excluded.title,
			author = excluded.author,
			description = excluded.description,
			barter_type = excluded.barter_type,
			owner_id = excluded.owner_id,
			location_id = excluded.location_id,
			image_url = excluded.image_url,
			pub_year = excluded.pub_year,
			pub_month = excluded.pub_month,
			price = excluded.price,
			condition = excluded.condition,
			updated_at = excluded.updated_at`, table),
		b.BookID, b.ISBN10, b.ISBN13, b.Title, b.Author, b.Description, b.BarterType,
		b.OwnerID, b.LocationID, b.ImageURL, b.PubYear, b.PubMonth, b.Price, b.Condition, now)
	return err
}

// GetBook returns a book by its server id, or nil if not cached.
func (db *DB) GetBook(table, bookID string) (*Book, error) {
	if err := bookTable(table); err != nil {
		return nil, err
	}
	var b Book
	err := db.QueryRow(fmt.Sprintf(`
		SELECT id, book_id, isbn_10, isbn_13, title, author, description, barter_type,
			owner_id, location_id, image_url, pub_year, pub_month, price, condition
		FROM %s WHERE book_id = ?`, table), bookID).
		Scan(&b.ID, &b.BookID, &b.ISBN10, &b.ISBN13, &b.Title, &b.Author, &b.Description,
			&b.BarterType, &b.OwnerID, &b.LocationID, &b.ImageURL, &b.PubYear, &b.PubMonth,
			&b.Price, &b.Condition)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBook removes a book by its server id. Returns the affected row count.
func (db *DB) DeleteBook(table, bookID string) (int64, error) {
	if err := bookTable(table); err != nil {
		return 0, err
	}
	res, err := db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE book_id = ?`, table), bookID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListBookListings returns search results joined with their location via
// v_books_location, newest first.
func (db *DB) ListBookListings(limit, offset int) ([]BookListing, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, book_id, title, author, barter_type, owner_id, image_url, price, condition,
			COALESCE(location_name, ''), COALESCE(city, ''), COALESCE(state, ''),
			COALESCE(country, ''), COALESCE(latitude, 0), COALESCE(longitude, 0)
		FROM v_books_location
		ORDER BY id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var listings []BookListing
	for rows.Next() {
		var l BookListing
		if err := rows.Scan(&l.Book.ID, &l.Book.BookID, &l.Book.Title, &l.Book.Author,
			&l.Book.BarterType, &l.Book.OwnerID, &l.Book.ImageURL, &l.Book.Price,
			&l.Book.Condition, &l.LocationName, &l.City, &l.State, &l.Country,
			&l.Latitude, &l.Longitude); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// BookCount returns the number of cached books in the given table.
func (db *DB) BookCount(table string) (int64, error) {
	if err := bookTable(table); err != nil {
		return 0, err
	}
	var count int64
	err := db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&count)
	return count, err
}
