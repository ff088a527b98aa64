package store

import (
	"database/sql"
	"time"
)

// UpsertLocation inserts or updates a location keyed by its server id.
func (db *DB) UpsertLocation(l *Location) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO locations (location_id, name, address, street, locality, city, state, country, latitude, longitude, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location_id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			street = excluded.street,
			locality = excluded.locality,
			city = excluded.city,
			state = excluded.state,
			country = excluded.country,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			updated_at = excluded.updated_at`,
		l.LocationID, l.Name, l.Address, l.Street, l.Locality, l.City, l.State, l.Country,
		l.Latitude, l.Longitude, now)
	return err
}

// GetLocation returns a location by its server id, or nil if not cached.
func (db *DB) GetLocation(locationID string) (*Location, error) {
	var l Location
	err := db.QueryRow(`
		SELECT id, location_id, name, address, street, locality, city, state, country, latitude, longitude
		FROM locations WHERE location_id = ?`, locationID).
		Scan(&l.ID, &l.LocationID, &l.Name, &l.Address, &l.Street, &l.Locality, &l.City,
			&l.State, &l.Country, &l.Latitude, &l.Longitude)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}
