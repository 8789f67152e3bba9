package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/phinze/fpdeck/internal/print"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS prints (
    id TEXT PRIMARY KEY,
    driver TEXT NOT NULL,
    device_id TEXT NOT NULL,
    username TEXT NOT NULL,
    finger TEXT NOT NULL,
    data BYTEA NOT NULL,
    enrolled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (driver, device_id, username, finger)
);
`

// OpenPostgres connects to dsn and makes sure the schema exists.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

// PostgresStore keeps serialized prints in the prints table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Save upserts p.
func (s *PostgresStore) Save(ctx context.Context, p *print.Print) error {
	key, err := prepare(p)
	if err != nil {
		return err
	}
	data, err := p.Serialize()
	if err != nil {
		return fmt.Errorf("serializing print: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prints (id, driver, device_id, username, finger, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (driver, device_id, username, finger)
		DO UPDATE SET id = EXCLUDED.id, data = EXCLUDED.data, enrolled_at = now()
	`, p.ID, key.Driver, key.DeviceID, key.Username, key.Finger.String(), data)
	if err != nil {
		return fmt.Errorf("saving print: %w", err)
	}
	return nil
}

// Load returns the print stored under key.
func (s *PostgresStore) Load(ctx context.Context, key Key) (*print.Print, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM prints
		 WHERE driver = $1 AND device_id = $2 AND username = $3 AND finger = $4
	`, key.Driver, key.DeviceID, key.Username, key.Finger.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading print: %w", err)
	}
	return print.Deserialize(data)
}

// List returns the prints of a device ordered by username, then finger name.
func (s *PostgresStore) List(ctx context.Context, driver, deviceID string) ([]*print.Print, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM prints
		 WHERE driver = $1 AND device_id = $2
		 ORDER BY username, finger
	`, driver, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing prints: %w", err)
	}
	defer rows.Close()

	var prints []*print.Print
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning print: %w", err)
		}
		p, err := print.Deserialize(data)
		if err != nil {
			return nil, err
		}
		prints = append(prints, p)
	}
	return prints, rows.Err()
}

// Delete removes the print stored under key.
func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM prints
		 WHERE driver = $1 AND device_id = $2 AND username = $3 AND finger = $4
	`, key.Driver, key.DeviceID, key.Username, key.Finger.String())
	if err != nil {
		return fmt.Errorf("deleting print: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
