package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/courier/direct-chat/internal/user"
)

// UserDirectory is the PostgreSQL implementation of user.Directory.
type UserDirectory struct {
	db *sql.DB
}

// NewUserDirectory creates a directory backed by the given database handle.
func NewUserDirectory(db *sql.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

// ByName looks up a user by name. Returns (nil, nil) when no row matches.
func (d *UserDirectory) ByName(ctx context.Context, name string) (*user.User, error) {
	const query = `SELECT id, name FROM users WHERE name = $1`

	var u user.User
	err := d.db.QueryRowContext(ctx, query, name).Scan(&u.ID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: user by name: %w", err)
	}
	return &u, nil
}

// Ensure inserts a user with the given name if it does not exist and returns
// the record either way. Used for seeding and tests; account management
// proper lives outside this service.
func (d *UserDirectory) Ensure(ctx context.Context, name string) (*user.User, error) {
	const query = `
		INSERT INTO users (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name`

	var u user.User
	if err := d.db.QueryRowContext(ctx, query, name).Scan(&u.ID, &u.Name); err != nil {
		return nil, fmt.Errorf("pgstore: ensure user: %w", err)
	}
	return &u, nil
}
