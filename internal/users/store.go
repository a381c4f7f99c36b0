// Package users persists accounts and drives email verification.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kisaansetu/kisaan-setu/internal/logger"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

// User is an account, created either by registration or by Google login.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	GoogleID  string    `json:"-"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

// SQLiteStore keeps users in a sqlite file (pure Go driver).
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	google_id TEXT UNIQUE,
	verified INTEGER NOT NULL DEFAULT 0,
	verification_token TEXT UNIQUE,
	created_at TEXT NOT NULL
);`

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		logger.GetLogger().Warnw("Could not set WAL mode", "error", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const userColumns = `id, email, name, COALESCE(google_id, ''), verified, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var (
		u  User
		ts string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.GoogleID, &u.Verified, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		u.CreatedAt = t
	}
	return u, nil
}

// CreateUnverified inserts a new account awaiting confirmation of token.
func (s *SQLiteStore) CreateUnverified(ctx context.Context, email, name, token string) (User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE email = ?`, email).Scan(&exists)
	switch {
	case err == nil:
		return User{}, ErrEmailTaken
	case !errors.Is(err, sql.ErrNoRows):
		return User{}, err
	}

	u := User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users(id, email, name, verified, verification_token, created_at) VALUES(?,?,?,0,?,?)`,
		u.ID, u.Email, u.Name, token, u.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return User{}, err
	}
	if err := tx.Commit(); err != nil {
		return User{}, err
	}
	return u, nil
}

// UpsertGoogleUser links a Google identity to an account, creating a verified
// one when neither the Google id nor the email is known.
func (s *SQLiteStore) UpsertGoogleUser(ctx context.Context, googleID, email, name string) (User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	defer tx.Rollback()

	u, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = ? OR email = ? ORDER BY google_id IS NULL LIMIT 1`,
		googleID, email))
	switch {
	case errors.Is(err, ErrNotFound):
		u = User{
			ID:        uuid.NewString(),
			Email:     email,
			Name:      name,
			GoogleID:  googleID,
			Verified:  true,
			CreatedAt: s.now().UTC().Truncate(time.Second),
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users(id, email, name, google_id, verified, created_at) VALUES(?,?,?,?,1,?)`,
			u.ID, u.Email, u.Name, u.GoogleID, u.CreatedAt.Format(time.RFC3339))
	case err == nil:
		u.GoogleID = googleID
		u.Verified = true
		if name != "" {
			u.Name = name
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET google_id = ?, name = ?, verified = 1, verification_token = NULL WHERE id = ?`,
			u.GoogleID, u.Name, u.ID)
	}
	if err != nil {
		return User{}, err
	}

	if err := tx.Commit(); err != nil {
		return User{}, err
	}
	return u, nil
}

// MarkVerified confirms the account holding token. Tokens are single use.
func (s *SQLiteStore) MarkVerified(ctx context.Context, token string) (User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	defer tx.Rollback()

	u, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE verification_token = ?`, token))
	if err != nil {
		return User{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET verified = 1, verification_token = NULL WHERE id = ?`, u.ID); err != nil {
		return User{}, err
	}
	if err := tx.Commit(); err != nil {
		return User{}, err
	}

	u.Verified = true
	return u, nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}
