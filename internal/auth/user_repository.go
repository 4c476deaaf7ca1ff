package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// timeFormat matches the hierarchy tables.
const timeFormat = "2006-01-02T15:04:05.000000Z"

const userColumns = "id, email, name, password_hash, role, created_at, updated_at"

// DB is the subset of *sql.DB the repository uses.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository persists accounts in the users table.
type UserRepository struct {
	db  DB
	now func() time.Time
}

// NewUserRepository creates a SQLite-backed user repository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

// Create inserts user, assigning its id and timestamps. The email is
// stored normalised; a duplicate returns ErrEmailExists.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	user.ID = uuid.NewString()
	user.Email = NormalizeEmail(user.Email)
	if user.Role == "" {
		user.Role = RoleUser
	}
	now := r.now().UTC().Truncate(time.Microsecond)
	user.CreatedAt, user.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.Email, user.Name, user.PasswordHash, string(user.Role),
		now.Format(timeFormat), now.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetByID returns the user with id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetByEmail returns the user registered under email, in any case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", NormalizeEmail(email))
}

func (r *UserRepository) get(ctx context.Context, query string, arg string) (*User, error) {
	var u User
	var role, createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	u.Role = Role(role)
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // format is controlled
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
