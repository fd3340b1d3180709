package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/models"
)

// User is a stored account; the embedded models.User is what the API returns.
type User struct {
	models.User
	PasswordHash string
}

const userColumns = "id, name, username, email, password_hash, avatar_url, bio, online, last_seen"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var lastSeen sql.NullTime
	err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.PasswordHash,
		&u.AvatarURL, &u.Bio, &u.Online, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time.UTC()
		u.LastSeen = &t
	}
	return &u, nil
}

// CreateUser assigns an id and inserts u. Email and username must be unused.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if _, err := s.UserByEmail(ctx, u.Email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := s.UserByUsername(ctx, u.Username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	u.ID = newID()
	_, err := s.exec(ctx,
		"INSERT INTO users (id, name, username, email, password_hash, avatar_url, bio, online, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.Name, u.Username, u.Email, u.PasswordHash, u.AvatarURL, u.Bio, false, s.now(),
	)
	return err
}

func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
}

func (s *Store) listUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u.User)
	}
	return users, rows.Err()
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.listUsers(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at")
}

// SearchUsers matches username or name case-insensitively, never returning
// excludeID. A blank query matches nobody.
func (s *Store) SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.User{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(query) + "%"
	return s.listUsers(ctx,
		"SELECT "+userColumns+" FROM users WHERE (LOWER(username) LIKE ? OR LOWER(name) LIKE ?) AND id <> ? ORDER BY username LIMIT ?",
		pattern, pattern, excludeID, limit,
	)
}

// UpdateProfile applies the non-empty fields of update. Bio is always
// written. Changing to a username or email owned by someone else fails with
// ErrUsernameTaken or ErrEmailTaken and leaves the record untouched.
func (s *Store) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*User, error) {
	u, err := s.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Username != "" && update.Username != u.Username {
		if _, err := s.UserByUsername(ctx, update.Username); err == nil {
			return nil, ErrUsernameTaken
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		u.Username = update.Username
	}
	if update.Email != "" && update.Email != u.Email {
		if _, err := s.UserByEmail(ctx, update.Email); err == nil {
			return nil, ErrEmailTaken
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		u.Email = update.Email
	}
	if update.Name != "" {
		u.Name = update.Name
	}
	u.Bio = update.Bio

	_, err = s.exec(ctx,
		"UPDATE users SET name = ?, username = ?, email = ?, bio = ? WHERE id = ?",
		u.Name, u.Username, u.Email, u.Bio, id,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) SetPassword(ctx context.Context, id, passwordHash string) error {
	return s.updateOne(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, id)
}

// SetAvatar stores url as the avatar; "" removes it.
func (s *Store) SetAvatar(ctx context.Context, id, url string) error {
	return s.updateOne(ctx, "UPDATE users SET avatar_url = ? WHERE id = ?", url, id)
}

func (s *Store) SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	return s.updateOne(ctx, "UPDATE users SET online = ?, last_seen = ? WHERE id = ?", online, lastSeen.UTC(), id)
}

func (s *Store) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
