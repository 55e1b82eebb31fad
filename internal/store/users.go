package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/massy-ia/citydesk/internal/apperr"
)

const userColumns = `id, email, username, password_hash, first_name, last_name, role,
        is_active, is_verified, created_at, last_login, profile_picture`

func scanUser(row scanner) (*User, error) {
	var (
		user      User
		role      string
		lastLogin sql.NullTime
		picture   sql.NullString
	)
	err := row.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.FirstName,
		&user.LastName, &role, &user.IsActive, &user.IsVerified, &user.CreatedAt, &lastLogin, &picture)
	if err != nil {
		return nil, err
	}
	user.Role = Role(role)
	user.LastLogin = timePtr(lastLogin)
	user.ProfilePicture = stringPtr(picture)
	return &user, nil
}

// CreateUser inserts a new active account. A taken email or username is a Conflict.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	user.ID = uuid.NewString()
	user.CreatedAt = s.now()
	user.IsActive = true
	if user.Role == "" {
		user.Role = RoleCitizen
	}

	return s.withTx(ctx, "failed to insert user", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			user.ID, user.Email, user.Username, user.PasswordHash, user.FirstName, user.LastName,
			string(user.Role), user.IsActive, user.IsVerified, user.CreatedAt,
			nullTime(user.LastLogin), nullString(user.ProfilePicture))
		return err
	})
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("user not found")
		}
		return nil, mapError("failed to query user", err)
	}
	return user, nil
}

// GetActiveUserByEmail only matches active accounts.
func (s *SQLiteStore) GetActiveUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ? AND is_active = TRUE", email)
	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("user not found")
		}
		return nil, mapError("failed to query user", err)
	}
	return user, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, mapError("failed to query users", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, mapError("failed to scan user row", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed to iterate users", err)
	}
	return users, nil
}

// UpdateUser writes the mutable profile fields, the role and the active flag.
func (s *SQLiteStore) UpdateUser(ctx context.Context, user *User) error {
	return s.withTx(ctx, "failed to update user", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE users SET username = ?, first_name = ?, last_name = ?,
            role = ?, is_active = ?, profile_picture = ? WHERE id = ?`,
			user.Username, user.FirstName, user.LastName, string(user.Role), user.IsActive,
			nullString(user.ProfilePicture), user.ID)
		if err != nil {
			return err
		}
		return expectAffected(res, "user not found")
	})
}

func (s *SQLiteStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.withTx(ctx, "failed to update last login", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE users SET last_login = ? WHERE id = ?", at, id)
		if err != nil {
			return err
		}
		return expectAffected(res, "user not found")
	})
}

func expectAffected(res sql.Result, notFound string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.NotFound(notFound)
	}
	return nil
}
