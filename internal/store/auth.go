package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"assetd/internal/auth"
)

const (
	UserRoleAdmin  = auth.RoleAdmin
	UserRoleMember = auth.RoleMember

	userColumns = "u.id, u.username, u.password_hash, u.role, u.disabled, COALESCE(u.avatar_asset_id, ''), COALESCE(u.cover_asset_id, ''), u.created_at, u.updated_at"
)

// AuthUser is a provisioned local user.
type AuthUser struct {
	ID            string
	Username      string
	PasswordHash  string
	Role          string
	Disabled      bool
	AvatarAssetID string
	CoverAssetID  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsAdmin reports whether the user administers the instance.
func (u *AuthUser) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}

// CountEnabledUsers returns the number of users that can still log in.
func (s *Store) CountEnabledUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE disabled = 0`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CreateAdminUser is CreateUser with the admin role.
func (s *Store) CreateAdminUser(ctx context.Context, username, passwordHash string, now time.Time) (*AuthUser, error) {
	return s.CreateUser(ctx, username, passwordHash, UserRoleAdmin, now)
}

// CreateUser provisions a user. An empty role means member.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash, role string, now time.Time) (*AuthUser, error) {
	user := &AuthUser{ID: uuid.NewString(), PasswordHash: passwordHash}
	var err error
	if user.Username, err = auth.NormalizeUsername(username); err != nil {
		return nil, err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, fmt.Errorf("password hash is required")
	}
	if user.Role, err = auth.NormalizeRole(role); err != nil {
		return nil, err
	}
	stampCreated(&user.CreatedAt, &user.UpdatedAt)
	if !now.IsZero() {
		user.CreatedAt, user.UpdatedAt = now.UTC(), now.UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, disabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, user.ID, user.Username, user.PasswordHash, user.Role,
		dbFormatTime(user.CreatedAt), dbFormatTime(user.UpdatedAt))
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByUsername returns nil when no user has the normalized username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*AuthUser, error) {
	return s.userBy(ctx, "username", canonicalUsername(username))
}

// GetUserByID returns nil when the id is unknown.
func (s *Store) GetUserByID(ctx context.Context, id string) (*AuthUser, error) {
	return s.userBy(ctx, "id", strings.TrimSpace(id))
}

// userBy looks a user up by one unique column. column is never user input.
func (s *Store) userBy(ctx context.Context, column, value string) (*AuthUser, error) {
	if value == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.`+column+` = ? LIMIT 1`, value)
	return scanAuthUser(row)
}

// ListUsers returns every user sorted by username.
func (s *Store) ListUsers(ctx context.Context) ([]AuthUser, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users u ORDER BY u.username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]AuthUser, 0)
	for rows.Next() {
		user, err := scanAuthUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// SetUserDisabled flips the disabled flag. Disabling also revokes the user's
// live sessions so existing tokens stop working immediately. Returns nil
// when the user does not exist.
func (s *Store) SetUserDisabled(ctx context.Context, username string, disabled bool, now time.Time) (user *AuthUser, err error) {
	username = canonicalUsername(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	stamp := dbFormatTime(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `UPDATE users SET disabled = ?, updated_at = ? WHERE username = ?`,
		boolToInt(disabled), stamp, username)
	if err != nil {
		return nil, err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, tx.Rollback()
	}
	row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.username = ?`, username)
	if user, err = scanAuthUser(row); err != nil {
		return nil, err
	}
	if disabled {
		if _, err = tx.ExecContext(ctx, `
			UPDATE sessions SET revoked_at = ?
			WHERE user_id = ? AND revoked_at IS NULL
		`, stamp, user.ID); err != nil {
			return nil, err
		}
	}
	return user, tx.Commit()
}

// DeleteUser removes a user; sessions go with it through the foreign key.
func (s *Store) DeleteUser(ctx context.Context, username string) (bool, error) {
	username = canonicalUsername(username)
	if username == "" {
		return false, fmt.Errorf("username is required")
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// CreateSession stores the hash of a freshly issued session token.
func (s *Store) CreateSession(ctx context.Context, userID, tokenHash string, expiresAt, createdAt time.Time) error {
	userID, tokenHash = strings.TrimSpace(userID), strings.TrimSpace(tokenHash)
	switch {
	case userID == "":
		return fmt.Errorf("user id is required")
	case tokenHash == "":
		return fmt.Errorf("token hash is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), userID, tokenHash, dbFormatTime(expiresAt), dbFormatTime(createdAt))
	return err
}

// GetUserBySessionTokenHash resolves a session to its user. Expired, revoked
// and disabled-user sessions resolve to nil.
func (s *Store) GetUserBySessionTokenHash(ctx context.Context, tokenHash string, now time.Time) (*AuthUser, error) {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = ?
		  AND s.revoked_at IS NULL
		  AND s.expires_at > ?
		  AND u.disabled = 0
		LIMIT 1
	`, tokenHash, dbFormatTime(now))
	return scanAuthUser(row)
}

// RevokeSessionByTokenHash is a no-op for unknown or already revoked tokens.
func (s *Store) RevokeSessionByTokenHash(ctx context.Context, tokenHash string, revokedAt time.Time) error {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = ?
		WHERE token_hash = ? AND revoked_at IS NULL
	`, dbFormatTime(revokedAt), tokenHash)
	return err
}

func scanAuthUser(scanner interface {
	Scan(dest ...any) error
}) (*AuthUser, error) {
	var user AuthUser
	var disabled int
	var created, updated string
	err := scanner.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &disabled,
		&user.AvatarAssetID, &user.CoverAssetID, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Disabled = disabled != 0
	if user.CreatedAt, err = dbParseTime(created); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = dbParseTime(updated); err != nil {
		return nil, err
	}
	return &user, nil
}

// canonicalUsername is the lookup form of a username. Validation happens on
// create only, so legacy rows stay reachable.
func canonicalUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
