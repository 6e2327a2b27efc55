// Package auth holds the rules for local accounts: canonical usernames,
// roles, and bcrypt password hashes.
package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes  = 72
	maxUsernameLength = 32
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9._-]*[a-z0-9])?$`)

// NormalizeUsername lowercases and trims raw and checks it against the
// allowed alphabet.
func NormalizeUsername(raw string) (string, error) {
	username := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case username == "":
		return "", errors.New("username is required")
	case len(username) > maxUsernameLength:
		return "", fmt.Errorf("username must be at most %d characters", maxUsernameLength)
	case !usernamePattern.MatchString(username):
		return "", fmt.Errorf("invalid username %q", username)
	}
	return username, nil
}

// NormalizeRole maps an empty role to member and rejects anything other
// than admin or member.
func NormalizeRole(raw string) (string, error) {
	switch role := strings.ToLower(strings.TrimSpace(raw)); role {
	case "":
		return RoleMember, nil
	case RoleAdmin, RoleMember:
		return role, nil
	default:
		return "", fmt.Errorf("role must be %s or %s", RoleAdmin, RoleMember)
	}
}

func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

// HashPassword validates and hashes password for storage.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword reports whether candidate matches the stored hash. An empty
// hash never matches.
func VerifyPassword(passwordHash, candidate string) bool {
	if strings.TrimSpace(passwordHash) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(candidate)) == nil
}
