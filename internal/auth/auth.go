// Package auth issues and verifies the bearer tokens that guard the
// mutating API routes.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"crosswatch/internal/config"
	"crosswatch/internal/timeutil"
)

const defaultUsername = "admin"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

// Authenticator checks the operator's credentials and issues bearer tokens
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	tokens       *JWTManager
}

// NewAuthenticator builds an authenticator from the auth section of the
// service config. The password may be plaintext or a bcrypt hash.
func NewAuthenticator(cfg config.AuthConfig, clock timeutil.Clock) (*Authenticator, error) {
	a := &Authenticator{
		enabled:  cfg.Enabled,
		username: cfg.Username,
		tokens:   NewJWTManager(cfg.JWTSecret, cfg.TokenExpiry, clock),
	}
	if a.username == "" {
		a.username = defaultUsername
	}
	if !a.enabled {
		return a, nil
	}
	if cfg.Password == "" {
		return nil, errors.New("auth enabled without a password")
	}

	hash, err := passwordHash(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("auth password: %w", err)
	}
	a.passwordHash = hash
	return a, nil
}

// IsEnabled returns whether authentication is enabled
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// Authenticate checks the credentials and returns a signed token and its
// expiry as a Unix timestamp
func (a *Authenticator) Authenticate(username, password string) (string, int64, error) {
	if !a.enabled {
		return "", 0, ErrAuthDisabled
	}

	// Both checks always run so a wrong username costs the same as a wrong password.
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expires, err := a.tokens.GenerateToken(a.username)
	if err != nil {
		return "", 0, err
	}
	return token, expires.Unix(), nil
}

// ValidateToken verifies a bearer token
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.tokens.ValidateToken(token)
}

// HashPassword creates a bcrypt hash suitable for AUTH_PASSWORD
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// passwordHash keeps a configured bcrypt hash as is and hashes anything else
func passwordHash(configured string) ([]byte, error) {
	if isBcryptHash(configured) {
		return []byte(configured), nil
	}
	return bcrypt.GenerateFromPassword([]byte(configured), bcrypt.DefaultCost)
}

func isBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}
