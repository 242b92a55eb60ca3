package auth

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"crosswatch/internal/timeutil"
)

const (
	issuer        = "crosswatch"
	defaultExpiry = 24 * time.Hour
	randomKeySize = 32
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims carried by operator tokens. Username mirrors the subject.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies HS256 operator tokens
type JWTManager struct {
	key    []byte
	expiry time.Duration
	clock  timeutil.Clock
	parser *jwt.Parser
}

// NewJWTManager creates a new JWT manager. An empty secret is replaced with a
// random key, so tokens do not survive a restart.
func NewJWTManager(secret string, expiry time.Duration, clock timeutil.Clock) *JWTManager {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if expiry <= 0 {
		expiry = defaultExpiry
	}

	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, randomKeySize)
		_, _ = rand.Read(key)
	}

	return &JWTManager{
		key:    key,
		expiry: expiry,
		clock:  clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clock.Now),
		),
	}
}

// GenerateToken signs a token for username and returns it with its expiry
func (m *JWTManager) GenerateToken(username string) (string, time.Time, error) {
	issued := m.clock.Now()
	expires := issued.Add(m.expiry)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateToken verifies signature, issuer and expiry and returns the claims
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Expiry returns the token lifetime
func (m *JWTManager) Expiry() time.Duration {
	return m.expiry
}
