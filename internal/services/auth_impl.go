package services

import (
	"context"
	"errors"

	"crosswatch/internal/auth"
	"crosswatch/internal/middleware"
)

// Authenticator is implemented by auth.Authenticator
type Authenticator interface {
	IsEnabled() bool
	Authenticate(username, password string) (string, int64, error)
}

// LoginPayload carries operator credentials
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult carries the issued bearer token
type LoginResult struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// AuthStatus reports whether auth is on and who is calling
type AuthStatus struct {
	Enabled       bool    `json:"enabled"`
	Authenticated bool    `json:"authenticated"`
	Username      *string `json:"username,omitempty"`
}

// AuthImplementation implements the auth service
type AuthImplementation struct {
	authenticator Authenticator
}

// NewAuthService creates a new auth service implementation
func NewAuthService(authenticator Authenticator) *AuthImplementation {
	return &AuthImplementation{authenticator: authenticator}
}

// Login authenticates a user and returns a JWT token
func (a *AuthImplementation) Login(ctx context.Context, p *LoginPayload) (*LoginResult, error) {
	if p == nil {
		return nil, &BadRequestError{Message: "credentials are required"}
	}
	token, expiresAt, err := a.authenticator.Authenticate(p.Username, p.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			return nil, &UnauthorizedError{Message: "invalid username or password"}
		case errors.Is(err, auth.ErrAuthDisabled):
			return nil, &UnauthorizedError{Message: "authentication is disabled"}
		default:
			return nil, err
		}
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}

// Status returns the current authentication status
func (a *AuthImplementation) Status(ctx context.Context) (*AuthStatus, error) {
	status := &AuthStatus{Enabled: a.authenticator.IsEnabled()}
	if claims := middleware.GetUserFromContext(ctx); claims != nil {
		status.Authenticated = true
		status.Username = &claims.Username
	}
	return status, nil
}
