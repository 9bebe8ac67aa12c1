package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned when a request carries no valid identity.
var ErrUnauthenticated = errors.New("request is not authenticated")

// User identifies the requesting user.
type User struct {
	ID    string `json:"user_id"`
	Email string `json:"email"`
}

// Provider resolves the user behind an HTTP request.
type Provider interface {
	Authenticate(ctx context.Context, r *http.Request) (User, error)
}

// StaticProvider returns a fixed user for every request. Local development
// only; it is selected by explicit configuration.
type StaticProvider struct {
	user User
}

// NewStaticProvider creates a provider returning the given user.
func NewStaticProvider(user User) *StaticProvider {
	return &StaticProvider{user: user}
}

// Authenticate implements Provider.
func (p *StaticProvider) Authenticate(ctx context.Context, r *http.Request) (User, error) {
	if p.user.ID == "" {
		return User{}, ErrUnauthenticated
	}
	return p.user, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrUnauthenticated
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrUnauthenticated
	}
	return token, nil
}
