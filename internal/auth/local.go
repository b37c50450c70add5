package auth

import (
	"context"
	"errors"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
)

// LocalAuthProvider backs development mode: one shared token resolves to a
// single local user, so the check-in engine can be exercised without the
// identity service running.
type LocalAuthProvider struct {
	token  string
	user   internal.User
	logger internal.Logger
}

func NewLocalAuthProvider(token string, logger internal.Logger) *LocalAuthProvider {
	return &LocalAuthProvider{
		token:  token,
		user:   internal.User{ID: "u1", Token: token, Name: "Demo User"},
		logger: logger,
	}
}

func (a *LocalAuthProvider) ValidateTokenLocal(token string) (*internal.User, error) {
	if token != a.token {
		a.logger.Warnf("rejected token not matching the configured local token")
		return nil, errors.New("invalid token")
	}
	u := a.user
	return &u, nil
}

func (a *LocalAuthProvider) ValidateTokenRemote(ctx context.Context, token string) (*internal.User, error) {
	return nil, errors.New("remote validation not available in development mode")
}
