package auth

import (
	"context"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
)

type Provider interface {
	ValidateTokenLocal(token string) (*internal.User, error)
	ValidateTokenRemote(ctx context.Context, token string) (*internal.User, error)
}
