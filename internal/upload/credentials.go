package upload

import (
	"context"
	"os"
)

// CredentialProvider supplies the bearer token attached to backend requests.
// An empty token with a nil error means the request is sent unauthenticated.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// EnvToken reads the token from the named environment variable on every call.
type EnvToken string

func (e EnvToken) Token(context.Context) (string, error) {
	return os.Getenv(string(e)), nil
}

// ChainProvider returns the token of the first provider that has one.
// A provider error is returned only when no provider has a token.
type ChainProvider []CredentialProvider

func (c ChainProvider) Token(ctx context.Context) (string, error) {
	var err error
	for _, p := range c {
		tok, perr := p.Token(ctx)
		if perr == nil && tok != "" {
			return tok, nil
		}
		if perr != nil {
			err = perr
		}
	}
	return "", err
}
