package remote

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RenewFunc fetches a fresh bearer token from the auth endpoint.
type RenewFunc func(ctx context.Context) (string, error)

// TokenProvider hands out the current bearer token and renews it before
// expiry. Expiry is read from the token's own claims; the signature is the
// server's problem, the client only needs the exp timestamp.
type TokenProvider struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
	renew  RenewFunc
	leeway time.Duration
	now    func() time.Time
}

func NewTokenProvider(renew RenewFunc) *TokenProvider {
	return &TokenProvider{
		renew:  renew,
		leeway: 30 * time.Second,
		now:    time.Now,
	}
}

// SetToken installs a token obtained out of band (e.g. from a stored
// session). Unparseable tokens are kept with no expiry and used as-is.
func (p *TokenProvider) SetToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
	p.expiry = tokenExpiry(token)
}

// Token returns a token valid for at least the leeway window, renewing if
// needed. An empty provider with no renew func yields an empty token, which
// the client sends unauthenticated.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && (p.expiry.IsZero() || p.now().Add(p.leeway).Before(p.expiry)) {
		return p.token, nil
	}
	if p.renew == nil {
		return p.token, nil
	}
	token, err := p.renew(ctx)
	if err != nil {
		return "", err
	}
	p.token = token
	p.expiry = tokenExpiry(token)
	return p.token, nil
}

func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
