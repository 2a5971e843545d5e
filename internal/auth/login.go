package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tulen-chik/beltelekom-sub000/pkg/logger"
)

// Authenticator issues tokens for configured accounts, subject to the throttle.
type Authenticator struct {
	creds    *Credentials
	throttle *Throttle
	tokens   *Manager
	log      *slog.Logger
	clock    func() time.Time
}

func NewAuthenticator(creds *Credentials, throttle *Throttle, tokens *Manager, log *slog.Logger) *Authenticator {
	return &Authenticator{creds: creds, throttle: throttle, tokens: tokens, log: log, clock: time.Now}
}

// Login returns ErrLoginLocked, ErrInvalidCredentials or a token pair.
func (a *Authenticator) Login(ctx context.Context, username, password string) (TokenPair, Account, error) {
	l := logger.FromOr(ctx, a.log)
	if err := a.throttle.Allow(ctx, username); err != nil {
		if errors.Is(err, ErrLoginLocked) {
			l.Warn("login locked out", "username", username)
		}
		return TokenPair{}, Account{}, err
	}

	acct, err := a.creds.Verify(username, password)
	if err != nil {
		if ferr := a.throttle.Failed(ctx, username); ferr != nil {
			l.Error("record failed login", "username", username, "err", ferr)
		}
		return TokenPair{}, Account{}, err
	}
	if err := a.throttle.Succeeded(ctx, username); err != nil {
		l.Error("reset failed logins", "username", username, "err", err)
	}

	pair, err := a.tokens.IssuePair(a.clock(), acct.Username, acct.Role, acct.SubscriberID)
	if err != nil {
		return TokenPair{}, Account{}, err
	}
	l.Info("login", "username", acct.Username, "role", acct.Role)
	return pair, acct, nil
}

// Refresh exchanges a refresh token for a new pair. Role and subscriber scope
// come from the current account config, not from the old token.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (TokenPair, Account, error) {
	now := a.clock()
	claims, err := a.tokens.Verify(refreshToken, TokenTypeRefresh, now)
	if err != nil {
		return TokenPair{}, Account{}, err
	}
	acct, ok := a.creds.Lookup(claims.UserID)
	if !ok {
		return TokenPair{}, Account{}, fmt.Errorf("%w: account %q removed", ErrTokenInvalid, claims.UserID)
	}
	pair, err := a.tokens.IssuePair(now, acct.Username, acct.Role, acct.SubscriberID)
	if err != nil {
		return TokenPair{}, Account{}, err
	}
	logger.FromOr(ctx, a.log).Info("token refreshed", "username", acct.Username, "role", acct.Role)
	return pair, acct, nil
}
