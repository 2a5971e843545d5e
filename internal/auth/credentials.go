package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tulen-chik/beltelekom-sub000/internal/config"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Account is a configured login.
type Account struct {
	Username     string `json:"username"`
	Role         string `json:"role"`
	SubscriberID string `json:"subscriber_id,omitempty"`

	hash []byte
}

// Credentials checks passwords against bcrypt hashes loaded from config.
type Credentials struct {
	accounts map[string]Account
	// dummy is compared for unknown users so both paths cost one bcrypt run.
	dummy []byte
}

// NewCredentials validates every configured user. knownRole rejects roles the
// RBAC layer does not define; subscriberRole names the role that must carry a
// subscriber id.
func NewCredentials(users []config.AuthUser, knownRole func(string) bool, subscriberRole string) (*Credentials, error) {
	c := &Credentials{accounts: make(map[string]Account, len(users))}
	var errs []string
	for _, u := range users {
		if knownRole != nil && !knownRole(u.Role) {
			errs = append(errs, fmt.Sprintf("user %q: unknown role %q", u.Username, u.Role))
			continue
		}
		if u.Role == subscriberRole && u.SubscriberID == "" {
			errs = append(errs, fmt.Sprintf("user %q: role %s requires a subscriber id", u.Username, u.Role))
			continue
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			errs = append(errs, fmt.Sprintf("user %q: invalid bcrypt hash", u.Username))
			continue
		}
		c.accounts[normalizeUsername(u.Username)] = Account{
			Username:     u.Username,
			Role:         u.Role,
			SubscriberID: u.SubscriberID,
			hash:         []byte(u.PasswordHash),
		}
	}
	if len(errs) > 0 {
		return nil, errors.New("auth users: " + strings.Join(errs, "; "))
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("unused-password"), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	c.dummy = dummy
	return c, nil
}

// Verify returns the account for username if password matches.
func (c *Credentials) Verify(username, password string) (Account, error) {
	a, ok := c.accounts[normalizeUsername(username)]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(c.dummy, []byte(password))
		return Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return a, nil
}

// Lookup returns the configured account for username.
func (c *Credentials) Lookup(username string) (Account, bool) {
	a, ok := c.accounts[normalizeUsername(username)]
	return a, ok
}

func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}
