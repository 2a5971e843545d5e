package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// SubscriberID is set only for subscriber accounts and scopes their reads to
// their own calls and bills.
type Claims struct {
	jwt.RegisteredClaims

	UserID       string    `json:"user_id"`
	Role         string    `json:"role"`
	SubscriberID string    `json:"subscriber_id,omitempty"`
	TokenType    TokenType `json:"token_type"`
}
