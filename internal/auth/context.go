package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxRole
	ctxSubscriberID
)

func WithIdentity(ctx context.Context, userID, role, subscriberID string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	ctx = context.WithValue(ctx, ctxSubscriberID, subscriberID)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("user_id not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}

// SubscriberID returns the subscriber the caller is bound to, if any.
func SubscriberID(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxSubscriberID)
	if s, ok := v.(string); ok && s != "" {
		return s, true
	}
	return "", false
}
