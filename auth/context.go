package auth

import (
	"context"
	"skill-chat/domain"
)

type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID stores the authenticated identity for downstream layers.
func WithUserID(ctx context.Context, user domain.UserID) context.Context {
	return context.WithValue(ctx, userIDKey, user)
}

func UserIDFrom(ctx context.Context) (domain.UserID, bool) {
	user, ok := ctx.Value(userIDKey).(domain.UserID)
	return user, ok && user != ""
}
