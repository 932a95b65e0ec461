package services

import (
	"context"
	"strings"

	situation_errors "situation-room/pkg/errors"
	"situation-room/pkg/logger"
)

type ctxKey string

var userIDKey ctxKey = "user_id"
var tenantIDKey ctxKey = "tenant_id"

// WithUserContext stores the caller identity for the rest of the request.
// The ids are mirrored under the logger keys so log lines carry them.
func WithUserContext(ctx context.Context, userID, tenantID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	ctx = context.WithValue(ctx, logger.UserIdKey, userID)
	ctx = context.WithValue(ctx, logger.TenantIdKey, tenantID)
	return ctx
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

func TenantIDFromContext(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(tenantIDKey).(string)
	return tenantID, ok && tenantID != ""
}

// identity is the authenticated caller of one request.
type identity struct {
	UserID   string
	TenantID string
}

func identityFrom(ctx context.Context) (identity, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return identity{}, situation_errors.ErrUnauthorized
	}
	tenantID, ok := TenantIDFromContext(ctx)
	if !ok {
		return identity{}, situation_errors.ErrUnauthorized
	}
	return identity{UserID: strings.TrimSpace(userID), TenantID: tenantID}, nil
}
