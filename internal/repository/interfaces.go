package repository

import (
	"context"

	"github.com/google/uuid"

	"situation-room/internal/domain/room"
	"situation-room/internal/domain/token"
)

// RoomRepository persists the room aggregate. Every write that touches both
// the room row and its participants runs in one local transaction.
type RoomRepository interface {
	Create(ctx context.Context, r *room.Room) error
	GetByID(ctx context.Context, tenantID, roomID string) (room.Room, error)
	Save(ctx context.Context, r *room.Room) error
	Delete(ctx context.Context, tenantID, roomID string) error

	// ListForUser returns every room userName participates in, newest first.
	ListForUser(ctx context.Context, tenantID, userName string) ([]room.Room, error)
	MarkResolutionRead(ctx context.Context, tenantID, userName string) (int64, error)
}

type TokenRepository interface {
	GetByUser(ctx context.Context, tenantID, appUserID string) (token.ProxyTokenMapping, error)
	Create(ctx context.Context, m *token.ProxyTokenMapping) error
	// UpdateToken replaces the placeholder token of a mapping. A mapping that
	// already holds a real token is left alone and ErrStaleWrite is returned.
	UpdateToken(ctx context.Context, id uuid.UUID, proxyToken string) error
}
