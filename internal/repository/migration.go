package repository

import (
	"fmt"

	"situation-room/internal/domain/room"
	"situation-room/internal/domain/token"
	"situation-room/internal/entity"

	"gorm.io/gorm"
)

// InitSchema creates or updates every table the service owns.
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&room.Room{},
		&room.Participant{},
		&token.ProxyTokenMapping{},
		&entity.Record{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	// Lookups by domain object id go through the jsonb column.
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_chat_rooms_object_ids ON chat_rooms USING GIN (domain_object_ids);`,
		`CREATE INDEX IF NOT EXISTS idx_participants_user ON chat_room_participants (tenant_id, user_name);`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
