package repository

import (
	"context"
	"errors"

	"situation-room/internal/domain/room"
	situation_errors "situation-room/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresRoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &PostgresRoomRepository{db: db}
}

func (r *PostgresRoomRepository) Create(ctx context.Context, rm *room.Room) error {
	if rm.Version == 0 {
		rm.Version = 1
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants").Create(rm).Error; err != nil {
			if isDuplicate(err) {
				return situation_errors.ErrAlreadyExists
			}
			return err
		}
		if len(rm.Participants) == 0 {
			return nil
		}
		return tx.Create(&rm.Participants).Error
	})
}

func (r *PostgresRoomRepository) GetByID(ctx context.Context, tenantID, roomID string) (room.Room, error) {
	var rm room.Room
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("invited_at ASC")
		}).
		Where("id = ? AND tenant_id = ?", roomID, tenantID).
		First(&rm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return room.Room{}, situation_errors.ErrNotFound
		}
		return room.Room{}, err
	}
	return rm, nil
}

// Save writes the room row and makes the stored participant set equal to
// rm.Participants. The write only lands if the stored version still equals
// rm.Version; otherwise ErrStaleWrite is returned and nothing changes.
// On success rm.Version holds the new version.
func (r *PostgresRoomRepository) Save(ctx context.Context, rm *room.Room) error {
	expected := rm.Version
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rm.Version = expected + 1
		res := tx.Model(&room.Room{}).
			Where("id = ? AND tenant_id = ? AND version = ?", rm.ID, rm.TenantID, expected).
			Select("*").
			Omit("Participants", "ID", "TenantID", "CreatedAt").
			Updates(rm)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&room.Room{}).
				Where("id = ? AND tenant_id = ?", rm.ID, rm.TenantID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return situation_errors.ErrNotFound
			}
			return situation_errors.ErrStaleWrite
		}

		del := tx.Where("room_id = ?", rm.ID)
		if names := rm.ParticipantNames(); len(names) > 0 {
			del = del.Where("user_name NOT IN ?", names)
		}
		if err := del.Delete(&room.Participant{}).Error; err != nil {
			return err
		}

		if len(rm.Participants) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rm.Participants).Error
	})
	if err != nil {
		rm.Version = expected
	}
	return err
}

func (r *PostgresRoomRepository) Delete(ctx context.Context, tenantID, roomID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ? AND tenant_id = ?", roomID, tenantID).Delete(&room.Participant{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND tenant_id = ?", roomID, tenantID).Delete(&room.Room{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return situation_errors.ErrNotFound
		}
		return nil
	})
}

func (r *PostgresRoomRepository) ListForUser(ctx context.Context, tenantID, userName string) ([]room.Room, error) {
	var rooms []room.Room
	memberships := r.db.Model(&room.Participant{}).
		Select("room_id").
		Where("tenant_id = ? AND user_name = ?", tenantID, userName)

	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("tenant_id = ? AND id IN (?)", tenantID, memberships).
		Order("updated_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

// MarkResolutionRead flags the caller's resolved rooms as read. The rooms'
// versions move too, so a save based on an older read cannot undo the flag.
func (r *PostgresRoomRepository) MarkResolutionRead(ctx context.Context, tenantID, userName string) (int64, error) {
	var marked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unread := tx.Model(&room.Participant{}).
			Select("room_id").
			Where("tenant_id = ? AND user_name = ? AND room_status = ? AND resolution_read = ?",
				tenantID, userName, room.StatusResolved, false)
		if err := tx.Model(&room.Room{}).
			Where("tenant_id = ? AND id IN (?)", tenantID, unread).
			UpdateColumn("version", gorm.Expr("version + 1")).Error; err != nil {
			return err
		}

		res := tx.Model(&room.Participant{}).
			Where("tenant_id = ? AND user_name = ? AND room_status = ? AND resolution_read = ?",
				tenantID, userName, room.StatusResolved, false).
			Update("resolution_read", true)
		if res.Error != nil {
			return res.Error
		}
		marked = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}
